package controller

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/asr"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/player"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/translate"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/tts"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// ASR服务权重，auto模式下按权重随机选择
const (
	weightKuaishou   = 10
	weightWhisperAPI = 30
	weightWhisperCLI = 5
)

// Components 流水线依赖的外部服务，测试中可以替换为假实现
type Components struct {
	Recognizer  asr.Recognizer
	Selector    *asr.Selector // Recognizer为Selector时设置，用于统计和记录服务名
	Translator  translate.Translator
	Detector    translate.LanguageDetector
	Synthesizer tts.Synthesizer
	Output      player.AudioOutput
}

// BuildComponents 根据配置创建所有服务，HTTP客户端共用同一个错误处理器
func BuildComponents(cfg *models.Config, errorHandler *utils.ErrorHandler) (*Components, error) {
	timeout := time.Duration(cfg.RequestTimeout * float64(time.Second))

	selector := registerASRServices(cfg, timeout)

	var translator translate.Translator
	switch cfg.TranslatorService {
	case "llm":
		translator = translate.NewLLMTranslator(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, timeout, errorHandler)
	default:
		translator = translate.NewGoogleTranslator(cfg.TranslateURL, timeout, errorHandler)
	}

	output, err := player.New(cfg.Player)
	if err != nil {
		return nil, err
	}

	return &Components{
		Recognizer:  selector,
		Selector:    selector,
		Translator:  translator,
		Detector:    translate.NewWhatlangDetector(),
		Synthesizer: tts.NewGoogleTTS(cfg.TTSURL, timeout, errorHandler),
		Output:      output,
	}, nil
}

// registerASRServices 注册配置可用的识别服务
func registerASRServices(cfg *models.Config, timeout time.Duration) *asr.Selector {
	selector := asr.NewSelector(cfg.ASRService)
	cacheDir := filepath.Join(cfg.OutputFolder, ".asr_cache")

	wrap := func(name string, rec asr.Recognizer) asr.Recognizer {
		if !cfg.UseCache {
			return rec
		}
		return asr.NewCachedRecognizer(rec, name, cacheDir)
	}

	selector.RegisterService("kuaishou", wrap("kuaishou", asr.NewKuaiShouASR(timeout)), weightKuaishou)

	if cfg.WhisperAPIKey != "" {
		selector.RegisterService("whisper-api",
			wrap("whisper-api", asr.NewWhisperAPIASR(cfg.WhisperAPIKey, cfg.WhisperAPIURL, cfg.WhisperModel, timeout)),
			weightWhisperAPI)
	}

	// 本地命令只在明确选择或能找到命令时注册
	if cfg.ASRService == "whisper-cli" || commandAvailable(cfg.WhisperCLI) {
		selector.RegisterService("whisper-cli", wrap("whisper-cli", asr.NewWhisperCLIASR(cfg.WhisperCLI)), weightWhisperCLI)
	}

	return selector
}

func commandAvailable(commandLine string) bool {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return false
	}
	_, err := exec.LookPath(fields[0])
	return err == nil
}

// describe 组件的简短说明，用于启动日志
func (c *Components) describe() string {
	return fmt.Sprintf("translator=%T synthesizer=%T output=%T", c.Translator, c.Synthesizer, c.Output)
}

package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// 环境变量前缀，用于覆盖敏感配置（API密钥等）
const EnvPrefix = "AUDIOTRANS_"

// Config 表示应用程序的配置
type Config struct {
	MediaFolder  string `json:"media_folder" yaml:"media_folder"`   // 媒体文件所在文件夹（批处理/监听模式）
	OutputFolder string `json:"output_folder" yaml:"output_folder"` // 输出结果文件夹（SRT/JSON）
	ArtifactDir  string `json:"artifact_dir" yaml:"artifact_dir"`   // 合成语音文件目录
	TempDir      string `json:"temp_dir" yaml:"temp_dir"`           // 临时目录（视频转音频）

	TargetLanguage        string `json:"target_language" yaml:"target_language"`                 // 目标语言
	DefaultSourceLanguage string `json:"default_source_language" yaml:"default_source_language"` // 语言检测失败时使用的源语言

	// asr-service
	ASRService    string `json:"asr_service" yaml:"asr_service"`         // ASR服务选择 (auto, kuaishou, whisper-api, whisper-cli)
	WhisperAPIKey string `json:"whisper_api_key" yaml:"whisper_api_key"` // Whisper API密钥
	WhisperAPIURL string `json:"whisper_api_url" yaml:"whisper_api_url"` // Whisper API地址
	WhisperModel  string `json:"whisper_model" yaml:"whisper_model"`     // Whisper模型名称
	WhisperCLI    string `json:"whisper_cli" yaml:"whisper_cli"`         // 本地whisper命令

	TranslatorService string `json:"translator_service" yaml:"translator_service"` // 翻译服务 (google, llm)
	TranslateURL      string `json:"translate_url" yaml:"translate_url"`           // 谷歌翻译接口地址
	LLMAPIKey         string `json:"llm_api_key" yaml:"llm_api_key"`               // 大模型API密钥
	LLMBaseURL        string `json:"llm_base_url" yaml:"llm_base_url"`             // 大模型接口地址
	LLMModel          string `json:"llm_model" yaml:"llm_model"`                   // 大模型名称

	TTSURL string `json:"tts_url" yaml:"tts_url"` // 语音合成接口地址
	Player string `json:"player" yaml:"player"`   // 播放方式 (speaker, ffplay)

	TranslateWorkers int     `json:"translate_workers" yaml:"translate_workers"` // 并行翻译的工作线程数
	MaxRetries       int     `json:"max_retries" yaml:"max_retries"`             // 最大重试次数
	RetryDelay       float64 `json:"retry_delay" yaml:"retry_delay"`             // 重试延迟（秒）
	RequestTimeout   float64 `json:"request_timeout" yaml:"request_timeout"`     // 单次请求超时（秒）

	LogLevel     string `json:"log_level" yaml:"log_level"`         // 日志级别
	LogFile      string `json:"log_file" yaml:"log_file"`           // 日志文件
	ShowProgress bool   `json:"show_progress" yaml:"show_progress"` // 显示进度条
	ExportSRT    bool   `json:"export_srt" yaml:"export_srt"`       // 是否导出SRT字幕文件
	ExportJSON   bool   `json:"export_json" yaml:"export_json"`     // 是否导出JSON结果
	HistoryDB    string `json:"history_db" yaml:"history_db"`       // 历史记录数据库，空表示不记录
	AutoPlay     bool   `json:"auto_play" yaml:"auto_play"`         // 翻译完成后自动播放
	UseCache     bool   `json:"use_cache" yaml:"use_cache"`         // 是否缓存识别结果
	WatchMode    bool   `json:"watch_mode" yaml:"watch_mode"`       // 是否启用监听模式
}

// ConfigValidationError 表示配置验证错误
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("配置验证错误: %s - %s", e.Field, e.Message)
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		MediaFolder:           "./media",
		OutputFolder:          "./output",
		ArtifactDir:           "./output/audio",
		TempDir:               "",
		TargetLanguage:        "ur",
		DefaultSourceLanguage: "en",
		ASRService:            "auto",
		WhisperAPIURL:         "https://api.openai.com/v1/audio/transcriptions",
		WhisperModel:          "whisper-1",
		WhisperCLI:            "whisper-json",
		TranslatorService:     "google",
		TranslateURL:          "https://translate.googleapis.com/translate_a/single",
		LLMBaseURL:            "https://ark.cn-beijing.volces.com/api/v3",
		LLMModel:              "doubao-1-5-pro-32k-250115",
		TTSURL:                "https://translate.google.com/translate_tts",
		Player:                "speaker",
		TranslateWorkers:      4,
		MaxRetries:            3,
		RetryDelay:            1.0,
		RequestTimeout:        30,
		LogLevel:              "INFO",
		LogFile:               "",
		ShowProgress:          true,
		ExportSRT:             true,
		ExportJSON:            false,
		HistoryDB:             "",
		AutoPlay:              false,
		UseCache:              true,
		WatchMode:             false,
	}
}

var (
	validASRServices        = []string{"auto", "kuaishou", "whisper-api", "whisper-cli"}
	validTranslatorServices = []string{"google", "llm"}
	validPlayers            = []string{"speaker", "ffplay"}
)

// Validate 验证配置是否有效
func (c *Config) Validate() error {
	// 验证文件夹路径
	for _, dir := range []struct{ field, path string }{
		{"OutputFolder", c.OutputFolder},
		{"ArtifactDir", c.ArtifactDir},
		{"TempDir", c.TempDir},
	} {
		if err := ensureDirExists(dir.path); err != nil {
			return &ConfigValidationError{dir.field, err.Error()}
		}
	}

	if strings.TrimSpace(c.TargetLanguage) == "" {
		return &ConfigValidationError{"TargetLanguage", "不能为空"}
	}
	if strings.TrimSpace(c.DefaultSourceLanguage) == "" {
		return &ConfigValidationError{"DefaultSourceLanguage", "不能为空，语言检测失败时需要具体的回退语言"}
	}

	if !contains(validASRServices, c.ASRService) {
		return &ConfigValidationError{"ASRService", "必须是 " + strings.Join(validASRServices, "/") + " 之一"}
	}
	if !contains(validTranslatorServices, c.TranslatorService) {
		return &ConfigValidationError{"TranslatorService", "必须是 " + strings.Join(validTranslatorServices, "/") + " 之一"}
	}
	if c.TranslatorService == "llm" && c.LLMAPIKey == "" {
		return &ConfigValidationError{"LLMAPIKey", "使用llm翻译时必须设置"}
	}
	if c.ASRService == "whisper-api" && c.WhisperAPIKey == "" {
		return &ConfigValidationError{"WhisperAPIKey", "使用whisper-api时必须设置"}
	}
	if !contains(validPlayers, c.Player) {
		return &ConfigValidationError{"Player", "必须是 " + strings.Join(validPlayers, "/") + " 之一"}
	}

	// 验证数值范围
	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return &ConfigValidationError{"MaxRetries", "必须在1-10之间"}
	}

	if c.TranslateWorkers < 1 || c.TranslateWorkers > 16 {
		return &ConfigValidationError{"TranslateWorkers", "必须在1-16之间"}
	}

	if c.RetryDelay < 0.1 || c.RetryDelay > 10.0 {
		return &ConfigValidationError{"RetryDelay", "必须在0.1-10.0秒之间"}
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 600 {
		return &ConfigValidationError{"RequestTimeout", "必须在1-600秒之间"}
	}

	return nil
}

// LoadFromFile 从文件加载配置，.yaml/.yml 按YAML解析，其余按JSON解析
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("读取配置文件失败: %v", err)
		return err
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		logrus.Errorf("解析配置文件失败: %v", err)
		return err
	}

	if err := c.Validate(); err != nil {
		logrus.Errorf("配置验证失败: %v", err)
		return err
	}

	return nil
}

// SaveToFile 保存配置到文件，格式由扩展名决定
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logrus.Errorf("创建目录失败: %v", err)
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		logrus.Errorf("序列化配置失败: %v", err)
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.Errorf("写入配置文件失败: %v", err)
		return err
	}

	return nil
}

// ApplyEnv 用 AUDIOTRANS_* 环境变量覆盖配置
func (c *Config) ApplyEnv() {
	strVars := map[string]*string{
		"WHISPER_API_KEY":    &c.WhisperAPIKey,
		"WHISPER_API_URL":    &c.WhisperAPIURL,
		"LLM_API_KEY":        &c.LLMAPIKey,
		"LLM_BASE_URL":       &c.LLMBaseURL,
		"LLM_MODEL":          &c.LLMModel,
		"TARGET_LANGUAGE":    &c.TargetLanguage,
		"ASR_SERVICE":        &c.ASRService,
		"TRANSLATOR_SERVICE": &c.TranslatorService,
		"HISTORY_DB":         &c.HistoryDB,
		"LOG_LEVEL":          &c.LogLevel,
	}
	for name, target := range strVars {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*target = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "TRANSLATE_WORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.TranslateWorkers = n
		} else {
			logrus.Warnf("忽略无效的环境变量 %sTRANSLATE_WORKERS=%q", EnvPrefix, v)
		}
	}
}

// Update 批量更新配置
func (c *Config) Update(updates map[string]interface{}) error {
	// 保存当前配置用于回滚
	tempConfig := *c

	// map到struct的转换借助JSON完成
	updateBytes, err := json.Marshal(updates)
	if err != nil {
		logrus.Errorf("序列化更新数据失败: %v", err)
		return err
	}

	if err := json.Unmarshal(updateBytes, c); err != nil {
		*c = tempConfig
		logrus.Errorf("应用配置更新失败: %v", err)
		return err
	}

	if err := c.Validate(); err != nil {
		*c = tempConfig
		logrus.Errorf("配置验证失败: %v", err)
		return err
	}

	return nil
}

// Reset 重置为默认配置
func (c *Config) Reset() {
	*c = *NewDefaultConfig()
}

// PrintConfig 打印当前配置，密钥字段会被遮盖
func (c *Config) PrintConfig() {
	masked := *c
	masked.WhisperAPIKey = maskSecret(masked.WhisperAPIKey)
	masked.LLMAPIKey = maskSecret(masked.LLMAPIKey)

	logrus.Info("\n当前配置:")
	bytes, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		logrus.Errorf("序列化配置失败: %v", err)
		return
	}
	logrus.Info(string(bytes))
}

func maskSecret(s string) string {
	if len(s) <= 6 {
		if s == "" {
			return ""
		}
		return "***"
	}
	return s[:3] + "***" + s[len(s)-3:]
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// 确保目录存在，如果不存在则创建
func ensureDirExists(path string) error {
	if path == "" {
		return nil // 空路径视为可选
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}

	return nil
}

package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
)

// whisperOutput 是verbose_json响应和本地whisper命令输出的共同格式
type whisperOutput struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (w whisperOutput) toSegments() []models.DataSegment {
	if len(w.Segments) == 0 {
		if strings.TrimSpace(w.Text) == "" {
			return []models.DataSegment{}
		}
		// 没有时间信息时整段作为一个段落
		return []models.DataSegment{{Text: strings.TrimSpace(w.Text), EndTime: w.Duration}}
	}

	segments := make([]models.DataSegment, 0, len(w.Segments))
	for _, s := range w.Segments {
		segments = append(segments, models.DataSegment{
			Text:      strings.TrimSpace(s.Text),
			StartTime: s.Start,
			EndTime:   s.End,
		})
	}
	return segments
}

// WhisperAPIASR 调用OpenAI兼容的 audio/transcriptions 接口
type WhisperAPIASR struct {
	APIKey     string
	URL        string
	Model      string
	HttpClient *http.Client
}

// NewWhisperAPIASR 创建Whisper API识别服务
func NewWhisperAPIASR(apiKey, url, model string, timeout time.Duration) *WhisperAPIASR {
	return &WhisperAPIASR{
		APIKey:     apiKey,
		URL:        url,
		Model:      model,
		HttpClient: &http.Client{Timeout: timeout},
	}
}

// Transcribe 实现Recognizer接口
func (w *WhisperAPIASR) Transcribe(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
	file, err := LoadAudioFile(audioPath)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", w.Model); err != nil {
		return nil, err
	}
	// verbose_json 才会返回段落时间戳
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(file.Binary); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+w.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("whisper http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out whisperOutput
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("解析whisper响应失败: %w", err)
	}
	return out.toSegments(), nil
}

// WhisperCLIASR 调用本地whisper命令，命令需要在标准输出打印JSON
type WhisperCLIASR struct {
	Command string
	Args    []string
}

// NewWhisperCLIASR 由命令行字符串创建，音频参数以 --audio <path> 追加
func NewWhisperCLIASR(commandLine string) *WhisperCLIASR {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return &WhisperCLIASR{}
	}
	return &WhisperCLIASR{Command: fields[0], Args: fields[1:]}
}

// Transcribe 实现Recognizer接口
func (w *WhisperCLIASR) Transcribe(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
	if w.Command == "" {
		return nil, fmt.Errorf("未配置whisper命令")
	}
	if _, err := LoadAudioFile(audioPath); err != nil {
		return nil, err
	}

	args := append(append([]string{}, w.Args...), "--audio", audioPath)
	cmd := exec.CommandContext(ctx, w.Command, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("whisper命令失败: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("运行whisper命令失败: %w", err)
	}

	var parsed whisperOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("解析whisper输出失败: %w", err)
	}
	return parsed.toSegments(), nil
}

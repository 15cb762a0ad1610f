package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

const kuaishouEndpoint = "https://ai.kuaishou.com/api/effects/subtitle_generate"

// KuaiShouASR 快手语音识别实现
type KuaiShouASR struct {
	Endpoint   string
	HttpClient *http.Client
}

// NewKuaiShouASR 创建快手ASR实例
func NewKuaiShouASR(timeout time.Duration) *KuaiShouASR {
	return &KuaiShouASR{
		Endpoint:   kuaishouEndpoint,
		HttpClient: &http.Client{Timeout: timeout},
	}
}

// KuaiShouResponse 响应结构
type KuaiShouResponse struct {
	Data *struct {
		Text []struct {
			Text      string  `json:"text"`
			StartTime float64 `json:"start_time"`
			EndTime   float64 `json:"end_time"`
		} `json:"text"`
	} `json:"data"`
}

// Transcribe 实现Recognizer接口
func (k *KuaiShouASR) Transcribe(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
	file, err := LoadAudioFile(audioPath)
	if err != nil {
		return nil, err
	}

	result, err := k.submit(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("快手ASR请求失败: %w", err)
	}
	if result.Data == nil {
		return nil, fmt.Errorf("快手ASR返回空结果")
	}

	segments := make([]models.DataSegment, 0, len(result.Data.Text))
	for _, item := range result.Data.Text {
		segments = append(segments, models.DataSegment{
			Text:      item.Text,
			StartTime: item.StartTime,
			EndTime:   item.EndTime,
		})
	}
	return segments, nil
}

// submit 提交识别请求
func (k *KuaiShouASR) submit(ctx context.Context, file *AudioFile) (*KuaiShouResponse, error) {
	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	if err := writer.WriteField("typeId", "1"); err != nil {
		return nil, fmt.Errorf("写入表单字段失败: %w", err)
	}

	part, err := writer.CreateFormFile("file", filepath.Base(file.Path))
	if err != nil {
		return nil, fmt.Errorf("创建表单文件失败: %w", err)
	}
	if _, err := part.Write(file.Binary); err != nil {
		return nil, fmt.Errorf("写入文件数据失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("关闭表单写入器失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.Endpoint, &requestBody)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	utils.Log.Debugf("提交快手ASR请求: %s (%s)", file.Path, utils.FormatFileSize(int64(len(file.Binary))))
	resp, err := k.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("服务返回错误状态码: %d", resp.StatusCode)
	}

	var result KuaiShouResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	return &result, nil
}

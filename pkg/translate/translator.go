package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// Translator 机器翻译服务
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// GoogleTranslator 调用谷歌翻译的公开接口（client=gtx）
type GoogleTranslator struct {
	BaseURL      string
	HttpClient   *http.Client
	errorHandler *utils.ErrorHandler
}

// NewGoogleTranslator 创建谷歌翻译客户端，整个运行期间复用同一个实例
func NewGoogleTranslator(baseURL string, timeout time.Duration, errorHandler *utils.ErrorHandler) *GoogleTranslator {
	if baseURL == "" {
		baseURL = "https://translate.googleapis.com/translate_a/single"
	}
	if errorHandler == nil {
		errorHandler = utils.NewErrorHandler(1, 0)
	}
	return &GoogleTranslator{
		BaseURL:      baseURL,
		HttpClient:   &http.Client{Timeout: timeout},
		errorHandler: errorHandler,
	}
}

// Translate 实现Translator接口
func (g *GoogleTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if source == "" {
		source = "auto"
	}

	var result string
	err := g.errorHandler.Retry(ctx, "google_translate", func() error {
		var err error
		result, err = g.request(ctx, text, source, target)
		return err
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func (g *GoogleTranslator) request(ctx context.Context, text, source, target string) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", source)
	params.Set("tl", target)
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := g.HttpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("翻译接口返回错误状态码: %d", resp.StatusCode)
	}

	return parseGoogleResponse(body)
}

// 响应格式: [[["译文","原文",...],["译文2","原文2",...]],null,"en",...]
func parseGoogleResponse(body []byte) (string, error) {
	var raw []interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("翻译响应为空")
	}

	sentences, ok := raw[0].([]interface{})
	if !ok {
		return "", fmt.Errorf("翻译响应格式不正确")
	}

	var sb strings.Builder
	for _, s := range sentences {
		parts, ok := s.([]interface{})
		if !ok || len(parts) == 0 {
			continue
		}
		if piece, ok := parts[0].(string); ok {
			sb.WriteString(piece)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("翻译响应中没有译文")
	}
	return sb.String(), nil
}

package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// ChatMessage 表示聊天消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 表示对API的请求
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// ChatResponse 表示API的响应
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// LLMTranslator 通过兼容OpenAI格式的chat/completions接口翻译（默认火山方舟）
type LLMTranslator struct {
	APIKey       string
	BaseURL      string
	Model        string
	HttpClient   *http.Client
	errorHandler *utils.ErrorHandler
}

// NewLLMTranslator 创建大模型翻译客户端
func NewLLMTranslator(apiKey, baseURL, model string, timeout time.Duration, errorHandler *utils.ErrorHandler) *LLMTranslator {
	if errorHandler == nil {
		errorHandler = utils.NewErrorHandler(1, 0)
	}
	return &LLMTranslator{
		APIKey:       apiKey,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Model:        model,
		HttpClient:   &http.Client{Timeout: timeout},
		errorHandler: errorHandler,
	}
}

// Translate 实现Translator接口
func (c *LLMTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	messages := []ChatMessage{
		{
			Role: "system",
			Content: fmt.Sprintf("你是一个专业的翻译引擎。把用户给出的文本从语言 %s 翻译成语言 %s（ISO 639-1代码）。"+
				"只输出译文，不要解释，不要添加引号。", source, target),
		},
		{Role: "user", Content: text},
	}

	var result string
	err := c.errorHandler.Retry(ctx, "llm_translate", func() error {
		var err error
		result, err = c.Chat(ctx, messages)
		return err
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result), nil
}

// Chat 发送一次对话请求并返回第一条回复
func (c *LLMTranslator) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	url := c.BaseURL + "/chat/completions"

	jsonBytes, err := json.Marshal(ChatRequest{Model: c.Model, Messages: messages, Temperature: 0.2})
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBytes))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	utils.Debug("发送API请求到 %s", url)
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API返回错误状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}

	var response ChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}

	if len(response.Choices) > 0 {
		return response.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("API响应中没有生成内容")
}

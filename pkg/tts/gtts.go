package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// ErrEmptyText 合成文本为空
var ErrEmptyText = errors.New("合成文本为空")

// 谷歌TTS单次请求的最大字符数
const maxChunkRunes = 100

// Synthesizer 把文本合成为音频文件
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, outputPath string) error
}

// GoogleTTS 调用谷歌翻译的语音接口合成mp3
type GoogleTTS struct {
	BaseURL      string
	HttpClient   *http.Client
	errorHandler *utils.ErrorHandler
}

// NewGoogleTTS 创建语音合成客户端
func NewGoogleTTS(baseURL string, timeout time.Duration, errorHandler *utils.ErrorHandler) *GoogleTTS {
	if baseURL == "" {
		baseURL = "https://translate.google.com/translate_tts"
	}
	if errorHandler == nil {
		errorHandler = utils.NewErrorHandler(1, 0)
	}
	return &GoogleTTS{
		BaseURL:      baseURL,
		HttpClient:   &http.Client{Timeout: timeout},
		errorHandler: errorHandler,
	}
}

// Synthesize 实现Synthesizer接口。长文本按句子切分后逐段请求，mp3帧直接拼接。
func (g *GoogleTTS) Synthesize(ctx context.Context, text, language, outputPath string) error {
	chunks := SplitText(text, maxChunkRunes)
	if len(chunks) == 0 {
		return ErrEmptyText
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		var data []byte
		err := g.errorHandler.Retry(ctx, "google_tts", func() error {
			var err error
			data, err = g.request(ctx, chunk, language, i, len(chunks))
			return err
		})
		if err != nil {
			return fmt.Errorf("合成第 %d/%d 段失败: %w", i+1, len(chunks), err)
		}
		audio.Write(data)
	}

	if err := utils.EnsureDirExists(filepath.Dir(outputPath)); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(outputPath, audio.Bytes(), 0644); err != nil {
		return fmt.Errorf("写入音频文件失败: %w", err)
	}

	utils.Debug("语音合成完成: %s (%s)", outputPath, utils.FormatFileSize(int64(audio.Len())))
	return nil
}

func (g *GoogleTTS) request(ctx context.Context, chunk, language string, idx, total int) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("tl", language)
	params.Set("q", chunk)
	params.Set("total", strconv.Itoa(total))
	params.Set("idx", strconv.Itoa(idx))
	params.Set("textlen", strconv.Itoa(len([]rune(chunk))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("语音接口返回错误状态码: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("语音接口返回空内容")
	}
	return data, nil
}

// SplitText 将文本切成不超过maxRunes个字符的片段，优先在标点和空白处切分
func SplitText(text string, maxRunes int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= maxRunes {
			chunks = append(chunks, string(runes))
			break
		}

		cut := -1
		for i := maxRunes; i > 0; i-- {
			if isBreakRune(runes[i-1]) {
				cut = i
				break
			}
		}
		if cut <= 0 {
			cut = maxRunes
		}

		piece := strings.TrimSpace(string(runes[:cut]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	return chunks
}

func isBreakRune(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '.', ',', '!', '?', ';', ':', '。', '，', '！', '？', '；', '۔', '،', '؟':
		return true
	}
	return false
}

package translate

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// ErrUndetectable 文本过短或无法可靠识别语言
var ErrUndetectable = errors.New("无法检测语言")

// LanguageDetector 检测一段短文本的语言，返回ISO 639-1代码
type LanguageDetector interface {
	Detect(text string) (string, error)
}

// WhatlangDetector 基于whatlanggo的本地语言检测
type WhatlangDetector struct {
	MinRunes        int  // 少于该字符数的文本视为无法检测
	RequireReliable bool // 只接受可靠的检测结果
}

// NewWhatlangDetector 创建语言检测器
func NewWhatlangDetector() *WhatlangDetector {
	return &WhatlangDetector{MinRunes: 3, RequireReliable: false}
}

// Detect 实现LanguageDetector接口
func (d *WhatlangDetector) Detect(text string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < d.MinRunes {
		return "", ErrUndetectable
	}

	info := whatlanggo.Detect(text)
	if info.Script == nil {
		return "", ErrUndetectable
	}
	if d.RequireReliable && !info.IsReliable() {
		return "", ErrUndetectable
	}

	code := info.Lang.Iso6391()
	if code == "" {
		return "", ErrUndetectable
	}
	return code, nil
}

// SameLanguage 比较两个语言代码的主标签，例如 zh 与 zh-CN 视为相同
func SameLanguage(a, b string) bool {
	return primaryTag(a) != "" && primaryTag(a) == primaryTag(b)
}

func primaryTag(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}

package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// FailureMarker 翻译失败时替代该行输出的内联标记
func FailureMarker(err error) string {
	return fmt.Sprintf("[翻译失败: %v]", err)
}

// LineResult 单行翻译的结果
type LineResult struct {
	Source      string // 原始行
	Output      string // 输出（译文、原文或失败标记）
	Language    string // 使用的源语言
	FellBack    bool   // 语言检测失败，使用了回退语言
	Passthrough bool   // 源语言与目标语言相同，未调用翻译
	Err         error  // 翻译失败的原因
}

// LineTranslator 按行翻译文本。它不持有跨调用的可变状态，可被多个goroutine并发使用。
type LineTranslator struct {
	translator Translator
	detector   LanguageDetector
	fallback   string
}

// NewLineTranslator 创建按行翻译器，fallback 是语言检测失败时使用的源语言
func NewLineTranslator(translator Translator, detector LanguageDetector, fallback string) *LineTranslator {
	if fallback == "" {
		fallback = "en"
	}
	return &LineTranslator{
		translator: translator,
		detector:   detector,
		fallback:   fallback,
	}
}

// Translate 翻译text到target语言，永远返回字符串，失败的行以内联标记表示
func (lt *LineTranslator) Translate(ctx context.Context, text, target string) string {
	out, _ := lt.TranslateDetailed(ctx, text, target)
	return out
}

// TranslateDetailed 与Translate相同，同时返回每个非空行的处理结果
func (lt *LineTranslator) TranslateDetailed(ctx context.Context, text, target string) (string, []LineResult) {
	lines := splitLines(text)
	results := make([]LineResult, 0, len(lines))
	outputs := make([]string, 0, len(lines))

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		res := lt.translateLine(ctx, line, target)
		results = append(results, res)
		outputs = append(outputs, res.Output)
	}

	return strings.Join(outputs, "\n"), results
}

func (lt *LineTranslator) translateLine(ctx context.Context, line, target string) LineResult {
	res := LineResult{Source: line}

	lang, err := lt.detect(line)
	if err != nil {
		utils.Debug("语言检测失败，使用回退语言 %s: %v", lt.fallback, err)
		lang = lt.fallback
		res.FellBack = true
	}
	res.Language = lang

	if SameLanguage(lang, target) {
		res.Output = line
		res.Passthrough = true
		return res
	}

	translated, err := lt.translator.Translate(ctx, line, lang, target)
	if err != nil {
		utils.WithFields(map[string]interface{}{
			"source": lang,
			"target": target,
		}).Warnf("行翻译失败: %v", err)
		res.Err = err
		res.Output = FailureMarker(err)
		return res
	}

	res.Output = translated
	return res
}

func (lt *LineTranslator) detect(line string) (string, error) {
	if lt.detector == nil {
		return "", ErrUndetectable
	}
	lang, err := lt.detector.Detect(line)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(lang) == "" {
		return "", ErrUndetectable
	}
	return lang, nil
}

// splitLines 按 \r\n、\n、\r 切分
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// CountFailures 统计失败的行数
func CountFailures(results []LineResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

package export

import (
	"fmt"
	"strings"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/segment"
)

// RenderOriginal 渲染原文：每段 "[MM:SS] 文本"，段之间空一行
func RenderOriginal(segs []segment.Segment) string {
	return render(segs, func(s segment.Segment) string { return s.OriginalText })
}

// RenderTranslated 渲染译文，格式同RenderOriginal
func RenderTranslated(segs []segment.Segment) string {
	return render(segs, func(s segment.Segment) string { return s.TranslatedText })
}

func render(segs []segment.Segment, text func(segment.Segment) string) string {
	blocks := make([]string, 0, len(segs))
	for _, seg := range segs {
		blocks = append(blocks, fmt.Sprintf("[%s] %s", seg.Timestamp(), text(seg)))
	}
	return strings.Join(blocks, "\n\n")
}

package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/segment"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// 没有结束时间且是最后一段时的默认时长（秒）
const defaultSegmentDuration = 5.0

// SRTExporter 负责将翻译结果导出为SRT字幕文件
type SRTExporter struct {
	OutputFolder string
	Bilingual    bool // 同时输出原文和译文
}

// NewSRTExporter 创建一个新的SRT导出器
func NewSRTExporter(outputFolder string, bilingual bool) *SRTExporter {
	return &SRTExporter{
		OutputFolder: outputFolder,
		Bilingual:    bilingual,
	}
}

// FormatSRTTime 将秒数格式化为SRT时间格式 (HH:MM:SS,mmm)
func FormatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMs := int64(math.Round(seconds * 1000))
	hours := totalMs / 3600000
	minutes := (totalMs % 3600000) / 60000
	secs := (totalMs % 60000) / 1000
	ms := totalMs % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}

// endTime 段落结束时间：优先用识别结果，其次用下一段的开始时间
func endTime(segs []segment.Segment, i int) float64 {
	seg := segs[i]
	if seg.EndSeconds > seg.StartSeconds {
		return seg.EndSeconds
	}
	if i+1 < len(segs) && segs[i+1].StartSeconds > seg.StartSeconds {
		return segs[i+1].StartSeconds
	}
	return seg.StartSeconds + defaultSegmentDuration
}

// GenerateSRTContent 生成SRT格式内容，译文为空的段落不输出
func (e *SRTExporter) GenerateSRTContent(segs []segment.Segment) string {
	var srtLines []string
	n := 0

	for i, seg := range segs {
		text := strings.TrimSpace(seg.TranslatedText)
		if text == "" {
			continue
		}
		if e.Bilingual && strings.TrimSpace(seg.OriginalText) != "" {
			text = strings.TrimSpace(seg.OriginalText) + "\n" + text
		}

		n++
		srtLines = append(srtLines, fmt.Sprintf("%d", n))
		srtLines = append(srtLines, fmt.Sprintf("%s --> %s", FormatSRTTime(seg.StartSeconds), FormatSRTTime(endTime(segs, i))))
		srtLines = append(srtLines, text)
		srtLines = append(srtLines, "") // 空行分隔
	}

	return strings.Join(srtLines, "\n")
}

// ExportSRT 导出SRT格式字幕文件，文件名取自音频文件名
func (e *SRTExporter) ExportSRT(segs []segment.Segment, audioPath string) (string, error) {
	if err := os.MkdirAll(e.OutputFolder, 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	outputFile := filepath.Join(e.OutputFolder, baseName(audioPath)+".srt")
	if err := os.WriteFile(outputFile, []byte(e.GenerateSRTContent(segs)), 0644); err != nil {
		return "", fmt.Errorf("写入SRT文件失败: %w", err)
	}

	utils.Info("已导出SRT字幕: %s", outputFile)
	return outputFile, nil
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

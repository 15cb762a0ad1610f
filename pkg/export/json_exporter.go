package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/segment"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// TranscriptSegment 表示导出结果的一个段落
type TranscriptSegment struct {
	Index      int     `json:"index"`
	Timestamp  string  `json:"timestamp"` // MM:SS
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Original   string  `json:"original"`
	Translated string  `json:"translated"`
}

// TranscriptResult 表示整个运行的导出结果
type TranscriptResult struct {
	RunID          string              `json:"run_id,omitempty"`
	AudioPath      string              `json:"audio_path"`
	TargetLanguage string              `json:"target_language"`
	ExportedAt     time.Time           `json:"exported_at"`
	Segments       []TranscriptSegment `json:"segments"`
}

// JSONExporter 负责将翻译结果导出为JSON文件
type JSONExporter struct {
	OutputFolder string
}

// NewJSONExporter 创建一个新的JSON导出器
func NewJSONExporter(outputFolder string) *JSONExporter {
	return &JSONExporter{
		OutputFolder: outputFolder,
	}
}

// GenerateJSONContent 构建导出结构，所有段落按索引顺序保留（包括空段落）
func (e *JSONExporter) GenerateJSONContent(segs []segment.Segment, runID, audioPath, target string) TranscriptResult {
	result := TranscriptResult{
		RunID:          runID,
		AudioPath:      audioPath,
		TargetLanguage: target,
		ExportedAt:     time.Now(),
		Segments:       make([]TranscriptSegment, 0, len(segs)),
	}

	for i, seg := range segs {
		result.Segments = append(result.Segments, TranscriptSegment{
			Index:      seg.Index,
			Timestamp:  seg.Timestamp(),
			Start:      seg.StartSeconds,
			End:        endTime(segs, i),
			Original:   seg.OriginalText,
			Translated: seg.TranslatedText,
		})
	}
	return result
}

// ExportJSON 导出JSON格式文件
func (e *JSONExporter) ExportJSON(segs []segment.Segment, runID, audioPath, target string) (string, error) {
	if err := os.MkdirAll(e.OutputFolder, 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	outputFile := filepath.Join(e.OutputFolder, baseName(audioPath)+".json")

	jsonData, err := json.MarshalIndent(e.GenerateJSONContent(segs, runID, audioPath, target), "", "  ")
	if err != nil {
		return "", fmt.Errorf("JSON编码失败: %w", err)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		return "", fmt.Errorf("写入JSON文件失败: %w", err)
	}

	utils.Info("已导出JSON文件: %s", outputFile)
	return outputFile, nil
}

package models

import "time"

// 播放阶段的失败环节
const (
	StageSynthesize = "synthesize"
	StagePlay       = "play"
)

// SegmentFailure 记录单个段落在播放阶段的失败
type SegmentFailure struct {
	Index int    `json:"index"` // 段落索引（从0开始）
	Stage string `json:"stage"` // synthesize 或 play
	Error string `json:"error"` // 错误信息
}

// PlaybackReport 播放结果统计
type PlaybackReport struct {
	RunID     string           `json:"run_id"`
	Total     int              `json:"total"`     // 段落总数
	Attempted int              `json:"attempted"` // 尝试合成的段落数
	Played    int              `json:"played"`    // 成功播放的段落数
	Skipped   int              `json:"skipped"`   // 译文为空被跳过的段落数
	Failures  []SegmentFailure `json:"failures"`  // 失败列表，按索引顺序
	Artifacts []string         `json:"artifacts"` // 生成的音频文件
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// FailureCount 返回失败段落数
func (r *PlaybackReport) FailureCount() int {
	return len(r.Failures)
}

// RunSummary 一次运行的结果统计
type RunSummary struct {
	RunID          string            `json:"run_id"`
	AudioPath      string            `json:"audio_path"`
	Service        string            `json:"service"`         // 使用的ASR服务
	TargetLanguage string            `json:"target_language"` // 目标语言
	SegmentCount   int               `json:"segment_count"`   // 段落数
	FailedLines    int               `json:"failed_lines"`    // 翻译失败的行数
	State          PipelineState     `json:"state"`
	Error          string            `json:"error,omitempty"`
	OutputFiles    map[string]string `json:"output_files"`    // 导出文件路径
	StartedAt      time.Time         `json:"started_at"`
	ProcessTimeMs  int64             `json:"process_time_ms"` // 处理时间（毫秒）
}

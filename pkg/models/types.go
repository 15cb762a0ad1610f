package models

import "time"

// DataSegment 表示识别服务返回的一个原始段落
type DataSegment struct {
	Text      string  `json:"text"`       // 识别出的文本内容
	StartTime float64 `json:"start_time"` // 开始时间（秒）
	EndTime   float64 `json:"end_time"`   // 结束时间（秒），部分服务不提供时为0
}

// PipelineState 表示一次运行的生命周期状态
type PipelineState int

const (
	StateIdle PipelineState = iota
	StateTranscribing
	StateTranslating
	StateReady
	StatePlaying
	StateError
)

var stateNames = map[PipelineState]string{
	StateIdle:         "idle",
	StateTranscribing: "transcribing",
	StateTranslating:  "translating",
	StateReady:        "ready",
	StatePlaying:      "playing",
	StateError:        "error",
}

func (s PipelineState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText 让状态在JSON中以名称出现
func (s PipelineState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Busy 表示当前是否有运行占用流水线
func (s PipelineState) Busy() bool {
	return s == StateTranscribing || s == StateTranslating || s == StatePlaying
}

// Snapshot 是流水线状态的只读快照
type Snapshot struct {
	RunID     string        `json:"run_id,omitempty"`
	AudioPath string        `json:"audio_path,omitempty"`
	State     PipelineState `json:"state"`
	Progress  float64       `json:"progress"`
	Message   string        `json:"message,omitempty"`
	Err       error         `json:"-"`
	ErrorText string        `json:"error,omitempty"`
	Segments  int           `json:"segments"`
	UpdatedAt time.Time     `json:"updated_at"`
}

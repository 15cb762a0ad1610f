package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress 已有运行在识别、翻译或播放中，新的运行被拒绝
	ErrRunInProgress = errors.New("已有运行在进行中")
	// ErrNotReady 流水线尚未就绪，不能播放
	ErrNotReady = errors.New("流水线未就绪")
	// ErrRunAbandoned 运行已被取消或被新的运行替代
	ErrRunAbandoned = errors.New("运行已被放弃")
)

// 运行失败的阶段
const (
	StageTranscribe = "transcribe"
)

// RunError 导致整个运行失败的错误，Error() 原样返回底层错误信息
type RunError struct {
	RunID string
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	return e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Describe 返回带阶段信息的描述，用于日志
func (e *RunError) Describe() string {
	return fmt.Sprintf("运行 %s 在 %s 阶段失败: %v", e.RunID, e.Stage, e.Err)
}

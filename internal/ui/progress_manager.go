package ui

import (
	"fmt"
	"sync"

	"github.com/fatih/color"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
)

// ProgressManager 管理多个进度条，并把流水线快照和播放进度渲染到终端
type ProgressManager struct {
	progressBars map[string]*ProgressBar
	mutex        sync.Mutex
	enabled      bool
	terminal     *TerminalManager
}

// NewProgressManager 创建新的进度管理器
func NewProgressManager(enabled bool, terminal *TerminalManager) *ProgressManager {
	if terminal == nil {
		terminal = GetTerminalManager()
	}
	return &ProgressManager{
		progressBars: make(map[string]*ProgressBar),
		enabled:      enabled,
		terminal:     terminal,
	}
}

// CreateProgressBar 创建并注册一个新的进度条，未启用时返回nil
func (pm *ProgressManager) CreateProgressBar(id string, total int, prefix string) *ProgressBar {
	if !pm.enabled {
		return nil
	}

	pm.mutex.Lock()
	old, exists := pm.progressBars[id]
	bar := NewProgressBar(total, prefix, pm.terminal)
	pm.progressBars[id] = bar
	pm.mutex.Unlock()

	// 如果已经存在同名进度条，先完成它
	if exists {
		old.Complete("已被替换")
	}
	return bar
}

// GetProgressBar 获取已存在的进度条
func (pm *ProgressManager) GetProgressBar(id string) *ProgressBar {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.progressBars[id]
}

// UpdateProgressBar 更新进度条
func (pm *ProgressManager) UpdateProgressBar(id string, current int, suffix string) {
	if bar := pm.GetProgressBar(id); bar != nil {
		bar.Update(current, suffix)
	}
}

// CompleteProgressBar 完成并移除进度条
func (pm *ProgressManager) CompleteProgressBar(id string, suffix string) {
	pm.mutex.Lock()
	bar, exists := pm.progressBars[id]
	delete(pm.progressBars, id)
	pm.mutex.Unlock()

	if exists {
		bar.Complete(suffix)
	}
}

// CloseAll 完成所有进度条
func (pm *ProgressManager) CloseAll(suffix string) {
	pm.mutex.Lock()
	bars := make([]*ProgressBar, 0, len(pm.progressBars))
	for _, bar := range pm.progressBars {
		bars = append(bars, bar)
	}
	pm.progressBars = make(map[string]*ProgressBar)
	pm.mutex.Unlock()

	for _, bar := range bars {
		bar.Complete(suffix)
	}
}

// SnapshotObserver 返回一个可订阅流水线的观察者，把快照渲染为id对应的进度条。
// 进入Ready、Error或Idle时进度条结束。
func (pm *ProgressManager) SnapshotObserver(id string) func(models.Snapshot) {
	return func(s models.Snapshot) {
		if !pm.enabled {
			return
		}

		switch s.State {
		case models.StateTranscribing, models.StateTranslating:
			bar := pm.GetProgressBar(id)
			if bar == nil {
				bar = pm.CreateProgressBar(id, 100, "处理进度")
			}
			bar.SetFraction(s.Progress, StateLabel(s.State)+" "+s.Message)
		case models.StateReady, models.StateError, models.StateIdle:
			if pm.GetProgressBar(id) == nil {
				return
			}
			if s.State == models.StateReady {
				pm.UpdateProgressBar(id, 100, "")
			}
			pm.CompleteProgressBar(id, StateLabel(s.State)+" "+s.Message)
		}
	}
}

// PlaybackCallback 返回播放进度回调，percent为0到100
func (pm *ProgressManager) PlaybackCallback(id string) func(percent int, message string) {
	return func(percent int, message string) {
		if !pm.enabled {
			return
		}
		bar := pm.GetProgressBar(id)
		if bar == nil {
			bar = pm.CreateProgressBar(id, 100, "播放进度")
		}
		if percent >= 100 {
			pm.CompleteProgressBar(id, message)
			return
		}
		bar.Update(percent, message)
	}
}

// PrintStatus 打印当前所有进度条的状态
func (pm *ProgressManager) PrintStatus() {
	pm.mutex.Lock()
	bars := make(map[string]*ProgressBar, len(pm.progressBars))
	for id, bar := range pm.progressBars {
		bars[id] = bar
	}
	pm.mutex.Unlock()

	pm.terminal.PrintMsg("当前进度状态:")
	for id, bar := range bars {
		current := bar.Current()
		pm.terminal.PrintMsg("- %s: %.1f%% (%d/%d)", id, float64(current)/float64(bar.Total)*100, current, bar.Total)
	}
}

// StateLabel 带颜色的状态名称
func StateLabel(state models.PipelineState) string {
	label := fmt.Sprintf("[%s]", state)
	switch state {
	case models.StateReady:
		return color.GreenString(label)
	case models.StateError:
		return color.RedString(label)
	case models.StatePlaying:
		return color.MagentaString(label)
	case models.StateIdle:
		return color.WhiteString(label)
	}
	return color.YellowString(label)
}

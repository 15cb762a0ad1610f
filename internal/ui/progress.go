package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ProgressBar 进度条结构
type ProgressBar struct {
	Total     int       // 总步数
	Prefix    string    // 前缀
	Width     int       // 进度条宽度
	FillChar  string    // 填充字符
	EmptyChar string    // 空白字符
	StartTime time.Time // 开始时间

	mu       sync.Mutex
	current  int
	suffix   string
	terminal *TerminalManager
}

// NewProgressBar 创建新的进度条，terminal为nil时使用全局终端管理器
func NewProgressBar(total int, prefix string, terminal *TerminalManager) *ProgressBar {
	if total < 1 {
		total = 1
	}
	if terminal == nil {
		terminal = GetTerminalManager()
	}
	return &ProgressBar{
		Total:     total,
		Prefix:    prefix,
		Width:     30,
		FillChar:  "█",
		EmptyChar: "░",
		StartTime: time.Now(),
		terminal:  terminal,
	}
}

// Update 更新进度，超出范围的值会被截断
func (p *ProgressBar) Update(current int, suffix string) {
	p.mu.Lock()
	if current < 0 {
		current = 0
	}
	if current > p.Total {
		current = p.Total
	}
	p.current = current
	if suffix != "" {
		p.suffix = suffix
	}
	line := p.render()
	p.mu.Unlock()

	p.terminal.UpdateProgress(color.CyanString(line))
}

// SetFraction 按0到1的比例更新进度
func (p *ProgressBar) SetFraction(fraction float64, suffix string) {
	p.Update(int(fraction*float64(p.Total)+0.5), suffix)
}

// Complete 完成进度条
func (p *ProgressBar) Complete(suffix string) {
	p.Update(p.Total, suffix)
	p.terminal.FinishLine()
}

// Current 当前进度
func (p *ProgressBar) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// String 返回进度条的字符串表示
func (p *ProgressBar) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.render()
}

func (p *ProgressBar) render() string {
	percent := float64(p.current) / float64(p.Total)
	filled := int(percent * float64(p.Width))
	if filled > p.Width {
		filled = p.Width
	}

	bar := strings.Repeat(p.FillChar, filled) + strings.Repeat(p.EmptyChar, p.Width-filled)

	elapsed := time.Since(p.StartTime)
	var remaining time.Duration
	if p.current > 0 {
		remaining = time.Duration(float64(elapsed) / percent * (1 - percent))
	}

	return fmt.Sprintf("%s [%s] %3.0f%% | %s<%s | %s",
		p.Prefix, bar, percent*100, formatDuration(elapsed), formatDuration(remaining), p.suffix)
}

// 格式化持续时间为 MM:SS 格式
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// TerminalManager 管理终端输出，确保进度条和消息不会混乱
type TerminalManager struct {
	mu     sync.Mutex
	out    io.Writer
	inLine bool // 当前行是否是未换行的进度条
}

var (
	// 全局终端管理器实例
	globalTerminalManager *TerminalManager
	once                  sync.Once
)

// GetTerminalManager 获取全局终端管理器实例
func GetTerminalManager() *TerminalManager {
	once.Do(func() {
		globalTerminalManager = NewTerminalManager(os.Stdout)
	})
	return globalTerminalManager
}

// NewTerminalManager 创建写入w的终端管理器
func NewTerminalManager(w io.Writer) *TerminalManager {
	return &TerminalManager{out: w}
}

// PrintMsg 安全地打印消息
func (tm *TerminalManager) PrintMsg(format string, args ...interface{}) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// 清除当前行，以防止与进度条冲突
	if tm.inLine {
		fmt.Fprint(tm.out, "\033[2K\r")
		tm.inLine = false
	}
	if len(args) > 0 {
		fmt.Fprintf(tm.out, format+"\n", args...)
	} else {
		fmt.Fprintln(tm.out, format)
	}
}

// UpdateProgress 覆盖当前行显示进度
func (tm *TerminalManager) UpdateProgress(line string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// 直接打印文本，避免%造成的问题
	fmt.Fprint(tm.out, "\033[2K\r")
	fmt.Fprint(tm.out, line)
	tm.inLine = true
}

// FinishLine 结束进度行
func (tm *TerminalManager) FinishLine() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.inLine {
		fmt.Fprintln(tm.out)
		tm.inLine = false
	}
}

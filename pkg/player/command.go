package player

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandOutput 调用外部播放器命令（默认ffplay），命令退出即视为播放完成
type CommandOutput struct {
	Command string
	Args    []string
}

// NewCommandOutput 创建命令行播放器，音频路径追加在参数最后
func NewCommandOutput(command string, args ...string) *CommandOutput {
	return &CommandOutput{Command: command, Args: args}
}

// Play 实现AudioOutput接口
func (c *CommandOutput) Play(ctx context.Context, path string) error {
	if err := checkAsset(path); err != nil {
		return err
	}

	args := append(append([]string{}, c.Args...), path)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s 播放失败: %w: %s", c.Command, err, msg)
		}
		return fmt.Errorf("%s 播放失败: %w", c.Command, err)
	}
	return nil
}

package player

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrAssetMissing 音频文件不存在或为空
var ErrAssetMissing = errors.New("音频文件不存在")

// AudioOutput 播放一个音频文件，阻塞直到播放完成
type AudioOutput interface {
	Play(ctx context.Context, path string) error
}

// New 按名称创建播放器: speaker 使用声卡直接播放，ffplay 调用外部命令
func New(kind string) (AudioOutput, error) {
	switch kind {
	case "speaker", "":
		return NewSpeakerOutput(), nil
	case "ffplay":
		return NewCommandOutput("ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"), nil
	}
	return nil, fmt.Errorf("不支持的播放方式: %s", kind)
}

func checkAsset(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAssetMissing, path)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s 为空", ErrAssetMissing, path)
	}
	return nil
}

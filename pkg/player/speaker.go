package player

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// 扬声器固定采样率，其他采样率的文件会被重采样
const outputSampleRate = beep.SampleRate(44100)

// SpeakerOutput 通过beep直接输出到默认声卡
type SpeakerOutput struct {
	initOnce sync.Once
	initErr  error
	mu       sync.Mutex // 同一时间只允许一个文件占用扬声器
}

// NewSpeakerOutput 创建扬声器播放器，声卡在第一次播放时初始化
func NewSpeakerOutput() *SpeakerOutput {
	return &SpeakerOutput{}
}

func (s *SpeakerOutput) init() error {
	s.initOnce.Do(func() {
		s.initErr = speaker.Init(outputSampleRate, outputSampleRate.N(time.Second/10))
	})
	return s.initErr
}

// Play 实现AudioOutput接口，播放结束由回调关闭的channel通知
func (s *SpeakerOutput) Play(ctx context.Context, path string) error {
	if err := checkAsset(path); err != nil {
		return err
	}

	streamer, format, err := decode(path)
	if err != nil {
		return fmt.Errorf("解码音频失败: %w", err)
	}
	defer streamer.Close()

	if err := s.init(); err != nil {
		return fmt.Errorf("初始化扬声器失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stream beep.Streamer = streamer
	if format.SampleRate != outputSampleRate {
		stream = beep.Resample(4, format.SampleRate, outputSampleRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return streamErr(path, streamer)
	case <-ctx.Done():
		speaker.Clear()
		utils.Debug("播放被取消: %s", path)
		return ctx.Err()
	}
}

// streamErr 解码器在播放中途出错（文件截断或损坏）时返回错误，此时不能算作播放成功
func streamErr(path string, streamer beep.Streamer) error {
	if err := streamer.Err(); err != nil {
		return fmt.Errorf("播放 %s 时解码出错: %w", filepath.Base(path), err)
	}
	return nil
}

func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		streamer, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	return streamer, format, nil
}

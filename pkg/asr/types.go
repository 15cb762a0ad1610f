package asr

import (
	"context"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
)

// Recognizer 语音识别服务：对整个音频文件识别一次，返回按时间排序的段落
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string) ([]models.DataSegment, error)
}

// RecognizerFunc 让普通函数实现Recognizer
type RecognizerFunc func(ctx context.Context, audioPath string) ([]models.DataSegment, error)

// Transcribe 实现Recognizer接口
func (f RecognizerFunc) Transcribe(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
	return f(ctx, audioPath)
}

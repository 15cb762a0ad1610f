package watcher

import (
	"context"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/media"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// MediaWatcher 监控媒体文件夹，把新出现的音频交给RunQueue顺序处理
type MediaWatcher struct {
	monitor *FolderMonitor
	queue   *RunQueue
	cancel  context.CancelFunc
}

// NewMediaWatcher 创建媒体文件监控器。includeVideo为false时只接受音频文件。
func NewMediaWatcher(folder string, processor FileProcessor, debounce time.Duration, includeVideo bool) (*MediaWatcher, error) {
	queue := NewRunQueue(processor, nil)

	filter := media.IsAudio
	if includeVideo {
		filter = media.IsMedia
	}

	monitor, err := NewFolderMonitor(folder, filter, queue, debounce)
	if err != nil {
		return nil, err
	}
	return &MediaWatcher{monitor: monitor, queue: queue}, nil
}

// Queue 返回内部队列，可用于预先加入已有文件
func (w *MediaWatcher) Queue() *RunQueue {
	return w.queue
}

// Start 启动监控和处理队列
func (w *MediaWatcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.queue.Start(ctx)

	if err := w.monitor.Start(); err != nil {
		w.cancel()
		w.queue.Stop()
		return err
	}

	utils.Info("媒体文件监控已启动")
	return nil
}

// Stop 停止监控，并取消正在处理的文件
func (w *MediaWatcher) Stop() {
	w.monitor.Stop()
	if w.cancel != nil {
		w.cancel()
	}
	w.queue.Stop()
	utils.Info("媒体文件监控已停止")
}

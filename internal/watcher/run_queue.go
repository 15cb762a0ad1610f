package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// ErrQueueClosed 队列已停止
var ErrQueueClosed = errors.New("处理队列已停止")

// FileProcessor 处理单个媒体文件，一次只会被调用一个
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) error
}

// RunQueue 按到达顺序逐个处理文件。
// 流水线同一时间只接受一个运行，所以监控到的新文件在这里排队，不会被拒绝。
type RunQueue struct {
	processor FileProcessor

	mu      sync.Mutex
	queue   []string
	queued  map[string]bool // 排队中或处理中的文件
	wake    chan struct{}
	closed  bool
	started bool
	done    chan struct{}
	results chan Result
}

// Result 一个文件的处理结果
type Result struct {
	Path string
	Err  error
}

// NewRunQueue 创建运行队列，results不为nil时每个文件处理完都会发送一个结果（不阻塞时才发送）
func NewRunQueue(processor FileProcessor, results chan Result) *RunQueue {
	return &RunQueue{
		processor: processor,
		queued:    make(map[string]bool),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		results:   results,
	}
}

// Start 启动处理goroutine，ctx取消或Stop后结束
func (q *RunQueue) Start(ctx context.Context) {
	q.mu.Lock()
	q.started = true
	q.mu.Unlock()
	go q.loop(ctx)
}

// Enqueue 加入队列，已在队列中或处理中的文件会被忽略。返回是否加入。
func (q *RunQueue) Enqueue(path string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrQueueClosed
	}
	if q.queued[path] {
		return false, nil
	}
	q.queued[path] = true
	q.queue = append(q.queue, path)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	utils.Debug("文件已加入处理队列: %s (队列长度 %d)", path, len(q.queue))
	return true, nil
}

// Remove 从队列中移除尚未开始处理的文件
func (q *RunQueue) Remove(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, p := range q.queue {
		if p == path {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			delete(q.queued, path)
			return true
		}
	}
	return false
}

// Len 等待处理的文件数，不含正在处理的
func (q *RunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Stop 停止接收新文件，丢弃尚未开始的文件，等待当前文件处理完
func (q *RunQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	started := q.started
	q.mu.Unlock()

	if started {
		<-q.done
	}
}

// OnFileCreated 实现FileEventHandler
func (q *RunQueue) OnFileCreated(path string) {
	if _, err := q.Enqueue(path); err != nil {
		utils.Warn("无法加入处理队列 %s: %v", path, err)
	}
}

// OnFileDeleted 实现FileEventHandler
func (q *RunQueue) OnFileDeleted(path string) {
	if q.Remove(path) {
		utils.Info("文件已删除，移出处理队列: %s", path)
	}
}

func (q *RunQueue) next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.queue) == 0 {
		return "", false
	}
	path := q.queue[0]
	q.queue = q.queue[1:]
	return path, true
}

func (q *RunQueue) loop(ctx context.Context) {
	defer close(q.done)

	for {
		for {
			if ctx.Err() != nil {
				return
			}
			path, ok := q.next()
			if !ok {
				break
			}
			q.process(ctx, path)
		}

		select {
		case <-ctx.Done():
			return
		case _, ok := <-q.wake:
			if !ok {
				return
			}
		}
	}
}

func (q *RunQueue) process(ctx context.Context, path string) {
	utils.Info("开始处理排队文件: %s", path)
	err := q.processor.ProcessFile(ctx, path)
	if err != nil {
		utils.Error("处理文件失败 %s: %v", path, err)
	}

	q.mu.Lock()
	delete(q.queued, path)
	q.mu.Unlock()

	if q.results != nil {
		select {
		case q.results <- Result{Path: path, Err: err}:
		default:
		}
	}
}

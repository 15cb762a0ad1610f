package main

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// 播放任务状态
const (
	TaskPending = "PENDING"
	TaskRunning = "RUNNING"
	TaskSuccess = "SUCCESS"
	TaskFailed  = "FAILED"
)

// playFunc 执行一次完整播放
type playFunc func(ctx context.Context) (*models.PlaybackReport, error)

// playbackTasks 后台播放任务，使用 sync.Map 来安全地并发读写
type playbackTasks struct {
	tasks sync.Map
	wg    sync.WaitGroup
}

// create 创建任务并在后台执行播放
func (p *playbackTasks) create(ctx context.Context, runID string, play playFunc) string {
	taskID := uuid.New().String()
	p.tasks.Store(taskID, &PlaybackTask{ID: taskID, RunID: runID, Status: TaskPending})
	utils.WithField("task_id", taskID).Infof("创建播放任务，运行: %s", runID)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.update(taskID, func(t *PlaybackTask) { t.Status = TaskRunning })

		report, err := play(ctx)
		p.update(taskID, func(t *PlaybackTask) {
			t.Report = report
			if err != nil {
				t.Status = TaskFailed
				t.Error = err.Error()
				return
			}
			t.Status = TaskSuccess
		})
		utils.WithField("task_id", taskID).Infof("播放任务结束: %v", err)
	}()
	return taskID
}

// get 获取任务的副本
func (p *playbackTasks) get(taskID string) (PlaybackTask, bool) {
	value, ok := p.tasks.Load(taskID)
	if !ok {
		return PlaybackTask{}, false
	}
	return *(value.(*PlaybackTask)), true
}

// update 以写时复制方式修改任务，读者不会看到修改了一半的任务
func (p *playbackTasks) update(taskID string, fn func(t *PlaybackTask)) {
	value, ok := p.tasks.Load(taskID)
	if !ok {
		return
	}
	task := *(value.(*PlaybackTask))
	fn(&task)
	p.tasks.Store(taskID, &task)
}

// wait 等待所有播放任务结束
func (p *playbackTasks) wait() {
	p.wg.Wait()
}

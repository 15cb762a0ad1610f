package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/asr"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/segment"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/translate"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// 进度节点
const (
	progressStart       = 0.0
	progressTranscribe  = 0.1
	progressTranscribed = 0.3
	progressTranslated  = 0.99 // 翻译全部完成但尚未就绪
	progressReady       = 1.0
)

// LineTranslator 按行翻译一个段落的文本
type LineTranslator interface {
	TranslateDetailed(ctx context.Context, text, target string) (string, []translate.LineResult)
}

// Options 编排器参数
type Options struct {
	TargetLanguage string
	Workers        int // 并行翻译的goroutine数
}

// Run 一次运行的句柄
type Run struct {
	ID        string
	AudioPath string
	StartedAt time.Time

	gen         uint64
	done        chan struct{}
	store       *segment.Store
	err         error
	failedLines int64
}

// Done 运行结束（成功、失败或被放弃）时关闭
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait 等待运行结束
func (r *Run) Wait(ctx context.Context) (*segment.Store, error) {
	select {
	case <-r.done:
		return r.store, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err 运行结束后的错误，运行中返回nil
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// FailedLines 翻译失败的行数
func (r *Run) FailedLines() int {
	return int(atomic.LoadInt64(&r.failedLines))
}

// Orchestrator 在后台依次执行识别和翻译，对外只暴露只读快照。
// 同一时间只允许一个运行：识别、翻译、播放期间的 Start 返回 ErrRunInProgress。
type Orchestrator struct {
	recognizer asr.Recognizer
	translator LineTranslator
	target     string
	workers    int

	emitMu    sync.Mutex // 保证观察者收到快照的顺序与状态变化顺序一致，必须先于mu获取
	mu        sync.Mutex
	gen       uint64
	snap      models.Snapshot
	store     *segment.Store
	active    *Run
	cancel    context.CancelFunc
	observers map[int]func(models.Snapshot)
	nextObs   int
}

// NewOrchestrator 创建编排器
func NewOrchestrator(recognizer asr.Recognizer, translator LineTranslator, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Orchestrator{
		recognizer: recognizer,
		translator: translator,
		target:     opts.TargetLanguage,
		workers:    opts.Workers,
		snap:       models.Snapshot{State: models.StateIdle, UpdatedAt: time.Now()},
		observers:  make(map[int]func(models.Snapshot)),
	}
}

// Start 在后台goroutine中开始新的运行并立即返回。
// 运行受ctx控制，ctx取消后运行回到Idle。
func (o *Orchestrator) Start(ctx context.Context, audioPath string) (*Run, error) {
	o.lockEmit()
	if o.snap.State.Busy() {
		o.unlockEmit()
		return nil, ErrRunInProgress
	}

	o.gen++
	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:        uuid.NewString(),
		AudioPath: audioPath,
		StartedAt: time.Now(),
		gen:       o.gen,
		done:      make(chan struct{}),
	}
	o.active = run
	o.cancel = cancel
	o.store = nil
	o.snap = models.Snapshot{
		RunID:     run.ID,
		AudioPath: audioPath,
		State:     models.StateTranscribing,
		Progress:  progressStart,
		Message:   "开始处理",
	}
	o.emitLocked()

	go o.execute(runCtx, run)
	return run, nil
}

// Run 开始运行并等待结束
func (o *Orchestrator) Run(ctx context.Context, audioPath string) (*segment.Store, error) {
	run, err := o.Start(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	return run.Wait(ctx)
}

// Cancel 放弃正在识别或翻译的运行，之后它的任何写回都会被丢弃。返回是否有运行被取消。
func (o *Orchestrator) Cancel() bool {
	o.lockEmit()
	if o.active == nil || (o.snap.State != models.StateTranscribing && o.snap.State != models.StateTranslating) {
		o.unlockEmit()
		return false
	}

	run := o.active
	o.gen++
	o.cancel()
	o.active = nil
	o.cancel = nil
	o.store = nil
	o.snap = models.Snapshot{
		RunID:     run.ID,
		AudioPath: run.AudioPath,
		State:     models.StateIdle,
		Progress:  progressStart,
		Message:   "运行已取消",
	}
	o.emitLocked()

	utils.WithField("run_id", run.ID).Info("运行已取消")
	return true
}

// Snapshot 当前状态的只读快照
func (o *Orchestrator) Snapshot() models.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Subscribe 注册观察者，返回取消注册的函数。
// 观察者在状态变化时同步调用，回调中可以调用Snapshot/Store，不能调用Start/Cancel/BeginPlayback/EndPlayback。
func (o *Orchestrator) Subscribe(fn func(models.Snapshot)) func() {
	o.mu.Lock()
	id := o.nextObs
	o.nextObs++
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// Store 就绪（或播放中）时返回本次运行的段落存储
func (o *Orchestrator) Store() (*segment.Store, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store == nil || (o.snap.State != models.StateReady && o.snap.State != models.StatePlaying) {
		return nil, false
	}
	return o.store, true
}

// BeginPlayback Ready -> Playing，返回只读的段落存储
func (o *Orchestrator) BeginPlayback() (*segment.Store, string, error) {
	o.lockEmit()
	if o.snap.State != models.StateReady || o.store == nil {
		o.unlockEmit()
		return nil, "", ErrNotReady
	}
	o.snap.State = models.StatePlaying
	o.snap.Message = "正在播放"
	store, runID := o.store, o.snap.RunID
	o.emitLocked()
	return store, runID, nil
}

// EndPlayback Playing -> Ready
func (o *Orchestrator) EndPlayback(runID, message string) {
	o.lockEmit()
	if o.snap.State != models.StatePlaying || o.snap.RunID != runID {
		o.unlockEmit()
		return
	}
	o.snap.State = models.StateReady
	o.snap.Message = message
	o.emitLocked()
}

// lockEmit 依次获取emitMu和mu，所有会通知观察者的路径都经过这里
func (o *Orchestrator) lockEmit() {
	o.emitMu.Lock()
	o.mu.Lock()
}

func (o *Orchestrator) unlockEmit() {
	o.mu.Unlock()
	o.emitMu.Unlock()
}

// emitLocked 在lockEmit之后调用，更新时间戳后先释放mu再通知观察者，最后释放emitMu
func (o *Orchestrator) emitLocked() {
	o.snap.UpdatedAt = time.Now()
	snap := o.snap
	observers := make([]func(models.Snapshot), 0, len(o.observers))
	for _, fn := range o.observers {
		observers = append(observers, fn)
	}

	o.mu.Unlock()
	defer o.emitMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

// update 只在gen仍是当前运行时应用修改，否则丢弃并返回false
func (o *Orchestrator) update(gen uint64, fn func(s *models.Snapshot)) bool {
	o.lockEmit()
	if gen != o.gen {
		o.unlockEmit()
		return false
	}
	fn(&o.snap)
	o.emitLocked()
	return true
}

func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	defer close(run.done)
	log := utils.WithFields(logrus.Fields{"run_id": run.ID, "audio": run.AudioPath})

	o.update(run.gen, func(s *models.Snapshot) {
		s.Progress = progressTranscribe
		s.Message = "正在识别语音"
	})

	raw, err := o.recognizer.Transcribe(ctx, run.AudioPath)
	if err != nil {
		if ctx.Err() != nil {
			o.abandon(run, ctx.Err())
			return
		}
		runErr := &RunError{RunID: run.ID, Stage: StageTranscribe, Err: err}
		log.Error(runErr.Describe())
		run.err = runErr
		o.update(run.gen, func(s *models.Snapshot) {
			s.State = models.StateError
			s.Message = "语音识别失败"
			s.Err = runErr
			s.ErrorText = runErr.Error()
		})
		o.release(run)
		return
	}

	store := segment.NewStore(segment.FromRaw(raw))
	log.Infof("识别完成，共 %d 个段落", store.Len())

	if !o.update(run.gen, func(s *models.Snapshot) {
		s.State = models.StateTranslating
		s.Progress = progressTranscribed
		s.Segments = store.Len()
		s.Message = "正在翻译"
	}) {
		o.abandon(run, ErrRunAbandoned)
		return
	}

	o.translateAll(ctx, run, store)
	if ctx.Err() != nil {
		o.abandon(run, ctx.Err())
		return
	}

	store.Freeze()
	run.store = store

	o.lockEmit()
	if run.gen != o.gen {
		o.unlockEmit()
		run.store = nil
		run.err = ErrRunAbandoned
		return
	}
	o.store = store
	o.cancel()
	o.active = nil
	o.cancel = nil
	o.snap.State = models.StateReady
	o.snap.Progress = progressReady
	o.snap.Message = "翻译完成"
	o.emitLocked()

	log.WithField("failed_lines", run.FailedLines()).Info("运行就绪")
}

// translateAll 并行翻译所有段落，结果按索引写回
func (o *Orchestrator) translateAll(ctx context.Context, run *Run, store *segment.Store) {
	total := store.Len()
	if total == 0 {
		return
	}

	workers := o.workers
	if workers > total {
		workers = total
	}

	jobs := make(chan int)
	done := 0 // 只在update回调中修改，受mu保护
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				seg, err := store.Get(i)
				if err != nil {
					continue
				}

				out, results := o.translator.TranslateDetailed(ctx, seg.OriginalText, o.target)
				if ctx.Err() != nil {
					continue // 运行已放弃，丢弃结果
				}

				if err := store.SetTranslation(i, out); err != nil {
					utils.WithField("segment", i).Warnf("写入译文失败: %v", err)
					continue
				}
				atomic.AddInt64(&run.failedLines, int64(translate.CountFailures(results)))

				o.update(run.gen, func(s *models.Snapshot) {
					done++
					s.Progress = progressTranscribed + (progressTranslated-progressTranscribed)*float64(done)/float64(total)
					s.Message = "正在翻译"
				})
			}
		}()
	}

feed:
	for i := 0; i < total; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
}

// abandon 运行被取消。如果它仍是当前运行（外部ctx被取消），回到Idle。
func (o *Orchestrator) abandon(run *Run, cause error) {
	run.err = cause
	run.store = nil
	o.update(run.gen, func(s *models.Snapshot) {
		*s = models.Snapshot{
			RunID:     run.ID,
			AudioPath: run.AudioPath,
			State:     models.StateIdle,
			Progress:  progressStart,
			Message:   "运行已取消",
			Err:       cause,
			ErrorText: cause.Error(),
		}
	})
	o.release(run)
	utils.WithField("run_id", run.ID).Infof("运行结束: %v", cause)
}

// release 清理当前运行的引用
func (o *Orchestrator) release(run *Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == run {
		o.cancel()
		o.active = nil
		o.cancel = nil
	}
}

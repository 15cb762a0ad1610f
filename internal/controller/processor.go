package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/ccp-p/asr-media-cli/audio-translator/internal/ui"
	"github.com/ccp-p/asr-media-cli/audio-translator/internal/watcher"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/export"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/history"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/media"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/pipeline"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/scanner"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/segment"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/translate"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// 监听模式下文件写入完成的等待时间
const watchDebounce = 3 * time.Second

// ProcessorController 处理器控制器，协调各个组件工作
type ProcessorController struct {
	Config *models.Config

	// UI组件
	ProgressManager *ui.ProgressManager

	// 处理组件
	Components   *Components
	Orchestrator *pipeline.Orchestrator
	Sequencer    *pipeline.Sequencer
	Media        *media.MediaProcessor
	Scanner      *scanner.MediaScanner
	History      *history.Store // 未配置history_db时为nil
	ErrorHandler *utils.ErrorHandler

	WatchDebounce time.Duration

	srtExporter  *export.SRTExporter
	jsonExporter *export.JSONExporter

	// 上下文控制
	ctx        context.Context
	cancelFunc context.CancelFunc

	// 状态数据
	Stats struct {
		StartTime       time.Time
		TotalFiles      int
		SuccessfulFiles int
		FailedFiles     int
	}

	// 资源管理
	TempDir string
	cleanup []func() // 清理函数列表
	mu      sync.Mutex
	statsMu sync.Mutex
	playMu  sync.Mutex

	lastSummary *models.RunSummary
	saved       chan struct{} // 最近一次运行的结果保存完成时关闭
}

// RunHandle 一次后台运行，结束后结果已导出并写入历史
type RunHandle struct {
	Run     *pipeline.Run
	done    chan struct{}
	summary *models.RunSummary
	err     error
}

// Wait 等待运行和结果保存完成
func (h *RunHandle) Wait(ctx context.Context) (*models.RunSummary, error) {
	select {
	case <-h.done:
		return h.summary, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done 运行和结果保存都完成时关闭
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// NewProcessorController 按配置创建控制器和所有真实服务
func NewProcessorController(cfg *models.Config) (*ProcessorController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	errorHandler := utils.NewErrorHandler(cfg.MaxRetries, cfg.RetryDelay)
	components, err := BuildComponents(cfg, errorHandler)
	if err != nil {
		return nil, err
	}

	pc, err := NewWithComponents(cfg, components)
	if err != nil {
		return nil, err
	}
	pc.ErrorHandler = errorHandler
	return pc, nil
}

// NewWithComponents 使用给定的服务创建控制器
func NewWithComponents(cfg *models.Config, components *Components) (*ProcessorController, error) {
	ctx, cancel := context.WithCancel(context.Background())

	pc := &ProcessorController{
		Config:       cfg,
		Components:   components,
		Scanner:      scanner.NewMediaScanner(true),
		ErrorHandler: utils.NewErrorHandler(cfg.MaxRetries, cfg.RetryDelay),
		srtExporter:  export.NewSRTExporter(cfg.OutputFolder, false),
		jsonExporter: export.NewJSONExporter(cfg.OutputFolder),
		ctx:          ctx,
		cancelFunc:   cancel,

		WatchDebounce: watchDebounce,
	}

	// 创建临时目录
	tempDir := cfg.TempDir
	if tempDir == "" {
		dir, err := os.MkdirTemp("", "audio-translator")
		if err != nil {
			cancel()
			return nil, fmt.Errorf("创建临时目录失败: %w", err)
		}
		tempDir = dir
		pc.addCleanup(func() { os.RemoveAll(dir) })
	}
	pc.TempDir = tempDir
	pc.Media = media.NewMediaProcessor(tempDir)

	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			pc.Cleanup()
			return nil, err
		}
		pc.History = store
		pc.addCleanup(func() { store.Close() })
	}

	lineTranslator := translate.NewLineTranslator(components.Translator, components.Detector, cfg.DefaultSourceLanguage)
	pc.Orchestrator = pipeline.NewOrchestrator(components.Recognizer, lineTranslator, pipeline.Options{
		TargetLanguage: cfg.TargetLanguage,
		Workers:        cfg.TranslateWorkers,
	})
	pc.Sequencer = pipeline.NewSequencer(pc.Orchestrator, components.Synthesizer, components.Output,
		cfg.ArtifactDir, cfg.TargetLanguage)

	pc.ProgressManager = ui.NewProgressManager(cfg.ShowProgress, nil)
	pc.addCleanup(pc.Orchestrator.Subscribe(pc.ProgressManager.SnapshotObserver("pipeline")))
	pc.Sequencer.SetProgressCallback(pc.ProgressManager.PlaybackCallback("playback"))

	utils.Debug("组件初始化完成: %s", components.describe())
	return pc, nil
}

// Context 控制器的根上下文，收到中断信号或Cleanup后取消
func (pc *ProcessorController) Context() context.Context {
	return pc.ctx
}

// StartRun 准备音频并在后台开始运行，立即返回。
// 已有运行时返回 pipeline.ErrRunInProgress。运行结束后自动导出结果并写入历史，
// 开启auto_play时接着播放。
func (pc *ProcessorController) StartRun(ctx context.Context, path string) (*RunHandle, error) {
	if pc.Orchestrator.Snapshot().State.Busy() {
		return nil, pipeline.ErrRunInProgress
	}

	audioPath, cleanupAudio, err := pc.Media.PrepareAudio(ctx, path)
	if err != nil {
		return nil, err
	}

	run, err := pc.Orchestrator.Start(ctx, audioPath)
	if err != nil {
		cleanupAudio()
		return nil, err
	}

	handle := &RunHandle{Run: run, done: make(chan struct{})}
	saved := make(chan struct{})
	pc.mu.Lock()
	pc.saved = saved
	pc.mu.Unlock()

	go func() {
		defer close(handle.done)
		defer cleanupAudio()

		store, runErr := run.Wait(context.Background())
		handle.summary = pc.finishRun(ctx, run, path, store, runErr)
		handle.err = runErr
		close(saved)
		if runErr == nil && pc.Config.AutoPlay {
			if _, err := pc.PlayAll(ctx); err != nil {
				utils.Warn("自动播放失败: %v", err)
			}
		}
	}()
	return handle, nil
}

// Process 处理单个文件并等待结束
func (pc *ProcessorController) Process(ctx context.Context, path string) (*models.RunSummary, error) {
	handle, err := pc.StartRun(ctx, path)
	if err != nil {
		return nil, err
	}
	return handle.Wait(ctx)
}

// ProcessFile 实现watcher.FileProcessor
func (pc *ProcessorController) ProcessFile(ctx context.Context, path string) error {
	_, err := pc.Process(ctx, path)
	pc.recordResult(err == nil)
	return err
}

// finishRun 汇总运行结果，导出文件并写入历史。被取消的运行不保存。
func (pc *ProcessorController) finishRun(ctx context.Context, run *pipeline.Run, sourcePath string, store *segment.Store, runErr error) *models.RunSummary {
	summary := &models.RunSummary{
		RunID:          run.ID,
		AudioPath:      sourcePath,
		TargetLanguage: pc.Config.TargetLanguage,
		FailedLines:    run.FailedLines(),
		State:          models.StateReady,
		OutputFiles:    map[string]string{},
		StartedAt:      run.StartedAt,
		ProcessTimeMs:  time.Since(run.StartedAt).Milliseconds(),
	}
	if pc.Components.Selector != nil {
		summary.Service = pc.Components.Selector.LastService()
	}

	log := utils.WithFields(logrus.Fields{"run_id": run.ID, "audio": filepath.Base(sourcePath)})

	if runErr != nil {
		var re *pipeline.RunError
		if !errors.As(runErr, &re) {
			log.Infof("运行未完成: %v", runErr)
			return nil
		}
		summary.State = models.StateError
		summary.Error = runErr.Error()
		summary.Service = ""
	} else {
		segs := store.All()
		summary.SegmentCount = len(segs)
		pc.exportResults(segs, summary)
		log.WithField("failed_lines", summary.FailedLines).Infof("处理完成，共 %d 个段落，用时 %s",
			summary.SegmentCount, utils.FormatTimeDuration(float64(summary.ProcessTimeMs)/1000))
	}

	if pc.History != nil {
		var segs []segment.Segment
		if store != nil {
			segs = store.All()
		}
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := pc.History.SaveRun(saveCtx, *summary, segs); err != nil {
			log.Warnf("保存运行历史失败: %v", err)
		}
	}

	pc.mu.Lock()
	pc.lastSummary = summary
	pc.mu.Unlock()
	return summary
}

func (pc *ProcessorController) exportResults(segs []segment.Segment, summary *models.RunSummary) {
	if pc.Config.ExportSRT {
		if path, err := pc.srtExporter.ExportSRT(segs, summary.AudioPath); err != nil {
			utils.Warn("导出SRT失败: %v", err)
		} else {
			summary.OutputFiles["srt"] = path
		}
	}
	if pc.Config.ExportJSON {
		if path, err := pc.jsonExporter.ExportJSON(segs, summary.RunID, summary.AudioPath, summary.TargetLanguage); err != nil {
			utils.Warn("导出JSON失败: %v", err)
		} else {
			summary.OutputFiles["json"] = path
		}
	}
}

// PlayAll 合成并播放当前就绪的译文，播放报告写入历史
func (pc *ProcessorController) PlayAll(ctx context.Context) (*models.PlaybackReport, error) {
	pc.playMu.Lock()
	defer pc.playMu.Unlock()

	// 就绪后先等结果写入历史，播放记录才能关联到运行
	if pc.Orchestrator.Snapshot().State == models.StateReady {
		pc.mu.Lock()
		saved := pc.saved
		pc.mu.Unlock()
		if saved != nil {
			select {
			case <-saved:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	report, err := pc.Sequencer.PlayAll(ctx)
	if report != nil && pc.History != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if herr := pc.History.SavePlayback(saveCtx, report); herr != nil {
			utils.Warn("保存播放记录失败: %v", herr)
		}
	}
	return report, err
}

// Cancel 取消正在识别或翻译的运行
func (pc *ProcessorController) Cancel() bool {
	return pc.Orchestrator.Cancel()
}

// Snapshot 当前流水线状态
func (pc *ProcessorController) Snapshot() models.Snapshot {
	return pc.Orchestrator.Snapshot()
}

// Segments 就绪后的段落（含译文）
func (pc *ProcessorController) Segments() ([]segment.Segment, bool) {
	store, ok := pc.Orchestrator.Store()
	if !ok {
		return nil, false
	}
	return store.All(), true
}

// LastSummary 最近一次完成的运行
func (pc *ProcessorController) LastSummary() *models.RunSummary {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.lastSummary
}

// ListHistory 运行历史，未启用历史时返回空列表
func (pc *ProcessorController) ListHistory(ctx context.Context, limit int) ([]history.RunRecord, error) {
	if pc.History == nil {
		return []history.RunRecord{}, nil
	}
	return pc.History.ListRuns(ctx, limit)
}

// ProcessBatch 依次处理媒体文件夹中尚未处理过的文件
func (pc *ProcessorController) ProcessBatch(ctx context.Context) ([]models.RunSummary, error) {
	pc.statsMu.Lock()
	pc.Stats.StartTime = time.Now()
	pc.statsMu.Unlock()

	var source scanner.ProcessedSource
	if pc.History != nil {
		source = pc.History
	}
	files, err := pc.Scanner.PendingFiles(ctx, pc.Config.MediaFolder, source)
	if err != nil {
		return nil, err
	}

	results := make([]models.RunSummary, 0, len(files))
	for i, file := range files {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		fmt.Printf("\n[%d/%d] 开始处理: %s\n", i+1, len(files), file.Name)
		summary, err := pc.Process(ctx, file.Path)
		pc.recordResult(err == nil)
		if err != nil {
			color.Red("[%d/%d] 处理失败: %s - %v", i+1, len(files), file.Name, err)
			if summary == nil {
				continue
			}
		} else {
			color.Green("[%d/%d] 处理成功: %s", i+1, len(files), file.Name)
		}
		if summary != nil {
			results = append(results, *summary)
		}
	}
	return results, nil
}

// StartWatchMode 监听媒体文件夹，新文件排队逐个处理，直到ctx取消
func (pc *ProcessorController) StartWatchMode(ctx context.Context) error {
	if err := utils.EnsureDirExists(pc.Config.MediaFolder); err != nil {
		return err
	}

	w, err := watcher.NewMediaWatcher(pc.Config.MediaFolder, pc, pc.WatchDebounce, true)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	// 启动前已存在但未处理的文件也加入队列
	var source scanner.ProcessedSource
	if pc.History != nil {
		source = pc.History
	}
	if files, err := pc.Scanner.PendingFiles(ctx, pc.Config.MediaFolder, source); err == nil {
		for _, f := range files {
			w.Queue().Enqueue(f.Path)
		}
	}

	utils.Info("监控已启动，按Ctrl+C退出...")
	<-ctx.Done()
	return nil
}

// SetupSignalHandlers 收到中断信号时取消根上下文
func (pc *ProcessorController) SetupSignalHandlers() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-c:
			utils.Info("接收到中断信号，正在停止...")
			pc.cancelFunc()
		case <-pc.ctx.Done():
		}
		signal.Stop(c)
	}()
}

func (pc *ProcessorController) recordResult(success bool) {
	pc.statsMu.Lock()
	defer pc.statsMu.Unlock()
	pc.Stats.TotalFiles++
	if success {
		pc.Stats.SuccessfulFiles++
	} else {
		pc.Stats.FailedFiles++
	}
}

// PrintStats 打印处理统计和ASR服务统计
func (pc *ProcessorController) PrintStats() {
	pc.statsMu.Lock()
	stats := pc.Stats
	pc.statsMu.Unlock()

	if stats.TotalFiles > 0 {
		utils.Info("处理统计: 总计 %d, 成功 %d, 失败 %d, 用时 %s", stats.TotalFiles, stats.SuccessfulFiles,
			stats.FailedFiles, utils.FormatTimeDuration(time.Since(stats.StartTime).Seconds()))
	}

	if pc.Components.Selector != nil {
		utils.Info("ASR服务统计信息:")
		for name, stat := range pc.Components.Selector.GetStats() {
			utils.Info("%s: 调用次数=%v, 成功率=%v, 可用=%v", name, stat["count"], stat["success_rate"], stat["available"])
		}
	}
	if pc.ErrorHandler != nil {
		pc.ErrorHandler.PrintErrorStats()
	}
}

// 添加清理函数
func (pc *ProcessorController) addCleanup(cleanup func()) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.cleanup = append(pc.cleanup, cleanup)
}

// Cleanup 取消正在进行的运行并释放资源
func (pc *ProcessorController) Cleanup() {
	pc.cancelFunc()
	if pc.Orchestrator != nil {
		pc.Orchestrator.Cancel()
	}

	pc.mu.Lock()
	cleanups := pc.cleanup
	pc.cleanup = nil
	pc.mu.Unlock()

	// 逆序执行清理函数
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	if pc.ProgressManager != nil {
		pc.ProgressManager.CloseAll("已完成")
	}
	utils.DisableTerminalProgress()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/ccp-p/asr-media-cli/audio-translator/internal/controller"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/export"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/segment"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// options 命令行参数。只有显式设置的参数会覆盖配置文件。
type options struct {
	configFile string
	saveConfig string
	input      string
	play       bool
	batch      bool

	set       map[string]bool
	media     string
	output    string
	target    string
	fallback  string
	asr       string
	translate string
	player    string
	workers   int
	logLevel  string
	logFile   string
	history   string
	watch     bool
	progress  bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{set: map[string]bool{}}
	fs := flag.NewFlagSet("audiotrans", flag.ContinueOnError)

	fs.StringVar(&o.configFile, "config", "", "配置文件路径 (JSON 或 YAML)")
	fs.StringVar(&o.saveConfig, "save-config", "", "把最终配置保存到文件")
	fs.StringVar(&o.input, "input", "", "要处理的音频或视频文件")
	fs.BoolVar(&o.play, "play", false, "翻译完成后播放译文语音")
	fs.BoolVar(&o.batch, "batch", false, "处理媒体文件夹中所有未处理的文件")

	fs.StringVar(&o.media, "media", "", "媒体文件夹")
	fs.StringVar(&o.output, "output", "", "输出文件夹")
	fs.StringVar(&o.target, "target", "", "目标语言，例如 ur")
	fs.StringVar(&o.fallback, "source-fallback", "", "语言检测失败时使用的源语言")
	fs.StringVar(&o.asr, "asr", "", "ASR服务 (auto, kuaishou, whisper-api, whisper-cli)")
	fs.StringVar(&o.translate, "translator", "", "翻译服务 (google, llm)")
	fs.StringVar(&o.player, "player", "", "播放方式 (speaker, ffplay)")
	fs.IntVar(&o.workers, "workers", 0, "并行翻译的工作线程数")
	fs.StringVar(&o.logLevel, "log-level", "", "日志级别 (VERBOSE, INFO, WARN, ERROR)")
	fs.StringVar(&o.logFile, "log-file", "", "日志文件路径")
	fs.StringVar(&o.history, "history", "", "历史记录数据库路径")
	fs.BoolVar(&o.watch, "watch", false, "监听媒体文件夹，自动处理新文件")
	fs.BoolVar(&o.progress, "progress", true, "显示进度条")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if o.input == "" && fs.NArg() > 0 {
		o.input = fs.Arg(0)
	}
	return o, nil
}

// apply 用显式设置的参数覆盖配置
func (o *options) apply(cfg *models.Config) {
	strs := map[string]struct {
		value  string
		target *string
	}{
		"media":           {o.media, &cfg.MediaFolder},
		"output":          {o.output, &cfg.OutputFolder},
		"target":          {o.target, &cfg.TargetLanguage},
		"source-fallback": {o.fallback, &cfg.DefaultSourceLanguage},
		"asr":             {o.asr, &cfg.ASRService},
		"translator":      {o.translate, &cfg.TranslatorService},
		"player":          {o.player, &cfg.Player},
		"log-level":       {o.logLevel, &cfg.LogLevel},
		"log-file":        {o.logFile, &cfg.LogFile},
		"history":         {o.history, &cfg.HistoryDB},
	}
	for name, s := range strs {
		if o.set[name] {
			*s.target = s.value
		}
	}

	if o.set["workers"] {
		cfg.TranslateWorkers = o.workers
	}
	if o.set["watch"] {
		cfg.WatchMode = o.watch
	}
	if o.set["progress"] {
		cfg.ShowProgress = o.progress
	}
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	printWelcome()

	cfg := loadConfig(opts)
	if err := utils.InitLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		color.Red("初始化日志失败: %v", err)
		os.Exit(1)
	}
	if cfg.ShowProgress {
		if err := utils.EnableTerminalProgress(); err != nil {
			utils.Warn("启用进度条模式失败: %v", err)
		}
	}

	pc, err := controller.NewProcessorController(cfg)
	if err != nil {
		color.Red("初始化失败: %v", err)
		os.Exit(1)
	}
	pc.SetupSignalHandlers()

	code := run(pc, opts, os.Stdout)
	pc.PrintStats()
	pc.Cleanup()
	os.Exit(code)
}

func run(pc *controller.ProcessorController, opts *options, w io.Writer) int {
	ctx := pc.Context()

	if opts.saveConfig != "" {
		if err := pc.Config.SaveToFile(opts.saveConfig); err != nil {
			utils.Warn("保存配置失败: %v", err)
		} else {
			utils.Info("配置已保存: %s", opts.saveConfig)
		}
	}

	switch {
	case pc.Config.WatchMode:
		if err := pc.StartWatchMode(ctx); err != nil {
			color.Red("监听模式启动失败: %v", err)
			return 1
		}
		return 0

	case opts.input != "":
		return processSingle(ctx, pc, opts, w)

	default:
		results, err := pc.ProcessBatch(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			color.Red("批处理失败: %v", err)
			return 1
		}
		if len(results) == 0 {
			fmt.Fprintln(w, "没有需要处理的媒体文件")
			return 0
		}
		fmt.Fprintf(w, "\n所有文件处理完成! 共 %d 个\n", len(results))
		return 0
	}
}

func processSingle(ctx context.Context, pc *controller.ProcessorController, opts *options, w io.Writer) int {
	summary, err := pc.Process(ctx, opts.input)
	if err != nil {
		color.Red("处理失败: %v", err)
		return 1
	}

	segs, _ := pc.Segments()
	printTranscript(w, segs)
	printSummary(w, summary)

	if opts.play && !pc.Config.AutoPlay {
		report, err := pc.PlayAll(ctx)
		if report != nil {
			printPlayback(w, report)
		}
		if err != nil {
			color.Red("播放失败: %v", err)
			return 1
		}
	}
	return 0
}

func printWelcome() {
	fmt.Println()
	color.Cyan("================================")
	color.Cyan("     音频翻译工具 - 语音转译     ")
	color.Cyan("================================")
	fmt.Println()
}

func loadConfig(opts *options) *models.Config {
	fmt.Print("加载配置... ")

	config := models.NewDefaultConfig()
	if opts.configFile != "" {
		if err := config.LoadFromFile(opts.configFile); err != nil {
			color.Yellow("警告: 加载配置文件失败: %v，使用默认配置", err)
		} else {
			color.Green("成功")
		}
	} else {
		color.Yellow("未指定配置文件，使用默认配置")
	}

	opts.apply(config)
	config.ApplyEnv()
	return config
}

// printTranscript 打印原文和译文，每段 [MM:SS] 开头
func printTranscript(w io.Writer, segs []segment.Segment) {
	if len(segs) == 0 {
		fmt.Fprintln(w, "未识别出任何内容")
		return
	}
	fmt.Fprintln(w, color.CyanString("\n===== 原文 ====="))
	fmt.Fprintln(w, export.RenderOriginal(segs))
	fmt.Fprintln(w, color.GreenString("\n===== 译文 ====="))
	fmt.Fprintln(w, export.RenderTranslated(segs))
}

func printSummary(w io.Writer, s *models.RunSummary) {
	fmt.Fprintf(w, "\n段落数: %d, 翻译失败行数: %d, 处理用时: %s\n",
		s.SegmentCount, s.FailedLines, utils.FormatTimeDuration(float64(s.ProcessTimeMs)/1000))
	if s.Service != "" {
		fmt.Fprintf(w, "ASR服务: %s\n", s.Service)
	}
	for kind, path := range s.OutputFiles {
		fmt.Fprintf(w, "输出文件 [%s]: %s\n", kind, path)
	}
}

func printPlayback(w io.Writer, r *models.PlaybackReport) {
	fmt.Fprintf(w, "\n播放结果: 共 %d 段, 播放 %d, 跳过 %d, 失败 %d\n", r.Total, r.Played, r.Skipped, r.FailureCount())
	for _, f := range r.Failures {
		fmt.Fprintln(w, color.RedString("  第 %d 段 %s 失败: %s", f.Index+1, f.Stage, f.Error))
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/asr"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/translate"
)

type stubDetector struct{}

func (stubDetector) Detect(text string) (string, error) {
	if strings.HasPrefix(text, "?") {
		return "", translate.ErrUndetectable
	}
	return "fr", nil
}

// upperTranslator 翻译为大写，包含fail的行返回错误，delay模拟不同的延迟
type upperTranslator struct {
	delay func(text string) time.Duration
}

func (u upperTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	if u.delay != nil {
		select {
		case <-time.After(u.delay(text)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if strings.Contains(text, "fail") {
		return "", errors.New("quota exceeded")
	}
	return strings.ToUpper(text), nil
}

func staticRecognizer(texts ...string) asr.Recognizer {
	return asr.RecognizerFunc(func(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
		segs := make([]models.DataSegment, len(texts))
		for i, text := range texts {
			segs[i] = models.DataSegment{Text: text, StartTime: float64(i * 30)}
		}
		return segs, nil
	})
}

func newOrchestrator(rec asr.Recognizer, workers int, tr translate.Translator) *Orchestrator {
	lt := translate.NewLineTranslator(tr, stubDetector{}, "en")
	return NewOrchestrator(rec, lt, Options{TargetLanguage: "ur", Workers: workers})
}

// snapshotRecorder 记录观察者收到的快照
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (r *snapshotRecorder) record(s models.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *snapshotRecorder) all() []models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Snapshot(nil), r.snaps...)
}

func TestOrchestratorRunSuccess(t *testing.T) {
	o := newOrchestrator(staticRecognizer("hello", "one\nplease fail\nthree", "  "), 2, upperTranslator{})
	rec := &snapshotRecorder{}
	unsubscribe := o.Subscribe(rec.record)
	defer unsubscribe()

	store, err := o.Run(context.Background(), "talk.mp3")
	require.NoError(t, err)
	require.Equal(t, 3, store.Len())

	all := store.All()
	assert.Equal(t, "HELLO", all[0].TranslatedText)
	assert.Equal(t, "ONE\n[翻译失败: quota exceeded]\nTHREE", all[1].TranslatedText)
	assert.Equal(t, "", all[2].TranslatedText)
	assert.True(t, all[2].HasTranslation)
	assert.True(t, store.Frozen())

	snap := o.Snapshot()
	assert.Equal(t, models.StateReady, snap.State)
	assert.Equal(t, 1.0, snap.Progress)
	assert.Equal(t, 3, snap.Segments)

	ready, ok := o.Store()
	require.True(t, ok)
	assert.Same(t, store, ready)

	// 进度单调不减，只有Ready时为1.0
	snaps := rec.all()
	require.NotEmpty(t, snaps)
	last := -1.0
	for _, s := range snaps {
		assert.GreaterOrEqual(t, s.Progress, last)
		last = s.Progress
		if s.Progress == 1.0 {
			assert.Equal(t, models.StateReady, s.State)
		}
	}
	assert.Equal(t, models.StateTranscribing, snaps[0].State)
	assert.Equal(t, models.StateReady, snaps[len(snaps)-1].State)
}

func TestOrchestratorRecognizerFailure(t *testing.T) {
	failing := asr.RecognizerFunc(func(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
		return nil, errors.New("unsupported format: talk.xyz")
	})
	o := newOrchestrator(failing, 1, upperTranslator{})

	_, err := o.Run(context.Background(), "talk.xyz")
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, StageTranscribe, runErr.Stage)
	assert.Equal(t, "unsupported format: talk.xyz", err.Error())

	snap := o.Snapshot()
	assert.Equal(t, models.StateError, snap.State)
	assert.Equal(t, "unsupported format: talk.xyz", snap.ErrorText)
	_, ok := o.Store()
	assert.False(t, ok)

	// Error之后可以重新开始
	o.recognizer = staticRecognizer("again")
	store, err := o.Run(context.Background(), "talk.mp3")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, models.StateReady, o.Snapshot().State)
}

func TestOrchestratorRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	blocking := asr.RecognizerFunc(func(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
		<-release
		return []models.DataSegment{{Text: "x"}}, nil
	})
	o := newOrchestrator(blocking, 1, upperTranslator{})

	run, err := o.Start(context.Background(), "a.mp3")
	require.NoError(t, err)

	_, err = o.Start(context.Background(), "b.mp3")
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	_, err = run.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a.mp3", o.Snapshot().AudioPath)
}

func TestOrchestratorCancelDiscardsAbandonedRun(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	rec := asr.RecognizerFunc(func(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			<-release // 忽略ctx，模拟迟到的结果
			return []models.DataSegment{{Text: "old"}}, nil
		}
		return []models.DataSegment{{Text: "new"}}, nil
	})
	o := newOrchestrator(rec, 1, upperTranslator{})

	first, err := o.Start(context.Background(), "first.mp3")
	require.NoError(t, err)

	assert.True(t, o.Cancel())
	assert.Equal(t, models.StateIdle, o.Snapshot().State)
	assert.False(t, o.Cancel())

	second, err := o.Start(context.Background(), "second.mp3")
	require.NoError(t, err)
	_, err = second.Wait(context.Background())
	require.NoError(t, err)

	close(release)
	<-first.Done()
	assert.Error(t, first.Err())

	store, ok := o.Store()
	require.True(t, ok)
	assert.Equal(t, "NEW", store.All()[0].TranslatedText)

	snap := o.Snapshot()
	assert.Equal(t, second.ID, snap.RunID)
	assert.Equal(t, models.StateReady, snap.State)
}

func TestOrchestratorCancelDuringTranslation(t *testing.T) {
	started := make(chan struct{}, 10)
	tr := upperTranslator{delay: func(string) time.Duration {
		started <- struct{}{}
		return time.Hour
	}}
	o := newOrchestrator(staticRecognizer("a", "b", "c"), 2, tr)

	run, err := o.Start(context.Background(), "a.mp3")
	require.NoError(t, err)
	<-started

	assert.Equal(t, models.StateTranslating, o.Snapshot().State)
	require.True(t, o.Cancel())

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("取消后运行没有结束")
	}
	assert.Error(t, run.Err())
	assert.Equal(t, models.StateIdle, o.Snapshot().State)
	_, ok := o.Store()
	assert.False(t, ok)
}

func TestOrchestratorParentContextCancel(t *testing.T) {
	rec := asr.RecognizerFunc(func(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := newOrchestrator(rec, 1, upperTranslator{})

	ctx, cancel := context.WithCancel(context.Background())
	run, err := o.Start(ctx, "a.mp3")
	require.NoError(t, err)
	cancel()

	<-run.Done()
	assert.ErrorIs(t, run.Err(), context.Canceled)
	snap := o.Snapshot()
	assert.Equal(t, models.StateIdle, snap.State)
	assert.ErrorIs(t, snap.Err, context.Canceled)
}

func TestOrchestratorEmptyTranscript(t *testing.T) {
	o := newOrchestrator(staticRecognizer(), 4, upperTranslator{})
	store, err := o.Run(context.Background(), "silence.mp3")
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, models.StateReady, o.Snapshot().State)
}

func TestParallelTranslationMatchesSequential(t *testing.T) {
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = fmt.Sprintf("line %d\n?unknown %d", i, i)
		if i%7 == 0 {
			texts[i] += "\nfail here"
		}
	}
	// 索引越小延迟越大，让并行完成顺序与索引顺序相反
	tr := upperTranslator{delay: func(text string) time.Duration {
		var n int
		fmt.Sscanf(text, "line %d", &n)
		return time.Duration(40-n) * 100 * time.Microsecond
	}}

	sequential, err := newOrchestrator(staticRecognizer(texts...), 1, tr).Run(context.Background(), "a.mp3")
	require.NoError(t, err)
	parallel, err := newOrchestrator(staticRecognizer(texts...), 8, tr).Run(context.Background(), "a.mp3")
	require.NoError(t, err)

	assert.Equal(t, sequential.All(), parallel.All())
}

func TestObserverCanReadSnapshotDuringParallelRun(t *testing.T) {
	texts := make([]string, 200)
	for i := range texts {
		texts[i] = fmt.Sprintf("line %d", i)
	}
	o := newOrchestrator(staticRecognizer(texts...), 8, upperTranslator{})

	var reads int
	var mu sync.Mutex
	unsubscribe := o.Subscribe(func(s models.Snapshot) {
		time.Sleep(time.Millisecond)
		_ = o.Snapshot()
		_, _ = o.Store()
		mu.Lock()
		reads++
		mu.Unlock()
	})
	defer unsubscribe()

	run, err := o.Start(context.Background(), "long.mp3")
	require.NoError(t, err)

	select {
	case <-run.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("运行未能结束")
	}
	require.NoError(t, run.Err())
	assert.Equal(t, models.StateReady, o.Snapshot().State)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, reads, len(texts))
}

// fakeSynth 把文本写入文件，failOn中的索引合成失败
type fakeSynth struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, language, outputPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(outputPath))
	f.mu.Unlock()
	if f.failOn[text] {
		return errors.New("tts service error")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte(language+":"+text), 0644)
}

// fakeOutput 记录播放顺序，并检查不会同时播放两个文件
type fakeOutput struct {
	mu      sync.Mutex
	playing bool
	played  []string
	failOn  map[string]bool
	onPlay  func()
}

func (f *fakeOutput) Play(ctx context.Context, path string) error {
	f.mu.Lock()
	if f.playing {
		f.mu.Unlock()
		return errors.New("overlapping playback")
	}
	f.playing = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.playing = false
		f.mu.Unlock()
	}()

	if f.onPlay != nil {
		f.onPlay()
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if f.failOn[filepath.Base(path)] {
		return errors.New("device busy")
	}
	f.mu.Lock()
	f.played = append(f.played, filepath.Base(path))
	f.mu.Unlock()
	return nil
}

func TestSequencerRequiresReady(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocking := asr.RecognizerFunc(func(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
		<-release
		return nil, nil
	})
	o := newOrchestrator(blocking, 1, upperTranslator{})
	synth := &fakeSynth{}
	seq := NewSequencer(o, synth, &fakeOutput{}, t.TempDir(), "ur")

	_, err := seq.PlayAll(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = o.Start(context.Background(), "a.mp3")
	require.NoError(t, err)
	_, err = seq.PlayAll(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	assert.Empty(t, synth.calls)
}

func TestSequencerIsolatesSegmentFailures(t *testing.T) {
	o := newOrchestrator(staticRecognizer("one", "two", "three"), 2, upperTranslator{})
	_, err := o.Run(context.Background(), "a.mp3")
	require.NoError(t, err)

	dir := t.TempDir()
	synth := &fakeSynth{failOn: map[string]bool{"TWO": true}}
	out := &fakeOutput{}
	seq := NewSequencer(o, synth, out, dir, "ur")

	var percents []int
	seq.SetProgressCallback(func(percent int, message string) {
		percents = append(percents, percent)
	})

	report, err := seq.PlayAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Played)
	assert.Equal(t, 1, report.FailureCount())
	assert.Equal(t, models.SegmentFailure{Index: 1, Stage: models.StageSynthesize, Error: "tts service error"}, report.Failures[0])

	assert.Equal(t, []string{"segment_1.mp3", "segment_2.mp3", "segment_3.mp3"}, synth.calls)
	assert.Equal(t, []string{"segment_1.mp3", "segment_3.mp3"}, out.played)
	assert.Equal(t, []string{filepath.Join(dir, "segment_1.mp3"), filepath.Join(dir, "segment_3.mp3")}, report.Artifacts)
	assert.Equal(t, []int{33, 66, 100}, percents)

	assert.Equal(t, models.StateReady, o.Snapshot().State)

	// 播放可以重复进行
	report, err = seq.PlayAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Played)
}

func TestSequencerSkipsEmptyAndIsolatesPlayFailures(t *testing.T) {
	o := newOrchestrator(staticRecognizer("one", " \n ", "three", "four"), 1, upperTranslator{})
	_, err := o.Run(context.Background(), "a.mp3")
	require.NoError(t, err)

	synth := &fakeSynth{}
	out := &fakeOutput{failOn: map[string]bool{"segment_3.mp3": true}}
	report, err := NewSequencer(o, synth, out, t.TempDir(), "ur").PlayAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Played)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 2, report.Failures[0].Index)
	assert.Equal(t, models.StagePlay, report.Failures[0].Stage)

	// 空段落不合成
	assert.Equal(t, []string{"segment_1.mp3", "segment_3.mp3", "segment_4.mp3"}, synth.calls)
	assert.Equal(t, []string{"segment_1.mp3", "segment_4.mp3"}, out.played)
}

func TestSequencerPlayingBlocksNewRun(t *testing.T) {
	o := newOrchestrator(staticRecognizer("one", "two"), 1, upperTranslator{})
	_, err := o.Run(context.Background(), "a.mp3")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var states []models.PipelineState
	var startErr error
	out := &fakeOutput{onPlay: func() {
		states = append(states, o.Snapshot().State)
		_, startErr = o.Start(context.Background(), "b.mp3")
		cancel() // 第一段播放中取消
	}}

	report, err := NewSequencer(o, &fakeSynth{}, out, t.TempDir(), "ur").PlayAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Played)
	assert.Equal(t, 1, report.Attempted)

	assert.Equal(t, []models.PipelineState{models.StatePlaying}, states)
	assert.ErrorIs(t, startErr, ErrRunInProgress)
	assert.Equal(t, models.StateReady, o.Snapshot().State)
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "segment_1.mp3"), ArtifactPath("out", 0))
	assert.Equal(t, filepath.Join("out", "segment_12.mp3"), ArtifactPath("out", 11))
}

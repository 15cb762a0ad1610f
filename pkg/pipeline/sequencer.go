package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/player"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/tts"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// ProgressCallback 是进度回调函数
type ProgressCallback func(percent int, message string)

// ArtifactPath 第index个段落（从0开始）的合成音频路径，文件名按1开始编号
func ArtifactPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment_%d.mp3", index+1))
}

// Sequencer 按索引顺序逐段合成并播放译文。
// 单个段落的合成或播放失败只记录在报告中，不影响后续段落。
type Sequencer struct {
	orchestrator *Orchestrator
	synthesizer  tts.Synthesizer
	output       player.AudioOutput
	artifactDir  string
	language     string
	progress     ProgressCallback
}

// NewSequencer 创建播放序列器
func NewSequencer(orchestrator *Orchestrator, synthesizer tts.Synthesizer, output player.AudioOutput, artifactDir, language string) *Sequencer {
	return &Sequencer{
		orchestrator: orchestrator,
		synthesizer:  synthesizer,
		output:       output,
		artifactDir:  artifactDir,
		language:     language,
	}
}

// SetProgressCallback 设置每个段落处理完后的进度回调
func (s *Sequencer) SetProgressCallback(cb ProgressCallback) {
	s.progress = cb
}

// PlayAll 播放全部段落。流水线不是Ready时返回ErrNotReady，不做任何合成。
// ctx取消时在下一个段落开始前停止，返回已有的报告和ctx的错误。
func (s *Sequencer) PlayAll(ctx context.Context) (*models.PlaybackReport, error) {
	store, runID, err := s.orchestrator.BeginPlayback()
	if err != nil {
		return nil, err
	}

	segments := store.All()
	report := &models.PlaybackReport{
		RunID:     runID,
		Total:     len(segments),
		Failures:  []models.SegmentFailure{},
		Artifacts: []string{},
		StartedAt: time.Now(),
	}

	finish := func() {
		report.Duration = time.Since(report.StartedAt)
		s.orchestrator.EndPlayback(runID, fmt.Sprintf("播放完成: %d/%d 成功", report.Played, report.Total))
	}

	for i, seg := range segments {
		if ctx.Err() != nil {
			finish()
			return report, ctx.Err()
		}

		log := utils.WithField("run_id", runID).WithField("segment", seg.Index)

		if seg.IsSilent() {
			report.Skipped++
			log.Debug("译文为空，跳过")
			s.notify(i+1, len(segments), "跳过空段落")
			continue
		}

		report.Attempted++
		path := ArtifactPath(s.artifactDir, seg.Index)

		if err := s.synthesizer.Synthesize(ctx, seg.TranslatedText, s.language, path); err != nil {
			if ctx.Err() != nil {
				finish()
				return report, ctx.Err()
			}
			log.WithField("stage", models.StageSynthesize).Warnf("语音合成失败: %v", err)
			report.Failures = append(report.Failures, models.SegmentFailure{
				Index: seg.Index,
				Stage: models.StageSynthesize,
				Error: err.Error(),
			})
			s.notify(i+1, len(segments), fmt.Sprintf("第 %d 段合成失败", seg.Index+1))
			continue
		}
		report.Artifacts = append(report.Artifacts, path)

		if err := s.output.Play(ctx, path); err != nil {
			if ctx.Err() != nil {
				finish()
				return report, ctx.Err()
			}
			log.WithField("stage", models.StagePlay).Warnf("播放失败: %v", err)
			report.Failures = append(report.Failures, models.SegmentFailure{
				Index: seg.Index,
				Stage: models.StagePlay,
				Error: err.Error(),
			})
			s.notify(i+1, len(segments), fmt.Sprintf("第 %d 段播放失败", seg.Index+1))
			continue
		}

		report.Played++
		s.notify(i+1, len(segments), fmt.Sprintf("[%s] 第 %d 段播放完成", seg.Timestamp(), seg.Index+1))
	}

	finish()
	utils.WithField("run_id", runID).Infof("播放结束: 成功 %d, 跳过 %d, 失败 %d", report.Played, report.Skipped, report.FailureCount())
	return report, nil
}

func (s *Sequencer) notify(done, total int, message string) {
	if s.progress == nil || total == 0 {
		return
	}
	s.progress(done*100/total, message)
}

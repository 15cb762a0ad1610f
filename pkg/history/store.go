package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/segment"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	audioPath TEXT NOT NULL,
	service TEXT NOT NULL DEFAULT '',
	targetLanguage TEXT NOT NULL,
	state TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	segmentCount INTEGER NOT NULL DEFAULT 0,
	failedLines INTEGER NOT NULL DEFAULT 0,
	outputFiles TEXT NOT NULL DEFAULT '{}',
	startedAt REAL NOT NULL,
	processTimeMs INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS segments (
	runId TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	startSeconds REAL NOT NULL,
	endSeconds REAL NOT NULL DEFAULT 0,
	original TEXT NOT NULL,
	translated TEXT NOT NULL,
	PRIMARY KEY (runId, idx)
);

CREATE TABLE IF NOT EXISTS playbacks (
	id TEXT PRIMARY KEY,
	runId TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	total INTEGER NOT NULL,
	attempted INTEGER NOT NULL,
	played INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	failures TEXT NOT NULL DEFAULT '[]',
	startedAt REAL NOT NULL,
	durationMs INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_audio ON runs(audioPath);
`

// Store 运行历史，保存每次运行的段落和播放结果
type Store struct {
	db *sql.DB
}

// RunRecord 历史记录中的一次运行
type RunRecord struct {
	models.RunSummary
	Playbacks int `json:"playbacks"`
}

// Open 打开（必要时创建）历史数据库，path 可以是 :memory:
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := utils.EnsureDirExists(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 单连接：内存库每个连接是独立的数据库，文件库也避免写锁冲突
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置数据库失败: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun 保存一次运行及其段落，同一运行重复保存会覆盖
func (s *Store) SaveRun(ctx context.Context, summary models.RunSummary, segs []segment.Segment) error {
	outputs, err := json.Marshal(summary.OutputFiles)
	if err != nil {
		return fmt.Errorf("序列化输出文件失败: %w", err)
	}
	if summary.OutputFiles == nil {
		outputs = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, audioPath, service, targetLanguage, state, error, segmentCount, failedLines, outputFiles, startedAt, processTimeMs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, summary.RunID, summary.AudioPath, summary.Service, summary.TargetLanguage, summary.State.String(),
		summary.Error, summary.SegmentCount, summary.FailedLines, string(outputs),
		unixSeconds(summary.StartedAt), summary.ProcessTimeMs)
	if err != nil {
		return fmt.Errorf("保存运行失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE runId = ?`, summary.RunID); err != nil {
		return fmt.Errorf("清理旧段落失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (runId, idx, startSeconds, endSeconds, original, translated)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("准备语句失败: %w", err)
	}
	defer stmt.Close()

	for _, seg := range segs {
		if _, err := stmt.ExecContext(ctx, summary.RunID, seg.Index, seg.StartSeconds, seg.EndSeconds,
			seg.OriginalText, seg.TranslatedText); err != nil {
			return fmt.Errorf("保存段落 %d 失败: %w", seg.Index, err)
		}
	}

	return tx.Commit()
}

// SavePlayback 保存一次播放报告
func (s *Store) SavePlayback(ctx context.Context, report *models.PlaybackReport) error {
	failures, err := json.Marshal(report.Failures)
	if err != nil {
		return fmt.Errorf("序列化失败列表失败: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO playbacks (id, runId, total, attempted, played, skipped, failures, startedAt, durationMs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), report.RunID, report.Total, report.Attempted, report.Played, report.Skipped,
		string(failures), unixSeconds(report.StartedAt), report.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("保存播放报告失败: %w", err)
	}
	return nil
}

// ListRuns 按开始时间倒序列出最近的运行
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.audioPath, r.service, r.targetLanguage, r.state, r.error, r.segmentCount,
		       r.failedLines, r.outputFiles, r.startedAt, r.processTimeMs,
		       (SELECT COUNT(*) FROM playbacks p WHERE p.runId = r.id)
		FROM runs r
		ORDER BY r.startedAt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询运行失败: %w", err)
	}
	defer rows.Close()

	records := []RunRecord{}
	for rows.Next() {
		var (
			rec       RunRecord
			state     string
			outputs   string
			startedAt float64
		)
		if err := rows.Scan(&rec.RunID, &rec.AudioPath, &rec.Service, &rec.TargetLanguage, &state, &rec.Error,
			&rec.SegmentCount, &rec.FailedLines, &outputs, &startedAt, &rec.ProcessTimeMs, &rec.Playbacks); err != nil {
			return nil, fmt.Errorf("读取运行失败: %w", err)
		}
		rec.State = parseState(state)
		rec.StartedAt = timeFromUnix(startedAt)
		if err := json.Unmarshal([]byte(outputs), &rec.OutputFiles); err != nil {
			utils.Warn("解析输出文件列表失败: %v", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RunSegments 读取某次运行的段落，按索引排序
func (s *Store) RunSegments(ctx context.Context, runID string) ([]segment.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, startSeconds, endSeconds, original, translated
		FROM segments
		WHERE runId = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("查询段落失败: %w", err)
	}
	defer rows.Close()

	segs := []segment.Segment{}
	for rows.Next() {
		var seg segment.Segment
		if err := rows.Scan(&seg.Index, &seg.StartSeconds, &seg.EndSeconds, &seg.OriginalText, &seg.TranslatedText); err != nil {
			return nil, fmt.Errorf("读取段落失败: %w", err)
		}
		seg.HasTranslation = true
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// ProcessedPaths 成功处理过的音频路径
func (s *Store) ProcessedPaths(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT audioPath FROM runs WHERE state = ?`, models.StateReady.String())
	if err != nil {
		return nil, fmt.Errorf("查询已处理文件失败: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = true
	}
	return paths, rows.Err()
}

func parseState(name string) models.PipelineState {
	for _, st := range []models.PipelineState{
		models.StateIdle, models.StateTranscribing, models.StateTranslating,
		models.StateReady, models.StatePlaying, models.StateError,
	} {
		if st.String() == name {
			return st
		}
	}
	return models.StateIdle
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		t = time.Now()
	}
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

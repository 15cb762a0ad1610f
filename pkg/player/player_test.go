package player

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAsset(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestNew(t *testing.T) {
	out, err := New("speaker")
	require.NoError(t, err)
	assert.IsType(t, &SpeakerOutput{}, out)

	out, err = New("ffplay")
	require.NoError(t, err)
	assert.IsType(t, &CommandOutput{}, out)

	_, err = New("vlc")
	assert.Error(t, err)
}

func TestMissingAsset(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.mp3")

	err := NewSpeakerOutput().Play(context.Background(), missing)
	assert.ErrorIs(t, err, ErrAssetMissing)

	err = NewCommandOutput("true").Play(context.Background(), missing)
	assert.ErrorIs(t, err, ErrAssetMissing)

	empty := writeAsset(t, "empty.mp3", nil)
	err = NewCommandOutput("true").Play(context.Background(), empty)
	assert.ErrorIs(t, err, ErrAssetMissing)
}

func TestSpeakerRejectsCorruptFile(t *testing.T) {
	path := writeAsset(t, "bad.mp3", []byte("definitely not an mp3 stream"))
	err := NewSpeakerOutput().Play(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "解码音频失败")
}

// truncatedStreamer 输出n个采样后以解码错误结束
type truncatedStreamer struct {
	left int
	err  error
}

func (s *truncatedStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.left <= 0 {
		s.err = errors.New("unexpected EOF")
		return 0, false
	}
	n := min(len(samples), s.left)
	for i := range samples[:n] {
		samples[i] = [2]float64{}
	}
	s.left -= n
	return n, true
}

func (s *truncatedStreamer) Err() error { return s.err }

func drain(st beep.Streamer) {
	buf := make([][2]float64, 512)
	for {
		if _, ok := st.Stream(buf); !ok {
			return
		}
	}
}

func TestStreamErrReportsTruncatedAudio(t *testing.T) {
	truncated := &truncatedStreamer{left: 1000}
	drain(truncated)
	err := streamErr("/tmp/segment_3.mp3", truncated)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "segment_3.mp3")
	assert.Contains(t, err.Error(), "unexpected EOF")

	silence := beep.Silence(1000)
	drain(silence)
	assert.NoError(t, streamErr("/tmp/segment_1.mp3", silence))
}

func TestCommandOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh不可用")
	}
	path := writeAsset(t, "a.mp3", []byte("data"))

	ok := NewCommandOutput("sh", "-c", `test -f "$0"`)
	assert.NoError(t, ok.Play(context.Background(), path))

	fail := NewCommandOutput("sh", "-c", "echo broken >&2; exit 3")
	err := fail.Play(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	slow := NewCommandOutput("sh", "-c", "sleep 5")
	assert.ErrorIs(t, slow.Play(ctx, path), context.DeadlineExceeded)
}

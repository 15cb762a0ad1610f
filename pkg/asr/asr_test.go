package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
)

func writeAudio(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAudioFile(t *testing.T) {
	path := writeAudio(t, "abc")
	file, err := LoadAudioFile(path)
	require.NoError(t, err)
	assert.Equal(t, "352441c2", file.CRC32Hex)

	_, err = LoadAudioFile(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)

	_, err = LoadAudioFile(writeAudio(t, ""))
	assert.Error(t, err)
}

func TestKuaiShouASR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "1", r.FormValue("typeId"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "audio-bytes", string(data))

		w.Write([]byte(`{"data":{"text":[{"text":"hello","start_time":0.5,"end_time":1.2},{"text":"world","start_time":65,"end_time":66}]}}`))
	}))
	defer server.Close()

	k := NewKuaiShouASR(5 * time.Second)
	k.Endpoint = server.URL

	segments, err := k.Transcribe(context.Background(), writeAudio(t, "audio-bytes"))
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, models.DataSegment{Text: "hello", StartTime: 0.5, EndTime: 1.2}, segments[0])
	assert.Equal(t, 65.0, segments[1].StartTime)
}

func TestKuaiShouASRErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty":
			w.Write([]byte(`{"data":null}`))
		case "/bad":
			w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	audio := writeAudio(t, "x")
	for _, path := range []string{"/empty", "/bad", "/down"} {
		k := NewKuaiShouASR(5 * time.Second)
		k.Endpoint = server.URL + path
		_, err := k.Transcribe(context.Background(), audio)
		assert.Error(t, err, path)
	}
}

func TestWhisperAPIASR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"language":"english","text":"a b","segments":[{"start":0,"end":1,"text":" a"},{"start":1.5,"end":2,"text":" b"}]}`))
	}))
	defer server.Close()

	wa := NewWhisperAPIASR("sk-test", server.URL, "whisper-1", 5*time.Second)
	segments, err := wa.Transcribe(context.Background(), writeAudio(t, "x"))
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "a", segments[0].Text)
	assert.Equal(t, 1.5, segments[1].StartTime)
}

func TestWhisperOutputWithoutSegments(t *testing.T) {
	out := whisperOutput{Text: " whole text ", Duration: 3}
	assert.Equal(t, []models.DataSegment{{Text: "whole text", EndTime: 3}}, out.toSegments())

	empty := whisperOutput{}
	assert.Empty(t, empty.toSegments())
}

func TestWhisperCLIASR(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh不可用")
	}
	audio := writeAudio(t, "x")

	w := &WhisperCLIASR{Command: "sh", Args: []string{"-c", `echo '{"segments":[{"start":2,"end":3,"text":"hi"}]}'`, "sh"}}
	segments, err := w.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, []models.DataSegment{{Text: "hi", StartTime: 2, EndTime: 3}}, segments)

	failing := &WhisperCLIASR{Command: "sh", Args: []string{"-c", "echo model missing >&2; exit 1", "sh"}}
	_, err = failing.Transcribe(context.Background(), audio)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model missing")

	_, err = NewWhisperCLIASR("").Transcribe(context.Background(), audio)
	assert.Error(t, err)
}

func TestCachedRecognizer(t *testing.T) {
	var calls int32
	inner := RecognizerFunc(func(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
		atomic.AddInt32(&calls, 1)
		return []models.DataSegment{{Text: "cached", StartTime: 1}}, nil
	})

	cacheDir := t.TempDir()
	c := NewCachedRecognizer(inner, "test", cacheDir)
	audio := writeAudio(t, "same-content")

	first, err := c.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	second, err := c.Transcribe(context.Background(), audio)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSelectorPreferred(t *testing.T) {
	s := NewSelector("b")
	s.RegisterService("a", RecognizerFunc(func(context.Context, string) ([]models.DataSegment, error) {
		return nil, errors.New("should not be used")
	}), 100)
	s.RegisterService("b", RecognizerFunc(func(context.Context, string) ([]models.DataSegment, error) {
		return []models.DataSegment{{Text: "b"}}, nil
	}), 1)

	segments, err := s.Transcribe(context.Background(), "x.mp3")
	require.NoError(t, err)
	assert.Equal(t, "b", segments[0].Text)
	assert.Equal(t, "b", s.LastService())

	unknown := NewSelector("nope")
	_, err = unknown.Transcribe(context.Background(), "x.mp3")
	assert.Error(t, err)
}

func TestSelectorAutoFailover(t *testing.T) {
	s := NewSelector("auto")
	s.RegisterService("broken", RecognizerFunc(func(context.Context, string) ([]models.DataSegment, error) {
		return nil, errors.New("down")
	}), 1)
	s.RegisterService("ok", RecognizerFunc(func(context.Context, string) ([]models.DataSegment, error) {
		return []models.DataSegment{{Text: "ok"}}, nil
	}), 1)

	for i := 0; i < 10; i++ {
		segments, err := s.Transcribe(context.Background(), "x.mp3")
		require.NoError(t, err)
		assert.Equal(t, "ok", segments[0].Text)
	}

	stats := s.GetStats()
	assert.Equal(t, "100.0%", stats["ok"]["success_rate"])
}

func TestSelectorAllFail(t *testing.T) {
	s := NewSelector("auto")
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("svc%d", i)
		s.RegisterService(name, RecognizerFunc(func(context.Context, string) ([]models.DataSegment, error) {
			return nil, errors.New("unreadable file")
		}), 1)
	}

	_, err := s.Transcribe(context.Background(), "x.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable file")

	empty := NewSelector("auto")
	_, err = empty.Transcribe(context.Background(), "x.mp3")
	assert.ErrorIs(t, err, ErrNoService)
}

func TestSelectorDisablesFailingService(t *testing.T) {
	s := NewSelector("auto")
	s.RegisterService("flaky", RecognizerFunc(func(context.Context, string) ([]models.DataSegment, error) {
		return nil, errors.New("down")
	}), 1)

	for i := 0; i < 6; i++ {
		s.ReportResult("flaky", false)
	}
	assert.Equal(t, false, s.GetStats()["flaky"]["available"])

	_, err := s.Transcribe(context.Background(), "x.mp3")
	assert.ErrorIs(t, err, ErrNoService)
}

package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 创建测试目录和测试文件
func setupTestDirectory(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	testFiles := []string{
		"audio1.mp3",
		"audio2.wav",
		"video1.mp4",
		"document.pdf",
		"image.jpg",
		".hidden.mp3",
		"subfolder/a.mp3",
	}

	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "subfolder"), 0755))

	base := time.Now().Add(-time.Hour)
	for i, fileName := range testFiles {
		filePath := filepath.Join(tempDir, fileName)
		require.NoError(t, os.WriteFile(filePath, []byte("test content"), 0644))
		// 修改时间与列表顺序相反
		mod := base.Add(time.Duration(len(testFiles)-i) * time.Minute)
		require.NoError(t, os.Chtimes(filePath, mod, mod))
	}

	return tempDir
}

func TestScanDirectory(t *testing.T) {
	testDir := setupTestDirectory(t)

	files, err := NewMediaScanner(true).ScanDirectory(testDir)
	require.NoError(t, err)

	// 不包括隐藏文件和子目录中的文件，按修改时间排序
	require.Len(t, files, 3)
	assert.Equal(t, "video1.mp4", files[0].Name)
	assert.Equal(t, "audio2.wav", files[1].Name)
	assert.Equal(t, "audio1.mp3", files[2].Name)
	assert.True(t, files[0].IsVideo)

	for _, file := range files {
		assert.NotEmpty(t, file.Ext)
		assert.NotZero(t, file.Size)
	}

	audioOnly, err := NewMediaScanner(false).ScanDirectory(testDir)
	require.NoError(t, err)
	assert.Len(t, audioOnly, 2)

	_, err = NewMediaScanner(true).ScanDirectory(filepath.Join(testDir, "missing"))
	assert.Error(t, err)
}

func TestFilterNewFiles(t *testing.T) {
	testFiles := []MediaFile{
		{Path: "/path/to/file1.mp3", Name: "file1.mp3", IsAudio: true},
		{Path: "/path/to/file2.mp4", Name: "file2.mp4", IsVideo: true},
		{Path: "/path/to/file3.wav", Name: "file3.wav", IsAudio: true},
	}

	newFiles := NewMediaScanner(true).FilterNewFiles(testFiles, map[string]bool{"/path/to/file1.mp3": true})

	require.Len(t, newFiles, 2)
	assert.Equal(t, "/path/to/file2.mp4", newFiles[0].Path)
	assert.Equal(t, "/path/to/file3.wav", newFiles[1].Path)
}

type processedFunc func(ctx context.Context) (map[string]bool, error)

func (f processedFunc) ProcessedPaths(ctx context.Context) (map[string]bool, error) { return f(ctx) }

func TestPendingFiles(t *testing.T) {
	testDir := setupTestDirectory(t)
	s := NewMediaScanner(false)

	all, err := s.PendingFiles(context.Background(), testDir, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	source := processedFunc(func(context.Context) (map[string]bool, error) {
		return map[string]bool{filepath.Join(testDir, "audio1.mp3"): true}, nil
	})
	pending, err := s.PendingFiles(context.Background(), testDir, source)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "audio2.wav", pending[0].Name)

	failing := processedFunc(func(context.Context) (map[string]bool, error) {
		return nil, errors.New("db locked")
	})
	_, err = s.PendingFiles(context.Background(), testDir, failing)
	assert.Error(t, err)
}

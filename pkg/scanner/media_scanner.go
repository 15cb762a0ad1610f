package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/media"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// MediaFile 表示一个待处理的媒体文件
type MediaFile struct {
	Path    string    // 文件路径
	Name    string    // 文件名
	Ext     string    // 文件扩展名
	Size    int64     // 文件大小（字节）
	ModTime time.Time // 修改时间
	IsVideo bool      // 是否为视频文件
	IsAudio bool      // 是否为音频文件
}

// ProcessedSource 提供已处理文件的记录（例如运行历史）
type ProcessedSource interface {
	ProcessedPaths(ctx context.Context) (map[string]bool, error)
}

// MediaScanner 用于扫描媒体文件
type MediaScanner struct {
	IncludeVideo bool
}

// NewMediaScanner 创建新的媒体扫描器
func NewMediaScanner(includeVideo bool) *MediaScanner {
	return &MediaScanner{IncludeVideo: includeVideo}
}

// ScanDirectory 扫描目录（非递归），按修改时间从旧到新返回媒体文件
func (s *MediaScanner) ScanDirectory(dir string) ([]MediaFile, error) {
	utils.Info("开始扫描目录: %s", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	mediaFiles := []MediaFile{}
	for _, entry := range entries {
		// 跳过目录和隐藏文件
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		isAudio, isVideo := media.IsAudio(path), media.IsVideo(path)
		if !isAudio && !(isVideo && s.IncludeVideo) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			utils.Warn("获取文件信息失败: %v", err)
			continue
		}

		mediaFiles = append(mediaFiles, MediaFile{
			Path:    path,
			Name:    entry.Name(),
			Ext:     strings.ToLower(filepath.Ext(path)),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsVideo: isVideo,
			IsAudio: isAudio,
		})
	}

	sort.SliceStable(mediaFiles, func(i, j int) bool {
		return mediaFiles[i].ModTime.Before(mediaFiles[j].ModTime)
	})

	utils.Info("扫描完成，共找到 %d 个媒体文件", len(mediaFiles))
	return mediaFiles, nil
}

// FilterNewFiles 根据已处理记录过滤出新文件
func (s *MediaScanner) FilterNewFiles(files []MediaFile, processedPaths map[string]bool) []MediaFile {
	newFiles := []MediaFile{}
	for _, file := range files {
		if !processedPaths[file.Path] {
			newFiles = append(newFiles, file)
		}
	}

	utils.Info("过滤后剩余 %d 个新文件需要处理", len(newFiles))
	return newFiles
}

// PendingFiles 扫描目录并去掉source中记录为已处理的文件，source可以为nil
func (s *MediaScanner) PendingFiles(ctx context.Context, dir string, source ProcessedSource) ([]MediaFile, error) {
	files, err := s.ScanDirectory(dir)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return files, nil
	}

	processed, err := source.ProcessedPaths(ctx)
	if err != nil {
		return nil, err
	}
	return s.FilterNewFiles(files, processed), nil
}

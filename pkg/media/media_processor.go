package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

var (
	audioExtensions = map[string]bool{".mp3": true, ".wav": true, ".m4a": true, ".flac": true, ".ogg": true, ".aac": true}
	videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".flv": true}
)

// IsAudio 按扩展名判断是否为音频文件
func IsAudio(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsVideo 按扩展名判断是否为视频文件
func IsVideo(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsMedia 音频或视频
func IsMedia(path string) bool {
	return IsAudio(path) || IsVideo(path)
}

// MediaInfo 存储媒体文件的详细信息
type MediaInfo struct {
	Path       string  `json:"path"`
	Name       string  `json:"name"`
	Format     string  `json:"format"`
	Duration   float64 `json:"duration"`    // 时长(秒)
	SampleRate int     `json:"sample_rate"` // 采样率(Hz)
	Channels   int     `json:"channels"`
	Bitrate    int     `json:"bitrate"` // 比特率(kbps)
	Size       int64   `json:"size"`
}

// MediaProcessor 用ffmpeg/ffprobe准备识别用的音频
type MediaProcessor struct {
	TempDir string // 视频转出的音频存放目录
}

// NewMediaProcessor 创建新的媒体处理器，tempDir为空时使用系统临时目录
func NewMediaProcessor(tempDir string) *MediaProcessor {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "audio-translator")
	}
	return &MediaProcessor{TempDir: tempDir}
}

// CheckFFmpeg 检查FFmpeg是否可用
func CheckFFmpeg() bool {
	return exec.Command("ffmpeg", "-version").Run() == nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
}

// GetMediaInfo 获取媒体文件信息
func (p *MediaProcessor) GetMediaInfo(ctx context.Context, filePath string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx,
		"ffprobe",
		"-v", "error",
		"-show_entries", "format=format_name,duration,size,bit_rate:stream=codec_type,sample_rate,channels",
		"-of", "json",
		filePath,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("获取媒体信息失败: %w", err)
	}
	return parseFFprobe(filePath, output)
}

func parseFFprobe(filePath string, output []byte) (*MediaInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("无法解析媒体信息: %w", err)
	}

	info := &MediaInfo{
		Path:   filePath,
		Name:   filepath.Base(filePath),
		Format: probe.Format.FormatName,
	}
	info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	info.Size, _ = strconv.ParseInt(probe.Format.Size, 10, 64)
	// 比特率可能是 N/A
	if br, err := strconv.Atoi(probe.Format.BitRate); err == nil {
		info.Bitrate = br / 1000
	}

	for _, s := range probe.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info.SampleRate, _ = strconv.Atoi(s.SampleRate)
		info.Channels = s.Channels
		break
	}
	return info, nil
}

// ExtractAudioFromVideo 从视频文件提取音频为mp3
func (p *MediaProcessor) ExtractAudioFromVideo(ctx context.Context, videoPath string) (string, error) {
	if err := utils.EnsureDirExists(p.TempDir); err != nil {
		return "", fmt.Errorf("创建临时目录失败: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	audioPath := filepath.Join(p.TempDir, baseName+".mp3")

	cmd := exec.CommandContext(ctx,
		"ffmpeg",
		"-i", videoPath,
		"-q:a", "0",
		"-map", "a",
		audioPath,
		"-y", // 覆盖已存在的文件
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("音频提取失败: %w: %s", err, lastLine(string(out)))
	}

	utils.Info("成功从视频提取音频: %s -> %s", videoPath, audioPath)
	return audioPath, nil
}

// PrepareAudio 返回可供识别的音频路径：音频文件原样返回，视频文件先提取音频。
// cleanup 删除提取出的临时文件。
func (p *MediaProcessor) PrepareAudio(ctx context.Context, path string) (string, func(), error) {
	noop := func() {}

	if !utils.CheckFileExists(path) {
		return "", noop, fmt.Errorf("文件不存在: %s", path)
	}

	if IsVideo(path) {
		if !CheckFFmpeg() {
			return "", noop, fmt.Errorf("处理视频需要FFmpeg，但未找到ffmpeg命令")
		}
		audioPath, err := p.ExtractAudioFromVideo(ctx, path)
		if err != nil {
			return "", noop, err
		}
		return audioPath, func() { os.Remove(audioPath) }, nil
	}

	if CheckFFmpeg() {
		if info, err := p.GetMediaInfo(ctx, path); err == nil {
			utils.WithField("file", info.Name).Infof("媒体信息: 时长 %s, 采样率 %dHz, 大小 %s",
				utils.FormatTimeDuration(info.Duration), info.SampleRate, utils.FormatFileSize(info.Size))
		}
	}
	return path, noop, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

package asr

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// AudioFile 读入内存的音频文件及其校验和
type AudioFile struct {
	Path     string
	Binary   []byte
	CRC32Hex string
}

// LoadAudioFile 读取音频文件并计算CRC32
func LoadAudioFile(audioPath string) (*AudioFile, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("无效的音频路径: %s: %w", audioPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("无效的音频路径: %s 是目录", audioPath)
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("读取音频文件失败: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("音频文件为空: %s", audioPath)
	}

	file := &AudioFile{
		Path:     audioPath,
		Binary:   data,
		CRC32Hex: fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)),
	}
	utils.Log.Debugf("从文件读取音频数据: %s, CRC32: %s", audioPath, file.CRC32Hex)
	return file, nil
}

// CachedRecognizer 按音频内容的CRC32缓存识别结果
type CachedRecognizer struct {
	Inner    Recognizer
	Prefix   string // 缓存文件名前缀，一般是服务名
	CacheDir string
}

// NewCachedRecognizer 为识别服务加上文件缓存
func NewCachedRecognizer(inner Recognizer, prefix, cacheDir string) *CachedRecognizer {
	return &CachedRecognizer{Inner: inner, Prefix: prefix, CacheDir: cacheDir}
}

// CacheKey 获取缓存键名
func (c *CachedRecognizer) CacheKey(file *AudioFile) string {
	return fmt.Sprintf("%s-%s.json", c.Prefix, file.CRC32Hex)
}

// Transcribe 实现Recognizer接口，命中缓存时不调用实际服务
func (c *CachedRecognizer) Transcribe(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
	file, err := LoadAudioFile(audioPath)
	if err != nil {
		return nil, err
	}

	cachePath := filepath.Join(c.CacheDir, c.CacheKey(file))
	var cached []models.DataSegment
	if ok, err := utils.LoadJSONFile(cachePath, &cached); err != nil {
		utils.Log.Warnf("读取识别缓存失败: %v", err)
	} else if ok {
		utils.Log.Infof("从缓存加载识别结果: %s", cachePath)
		return cached, nil
	}

	segments, err := c.Inner.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	if err := utils.SaveJSONFile(cachePath, segments); err != nil {
		utils.Log.Warnf("保存识别结果到缓存失败: %v", err)
	}
	return segments, nil
}

package asr

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// ErrNoService 没有可用的识别服务
var ErrNoService = errors.New("没有可用的ASR服务")

// ServiceStats 服务统计数据
type ServiceStats struct {
	SuccessCount int
	TotalCount   int
	Available    bool
}

// Selector 语音服务选择器。自身实现Recognizer：
// 指定服务名时只使用该服务，auto时按权重随机选择并在失败时依次尝试其他可用服务。
type Selector struct {
	mu          sync.RWMutex
	preferred   string
	services    map[string]Recognizer
	weights     map[string]int
	counters    map[string]int
	stats       map[string]*ServiceStats
	serviceList []string
	lastService string
	rng         *rand.Rand
}

// NewSelector 创建服务选择器，preferred 为服务名或 auto
func NewSelector(preferred string) *Selector {
	if preferred == "" {
		preferred = "auto"
	}
	return &Selector{
		preferred:   preferred,
		services:    make(map[string]Recognizer),
		weights:     make(map[string]int),
		counters:    make(map[string]int),
		stats:       make(map[string]*ServiceStats),
		serviceList: make([]string, 0),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RegisterService 注册ASR服务
func (s *Selector) RegisterService(name string, rec Recognizer, weight int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[name]; !exists {
		s.serviceList = append(s.serviceList, name)
	}
	s.services[name] = rec
	s.weights[name] = weight
	s.counters[name] = 0
	s.stats[name] = &ServiceStats{Available: true}

	utils.Log.Infof("注册ASR服务: %s, 权重: %d", name, weight)
}

// ReportResult 报告服务调用结果
func (s *Selector) ReportResult(serviceName string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, exists := s.stats[serviceName]
	if !exists {
		return
	}
	if success {
		stat.SuccessCount++
	}
	stat.TotalCount++

	// 成功率过低时临时禁用
	if !success && stat.TotalCount > 5 && float64(stat.SuccessCount)/float64(stat.TotalCount) < 0.2 {
		stat.Available = false
		utils.Log.Warnf("ASR服务 %s 成功率过低，临时禁用", serviceName)
	} else if success && !stat.Available {
		stat.Available = true
		utils.Log.Infof("ASR服务 %s 恢复可用", serviceName)
	}
}

// candidates 返回本次识别要依次尝试的服务
func (s *Selector) candidates() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preferred != "auto" {
		if _, ok := s.services[s.preferred]; !ok {
			return nil, fmt.Errorf("未知的ASR服务: %s", s.preferred)
		}
		s.counters[s.preferred]++
		return []string{s.preferred}, nil
	}

	first, ok := s.selectByWeightedRandom()
	if !ok {
		return nil, ErrNoService
	}
	order := []string{first}
	for _, name := range s.serviceList {
		if name != first && s.stats[name].Available {
			order = append(order, name)
		}
	}
	s.counters[first]++
	return order, nil
}

// selectByWeightedRandom 使用加权随机策略选择服务，调用方持有锁
func (s *Selector) selectByWeightedRandom() (string, bool) {
	totalWeight := 0
	for _, name := range s.serviceList {
		if s.stats[name].Available {
			totalWeight += s.weights[name]
		}
	}

	if totalWeight <= 0 {
		// 权重都为0时退化为第一个可用服务
		for _, name := range s.serviceList {
			if s.stats[name].Available {
				return name, true
			}
		}
		return "", false
	}

	r := s.rng.Intn(totalWeight)
	cumWeight := 0
	for _, name := range s.serviceList {
		if !s.stats[name].Available {
			continue
		}
		cumWeight += s.weights[name]
		if r < cumWeight {
			return name, true
		}
	}
	return "", false
}

// Transcribe 实现Recognizer接口
func (s *Selector) Transcribe(ctx context.Context, audioPath string) ([]models.DataSegment, error) {
	order, err := s.candidates()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, name := range order {
		s.mu.RLock()
		rec := s.services[name]
		s.mu.RUnlock()

		utils.WithField("service", name).Infof("开始语音识别: %s", audioPath)
		segments, err := rec.Transcribe(ctx, audioPath)
		s.ReportResult(name, err == nil)
		if err == nil {
			s.mu.Lock()
			s.lastService = name
			s.mu.Unlock()
			return segments, nil
		}

		lastErr = fmt.Errorf("%s: %w", name, err)
		if ctx.Err() != nil {
			return nil, lastErr
		}
		utils.WithField("service", name).Warnf("语音识别失败: %v", err)
	}
	return nil, lastErr
}

// LastService 最近一次成功识别使用的服务
func (s *Selector) LastService() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastService
}

// GetStats 获取服务使用统计信息
func (s *Selector) GetStats() map[string]map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]map[string]interface{})
	for name, stat := range s.stats {
		successRate := 0.0
		if stat.TotalCount > 0 {
			successRate = float64(stat.SuccessCount) / float64(stat.TotalCount) * 100
		}

		result[name] = map[string]interface{}{
			"count":        s.counters[name],
			"success_rate": fmt.Sprintf("%.1f%%", successRate),
			"available":    stat.Available,
			"weight":       s.weights[name],
		}
	}
	return result
}

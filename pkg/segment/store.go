package segment

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrIndexOutOfRange   = errors.New("段落索引越界")
	ErrAlreadyTranslated = errors.New("段落已写入译文")
	ErrFrozen            = errors.New("段落存储已冻结")
)

// Segment 一个带时间戳的识别段落
type Segment struct {
	Index          int     `json:"index"`
	StartSeconds   float64 `json:"start"`
	EndSeconds     float64 `json:"end,omitempty"`
	OriginalText   string  `json:"original"`
	TranslatedText string  `json:"translated"`
	HasTranslation bool    `json:"has_translation"`
}

// Timestamp 返回 MM:SS 格式的开始时间
func (s Segment) Timestamp() string {
	return FormatTimestamp(s.StartSeconds)
}

// IsSilent 译文为空或只有空白
func (s Segment) IsSilent() bool {
	return strings.TrimSpace(s.TranslatedText) == ""
}

// Store 保存一次运行的有序段落。索引和原文在创建后不可变，
// 每个段落的译文只能写入一次，Freeze之后整个存储只读。
type Store struct {
	mu       sync.RWMutex
	segments []Segment
	frozen   bool
}

// NewStore 创建段落存储，segs按索引顺序排列
func NewStore(segs []Segment) *Store {
	copied := make([]Segment, len(segs))
	copy(copied, segs)
	for i := range copied {
		copied[i].Index = i
		copied[i].TranslatedText = ""
		copied[i].HasTranslation = false
	}
	return &Store{segments: copied}
}

// Len 段落数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Get 按索引获取段落副本
func (s *Store) Get(i int) (Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.segments) {
		return Segment{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return s.segments[i], nil
}

// All 返回全部段落的副本，按索引顺序
func (s *Store) All() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// SetTranslation 写入某个段落的译文
func (s *Store) SetTranslation(i int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return ErrFrozen
	}
	if i < 0 || i >= len(s.segments) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	if s.segments[i].HasTranslation {
		return fmt.Errorf("%w: %d", ErrAlreadyTranslated, i)
	}
	s.segments[i].TranslatedText = text
	s.segments[i].HasTranslation = true
	return nil
}

// Translated 返回译文以及是否已经写入
func (s *Store) Translated(i int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.segments) {
		return "", false
	}
	return s.segments[i].TranslatedText, s.segments[i].HasTranslation
}

// Freeze 冻结存储，之后只允许读取
func (s *Store) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Frozen 是否已冻结
func (s *Store) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// TranslatedCount 已写入译文的段落数
func (s *Store) TranslatedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, seg := range s.segments {
		if seg.HasTranslation {
			n++
		}
	}
	return n
}

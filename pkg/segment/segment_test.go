package segment

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "00:00"},
		{59.99, "00:59"},
		{59.9, "00:59"},
		{60, "01:00"},
		{65, "01:05"},
		{125.0, "02:05"},
		{3599.5, "59:59"},
		{6000, "100:00"},
		{-3, "00:00"},
		{math.NaN(), "00:00"},
		{math.Inf(-1), "00:00"},
		{math.Inf(1), "150119987579016:32"},
		{1e300, "150119987579016:32"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatTimestamp(tt.seconds), "seconds=%v", tt.seconds)
	}
}

func TestFromRaw(t *testing.T) {
	segs := FromRaw([]models.DataSegment{
		{StartTime: 0.0, Text: "a"},
		{StartTime: 65.0, Text: "b"},
		{StartTime: 70.0, Text: "  "},
	})

	require.Len(t, segs, 3)
	assert.Equal(t, 0, segs[0].Index)
	assert.Equal(t, 1, segs[1].Index)
	assert.Equal(t, "00:00", segs[0].Timestamp())
	assert.Equal(t, "01:05", segs[1].Timestamp())
	// 空白文本保留原样，占据自己的位置
	assert.Equal(t, "  ", segs[2].OriginalText)

	empty := FromRaw(nil)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStoreSetTranslationOnce(t *testing.T) {
	store := NewStore(FromRaw([]models.DataSegment{{Text: "a"}, {Text: "b"}}))

	_, ok := store.Translated(0)
	assert.False(t, ok)

	require.NoError(t, store.SetTranslation(0, "A"))
	text, ok := store.Translated(0)
	assert.True(t, ok)
	assert.Equal(t, "A", text)

	assert.ErrorIs(t, store.SetTranslation(0, "again"), ErrAlreadyTranslated)
	assert.ErrorIs(t, store.SetTranslation(5, "x"), ErrIndexOutOfRange)
	assert.ErrorIs(t, store.SetTranslation(-1, "x"), ErrIndexOutOfRange)

	// 空译文也算写入
	require.NoError(t, store.SetTranslation(1, ""))
	assert.Equal(t, 2, store.TranslatedCount())

	store.Freeze()
	assert.True(t, store.Frozen())
	assert.ErrorIs(t, store.SetTranslation(1, "late"), ErrFrozen)

	seg, err := store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "a", seg.OriginalText)
	assert.Equal(t, "A", seg.TranslatedText)

	_, err = store.Get(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestStoreAllReturnsCopy(t *testing.T) {
	store := NewStore(FromRaw([]models.DataSegment{{Text: "a"}}))
	all := store.All()
	all[0].OriginalText = "changed"

	seg, err := store.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "a", seg.OriginalText)
}

func TestStoreConcurrentWrites(t *testing.T) {
	raw := make([]models.DataSegment, 100)
	for i := range raw {
		raw[i] = models.DataSegment{Text: "line", StartTime: float64(i)}
	}
	store := NewStore(FromRaw(raw))

	var wg sync.WaitGroup
	for i := 0; i < store.Len(); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.SetTranslation(i, FormatTimestamp(float64(i))))
		}(i)
	}
	wg.Wait()

	for i, seg := range store.All() {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, FormatTimestamp(float64(i)), seg.TranslatedText)
	}
}

func TestSegmentIsSilent(t *testing.T) {
	assert.True(t, Segment{TranslatedText: " \n "}.IsSilent())
	assert.False(t, Segment{TranslatedText: "x"}.IsSilent())
}

package translate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTranslator 模拟翻译服务
type MockTranslator struct {
	mock.Mock
}

func (m *MockTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	args := m.Called(ctx, text, source, target)
	return args.String(0), args.Error(1)
}

// fixedDetector 对所有文本返回同一个结果
type fixedDetector struct {
	lang string
	err  error
}

func (d fixedDetector) Detect(string) (string, error) { return d.lang, d.err }

// upperTranslator 把文本转成大写，遇到 fail 关键字时失败
type upperTranslator struct {
	mu    sync.Mutex
	calls []string
}

func (u *upperTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	u.mu.Lock()
	u.calls = append(u.calls, source+">"+target+":"+text)
	u.mu.Unlock()
	if strings.Contains(text, "fail") {
		return "", errors.New("service unavailable")
	}
	return strings.ToUpper(text), nil
}

func TestTranslateEmptyInput(t *testing.T) {
	tr := &upperTranslator{}
	lt := NewLineTranslator(tr, fixedDetector{lang: "fr"}, "en")
	ctx := context.Background()

	assert.Equal(t, "", lt.Translate(ctx, "", "ur"))
	assert.Equal(t, "", lt.Translate(ctx, "   \n  \n", "ur"))
	assert.Empty(t, tr.calls)
}

func TestTranslatePassthroughWhenSameLanguage(t *testing.T) {
	mt := new(MockTranslator)
	lt := NewLineTranslator(mt, fixedDetector{lang: "en"}, "en")

	assert.Equal(t, "hello\nworld", lt.Translate(context.Background(), "hello\nworld", "en"))
	mt.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTranslateFallsBackOnDetectionFailure(t *testing.T) {
	mt := new(MockTranslator)
	mt.On("Translate", mock.Anything, "bonjour", "de", "ur").Return("سلام", nil).Once()

	lt := NewLineTranslator(mt, fixedDetector{err: ErrUndetectable}, "de")
	out, results := lt.TranslateDetailed(context.Background(), "bonjour", "ur")

	assert.Equal(t, "سلام", out)
	require.Len(t, results, 1)
	assert.True(t, results[0].FellBack)
	assert.Equal(t, "de", results[0].Language)
	mt.AssertExpectations(t)
}

func TestTranslateFallbackEqualsTarget(t *testing.T) {
	mt := new(MockTranslator)
	lt := NewLineTranslator(mt, fixedDetector{err: errors.New("too short")}, "en")

	assert.Equal(t, "ok", lt.Translate(context.Background(), "ok", "en"))
	mt.AssertNotCalled(t, "Translate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTranslateIsolatesLineFailure(t *testing.T) {
	tr := &upperTranslator{}
	lt := NewLineTranslator(tr, fixedDetector{lang: "fr"}, "en")

	out, results := lt.TranslateDetailed(context.Background(), "one\nplease fail\nthree", "ur")
	lines := strings.Split(out, "\n")

	require.Len(t, lines, 3)
	assert.Equal(t, "ONE", lines[0])
	assert.Equal(t, "[翻译失败: service unavailable]", lines[1])
	assert.Equal(t, "THREE", lines[2])
	assert.Equal(t, 1, CountFailures(results))
	assert.Equal(t, []string{"fr>ur:one", "fr>ur:please fail", "fr>ur:three"}, tr.calls)
}

func TestTranslateSkipsBlankLinesAndJoins(t *testing.T) {
	tr := &upperTranslator{}
	lt := NewLineTranslator(tr, fixedDetector{lang: "fr"}, "en")

	out := lt.Translate(context.Background(), "\r\na\r\n\r\n  \nb\rc\n", "ur")
	assert.Equal(t, "A\nB\nC", out)
}

func TestTranslateNilDetectorUsesFallback(t *testing.T) {
	tr := &upperTranslator{}
	lt := NewLineTranslator(tr, nil, "")

	assert.Equal(t, "X", lt.Translate(context.Background(), "x", "ur"))
	assert.Equal(t, []string{"en>ur:x"}, tr.calls)
}

func TestSameLanguage(t *testing.T) {
	assert.True(t, SameLanguage("en", "EN"))
	assert.True(t, SameLanguage("zh", "zh-CN"))
	assert.True(t, SameLanguage("pt_BR", "pt"))
	assert.False(t, SameLanguage("en", "ur"))
	assert.False(t, SameLanguage("", ""))
}

func TestWhatlangDetector(t *testing.T) {
	d := NewWhatlangDetector()

	lang, err := d.Detect("This is a fairly long English sentence that should be easy to recognise.")
	require.NoError(t, err)
	assert.Equal(t, "en", lang)

	_, err = d.Detect("hi")
	assert.ErrorIs(t, err, ErrUndetectable)

	_, err = d.Detect("12345 !!! 678")
	assert.ErrorIs(t, err, ErrUndetectable)
}

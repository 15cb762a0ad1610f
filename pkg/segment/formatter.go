package segment

import (
	"fmt"
	"math"

	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
)

// 可格式化的最大秒数，超过（包括+Inf）按此值处理
const maxTimestampSeconds = 1 << 53

// FormatTimestamp 将秒数格式化为 MM:SS，分和秒都是截断而不是四舍五入
// 59.99 -> "00:59"，125 -> "02:05"。负数和NaN按0处理。
func FormatTimestamp(seconds float64) string {
	switch {
	case seconds < 0 || math.IsNaN(seconds):
		seconds = 0
	case seconds > maxTimestampSeconds:
		seconds = maxTimestampSeconds
	}
	minutes := int64(math.Floor(seconds / 60))
	secs := int64(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// FromRaw 将识别结果转换为段落列表，索引即输入中的位置，文本保持原样
func FromRaw(raw []models.DataSegment) []Segment {
	segments := make([]Segment, 0, len(raw))
	for i, r := range raw {
		segments = append(segments, Segment{
			Index:        i,
			StartSeconds: r.StartTime,
			EndSeconds:   r.EndTime,
			OriginalText: r.Text,
		})
	}
	return segments
}

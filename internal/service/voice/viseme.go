package voice

import (
	"time"

	"github.com/zhouzirui/z-tutor/backend/internal/model/avatar"
)

var mouthShapes = []string{"aa", "ih", "ou", "ee", "oh"}

const silence = "sil"

// EstimateDuration 按码率估算音频时长：字节数 × 8 / 码率。
func EstimateDuration(size, bitrateKbps int) time.Duration {
	if size <= 0 || bitrateKbps <= 0 {
		return 0
	}
	bits := int64(size) * 8
	return time.Duration(bits * int64(time.Millisecond) / int64(bitrateKbps))
}

// Timeline cuts duration into fixed windows rotating over the mouth shapes and
// closes with a silent window. It is a rough approximation, not phoneme
// alignment.
func Timeline(duration, window time.Duration) []avatar.Viseme {
	if duration <= 0 || window <= 0 {
		return nil
	}
	n := int((duration + window - 1) / window)
	out := make([]avatar.Viseme, 0, n)
	for i := range n {
		start := time.Duration(i) * window
		length := min(window, duration-start)
		v := avatar.Viseme{
			Symbol:   mouthShapes[i%len(mouthShapes)],
			Time:     float64(start) / float64(time.Millisecond),
			Duration: float64(length) / float64(time.Millisecond),
			Weight:   0.6 + 0.1*float64(i%3),
		}
		if i == n-1 {
			v.Symbol, v.Weight = silence, 0
		}
		out = append(out, v)
	}
	return out
}

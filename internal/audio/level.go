package audio

import (
	"encoding/binary"
	"math"
)

// Level bounds in dBFS. Silence and empty chunks report MinLevel.
const (
	MinLevel float32 = -60
	MaxLevel float32 = 0
)

// Level reports the RMS loudness of a little-endian s16 chunk in dBFS,
// clamped to [MinLevel, MaxLevel]. A trailing odd byte is ignored.
func Level(chunk []byte) float32 {
	n := len(chunk) / 2
	if n == 0 {
		return MinLevel
	}

	var sum float64
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / 32768
		sum += sample * sample
	}
	rms := math.Sqrt(sum / float64(n))
	if rms == 0 {
		return MinLevel
	}

	db := float32(20 * math.Log10(rms))
	return max(MinLevel, min(MaxLevel, db))
}

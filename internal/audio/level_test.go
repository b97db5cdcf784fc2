package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func pcm(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestLevelSilenceAndEmpty(t *testing.T) {
	require.Equal(t, MinLevel, Level(nil))
	require.Equal(t, MinLevel, Level([]byte{1}))
	require.Equal(t, MinLevel, Level(pcm(0, 0, 0, 0)))
}

func TestLevelFullScaleIsNearZero(t *testing.T) {
	require.InDelta(t, 0, Level(pcm(32767, -32768, 32767, -32768)), 0.01)
}

func TestLevelHalfScale(t *testing.T) {
	require.InDelta(t, -6.02, Level(pcm(16384, -16384)), 0.05)
}

func TestLevelClampsQuietInput(t *testing.T) {
	require.Equal(t, MinLevel, Level(pcm(1, -1)))
}

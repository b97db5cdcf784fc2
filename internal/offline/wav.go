package offline

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

const pcmFormat = 1

// Audio is mono PCM normalized to [-1, 1).
type Audio struct {
	Samples    []float32
	SampleRate int
}

// ReadWAV decodes a 16-bit PCM RIFF/WAVE file, averaging all channels into
// one.
func ReadWAV(path string) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Audio{}, errors.New("not a RIFF/WAVE file")
	}
	if dec.WavAudioFormat != pcmFormat {
		return Audio{}, fmt.Errorf("unsupported WAV format %d: only PCM is supported", dec.WavAudioFormat)
	}
	if dec.BitDepth != 16 {
		return Audio{}, fmt.Errorf("unsupported bit depth %d: only 16-bit PCM is supported", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Audio{}, fmt.Errorf("read PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range frames {
		sum := 0
		for ch := range channels {
			sum += buf.Data[i*channels+ch]
		}
		samples[i] = float32(sum) / float32(channels) / 32768
	}

	return Audio{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

// Package wavfile reads and writes RIFF/WAV files for the capture pipeline:
// replaying a recording as an [audio.Source], persisting utterances for
// debugging, and decoding WAV payloads returned by synthesis backends.
package wavfile

import (
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/iva/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a PCM WAV stream.
var ErrInvalidWAV = errors.New("wavfile: not a valid PCM WAV stream")

// Decode reads a whole WAV stream and returns its samples as mono 16-bit
// PCM together with the stream's sample rate. Multi-channel input is
// averaged down to mono; 8, 24 and 32-bit input is rescaled to 16 bits.
func Decode(r io.ReadSeeker) ([]int16, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wavfile: read pcm: %w", err)
	}

	depth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		depth = buf.SourceBitDepth
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = to16(v, depth)
	}

	channels := int(dec.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	return audio.Downmix(samples, channels), int(dec.SampleRate), nil
}

// Encode writes samples as a mono 16-bit PCM WAV stream.
func Encode(w io.WriteSeeker, samples []int16, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavfile: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavfile: finalise: %w", err)
	}
	return nil
}

func to16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

package wavfile

import (
	"errors"
	"io"
)

// EncodeBytes returns samples as an in-memory mono 16-bit WAV file, ready
// for an upload body.
func EncodeBytes(samples []int16, sampleRate int) ([]byte, error) {
	var b seekBuffer
	if err := Encode(&b, samples, sampleRate); err != nil {
		return nil, err
	}
	return b.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker. The go-audio encoder seeks
// back to patch chunk sizes once the payload length is known.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("wavfile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("wavfile: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

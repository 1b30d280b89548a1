package wavfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"slices"
	"testing"
)

func TestSeekBuffer(t *testing.T) {
	t.Parallel()
	var b seekBuffer
	_, _ = b.Write([]byte("hello world"))
	if _, err := b.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	_, _ = b.Write([]byte("J"))
	if _, err := b.Seek(0, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	_, _ = b.Write([]byte("!"))
	if got := string(b.buf); got != "Jello world!" {
		t.Errorf("buffer = %q", got)
	}
	if _, err := b.Seek(-1, io.SeekStart); err == nil {
		t.Error("negative seek accepted")
	}
}

func TestEncodeBytes(t *testing.T) {
	t.Parallel()
	in := []int16{1, 2, 3, -4}
	wav, err := EncodeBytes(in, 16000)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad header %q", wav[:12])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d", got)
	}

	out, rate, err := Decode(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 16000 || !slices.Equal(out, in) {
		t.Errorf("round trip = %v @ %d, want %v @ 16000", out, rate, in)
	}
}

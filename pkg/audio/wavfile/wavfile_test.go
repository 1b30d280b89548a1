package wavfile_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/iva/pkg/audio"
	"github.com/MrWong99/iva/pkg/audio/wavfile"
)

func writeWAV(t *testing.T, samples []int16, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := wavfile.Encode(f, samples, rate); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 32767, -32768, 500, -500}
	path := writeWAV(t, samples, 16000)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	got, rate, err := wavfile.Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	if !slices.Equal(got, samples) {
		t.Errorf("samples = %v, want %v", got, samples)
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("definitely not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, _, err := wavfile.Decode(f); err == nil {
		t.Fatal("expected error for invalid input")
	}
}

func TestSource_ReplaysFramesInOrder(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 10)
	for i := range samples {
		samples[i] = int16(i + 1)
	}
	path := writeWAV(t, samples, 16000)

	var got []audio.Frame
	src := wavfile.NewSource(path, wavfile.WithFrameSize(4))
	if err := src.Run(context.Background(), func(f audio.Frame) { got = append(got, f) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("frames = %d, want 3", len(got))
	}
	for i, f := range got {
		if f.Seq != uint64(i) || f.Len() != 4 {
			t.Errorf("frame %d: seq %d len %d", i, f.Seq, f.Len())
		}
	}
	if !slices.Equal(got[2].Samples, []int16{9, 10, 0, 0}) {
		t.Errorf("last frame = %v, want padded [9 10 0 0]", got[2].Samples)
	}
}

func TestSource_MissingFile(t *testing.T) {
	t.Parallel()

	src := wavfile.NewSource(filepath.Join(t.TempDir(), "missing.wav"))
	if err := src.Run(context.Background(), func(audio.Frame) {}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRecorder_Save(t *testing.T) {
	t.Parallel()

	rec, err := wavfile.NewRecorder(filepath.Join(t.TempDir(), "nested", "dir"))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	frames := []audio.Frame{
		{Samples: []int16{1, 2}, SampleRate: 16000},
		{Samples: []int16{3, 4}, SampleRate: 16000},
	}
	path, err := rec.Save("cycle-1", frames)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "cycle-1.wav" {
		t.Errorf("path = %q", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, _, err := wavfile.Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !slices.Equal(got, []int16{1, 2, 3, 4}) {
		t.Errorf("saved samples = %v", got)
	}
}

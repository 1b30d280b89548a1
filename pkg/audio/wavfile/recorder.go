package wavfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrWong99/iva/pkg/audio"
)

// Recorder persists utterances as WAV files for offline inspection.
type Recorder struct {
	dir string
}

// NewRecorder creates dir if needed and returns a Recorder writing into it.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wavfile: create record dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// Save writes frames to <dir>/<name>.wav and returns the file path. An empty
// utterance produces a valid, empty WAV file.
func (r *Recorder) Save(name string, frames []audio.Frame) (string, error) {
	rate := 16000
	if len(frames) > 0 && frames[0].SampleRate > 0 {
		rate = frames[0].SampleRate
	}
	path := filepath.Join(r.dir, name+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("wavfile: create %q: %w", path, err)
	}
	if err := Encode(f, audio.Concat(frames), rate); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("wavfile: close %q: %w", path, err)
	}
	return path, nil
}

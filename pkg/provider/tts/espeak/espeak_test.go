package espeak

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/iva/pkg/audio/wavfile"
	"github.com/MrWong99/iva/pkg/provider/tts"
)

// fakeBinary writes a shell script that records its arguments and prints a
// prepared WAV file, standing in for espeak-ng.
func fakeBinary(t *testing.T, samples []int16, rate int) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	dir := t.TempDir()

	wavPath := filepath.Join(dir, "out.wav")
	f, err := os.Create(wavPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := wavfile.Encode(f, samples, rate); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	argsFile = filepath.Join(dir, "args")
	bin = filepath.Join(dir, "espeak-ng")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argsFile + "\ncat " + wavPath + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, argsFile
}

func TestSynthesize_DecodesStdout(t *testing.T) {
	t.Parallel()
	bin, argsFile := fakeBinary(t, []int16{10, 20, 30, 40}, 22050)

	p := New(WithBinary(bin), WithWordsPerMinute(150))
	sp, err := p.Synthesize(context.Background(), "Agora são 10:42", tts.VoiceProfile{SpeedFactor: 1.2})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if sp.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", sp.SampleRate)
	}
	if !slices.Equal(sp.Samples, []int16{10, 20, 30, 40}) {
		t.Errorf("Samples = %v", sp.Samples)
	}

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	want := []string{"-v", "pt-br", "-s", "180", "--stdout", "--", "Agora são 10:42"}
	if !slices.Equal(args, want) {
		t.Errorf("args = %q, want %q", args, want)
	}
}

func TestSynthesize_EmptyTextDoesNotRun(t *testing.T) {
	t.Parallel()
	p := New(WithBinary("/nonexistent/espeak"))
	sp, err := p.Synthesize(context.Background(), "  ", tts.VoiceProfile{})
	if err != nil || !sp.Empty() {
		t.Fatalf("Synthesize = (%v, %v), want empty speech and nil error", sp, err)
	}
}

func TestSynthesize_MissingBinary(t *testing.T) {
	t.Parallel()
	p := New(WithBinary("iva-espeak-does-not-exist"))
	_, err := p.Synthesize(context.Background(), "olá", tts.VoiceProfile{})
	if !errors.Is(err, ErrBinaryNotFound) {
		t.Fatalf("err = %v, want ErrBinaryNotFound", err)
	}
}

func TestSynthesize_Timeout(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "slow")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexec sleep 5\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	p := New(WithBinary(bin), WithTimeout(50*time.Millisecond))
	_, err := p.Synthesize(context.Background(), "olá", tts.VoiceProfile{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestArgs_VoiceOverride(t *testing.T) {
	t.Parallel()
	p := New(WithVoice("en"))
	got := p.args("hi", tts.VoiceProfile{ID: "pt-pt"})
	if got[1] != "pt-pt" {
		t.Errorf("voice arg = %q, want pt-pt", got[1])
	}
	got = p.args("hi", tts.VoiceProfile{})
	if got[1] != "en" || got[3] != "160" {
		t.Errorf("args = %q", got)
	}
}

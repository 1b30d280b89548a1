package whisper

import "github.com/MrWong99/iva/pkg/audio"

// modelSampleRate is the only input rate whisper models accept.
const modelSampleRate = 16000

// utteranceSamples flattens an utterance into whisper's input format: mono
// float32 at 16 kHz, normalised to [-1, 1). Frames captured at another rate
// are resampled first.
func utteranceSamples(utterance []audio.Frame) []float32 {
	pcm := utterancePCM(utterance)
	if len(pcm) == 0 {
		return nil
	}
	return audio.ToFloat32(pcm)
}

// utterancePCM flattens an utterance into 16-bit PCM at 16 kHz.
func utterancePCM(utterance []audio.Frame) []int16 {
	pcm := audio.Concat(utterance)
	if len(pcm) == 0 {
		return nil
	}
	rate := utterance[0].SampleRate
	if rate <= 0 {
		rate = modelSampleRate
	}
	return audio.Resample(pcm, rate, modelSampleRate)
}

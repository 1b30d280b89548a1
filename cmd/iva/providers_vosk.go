//go:build vosk

package main

import (
	"github.com/MrWong99/iva/internal/config"
	"github.com/MrWong99/iva/pkg/provider/stt"
	"github.com/MrWong99/iva/pkg/provider/stt/vosk"
)

func init() {
	optionalProviders = append(optionalProviders, registerVosk)
}

// registerVosk adds the offline Vosk engine for both the recognizer and the
// wake slot. A model directory loaded once is shared by both.
func registerVosk(reg *config.Registry, env *providerEnv) {
	models := make(map[string]*vosk.Model)
	load := func(entry config.ProviderEntry) (*vosk.Model, error) {
		path := entry.Model
		if path == "" {
			path = optString(entry.Options, "model_path")
		}
		if m, ok := models[path]; ok {
			return m, nil
		}
		m, err := vosk.LoadModel(path)
		if err != nil {
			return nil, err
		}
		models[path] = m
		env.onClose(m.Close)
		return m, nil
	}

	reg.RegisterTranscriber("vosk", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		m, err := load(entry)
		if err != nil {
			return nil, err
		}
		return vosk.NewTranscriber(m, env.cfg.Audio.SampleRate), nil
	})

	reg.RegisterStream("vosk", func(entry config.ProviderEntry) (stt.StreamRecognizer, error) {
		m, err := load(entry)
		if err != nil {
			return nil, err
		}
		var opts []vosk.Option
		if grammar := optStrings(entry.Options, "grammar"); len(grammar) > 0 {
			opts = append(opts, vosk.WithGrammar(grammar...))
		}
		return vosk.NewRecognizer(m, env.cfg.Audio.SampleRate, opts...)
	})
}

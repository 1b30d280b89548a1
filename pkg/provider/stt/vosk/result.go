// Package vosk provides a Vosk (Kaldi) backed streaming recogniser and batch
// transcriber.
//
// The recogniser code needs the libvosk shared library and is compiled only
// with the "vosk" build tag. The JSON helpers in this file are always built.
//
// Vosk is cheap enough to run on every captured frame, which makes it a good
// wake-word spotter. Passing a grammar restricts decoding to a handful of
// phrases and makes spotting both faster and more reliable:
//
//	rec, err := vosk.NewRecognizer(model, 16000, vosk.WithGrammar("iva"))
package vosk

import (
	"encoding/json"
	"fmt"
	"strings"
)

// unknownToken is Vosk's grammar catch-all for out-of-vocabulary speech.
const unknownToken = "[unk]"

type finalResult struct {
	Text string `json:"text"`
}

type partialResult struct {
	Partial string `json:"partial"`
}

// parseFinal extracts the text of a Result/FinalResult JSON document. The
// catch-all token is removed.
func parseFinal(raw string) (string, error) {
	var r finalResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", fmt.Errorf("vosk: parse result: %w", err)
	}
	return cleanText(r.Text), nil
}

// parsePartial extracts the text of a PartialResult JSON document.
func parsePartial(raw string) (string, error) {
	var r partialResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", fmt.Errorf("vosk: parse partial result: %w", err)
	}
	return cleanText(r.Partial), nil
}

// grammarJSON encodes phrases as a Vosk grammar, always including the
// catch-all token so unrelated speech does not get forced onto a phrase.
func grammarJSON(phrases []string) (string, error) {
	list := make([]string, 0, len(phrases)+1)
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			list = append(list, p)
		}
	}
	list = append(list, unknownToken)
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("vosk: encode grammar: %w", err)
	}
	return string(b), nil
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, unknownToken, "")
	return strings.Join(strings.Fields(s), " ")
}

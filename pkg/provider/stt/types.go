package stt

// ResultKind classifies a [StreamRecognizer] result.
type ResultKind int

const (
	// ResultNone means the recogniser has nothing new to report.
	ResultNone ResultKind = iota

	// ResultPartial is an unstable hypothesis that may still be revised.
	ResultPartial

	// ResultFinal is a settled transcript for a completed utterance.
	ResultFinal
)

// String returns the lower-case name of the kind.
func (k ResultKind) String() string {
	switch k {
	case ResultNone:
		return "none"
	case ResultPartial:
		return "partial"
	case ResultFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Result is one output of [StreamRecognizer.Feed].
type Result struct {
	Kind ResultKind
	Text string
}

// IsFinal reports whether r is an authoritative transcript.
func (r Result) IsFinal() bool { return r.Kind == ResultFinal }

// Partial returns a partial result with the given text.
func Partial(text string) Result { return Result{Kind: ResultPartial, Text: text} }

// Final returns a final result with the given text.
func Final(text string) Result { return Result{Kind: ResultFinal, Text: text} }

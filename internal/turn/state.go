// Package turn implements the assistant's turn-taking state machine.
//
// A [Machine] consumes capture frames from an [audio.Queue] and cycles
// through three states:
//
//	IDLE ──start──▶ RECORDING ──stop──▶ PROCESSING ──▶ IDLE
//
// In IDLE it waits according to its [StartPolicy]: it starts at once, on the
// first speech frame, on a wake token reported by a streaming recogniser,
// or on an external [Machine.Trigger]. In RECORDING a [Recorder]
// accumulates the utterance until its [Mode] says stop. In PROCESSING the
// utterance is transcribed, the text dispatched to a reply, and the reply
// spoken. Every cycle ends in IDLE whatever happened inside it; failures
// are logged and counted but never leave the cycle.
package turn

import "fmt"

// State is the machine's current phase.
type State int32

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Mode selects how a recording ends.
type Mode int

const (
	// SilenceTimeout stops after a run of consecutive non-speech frames.
	SilenceTimeout Mode = iota
	// FixedDuration stops after a fixed number of frames, ignoring VAD.
	FixedDuration
)

func (m Mode) String() string {
	switch m {
	case SilenceTimeout:
		return "silence_timeout"
	case FixedDuration:
		return "fixed_duration"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// StartPolicy selects what moves the machine out of IDLE.
type StartPolicy int

const (
	// StartWakeWord feeds IDLE frames to a streaming recogniser and starts
	// when a result contains the wake token.
	StartWakeWord StartPolicy = iota
	// StartSpeech starts on the first speech frame, which becomes the first
	// frame of the utterance.
	StartSpeech
	// StartImmediate starts a new recording as soon as the previous cycle
	// ends.
	StartImmediate
	// StartTrigger waits for [Machine.Trigger] and discards frames meanwhile.
	StartTrigger
)

func (p StartPolicy) String() string {
	switch p {
	case StartWakeWord:
		return "wake_word"
	case StartSpeech:
		return "speech"
	case StartImmediate:
		return "immediate"
	case StartTrigger:
		return "trigger"
	default:
		return fmt.Sprintf("StartPolicy(%d)", int(p))
	}
}

// StopReason records why a recording ended.
type StopReason int

const (
	StopNone StopReason = iota
	// StopFixed means the fixed frame count was reached.
	StopFixed
	// StopSilence means the silence run reached the configured maximum.
	StopSilence
	// StopMaxRecording means the recording safety cap was reached.
	StopMaxRecording
	// StopSourceClosed means capture ended mid-recording.
	StopSourceClosed
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopFixed:
		return "fixed"
	case StopSilence:
		return "silence"
	case StopMaxRecording:
		return "max_recording"
	case StopSourceClosed:
		return "source_closed"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

package protocol

import "time"

// Utterance is one contiguous voiced segment emitted by the segmenter,
// bounded by silence, a forced cutoff, or a manual stop.
type Utterance struct {
	SessionID  string    `json:"session_id"`
	TurnID     string    `json:"turn_id"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	PCM        []byte    `json:"pcm"`
	Frames     int       `json:"frames"`
	Reason     string    `json:"reason"` // silence, max-duration, stop
	CapturedAt time.Time `json:"captured_at"`
}

// Transcript is accepted STT output broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	TurnID     string    `json:"turn_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TextInput is a typed user message submitted directly, bypassing audio.
type TextInput struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Token is one incremental fragment of a streamed assistant response.
type Token struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Content   string `json:"content"`
	Done      bool   `json:"done"`
}

// Reply is the finalized assistant output for a turn, either the filtered
// chat response or a command confirmation.
type Reply struct {
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id"`
	Text      string    `json:"text"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// SpeakRequest asks the speech service to voice one complete sentence.
type SpeakRequest struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Text      string `json:"text"`
	Voice     string `json:"voice,omitempty"`
}

// SpeakingState announces playback start/stop so capture can be muted
// while the assistant is talking.
type SpeakingState struct {
	Speaking  bool      `json:"speaking"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectUtterance       = "audio.utterance"
	SubjectTranscriptFinal = "stt.text.final"
	SubjectTextInput       = "input.text"
	SubjectTurnToken       = "turn.token"
	SubjectTurnReply       = "turn.reply"
	SubjectSpeak           = "tts.say"
	SubjectSpeakingState   = "tts.state"
	SubjectSpeakStop       = "control.speak.stop"
	SubjectListenStart     = "control.listen.start"
	SubjectListenStop      = "control.listen.stop"
	SubjectMemoryClear     = "control.memory.clear"
)

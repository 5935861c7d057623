package vad

import (
	"github.com/lunalabs/luna-core/internal/config"
)

// Reason records why an utterance boundary was declared.
type Reason string

const (
	ReasonSilence     Reason = "silence"
	ReasonMaxDuration Reason = "max-duration"
	ReasonStop        Reason = "stop"
)

// Segment is a frozen utterance handed to transcription. It is never
// mutated after emission.
type Segment struct {
	PCM    []int16
	Frames int
	Reason Reason
}

// Params are frame-count thresholds derived once from millisecond config.
type Params struct {
	SilenceThresholdFrames int
	MinVoicedFrames        int
	MaxVoicedFrames        int
	MinVolume              float64
}

// ParamsFromConfig resolves millisecond durations into frame counts for the
// given frame duration. Done once at startup, never per frame.
func ParamsFromConfig(cfg config.VADConfig, frameDurationMS int) Params {
	return Params{
		SilenceThresholdFrames: cfg.SilenceThresholdMS / frameDurationMS,
		MinVoicedFrames:        cfg.MinVoicedMS / frameDurationMS,
		MaxVoicedFrames:        cfg.MaxVoicedMS / frameDurationMS,
		MinVolume:              cfg.MinVolume,
	}
}

// Segmenter assembles contiguous voiced audio into utterances. It is a
// two-state machine: idle until a speech frame arrives, then speaking until
// the silence run exceeds the threshold. Trailing silence inside an
// utterance is kept; runs shorter than MinVoicedFrames are discarded as
// noise. Not safe for concurrent use; a single worker owns it.
type Segmenter struct {
	params   Params
	detector Detector
	emit     func(Segment)

	speaking    bool
	buffer      []int16
	frameCount  int
	silentCount int
}

func NewSegmenter(params Params, detector Detector, emit func(Segment)) *Segmenter {
	return &Segmenter{params: params, detector: detector, emit: emit}
}

// Speaking reports whether the machine is inside an utterance.
func (s *Segmenter) Speaking() bool { return s.speaking }

// Process feeds one frame through the state machine. The volume floor is
// applied here, once: a frame below MinVolume is non-speech no matter what
// the detector says.
func (s *Segmenter) Process(frame Frame) {
	isSpeech := frame.RMS >= s.params.MinVolume && s.detector.IsSpeech(frame)

	if isSpeech {
		s.speaking = true
		s.appendFrame(frame)
		s.silentCount = 0
		if s.frameCount > s.params.MaxVoicedFrames {
			// Bound memory and latency on unusually long continuous
			// speech: emit now and keep listening.
			s.emitBuffer(ReasonMaxDuration)
			s.clearBuffer()
		}
		return
	}

	if !s.speaking {
		return
	}

	// Silence inside an utterance is still part of trailing speech.
	s.appendFrame(frame)
	s.silentCount++
	if s.silentCount > s.params.SilenceThresholdFrames {
		if s.frameCount >= s.params.MinVoicedFrames {
			s.emitBuffer(ReasonSilence)
		}
		s.reset()
	}
}

// Flush force-emits any buffered audio regardless of duration thresholds
// (the manual end-of-turn path) and returns the machine to idle.
func (s *Segmenter) Flush() {
	if s.frameCount > 0 {
		s.emitBuffer(ReasonStop)
	}
	s.reset()
}

func (s *Segmenter) appendFrame(frame Frame) {
	s.buffer = append(s.buffer, frame.PCM...)
	s.frameCount++
}

func (s *Segmenter) emitBuffer(reason Reason) {
	pcm := make([]int16, len(s.buffer))
	copy(pcm, s.buffer)
	s.emit(Segment{PCM: pcm, Frames: s.frameCount, Reason: reason})
}

func (s *Segmenter) clearBuffer() {
	s.buffer = s.buffer[:0]
	s.frameCount = 0
	s.silentCount = 0
}

func (s *Segmenter) reset() {
	s.clearBuffer()
	s.speaking = false
	s.detector.Reset()
}

package vad

import (
	"math"
	"time"
)

// Frame is one fixed-duration block of mono 16-bit PCM handed from the
// capture callback to the segmenter. Immutable after capture.
type Frame struct {
	Seq        uint64
	PCM        []int16
	RMS        float64
	CapturedAt time.Time
}

// Detector classifies a single frame as speech or non-speech. Implementations
// may keep internal state; Reset is called at every utterance boundary.
type Detector interface {
	IsSpeech(frame Frame) bool
	Reset()
}

// EnergyDetector is a pure-Go speech detector based on RMS energy with
// level hysteresis: speech starts above SpeechRMS and ends below SilenceRMS,
// so levels between the two do not flicker the decision.
type EnergyDetector struct {
	speechRMS  float64
	silenceRMS float64
	inSpeech   bool
}

func NewEnergyDetector(speechRMS, silenceRMS float64) *EnergyDetector {
	if silenceRMS > speechRMS {
		silenceRMS = speechRMS
	}
	return &EnergyDetector{speechRMS: speechRMS, silenceRMS: silenceRMS}
}

func (d *EnergyDetector) IsSpeech(frame Frame) bool {
	if d.inSpeech {
		if frame.RMS < d.silenceRMS {
			d.inSpeech = false
		}
	} else {
		if frame.RMS >= d.speechRMS {
			d.inSpeech = true
		}
	}
	return d.inSpeech
}

func (d *EnergyDetector) Reset() {
	d.inSpeech = false
}

// RMS computes the root-mean-square level of a PCM frame. Samples are
// widened before squaring to avoid int16 overflow.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

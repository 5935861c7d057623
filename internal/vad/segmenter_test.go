package vad

import "testing"

// passthroughDetector treats any frame above zero energy as speech, so the
// tests control the decision purely through frame RMS.
type passthroughDetector struct{ resets int }

func (d *passthroughDetector) IsSpeech(frame Frame) bool { return frame.RMS > 0 }
func (d *passthroughDetector) Reset()                    { d.resets++ }

func testParams() Params {
	return Params{
		SilenceThresholdFrames: 3,
		MinVoicedFrames:        6,
		MaxVoicedFrames:        20,
		MinVolume:              100,
	}
}

func speechFrame() Frame  { return Frame{PCM: []int16{5000, -5000}, RMS: 5000} }
func silenceFrame() Frame { return Frame{PCM: []int16{0, 0}, RMS: 0} }
func quietFrame() Frame   { return Frame{PCM: []int16{50, -50}, RMS: 50} }

func collect(emitted *[]Segment) func(Segment) {
	return func(seg Segment) { *emitted = append(*emitted, seg) }
}

func TestEmitAfterSilenceRun(t *testing.T) {
	var emitted []Segment
	seg := NewSegmenter(testParams(), &passthroughDetector{}, collect(&emitted))

	for i := 0; i < 6; i++ {
		seg.Process(speechFrame())
	}
	for i := 0; i < 4; i++ {
		seg.Process(silenceFrame())
	}

	if len(emitted) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(emitted))
	}
	if emitted[0].Reason != ReasonSilence {
		t.Fatalf("expected silence reason, got %s", emitted[0].Reason)
	}
	// 6 speech frames plus the trailing silence run.
	if emitted[0].Frames != 10 {
		t.Fatalf("expected 10 frames, got %d", emitted[0].Frames)
	}
	if seg.Speaking() {
		t.Fatal("expected segmenter back to idle")
	}
}

func TestShortBlipDiscarded(t *testing.T) {
	var emitted []Segment
	seg := NewSegmenter(testParams(), &passthroughDetector{}, collect(&emitted))

	seg.Process(speechFrame())
	for i := 0; i < 4; i++ {
		seg.Process(silenceFrame())
	}

	if len(emitted) != 0 {
		t.Fatalf("expected blip below minimum to be discarded, got %d utterances", len(emitted))
	}
}

func TestMaxDurationSplitsAndKeepsListening(t *testing.T) {
	var emitted []Segment
	seg := NewSegmenter(testParams(), &passthroughDetector{}, collect(&emitted))

	for i := 0; i < 30; i++ {
		seg.Process(speechFrame())
	}

	if len(emitted) != 1 {
		t.Fatalf("expected one forced emission, got %d", len(emitted))
	}
	if emitted[0].Reason != ReasonMaxDuration {
		t.Fatalf("expected max-duration reason, got %s", emitted[0].Reason)
	}
	if emitted[0].Frames != 21 {
		t.Fatalf("expected 21 frames in forced emission, got %d", emitted[0].Frames)
	}
	if !seg.Speaking() {
		t.Fatal("expected segmenter to stay in speaking state after forced emission")
	}

	// The continuation still ends normally on silence.
	for i := 0; i < 4; i++ {
		seg.Process(silenceFrame())
	}
	if len(emitted) != 2 {
		t.Fatalf("expected continuation utterance, got %d total", len(emitted))
	}
	if emitted[1].Reason != ReasonSilence {
		t.Fatalf("expected silence reason for continuation, got %s", emitted[1].Reason)
	}
}

func TestFlushForceEmitsBelowMinimum(t *testing.T) {
	var emitted []Segment
	detector := &passthroughDetector{}
	seg := NewSegmenter(testParams(), detector, collect(&emitted))

	seg.Process(speechFrame())
	seg.Process(speechFrame())
	seg.Flush()

	if len(emitted) != 1 {
		t.Fatalf("expected flush to emit, got %d utterances", len(emitted))
	}
	if emitted[0].Reason != ReasonStop {
		t.Fatalf("expected stop reason, got %s", emitted[0].Reason)
	}
	if emitted[0].Frames != 2 {
		t.Fatalf("expected 2 frames, got %d", emitted[0].Frames)
	}
	if detector.resets == 0 {
		t.Fatal("expected detector reset on flush")
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	var emitted []Segment
	seg := NewSegmenter(testParams(), &passthroughDetector{}, collect(&emitted))
	seg.Flush()
	if len(emitted) != 0 {
		t.Fatalf("expected no emission from empty flush, got %d", len(emitted))
	}
}

func TestVolumeFloorGatesSpeech(t *testing.T) {
	var emitted []Segment
	seg := NewSegmenter(testParams(), &passthroughDetector{}, collect(&emitted))

	// Above zero energy but below the floor: must never start an utterance.
	for i := 0; i < 10; i++ {
		seg.Process(quietFrame())
	}
	if seg.Speaking() {
		t.Fatal("expected quiet frames to stay below the volume floor")
	}
	if len(emitted) != 0 {
		t.Fatalf("expected no utterances, got %d", len(emitted))
	}
}

func TestEnergyDetectorHysteresis(t *testing.T) {
	d := NewEnergyDetector(500, 200)

	if d.IsSpeech(Frame{RMS: 300}) {
		t.Fatal("level between thresholds must not start speech")
	}
	if !d.IsSpeech(Frame{RMS: 600}) {
		t.Fatal("level above speech threshold must start speech")
	}
	if !d.IsSpeech(Frame{RMS: 300}) {
		t.Fatal("level between thresholds must hold speech once started")
	}
	if d.IsSpeech(Frame{RMS: 100}) {
		t.Fatal("level below silence threshold must end speech")
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("expected 0 for empty frame, got %f", got)
	}
	if got := RMS([]int16{1000, -1000, 1000, -1000}); got != 1000 {
		t.Fatalf("expected 1000, got %f", got)
	}
}

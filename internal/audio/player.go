package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// Player owns the output device. Playback of one buffer blocks the calling
// goroutine until the audio has finished or Stop clears the device; the
// serialization of speak requests happens above this layer.
type Player struct {
	mu       sync.Mutex
	initRate int
	current  *playback
}

type playback struct {
	done chan struct{}
	once sync.Once
}

func (p *playback) finish() {
	p.once.Do(func() { close(p.done) })
}

func NewPlayer() *Player {
	return &Player{}
}

// pcmStreamer adapts a mono int16 buffer to a beep streamer.
type pcmStreamer struct {
	samples []int16
	pos     int
}

func (s *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for n < len(out) && s.pos < len(s.samples) {
		v := float64(s.samples[s.pos]) / 32768.0
		out[n][0] = v
		out[n][1] = v
		n++
		s.pos++
	}
	return n, true
}

func (s *pcmStreamer) Err() error { return nil }

// Play blocks until the buffer has been played out, the context is
// cancelled, or Stop cleared the device.
func (p *Player) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := p.ensureSpeaker(sampleRate); err != nil {
		return err
	}

	pb := &playback{done: make(chan struct{})}
	p.mu.Lock()
	p.current = pb
	p.mu.Unlock()

	speaker.Play(beep.Seq(&pcmStreamer{samples: pcm}, beep.Callback(pb.finish)))

	select {
	case <-pb.done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		pb.finish()
		return ctx.Err()
	}
}

// Stop immediately silences the output device and unblocks any Play in
// flight. Synthesis computation upstream may still be running; only audio
// output ceases.
func (p *Player) Stop() {
	speaker.Clear()
	p.mu.Lock()
	pb := p.current
	p.mu.Unlock()
	if pb != nil {
		pb.finish()
	}
}

func (p *Player) ensureSpeaker(sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initRate == sampleRate {
		return nil
	}
	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	p.initRate = sampleRate
	return nil
}

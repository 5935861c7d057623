package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/lunalabs/luna-core/internal/config"
	"github.com/lunalabs/luna-core/internal/metrics"
	"github.com/lunalabs/luna-core/internal/vad"
)

// Capture reads fixed-duration mono frames from the default input device
// into a bounded queue. The read loop only computes frame energy and
// enqueues; when the queue is full the frame is dropped and counted, so
// capture never blocks on a slow consumer. One Capture serves one
// listening session.
type Capture struct {
	cfg     config.AudioConfig
	frames  chan vad.Frame
	logger  *slog.Logger
	metrics *metrics.Pipeline

	stream  *portaudio.Stream
	buf     []int16
	seq     uint64
	muted   *atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func NewCapture(cfg config.AudioConfig, muted *atomic.Bool, pipelineMetrics *metrics.Pipeline, logger *slog.Logger) *Capture {
	frameSize := cfg.SampleRate * cfg.FrameDurationMS / 1000
	return &Capture{
		cfg:     cfg,
		frames:  make(chan vad.Frame, cfg.QueueSize),
		logger:  logger.With(slog.String("component", "audio-capture")),
		metrics: pipelineMetrics,
		buf:     make([]int16, frameSize),
		muted:   muted,
		stopCh:  make(chan struct{}),
	}
}

// Frames is the bounded queue consumed by the segmenter worker. It is
// closed once capture has fully stopped.
func (c *Capture) Frames() <-chan vad.Frame {
	return c.frames
}

func (c *Capture) Start() error {
	stream, err := portaudio.OpenDefaultStream(c.cfg.Channels, 0, float64(c.cfg.SampleRate), len(c.buf), c.buf)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}
	c.stream = stream

	c.wg.Add(1)
	go c.readLoop()
	c.logger.Info("capture started",
		slog.Int("sample_rate", c.cfg.SampleRate),
		slog.Int("frame_ms", c.cfg.FrameDurationMS))
	return nil
}

func (c *Capture) readLoop() {
	defer c.wg.Done()
	defer close(c.frames)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			select {
			case <-c.stopCh:
			default:
				c.logger.Warn("input stream read failed", slog.String("error", err.Error()))
			}
			return
		}
		if c.muted != nil && c.muted.Load() {
			// The assistant is talking; don't listen to ourselves.
			continue
		}
		pcm := make([]int16, len(c.buf))
		copy(pcm, c.buf)
		frame := vad.Frame{
			Seq:        c.seq,
			PCM:        pcm,
			RMS:        vad.RMS(pcm),
			CapturedAt: time.Now(),
		}
		c.seq++
		select {
		case c.frames <- frame:
		default:
			c.metrics.FrameDropped(context.Background())
		}
	}
}

// Stop halts the device stream and closes the frame queue once the read
// loop has exited. Safe to call more than once.
func (c *Capture) Stop() {
	c.stopped.Do(func() {
		close(c.stopCh)
		if c.stream != nil {
			_ = c.stream.Abort()
			_ = c.stream.Close()
		}
		c.wg.Wait()
		c.logger.Info("capture stopped")
	})
}

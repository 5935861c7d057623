package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lunalabs/luna-core/internal/audio"
	"github.com/lunalabs/luna-core/internal/bus"
	"github.com/lunalabs/luna-core/internal/command"
	"github.com/lunalabs/luna-core/internal/config"
	"github.com/lunalabs/luna-core/internal/eventstore"
	"github.com/lunalabs/luna-core/internal/intent"
	"github.com/lunalabs/luna-core/internal/llm"
	"github.com/lunalabs/luna-core/internal/memory"
	"github.com/lunalabs/luna-core/internal/metrics"
	"github.com/lunalabs/luna-core/internal/natsserver"
	"github.com/lunalabs/luna-core/internal/protocol"
	"github.com/lunalabs/luna-core/internal/respond"
	"github.com/lunalabs/luna-core/internal/router"
	"github.com/lunalabs/luna-core/internal/stt"
	"github.com/lunalabs/luna-core/internal/tts"
)

// Runtime assembles the voice pipeline: embedded bus, capture, recognition,
// turn routing, and speech, plus the HTTP surface for health and typed input.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	busClient   *bus.Client
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()
	r.busClient = busClient

	pipe, err := metrics.NewPipeline()
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	conv := memory.Open(r.cfg.Memory.Path, r.cfg.Memory.MaxMessages, r.logger)

	generator, err := buildGenerator(r.cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to build language model backend: %w", err)
	}
	if r.cfg.LLM.WarmUp {
		llm.WarmUp(ctx, generator, r.logger)
	}

	registry, err := command.LoadRegistry(r.cfg.Shortcuts.Path)
	if err != nil {
		return fmt.Errorf("failed to load shortcuts: %w", err)
	}
	executor := command.NewExecutor(registry, r.cfg.Security.Denylist, r.logger)

	classifier := intent.NewClassifier(generator,
		time.Duration(r.cfg.LLM.RouteTimeout)*time.Millisecond,
		registry.Keys(), r.logger)
	streamer := respond.NewStreamer(generator, conv,
		r.cfg.LLM.MaxTokens, r.cfg.LLM.Temperature,
		time.Duration(r.cfg.LLM.StreamTimeout)*time.Millisecond, r.logger)

	routerSvc := router.NewService(ctx, busClient, classifier, streamer, executor, conv, store, pipe, r.logger)
	if err := routerSvc.Start(); err != nil {
		return fmt.Errorf("failed to start router: %w", err)
	}
	defer routerSvc.Close()

	recognizer, err := buildRecognizer(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("failed to build recognizer: %w", err)
	}
	sttSvc := stt.NewService(ctx, r.cfg.STT, r.cfg.Audio, busClient, recognizer, pipe, r.logger)
	if err := sttSvc.Start(); err != nil {
		return fmt.Errorf("failed to start stt service: %w", err)
	}
	defer sttSvc.Close()

	synth, err := buildSynthesizer(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("failed to build synthesizer: %w", err)
	}
	speaker := tts.NewSpeaker(synth, audio.NewPlayer(), r.cfg.TTS.Voice, r.logger)
	ttsSvc := tts.NewService(ctx, r.cfg.TTS, busClient, speaker, pipe, r.logger)
	if err := ttsSvc.Start(); err != nil {
		return fmt.Errorf("failed to start tts service: %w", err)
	}
	defer ttsSvc.Close()

	audioSvc := audio.NewService(ctx, r.cfg.Audio, r.cfg.VAD, busClient, pipe, r.logger)
	if err := audioSvc.Start(); err != nil {
		return fmt.Errorf("failed to start audio service: %w", err)
	}
	defer audioSvc.Close()
	if r.cfg.Audio.Enabled {
		// A capture device that cannot open at startup is fatal; the
		// pipeline must not run deaf. Listening can still be toggled
		// over the bus afterwards.
		if err := audioSvc.StartListening(); err != nil {
			return fmt.Errorf("failed to open capture device: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/input", r.handleTextInput(audioSvc.SessionID()))

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	var metricsServer *http.Server
	if metricHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricHandler)
		metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("session_id", audioSvc.SessionID()))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func buildGenerator(cfg config.LLMConfig) (llm.Generator, error) {
	switch cfg.Mode {
	case "ollama":
		return llm.NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return llm.NewExecGenerator(cfg.Command)
	case "mock", "":
		return llm.NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}

func buildRecognizer(cfg config.STTConfig) (stt.Recognizer, error) {
	switch cfg.Mode {
	case "exec":
		return stt.NewExecRecognizer(cfg)
	case "mock", "":
		return stt.NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}

func buildSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, error) {
	switch cfg.Mode {
	case "exec":
		return tts.NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	case "mock", "":
		return tts.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// handleTextInput accepts a typed user message and feeds it into the turn
// pipeline, bypassing the microphone.
func (r *Runtime) handleTextInput(sessionID string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Text == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		input := protocol.TextInput{SessionID: sessionID, Text: body.Text, Timestamp: time.Now().UTC()}
		data, err := json.Marshal(input)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if err := r.busClient.Conn().Publish(protocol.SubjectTextInput, data); err != nil {
			r.logger.Warn("failed to publish text input", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

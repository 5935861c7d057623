package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Audio       AudioConfig      `yaml:"audio"`
	VAD         VADConfig        `yaml:"vad"`
	STT         STTConfig        `yaml:"stt"`
	LLM         LLMConfig        `yaml:"llm"`
	TTS         TTSConfig        `yaml:"tts"`
	Memory      MemoryConfig     `yaml:"memory"`
	Shortcuts   ShortcutsConfig  `yaml:"shortcuts"`
	Security    SecurityConfig   `yaml:"security"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type AudioConfig struct {
	Enabled         bool `yaml:"enabled"`
	SampleRate      int  `yaml:"sample_rate"`
	Channels        int  `yaml:"channels"`
	FrameDurationMS int  `yaml:"frame_duration_ms"`
	QueueSize       int  `yaml:"queue_size"`
}

type VADConfig struct {
	SilenceThresholdMS int     `yaml:"silence_threshold_ms"`
	MinVoicedMS        int     `yaml:"min_voiced_ms"`
	MaxVoicedMS        int     `yaml:"max_voiced_ms"`
	MinVolume          float64 `yaml:"min_volume"`
	SpeechRMS          float64 `yaml:"speech_rms"`
	SilenceRMS         float64 `yaml:"silence_rms"`
}

type STTConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Mode           string   `yaml:"mode"` // mock, exec
	Command        string   `yaml:"command"`
	ModelPath      string   `yaml:"model_path"`
	Language       string   `yaml:"language"`
	MinChars       int      `yaml:"min_chars"`
	Hallucinations []string `yaml:"hallucinations"`
}

type LLMConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Mode          string  `yaml:"mode"` // mock, ollama, exec
	Endpoint      string  `yaml:"endpoint"`
	Command       string  `yaml:"command"`
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	StreamTimeout int     `yaml:"stream_timeout_ms"`
	RouteTimeout  int     `yaml:"route_timeout_ms"`
	WarmUp        bool    `yaml:"warm_up"`
}

type TTSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type MemoryConfig struct {
	Path        string `yaml:"path"`
	MaxMessages int    `yaml:"max_messages"`
}

type ShortcutsConfig struct {
	Path string `yaml:"path"`
}

type SecurityConfig struct {
	Denylist []string `yaml:"denylist"`
}

func Default() Config {
	return Config{
		RuntimeName: "luna-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/luna-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Audio: AudioConfig{
			Enabled:         false,
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMS: 30,
			QueueSize:       64,
		},
		VAD: VADConfig{
			SilenceThresholdMS: 800,
			MinVoicedMS:        1000,
			MaxVoicedMS:        10000,
			MinVolume:          300,
			SpeechRMS:          500,
			SilenceRMS:         280,
		},
		STT: STTConfig{
			Enabled:  false,
			Mode:     "mock",
			Language: "id",
			MinChars: 2,
			Hallucinations: []string{
				"terima kasih sudah menonton",
				"selamat menonton",
				"hai guys",
				"halo guys",
				"like dan subscribe",
				"thank you for watching",
				"jangan lupa like",
				"jangan lupa subscribe",
			},
		},
		LLM: LLMConfig{
			Enabled:       false,
			Mode:          "mock",
			Endpoint:      "http://localhost:11434",
			Model:         "gemma3:4b-it-q4_K_M",
			MaxTokens:     256,
			Temperature:   0.7,
			StreamTimeout: 180000,
			RouteTimeout:  120000,
			WarmUp:        true,
		},
		TTS: TTSConfig{
			Enabled:    false,
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
		},
		Memory: MemoryConfig{
			Path:        "./data/memory.json",
			MaxMessages: 10,
		},
		Shortcuts: ShortcutsConfig{
			Path: "",
		},
		Security: SecurityConfig{
			Denylist: []string{"rm -rf", "format", "shutdown", ":(){:|:&};"},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LUNA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LUNA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LUNA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LUNA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LUNA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LUNA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LUNA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LUNA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LUNA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LUNA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LUNA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LUNA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LUNA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LUNA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LUNA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LUNA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LUNA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LUNA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LUNA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LUNA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LUNA_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Audio.Enabled, "LUNA_AUDIO_ENABLED")
	overrideInt(&cfg.Audio.SampleRate, "LUNA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "LUNA_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.FrameDurationMS, "LUNA_AUDIO_FRAME_DURATION_MS")
	overrideInt(&cfg.Audio.QueueSize, "LUNA_AUDIO_QUEUE_SIZE")
	overrideInt(&cfg.VAD.SilenceThresholdMS, "LUNA_VAD_SILENCE_THRESHOLD_MS")
	overrideInt(&cfg.VAD.MinVoicedMS, "LUNA_VAD_MIN_VOICED_MS")
	overrideInt(&cfg.VAD.MaxVoicedMS, "LUNA_VAD_MAX_VOICED_MS")
	overrideFloat(&cfg.VAD.MinVolume, "LUNA_VAD_MIN_VOLUME")
	overrideFloat(&cfg.VAD.SpeechRMS, "LUNA_VAD_SPEECH_RMS")
	overrideFloat(&cfg.VAD.SilenceRMS, "LUNA_VAD_SILENCE_RMS")
	overrideBool(&cfg.STT.Enabled, "LUNA_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "LUNA_STT_MODE")
	overrideString(&cfg.STT.Command, "LUNA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LUNA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "LUNA_STT_LANGUAGE")
	overrideInt(&cfg.STT.MinChars, "LUNA_STT_MIN_CHARS")
	overrideBool(&cfg.LLM.Enabled, "LUNA_LLM_ENABLED")
	overrideString(&cfg.LLM.Mode, "LUNA_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "LUNA_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "LUNA_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "LUNA_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "LUNA_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "LUNA_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.StreamTimeout, "LUNA_LLM_STREAM_TIMEOUT_MS")
	overrideInt(&cfg.LLM.RouteTimeout, "LUNA_LLM_ROUTE_TIMEOUT_MS")
	overrideBool(&cfg.LLM.WarmUp, "LUNA_LLM_WARM_UP")
	overrideBool(&cfg.TTS.Enabled, "LUNA_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "LUNA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LUNA_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "LUNA_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "LUNA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "LUNA_TTS_CHANNELS")
	overrideString(&cfg.Memory.Path, "LUNA_MEMORY_PATH")
	overrideInt(&cfg.Memory.MaxMessages, "LUNA_MEMORY_MAX_MESSAGES")
	overrideString(&cfg.Shortcuts.Path, "LUNA_SHORTCUTS_PATH")
	overrideStringSlice(&cfg.Security.Denylist, "LUNA_SECURITY_DENYLIST")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	// Frame counts are derived from these at service construction even when
	// capture is disabled, so the timing fields are checked unconditionally.
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels != 1 {
		return errors.New("audio.channels must be 1 (mono capture)")
	}
	if cfg.Audio.FrameDurationMS <= 0 {
		return errors.New("audio.frame_duration_ms must be positive")
	}
	if cfg.Audio.QueueSize <= 0 {
		return errors.New("audio.queue_size must be positive")
	}
	if cfg.VAD.SilenceThresholdMS <= 0 {
		return errors.New("vad.silence_threshold_ms must be positive")
	}
	if cfg.VAD.MinVoicedMS <= 0 {
		return errors.New("vad.min_voiced_ms must be positive")
	}
	if cfg.VAD.MaxVoicedMS <= cfg.VAD.MinVoicedMS {
		return errors.New("vad.max_voiced_ms must be greater than vad.min_voiced_ms")
	}
	if cfg.VAD.MinVolume < 0 {
		return errors.New("vad.min_volume must be >= 0")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec":
		default:
			return errors.New("stt.mode must be one of mock|exec")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.MinChars < 0 {
			return errors.New("stt.min_chars must be >= 0")
		}
	}
	if cfg.LLM.Enabled {
		switch cfg.LLM.Mode {
		case "mock", "ollama", "exec":
		default:
			return errors.New("llm.mode must be one of mock|ollama|exec")
		}
		if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint must be set when mode=ollama")
		}
		if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
			return errors.New("llm.command must be set when mode=exec")
		}
		if cfg.LLM.MaxTokens < 0 {
			return errors.New("llm.max_tokens must be >= 0")
		}
	}
	if cfg.TTS.Enabled {
		switch cfg.TTS.Mode {
		case "mock", "exec":
		default:
			return errors.New("tts.mode must be one of mock|exec")
		}
		if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
		if cfg.TTS.SampleRate <= 0 {
			return errors.New("tts.sample_rate must be positive")
		}
		if cfg.TTS.Channels <= 0 {
			return errors.New("tts.channels must be positive")
		}
	}
	if cfg.Memory.Path == "" {
		return errors.New("memory.path must not be empty")
	}
	if cfg.Memory.MaxMessages <= 0 {
		return errors.New("memory.max_messages must be positive")
	}
	return nil
}

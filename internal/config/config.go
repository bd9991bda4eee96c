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
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// ServerConfig describes the streaming listener (raw TCP + WebSocket upgrade).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HTTPConfig describes the health/metrics endpoint.
type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	ASR         ASRConfig       `yaml:"asr"`
	VAD         VADConfig       `yaml:"vad"`
	Engine      EngineConfig    `yaml:"engine"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// ASRConfig selects and configures the recognizer backend.
type ASRConfig struct {
	Mode       string  `yaml:"mode"` // whispercpp, exec, openai, mock
	Model      string  `yaml:"model"`
	ModelPath  string  `yaml:"model_path"`
	Language   string  `yaml:"language"` // ISO code or "auto"
	Command    string  `yaml:"command"`  // mode=exec only
	WarmupFile string  `yaml:"warmup_file"`
	Threads    int     `yaml:"threads"`
	APIKey     string  `yaml:"api_key"` // mode=openai only
	Temperature float64 `yaml:"temperature"`
}

type VADConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MinSilenceMS int     `yaml:"min_silence_ms"`
	Threshold    float64 `yaml:"threshold"`
	FrameMS      int     `yaml:"frame_ms"`
}

// EngineConfig tunes the online reconciliation loop.
type EngineConfig struct {
	MinChunkSec    float64 `yaml:"min_chunk_sec"`
	MaxWaitSec     float64 `yaml:"max_wait_sec"`
	BufferTrimming string  `yaml:"buffer_trimming"` // segment or sentence
	HardCapSec     float64 `yaml:"hard_cap_sec"`
	PromptChars    int     `yaml:"prompt_chars"`
}

func Default() Config {
	return Config{
		ServiceName: "loqa-stt",
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 43007,
		},
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		ASR: ASRConfig{
			Mode:     "mock",
			Model:    "base.en",
			Language: "auto",
		},
		VAD: VADConfig{
			Enabled:      true,
			MinSilenceMS: 500,
			Threshold:    0.01,
			FrameMS:      30,
		},
		Engine: EngineConfig{
			MinChunkSec:    1.0,
			MaxWaitSec:     3.0,
			BufferTrimming: "segment",
			HardCapSec:     30.0,
			PromptChars:    200,
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
	overrideString(&cfg.ServiceName, "LOQA_STT_SERVICE_NAME")
	overrideString(&cfg.Environment, "LOQA_STT_ENVIRONMENT")
	overrideString(&cfg.Server.Host, "LOQA_STT_SERVER_HOST")
	overrideInt(&cfg.Server.Port, "LOQA_STT_SERVER_PORT")
	overrideString(&cfg.HTTP.Bind, "LOQA_STT_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_STT_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_STT_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_STT_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_STT_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "LOQA_STT_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_STT_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_STT_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_STT_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_STT_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_STT_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_STT_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_STT_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_STT_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.ASR.Mode, "LOQA_STT_ASR_MODE")
	overrideString(&cfg.ASR.Model, "LOQA_STT_ASR_MODEL")
	overrideString(&cfg.ASR.ModelPath, "LOQA_STT_ASR_MODEL_PATH")
	overrideString(&cfg.ASR.Language, "LOQA_STT_ASR_LANGUAGE")
	overrideString(&cfg.ASR.Command, "LOQA_STT_ASR_COMMAND")
	overrideString(&cfg.ASR.WarmupFile, "LOQA_STT_ASR_WARMUP_FILE")
	overrideInt(&cfg.ASR.Threads, "LOQA_STT_ASR_THREADS")
	overrideString(&cfg.ASR.APIKey, "LOQA_STT_ASR_API_KEY")
	overrideFloat(&cfg.ASR.Temperature, "LOQA_STT_ASR_TEMPERATURE")
	overrideBool(&cfg.VAD.Enabled, "LOQA_STT_VAD_ENABLED")
	overrideInt(&cfg.VAD.MinSilenceMS, "LOQA_STT_VAD_MIN_SILENCE_MS")
	overrideFloat(&cfg.VAD.Threshold, "LOQA_STT_VAD_THRESHOLD")
	overrideInt(&cfg.VAD.FrameMS, "LOQA_STT_VAD_FRAME_MS")
	overrideFloat(&cfg.Engine.MinChunkSec, "LOQA_STT_ENGINE_MIN_CHUNK_SEC")
	overrideFloat(&cfg.Engine.MaxWaitSec, "LOQA_STT_ENGINE_MAX_WAIT_SEC")
	overrideString(&cfg.Engine.BufferTrimming, "LOQA_STT_ENGINE_BUFFER_TRIMMING")
	overrideFloat(&cfg.Engine.HardCapSec, "LOQA_STT_ENGINE_HARD_CAP_SEC")
	overrideInt(&cfg.Engine.PromptChars, "LOQA_STT_ENGINE_PROMPT_CHARS")
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
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.ASR.Mode {
	case "whispercpp", "exec", "openai", "mock":
	default:
		return errors.New("asr.mode must be one of whispercpp|exec|openai|mock")
	}
	if cfg.ASR.Mode == "exec" && cfg.ASR.Command == "" {
		return errors.New("asr.command must be set when mode=exec")
	}
	if cfg.ASR.Mode == "whispercpp" && cfg.ASR.ModelPath == "" && cfg.ASR.Model == "" {
		return errors.New("asr.model or asr.model_path must be set when mode=whispercpp")
	}
	if cfg.VAD.Enabled {
		if cfg.VAD.MinSilenceMS <= 0 {
			return errors.New("vad.min_silence_ms must be positive")
		}
		if cfg.VAD.FrameMS <= 0 {
			return errors.New("vad.frame_ms must be positive")
		}
	}
	if cfg.Engine.MinChunkSec <= 0 {
		return errors.New("engine.min_chunk_sec must be positive")
	}
	if cfg.Engine.MaxWaitSec < cfg.Engine.MinChunkSec {
		return errors.New("engine.max_wait_sec must be >= engine.min_chunk_sec")
	}
	switch cfg.Engine.BufferTrimming {
	case "segment", "sentence":
	default:
		return errors.New("engine.buffer_trimming must be one of segment|sentence")
	}
	if cfg.Engine.HardCapSec < 10 {
		return errors.New("engine.hard_cap_sec must be at least 10")
	}
	if cfg.Engine.PromptChars <= 0 {
		return errors.New("engine.prompt_chars must be positive")
	}
	return nil
}

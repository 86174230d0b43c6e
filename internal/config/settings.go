// Package config loads the gateway's Settings from defaults, an optional
// packaged-application options file, and environment variables, in that
// order of increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Settings is the immutable configuration for one gateway process.
type Settings struct {
	Host string
	Port int

	GeminiAPIKey     string
	Model            string
	GeminiAPIVersion string

	HAURL   string
	HAToken string

	AllowedDomains    []string
	EntityAllowlist   []string
	EntityBlocklist   []string
	MaxContextEntities int

	InputSampleRateHz      int
	OutputSampleRateHz     int
	GeminiOutputSampleRateHz int

	SilenceTailMs  int
	AudioChunkSize int

	LogLevel      string
	LogLevelParsed slog.Level

	JournalPath string
}

func defaults() Settings {
	return Settings{
		Host:                     "0.0.0.0",
		Port:                     10700,
		Model:                    "gemini-2.5-flash-native-audio-preview-12-2025",
		GeminiAPIVersion:         "v1beta",
		HAURL:                    "http://homeassistant.local:8123",
		AllowedDomains:           []string{"light", "switch", "cover", "climate", "lock", "scene", "script"},
		MaxContextEntities:       200,
		InputSampleRateHz:        16000,
		OutputSampleRateHz:       16000,
		GeminiOutputSampleRateHz: 24000,
		SilenceTailMs:            600,
		AudioChunkSize:           1024,
		LogLevel:                 "info",
		LogLevelParsed:           slog.LevelInfo,
	}
}

// options mirrors the subset of keys a packaged-application options file
// (e.g. a Home Assistant add-on's /data/options.json-equivalent) may carry.
// Unknown keys are ignored.
type options struct {
	GeminiAPIKey       *string  `yaml:"gemini_api_key" json:"gemini_api_key"`
	HAToken            *string  `yaml:"ha_token" json:"ha_token"`
	HAURL              *string  `yaml:"ha_url" json:"ha_url"`
	Model              *string  `yaml:"model" json:"model"`
	LogLevel           *string  `yaml:"log_level" json:"log_level"`
	Port               *int     `yaml:"port" json:"port"`
	AllowedDomains     []string `yaml:"allowed_domains" json:"allowed_domains"`
	EntityAllowlist    []string `yaml:"entity_allowlist" json:"entity_allowlist"`
	EntityBlocklist    []string `yaml:"entity_blocklist" json:"entity_blocklist"`
	MaxContextEntities *int     `yaml:"max_context_entities" json:"max_context_entities"`
	SilenceTailMs      *int     `yaml:"silence_tail_ms" json:"silence_tail_ms"`
	AudioChunkSize     *int     `yaml:"audio_chunk_size" json:"audio_chunk_size"`
	JournalPath        *string  `yaml:"journal_path" json:"journal_path"`
}

func loadOptionsFile(path string) options {
	if path == "" {
		return options{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return options{}
	}

	var opts options
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &opts); err != nil {
			return options{}
		}
		return opts
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return options{}
	}
	return opts
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Load builds Settings from defaults, the packaged-application options
// file at configFile (if non-empty and readable, YAML or JSON by
// extension), and environment variables (highest precedence).
func Load(configFile string) (Settings, error) {
	s := defaults()
	opts := loadOptionsFile(configFile)

	s.GeminiAPIKey = firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"), derefStr(opts.GeminiAPIKey))
	s.HAToken = firstNonEmpty(os.Getenv("HA_TOKEN"), derefStr(opts.HAToken))
	s.HAURL = firstNonEmpty(os.Getenv("HA_URL"), derefStr(opts.HAURL), s.HAURL)
	s.Model = firstNonEmpty(os.Getenv("MODEL"), derefStr(opts.Model), s.Model)
	s.GeminiAPIVersion = firstNonEmpty(os.Getenv("GEMINI_API_VERSION"), s.GeminiAPIVersion)
	s.Host = firstNonEmpty(os.Getenv("HOST"), s.Host)
	s.LogLevel = strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), derefStr(opts.LogLevel), s.LogLevel))

	if opts.Port != nil {
		s.Port = *opts.Port
	}
	s.Port = envInt("PORT", s.Port)

	if csv := splitCSV(os.Getenv("ALLOWED_DOMAINS")); len(csv) > 0 {
		s.AllowedDomains = csv
	} else if len(opts.AllowedDomains) > 0 {
		s.AllowedDomains = opts.AllowedDomains
	}

	if csv := splitCSV(os.Getenv("ENTITY_ALLOWLIST")); len(csv) > 0 {
		s.EntityAllowlist = csv
	} else {
		s.EntityAllowlist = opts.EntityAllowlist
	}

	if csv := splitCSV(os.Getenv("ENTITY_BLOCKLIST")); len(csv) > 0 {
		s.EntityBlocklist = csv
	} else {
		s.EntityBlocklist = opts.EntityBlocklist
	}

	if opts.MaxContextEntities != nil {
		s.MaxContextEntities = *opts.MaxContextEntities
	}
	s.MaxContextEntities = envInt("MAX_CONTEXT_ENTITIES", s.MaxContextEntities)

	if opts.SilenceTailMs != nil {
		s.SilenceTailMs = *opts.SilenceTailMs
	}
	s.SilenceTailMs = envInt("SILENCE_TAIL_MS", s.SilenceTailMs)

	if opts.AudioChunkSize != nil {
		s.AudioChunkSize = *opts.AudioChunkSize
	}
	s.AudioChunkSize = envInt("AUDIO_CHUNK_SIZE", s.AudioChunkSize)

	s.InputSampleRateHz = envInt("INPUT_SAMPLE_RATE_HZ", s.InputSampleRateHz)
	s.OutputSampleRateHz = envInt("OUTPUT_SAMPLE_RATE_HZ", s.OutputSampleRateHz)

	s.JournalPath = firstNonEmpty(os.Getenv("JOURNAL_PATH"), derefStr(opts.JournalPath))

	level, err := ParseLogLevel(s.LogLevel)
	if err != nil {
		return s, fmt.Errorf("config: %w", err)
	}
	s.LogLevelParsed = level

	return s, nil
}

// ParseLogLevel maps the config's log_level strings onto slog levels. An
// unrecognized level falls back to info rather than erroring, matching the
// original "trace maps to debug, everything unknown maps to info" leniency.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error", "critical":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, nil
	}
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	s, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Port != 10700 {
		t.Fatalf("expected default port 10700, got %d", s.Port)
	}
	if s.Model != "gemini-2.5-flash-native-audio-preview-12-2025" {
		t.Fatalf("unexpected default model %q", s.Model)
	}
	if len(s.AllowedDomains) != 7 {
		t.Fatalf("expected 7 default allowed domains, got %d", len(s.AllowedDomains))
	}
}

func TestLoadEnvOverridesOptionsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "options.yaml")
	if err := os.WriteFile(path, []byte("port: 9999\ngemini_api_key: from-file\n"), 0o600); err != nil {
		t.Fatalf("write options file: %v", err)
	}

	t.Setenv("PORT", "12345")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Port != 12345 {
		t.Fatalf("expected env PORT to win, got %d", s.Port)
	}
	if s.GeminiAPIKey != "from-file" {
		t.Fatalf("expected gemini_api_key from options file, got %q", s.GeminiAPIKey)
	}
}

func TestLoadGoogleAPIKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	s, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.GeminiAPIKey != "google-key" {
		t.Fatalf("expected GOOGLE_API_KEY fallback, got %q", s.GeminiAPIKey)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"trace":   "DEBUG",
		"info":    "INFO",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for in, want := range cases {
		lvl, err := ParseLogLevel(in)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", in, err)
		}
		if lvl.String() != want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", in, lvl, want)
		}
	}
}

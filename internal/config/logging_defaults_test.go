package config

import (
	"testing"
)

// TestLoggingDefaults verifies that application logging is disabled by
// default and that access logging has sane defaults.
func TestLoggingDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Logging.AppLevel != "" {
		t.Errorf("expected AppLevel to be empty (disabled), got %q", cfg.Logging.AppLevel)
	}

	// AccessToStdout's effective default depends on process-mode detection
	// at startup, so only the compiled-in pre-detection default is checked
	// here.
	if cfg.Logging.AccessLogfile != "" {
		t.Errorf("expected AccessLogfile to be empty by default, got %q", cfg.Logging.AccessLogfile)
	}

	if cfg.Logging.AccessFormat != "human" {
		t.Errorf("expected AccessFormat to be 'human', got %q", cfg.Logging.AccessFormat)
	}
}

package log

import (
	"bytes"
	stdlog "log"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":      LevelDebug,
		"DEBUG":      LevelDebug,
		" info ":     LevelInfo,
		"Warn":       LevelWarn,
		"ERROR":      LevelError,
		"fatal":      LevelFatal,
		"":           LevelInfo,
		"everything": LevelInfo,
	}

	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: LevelWarn, logger: stdlog.New(&buf, "", 0)}

	l.Debug("quiet %d", 1)
	l.Info("quiet %d", 2)
	l.Warn("loud %d", 3)
	l.Error("loud %d", 4)

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("below-threshold lines written: %q", out)
	}
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "loud 3") {
		t.Fatalf("warn line missing: %q", out)
	}
	if !strings.Contains(out, "[ERROR]") || !strings.Contains(out, "loud 4") {
		t.Fatalf("error line missing: %q", out)
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{level: LevelError, logger: stdlog.New(&buf, "", 0)}

	l.Info("dropped")
	l.SetLevel(LevelDebug)
	l.Info("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("pre-SetLevel line written: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("post-SetLevel line missing: %q", out)
	}
}

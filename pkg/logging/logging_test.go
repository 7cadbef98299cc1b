package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestInitAndLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)
	defer Init(LevelWarn, nil)

	Debug("Test", "should be filtered")
	Info("Test", "hello %s", "world")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Error("debug message was not filtered at info level")
	}
	if !strings.Contains(out, "hello world") {
		t.Errorf("info message missing from output: %q", out)
	}
	if !strings.Contains(out, "subsystem=Test") {
		t.Errorf("subsystem attribute missing from output: %q", out)
	}
}

func TestErrorIncludesErrAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)
	defer Init(LevelWarn, nil)

	Error("Test", errTest, "operation failed")

	if !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("error attribute missing from output: %q", buf.String())
	}
}

type testErr struct{}

func (testErr) Error() string { return "boom" }

var errTest = testErr{}

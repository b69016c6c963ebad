package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func resetLogger() {
	defaultLogger = nil
	once = *new(sync.Once)
}

func TestLevelFiltering(t *testing.T) {
	resetLogger()
	Init("warn")

	var buf bytes.Buffer
	SetOutput(&buf)
	SetColorEnable(false)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Error("debug message should be filtered at warn level")
	}
	if strings.Contains(out, "info message") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "warn message") {
		t.Error("warn message not found in output")
	}
	if !strings.Contains(out, "error message") {
		t.Error("error message not found in output")
	}
}

func TestSetLevelLowersThreshold(t *testing.T) {
	resetLogger()
	Init("error")

	var buf bytes.Buffer
	SetOutput(&buf)
	SetColorEnable(false)

	Info("before")
	SetLevel("debug")
	Info("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("info message should be filtered at error level")
	}
	if !strings.Contains(out, "after") {
		t.Error("info message not found after lowering level")
	}
}

func TestColorDisabled(t *testing.T) {
	resetLogger()
	Init("info")

	var buf bytes.Buffer
	SetOutput(&buf)
	SetColorEnable(false)

	Info("plain message")

	if strings.Contains(buf.String(), "\033[") {
		t.Error("output contains ANSI color codes with color disabled")
	}
	if !strings.Contains(buf.String(), "[INFO] plain message") {
		t.Errorf("unexpected output format: %q", buf.String())
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if parseLevel("nonsense") != INFO {
		t.Error("unknown level should default to INFO")
	}
	if parseLevel("WARNING") != WARN {
		t.Error("WARNING should map to WARN")
	}
}

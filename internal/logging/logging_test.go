package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLoggerTo(Config{Level: "debug"}, &buf), "ledger")
	logger.Debug().Uint64("period", 7).Msg("checkpoint")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("日志应为 JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "ledger" || entry["message"] != "checkpoint" {
		t.Fatalf("日志字段不正确: %v", entry)
	}
}

func TestNewLoggerToLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Level: "warn"}, &buf)
	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("warn 级别不应输出 info: %s", buf.String())
	}

	buf.Reset()
	fallback := NewLoggerTo(Config{Level: "bogus"}, &buf)
	fallback.Info().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatal("非法级别应回退到 info")
	}
}

func TestNewLoggerToConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Format: "console"}, &buf)
	logger.Info().Msg("pretty")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "pretty") {
		t.Fatalf("console 格式输出不正确: %s", buf.String())
	}
}

package applog

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUninitializedIsNoop(t *testing.T) {
	Close()
	Info("noop", "k", "v")
	Error("noop", errors.New("boom"))
}

func TestStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")
	defer Close()

	Info("timer.armed", "tab", 5, "polling", true)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %v (%q)", err, buf.String())
	}
	if line["event"] != "timer.armed" {
		t.Errorf("event = %v", line["event"])
	}
	if line["tab"] != "5" || line["polling"] != "true" {
		t.Errorf("fields = %v", line)
	}
	if line["level"] != "info" {
		t.Errorf("level = %v", line["level"])
	}
}

func TestErrorAndTruncation(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")
	defer Close()

	Error("ws.send", errors.New("broken pipe"), "payload", strings.Repeat("x", 500))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["error"] != "broken pipe" {
		t.Errorf("error = %v", line["error"])
	}
	if p := line["payload"].(string); !strings.HasSuffix(p, truncSuffix) || len(p) > maxValueLen+len(truncSuffix) {
		t.Errorf("payload not truncated: %d bytes", len(p))
	}
}

func TestDebugFilteredAtInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "info")
	defer Close()

	Debug("router.event", "type", "updated")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %q", buf.String())
	}
}

func TestInitWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := Init(dir, "debug"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info("server.start", "addr", "127.0.0.1:19191")
	Close()

	data, err := os.ReadFile(filepath.Join(dir, "tabtimer.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "server.start") {
		t.Errorf("log file missing event: %q", data)
	}
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "debug", Format: "json"}).
		With(String("cycle", "ingest"))

	log.Info(context.Background(), "cycle finished", Int("stored", 3), Err(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "cycle finished" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "cycle finished")
	}
	if entry["cycle"] != "ingest" {
		t.Fatalf("cycle = %v, want ingest", entry["cycle"])
	}
	if entry["stored"] != float64(3) {
		t.Fatalf("stored = %v, want 3", entry["stored"])
	}
	if entry["error"] != "boom" {
		t.Fatalf("error = %v, want boom", entry["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "warn"})
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	log.Warn(context.Background(), "shown")
	if buf.Len() == 0 {
		t.Fatal("warn should be written at warn level")
	}
}

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewFallsBackToInfo(t *testing.T) {
	if got := New("chatty").GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", got)
	}
	if got := New("debug").GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", got)
	}
}

func TestLogErrorWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&buf)

	LogError(Module(logger, "service"), "Settle", "persist shipment", map[string]int64{"shipment_id": 3}, errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["module"] != "service" || entry["funcName"] != "Settle" || entry["msg"] != "boom" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
	if _, ok := entry["data"]; !ok {
		t.Fatalf("expected data field in %v", entry)
	}
}

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_CreatesDirAndLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := NewLogger(Options{Dir: dir})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("log dir missing: %v", err)
	}

	log.Info("test_message_from_logging_test")
	_ = log.Sync()

	b, err := os.ReadFile(filepath.Join(dir, "portwatch.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"test_message_from_logging_test"`) {
		t.Fatalf("json line missing: %s", b)
	}
}

func TestNewLogger_LevelFiltersAndConsoleTee(t *testing.T) {
	var console bytes.Buffer
	log, err := NewLogger(Options{Dir: t.TempDir(), Level: "warn", Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("quiet")
	log.Warn("endpoint_down")
	_ = log.Sync()

	out := console.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "endpoint_down") {
		t.Fatalf("unexpected console output: %q", out)
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger(Options{Dir: t.TempDir(), Level: "loud"}); err == nil {
		t.Fatal("want error for unknown level")
	}
}

package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogDisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetEnabled(false)

	Log("hidden %d", 1)
	LogTiming("hidden", time.Millisecond)
	if buf.Len() != 0 {
		t.Errorf("expected no output while disabled, got %q", buf.String())
	}
}

func TestLogEnabled(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetEnabled(true)
	defer SetEnabled(false)

	Log("loaded %d rows", 12)
	LogTiming("tree build", 1500*time.Microsecond)

	out := buf.String()
	if !strings.Contains(out, "[bimnav] ") || !strings.Contains(out, "loaded 12 rows") {
		t.Errorf("expected prefixed message, got %q", out)
	}
	if !strings.Contains(out, "tree build took 1.5ms") {
		t.Errorf("expected timing line, got %q", out)
	}
}

func TestOpenFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	SetEnabled(false)
	c, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile disabled: %v", err)
	}
	c.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("expected no log dir while disabled, stat err=%v", err)
	}

	SetEnabled(true)
	defer SetEnabled(false)
	c, err = OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	Log("into the file")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "into the file") {
		t.Errorf("expected message in debug.log, got %q", data)
	}
}

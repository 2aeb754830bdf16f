// Package debug provides conditional debug logging for bimnav.
//
// Debug logging is enabled by setting the BIMNAV_DEBUG environment variable:
//
//	BIMNAV_DEBUG=1 bimnav --source http://localhost:8000
//
// Batch commands log to stderr. The dashboard owns the terminal, so an
// interactive session logs to debug.log in the state directory instead.
// When disabled (default), all debug functions are no-ops.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const prefix = "[bimnav] "

var (
	mu      sync.Mutex
	enabled bool
	logger  = log.New(os.Stderr, prefix, log.Ltime|log.Lmicroseconds)
)

func init() {
	enabled = os.Getenv("BIMNAV_DEBUG") != ""
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	mu.Lock()
	enabled = e
	mu.Unlock()
}

// SetOutput redirects debug output.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// OpenFile appends debug output to dir/debug.log until the returned closer
// is closed, after which output goes back to stderr. It does nothing when
// debugging is off.
func OpenFile(dir string) (io.Closer, error) {
	if !Enabled() {
		return io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create debug log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	SetOutput(f)
	return closerFunc(func() error {
		SetOutput(os.Stderr)
		return f.Close()
	}), nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

// Log writes a debug message if debug logging is enabled.
func Log(format string, args ...any) {
	if !Enabled() {
		return
	}
	logger.Printf(format, args...)
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if !Enabled() {
		return
	}
	logger.Printf("%s took %v", name, d.Round(time.Microsecond))
}

// Package log configures apex/log for the tally binary.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// EnvLevel names the environment variable read when no level is given.
const EnvLevel = "TALLY_LOG"

// DefaultLevel is used when neither a level nor EnvLevel is set.
const DefaultLevel = "error"

// InitLogger installs a Handler on stderr. An empty level falls back to
// EnvLevel, then DefaultLevel.
func InitLogger(level string) error {
	return InitLoggerTo(os.Stderr, level)
}

// InitLoggerTo is InitLogger with an explicit writer.
func InitLoggerTo(w io.Writer, level string) error {
	if level == "" {
		level = os.Getenv(EnvLevel)
	}
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", level, err)
	}
	log.SetHandler(NewHandler(w))
	log.SetLevel(lvl)
	return nil
}

// Handler writes one compact line per entry: time, level initial, message
// and the entry fields sorted by name.
type Handler struct {
	mu sync.Mutex
	w  io.Writer
}

// NewHandler returns a Handler writing to w.
func NewHandler(w io.Writer) *Handler {
	return &Handler{w: w}
}

// HandleLog implements log.Handler.
func (h *Handler) HandleLog(e *log.Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s",
		e.Timestamp.Format(time.DateTime),
		strings.ToUpper(e.Level.String()),
		e.Message,
	)

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields[name])
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

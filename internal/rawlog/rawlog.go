// Package rawlog archives every received line to a daily file, e.g.
// logs/AIS_20260601.log, one "15:04:05 - <line>" entry per line.
package rawlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"aiscam-svr/internal/clock"
)

// Writer appends lines to the file of the current day. A nil *Writer discards.
type Writer struct {
	dir    string
	prefix string
	clk    clock.Clock
	logger *slog.Logger

	mu   sync.Mutex
	day  string
	file *os.File
}

// New returns nil when dir is empty.
func New(dir, prefix string, clk clock.Clock, logger *slog.Logger) *Writer {
	if dir == "" {
		return nil
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, prefix: prefix, clk: clk, logger: logger}
}

// Write archives one line. Failures are logged, never returned, so archiving
// cannot stall ingestion.
func (w *Writer) Write(line string) {
	if w == nil {
		return
	}
	now := w.clk.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotate(now.Format("20060102")); err != nil {
		w.logger.Error("rawlog: open failed", "dir", w.dir, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w.file, "%s - %s\n", now.Format("15:04:05"), line); err != nil {
		w.logger.Error("rawlog: write failed", "file", w.file.Name(), "error", err)
	}
}

func (w *Writer) rotate(day string) error {
	if w.file != nil && w.day == day {
		return nil
	}
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(w.dir, w.prefix+"_"+day+".log")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.day = day
	return nil
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

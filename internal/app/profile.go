package app

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// profiler appends paint timings as CSV rows. A nil profiler is a no-op.
type profiler struct {
	mu     sync.Mutex
	file   *os.File
	w      *csv.Writer
	logger *zap.SugaredLogger
	start  time.Time
	last   time.Time
	now    func() time.Time
}

func newProfiler(path string, logger *zap.SugaredLogger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if logger != nil {
			logger.Warnw("profiler disabled", "path", path, "error", err)
		}
		return nil
	}
	p := &profiler{
		file:   f,
		w:      csv.NewWriter(f),
		logger: logger,
		now:    time.Now,
	}
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		p.write("timestamp", "section", "delta_ms")
	}
	return p
}

func (p *profiler) beginFrame() {
	if p == nil {
		return
	}
	now := p.now()
	p.start = now
	p.last = now
	p.log("frame_start", 0)
}

func (p *profiler) markSection(name string) {
	if p == nil {
		return
	}
	now := p.now()
	delta := now.Sub(p.last).Seconds() * 1000
	p.last = now
	p.log(name, delta)
}

func (p *profiler) endFrame() {
	if p == nil {
		return
	}
	total := p.now().Sub(p.start).Seconds() * 1000
	p.log("frame_total", total)
	p.mu.Lock()
	p.w.Flush()
	err := p.w.Error()
	p.mu.Unlock()
	if err != nil && p.logger != nil {
		p.logger.Debugw("profiler flush", "error", err)
	}
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.w.Flush()
	return p.file.Close()
}

func (p *profiler) log(section string, deltaMs float64) {
	p.write(p.now().Format(time.RFC3339Nano), section, strconv.FormatFloat(deltaMs, 'f', 3, 64))
}

func (p *profiler) write(fields ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.w.Write(fields)
}

package common

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"
)

// Metrics tracks progress of one segmentation run. It is safe for concurrent
// use so a progress printer can sample it while the run advances.
type Metrics struct {
	mu            sync.Mutex
	start         time.Time
	end           time.Time
	bytes         int64
	totalBytes    int64
	lines         int64
	records       int64
	invalid       int64
	discardedIdle int64
	padded        int64
	truncated     int64
	chunks        int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddLine records one input line of n bytes (newline included).
func (m *Metrics) AddLine(n int64, valid bool) {
	m.mu.Lock()
	m.lines++
	if n > 0 {
		m.bytes += n
	}
	if valid {
		m.records++
	} else {
		m.invalid++
	}
	m.mu.Unlock()
}

func (m *Metrics) IncDiscardedIdle() {
	m.mu.Lock()
	m.discardedIdle++
	m.mu.Unlock()
}

func (m *Metrics) IncPadded() {
	m.mu.Lock()
	m.padded++
	m.mu.Unlock()
}

func (m *Metrics) IncTruncated() {
	m.mu.Lock()
	m.truncated++
	m.mu.Unlock()
}

func (m *Metrics) IncChunks() {
	m.mu.Lock()
	m.chunks++
	m.mu.Unlock()
}

func (m *Metrics) SetTotalBytes(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalBytes = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Duration:      m.elapsedLocked(),
		Bytes:         m.bytes,
		TotalBytes:    m.totalBytes,
		Lines:         m.lines,
		Records:       m.records,
		Invalid:       m.invalid,
		DiscardedIdle: m.discardedIdle,
		Padded:        m.padded,
		Truncated:     m.truncated,
		Chunks:        m.chunks,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration      time.Duration
	Bytes         int64
	TotalBytes    int64
	Lines         int64
	Records       int64
	Invalid       int64
	DiscardedIdle int64
	Padded        int64
	Truncated     int64
	Chunks        int64
}

func (s MetricsSnapshot) LinesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Lines) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	ratio := float64(s.Bytes) / float64(s.TotalBytes)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	rate := s.LinesPerSecond()
	if s.TotalBytes > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%s / %s) %d lines, %d chunks, %.0f lines/s",
			pct, FormatBytes(s.Bytes), FormatBytes(s.TotalBytes), s.Lines, s.Chunks, rate)
	}
	return fmt.Sprintf("Processed: %s %d lines, %d chunks, %.0f lines/s", FormatBytes(s.Bytes), s.Lines, s.Chunks, rate)
}

func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				pad := lastLen - len(line)
				if pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

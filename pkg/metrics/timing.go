// Package metrics provides performance instrumentation for bimnav.
//
// Each metric covers one hot path of the dashboard. Data source calls run on
// bubbletea command goroutines, so every counter is atomic. Collection is on
// by default and can be disabled with BIMNAV_METRICS=0.
//
//	func Build(rows []model.Row) *Forest {
//	    defer metrics.Timer(metrics.TreeBuild)()
//	    ...
//	}
package metrics

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("BIMNAV_METRICS") != "0")
}

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of metrics collection.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// TimingMetric tracks timing statistics for a named operation.
type TimingMetric struct {
	name  string
	count atomic.Int64
	total atomic.Int64
	max   atomic.Int64
	min   atomic.Int64 // 0 means not set
}

// Record records a single timing measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !Enabled() {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.total.Add(ns)
	for {
		old := m.max.Load()
		if ns <= old || m.max.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.min.Load()
		if (old != 0 && ns >= old) || m.min.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string {
	return m.name
}

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 {
	return m.count.Load()
}

// TimingStats holds a snapshot of timing statistics.
type TimingStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Avg   time.Duration `json:"avg"`
	Max   time.Duration `json:"max"`
	Min   time.Duration `json:"min,omitempty"`
}

// Stats returns all timing statistics at once.
func (m *TimingMetric) Stats() TimingStats {
	s := TimingStats{
		Name:  m.name,
		Count: m.count.Load(),
		Total: time.Duration(m.total.Load()),
		Max:   time.Duration(m.max.Load()),
		Min:   time.Duration(m.min.Load()),
	}
	if s.Count > 0 {
		s.Avg = s.Total / time.Duration(s.Count)
	}
	return s
}

// Reset clears all recorded measurements.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.total.Store(0)
	m.max.Store(0)
	m.min.Store(0)
}

// Timer returns a function that records elapsed time when called.
//
//	defer metrics.Timer(metrics.TabSwitch)()
func Timer(m *TimingMetric) func() {
	if !Enabled() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

var registry []*TimingMetric

func register(name string) *TimingMetric {
	m := &TimingMetric{name: name}
	registry = append(registry, m)
	return m
}

// Timing metrics, in report order.
var (
	TreeBuild    = register("tree_build")
	SourceLoad   = register("source_load")
	SourceQuery  = register("source_query")
	HTTPRequest  = register("http_request")
	CategoryLoad = register("category_load")
	TabSwitch    = register("tab_switch")
	Render       = register("render")
	Export       = register("export")
)

// AllTimingMetrics returns all registered timing metrics.
func AllTimingMetrics() []*TimingMetric {
	return registry
}

// ResetAll resets all timing metrics.
func ResetAll() {
	for _, m := range registry {
		m.Reset()
	}
}

// AllTimingStats returns stats for all timing metrics that have data.
func AllTimingStats() []TimingStats {
	stats := make([]TimingStats, 0, len(registry))
	for _, m := range registry {
		if m.Count() > 0 {
			stats = append(stats, m.Stats())
		}
	}
	return stats
}

// WriteReport prints a table with one row per metric that has data.
func WriteReport(w io.Writer) {
	stats := AllTimingStats()
	if len(stats) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "metric\tcount\tavg\tmax\ttotal")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, humanize.Comma(s.Count),
			round(s.Avg), round(s.Max), round(s.Total))
	}
	tw.Flush()
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond)
	}
	return d.Round(time.Microsecond)
}

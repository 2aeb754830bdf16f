package metrics

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRecordTracksMinMaxAvg(t *testing.T) {
	m := &TimingMetric{name: "test"}
	m.Record(2 * time.Millisecond)
	m.Record(6 * time.Millisecond)
	m.Record(4 * time.Millisecond)

	s := m.Stats()
	if s.Count != 3 {
		t.Errorf("expected count 3, got %d", s.Count)
	}
	if s.Min != 2*time.Millisecond || s.Max != 6*time.Millisecond {
		t.Errorf("expected min 2ms max 6ms, got %v %v", s.Min, s.Max)
	}
	if s.Avg != 4*time.Millisecond {
		t.Errorf("expected avg 4ms, got %v", s.Avg)
	}

	m.Reset()
	if m.Count() != 0 || m.Stats().Max != 0 {
		t.Errorf("expected reset metric, got %+v", m.Stats())
	}
}

func TestRecordConcurrent(t *testing.T) {
	m := &TimingMetric{name: "concurrent"}
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(d time.Duration) {
			defer wg.Done()
			m.Record(d)
		}(time.Duration(i) * time.Microsecond)
	}
	wg.Wait()

	s := m.Stats()
	if s.Count != 50 || s.Min != time.Microsecond || s.Max != 50*time.Microsecond {
		t.Errorf("unexpected stats after concurrent records: %+v", s)
	}
}

func TestDisabledTimerIsNoop(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	m := &TimingMetric{name: "off"}
	Timer(m)()
	m.Record(time.Second)
	if m.Count() != 0 {
		t.Errorf("expected nothing recorded while disabled, got %d", m.Count())
	}
}

func TestWriteReportSkipsEmptyMetrics(t *testing.T) {
	SetEnabled(true)
	ResetAll()
	defer ResetAll()

	TreeBuild.Record(1500 * time.Microsecond)
	TreeBuild.Record(500 * time.Microsecond)

	var buf bytes.Buffer
	WriteReport(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "tree_build") || !strings.Contains(lines[1], "1ms") {
		t.Errorf("unexpected report row %q", lines[1])
	}

	ResetAll()
	buf.Reset()
	WriteReport(&buf)
	if buf.Len() != 0 {
		t.Errorf("expected empty report, got %q", buf.String())
	}
}

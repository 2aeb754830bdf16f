package hierarchy

import (
	"gonum.org/v1/gonum/stat"

	"github.com/vanderheijden86/bimnav/pkg/model"
)

// Summary is the subtree statistics of one node.
type Summary struct {
	ID           string         `json:"id"`
	Nodes        int            `json:"nodes"`
	Leaves       int            `json:"leaves"`
	Height       int            `json:"height"`
	Elements     int            `json:"elements"`
	ByType       map[string]int `json:"by_type"`
	MeanFanout   float64        `json:"mean_fanout"`
	StdDevFanout float64        `json:"stddev_fanout"`
	MaxFanout    int            `json:"max_fanout"`
}

// Summarize computes statistics over the subtree rooted at id (inclusive).
// The empty id summarizes the whole forest. ok is false for unknown ids.
func (f *Forest) Summarize(id string) (Summary, bool) {
	s := Summary{ID: id, ByType: make(map[string]int)}
	if f == nil {
		return s, false
	}

	var start []string
	baseLevel := 0
	if id == "" {
		start = f.Roots
	} else {
		n, ok := f.NodesByID[id]
		if !ok {
			return s, false
		}
		start = []string{id}
		baseLevel = n.Level
	}

	var fanouts []float64
	visited := make(map[string]bool)
	stack := append([]string(nil), start...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		n := f.NodesByID[cur]

		s.Nodes++
		s.Elements += n.ElementCount
		label := string(n.Type)
		if label == "" {
			label = "unknown"
		}
		s.ByType[label]++
		if h := n.Level - baseLevel + 1; h > s.Height {
			s.Height = h
		}

		children := f.ChildrenByParent[cur]
		if len(children) == 0 {
			s.Leaves++
			continue
		}
		fanouts = append(fanouts, float64(len(children)))
		if len(children) > s.MaxFanout {
			s.MaxFanout = len(children)
		}
		stack = append(stack, children...)
	}

	if len(fanouts) > 0 {
		s.MeanFanout, s.StdDevFanout = stat.MeanStdDev(fanouts, nil)
		if len(fanouts) == 1 {
			s.StdDevFanout = 0
		}
	}
	return s, true
}

// Record converts the summary to the generic record shape sources return.
func (s Summary) Record() model.Record {
	byType := make(map[string]any, len(s.ByType))
	for k, v := range s.ByType {
		byType[k] = v
	}
	return model.Record{
		"id":            s.ID,
		"nodes":         s.Nodes,
		"leaves":        s.Leaves,
		"height":        s.Height,
		"elements":      s.Elements,
		"by_type":       byType,
		"mean_fanout":   s.MeanFanout,
		"stddev_fanout": s.StdDevFanout,
		"max_fanout":    s.MaxFanout,
	}
}

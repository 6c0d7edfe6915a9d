package analyze

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Effort is one tracked segment effort from segments.json.
type Effort struct {
	Name         string  `json:"name"`
	StartTime    string  `json:"start_time"`
	ElapsedTime  float64 `json:"elapsed_time"`
	PRRank       *int    `json:"pr_rank"`
	Distance     float64 `json:"distance"`
	AverageGrade float64 `json:"average_grade"`

	startEpoch float64
}

// Rank returns the PR rank, 0 when the effort has none.
func (e Effort) Rank() int {
	if e.PRRank == nil {
		return 0
	}
	return *e.PRRank
}

// Boost is 1.0 for a PR, 0.7 for a second or third best, 0.3 otherwise.
func (e Effort) Boost() float64 {
	switch r := e.Rank(); {
	case r == 1:
		return 1.0
	case r == 2 || r == 3:
		return 0.7
	default:
		return 0.3
	}
}

// StartEpoch returns the parsed start time in epoch seconds.
func (e Effort) StartEpoch() float64 {
	return e.startEpoch
}

// Contains reports start <= epoch <= start+elapsed.
func (e Effort) Contains(epoch float64) bool {
	return e.startEpoch > 0 && epoch >= e.startEpoch && epoch <= e.startEpoch+e.ElapsedTime
}

// LoadEfforts reads segments.json. A missing file yields no efforts.
func LoadEfforts(path string) ([]Effort, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var efforts []Effort
	if err := json.Unmarshal(data, &efforts); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	out := efforts[:0]
	for _, e := range efforts {
		start, err := time.Parse(time.RFC3339Nano, e.StartTime)
		if err != nil {
			continue
		}
		e.startEpoch = float64(start.UnixNano()) / 1e9
		out = append(out, e)
	}
	return out, nil
}

// BestEffort returns the overlapping effort with the highest boost. Ties keep
// the earlier effort in file order.
func BestEffort(efforts []Effort, epoch float64) (Effort, bool) {
	var best Effort
	found := false
	for _, e := range efforts {
		if !e.Contains(epoch) {
			continue
		}
		if !found || e.Boost() > best.Boost() {
			best, found = e, true
		}
	}
	return best, found
}

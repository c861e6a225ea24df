// Package rank maps confirmed vouch counts to reputation tiers.
package rank

import (
	"fmt"
	"strconv"
	"strings"
)

// Built-in rank labels used by the default table.
const (
	Unverified = "unverified"
	Verified   = "verified"
	Trusted    = "trusted"
	Endorsed   = "endorsed"
	TopTier    = "top_tier"
)

// Threshold is the minimum vouch count needed to hold Label.
type Threshold struct {
	Min   int    `json:"min"`
	Label string `json:"label"`
}

// Thresholds is an ordered rank table. Use New or Parse to get a validated one.
type Thresholds struct {
	steps []Threshold
}

// Default returns the stock table: 0-2 unverified, 3-5 verified, 6-10 trusted,
// 11-15 endorsed, 16+ top_tier.
func Default() Thresholds {
	t, _ := New([]Threshold{
		{Min: 0, Label: Unverified},
		{Min: 3, Label: Verified},
		{Min: 6, Label: Trusted},
		{Min: 11, Label: Endorsed},
		{Min: 16, Label: TopTier},
	})
	return t
}

// New validates steps and returns a table. The first step must start at 0,
// minimums must strictly increase and labels must be unique.
func New(steps []Threshold) (Thresholds, error) {
	if len(steps) == 0 {
		return Thresholds{}, fmt.Errorf("rank table is empty")
	}
	if steps[0].Min != 0 {
		return Thresholds{}, fmt.Errorf("first rank must start at 0, got %d", steps[0].Min)
	}
	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s.Label == "" {
			return Thresholds{}, fmt.Errorf("rank at position %d has no label", i)
		}
		if seen[s.Label] {
			return Thresholds{}, fmt.Errorf("duplicate rank label %q", s.Label)
		}
		seen[s.Label] = true
		if i > 0 && s.Min <= steps[i-1].Min {
			return Thresholds{}, fmt.Errorf("rank %q minimum %d must be greater than %d", s.Label, s.Min, steps[i-1].Min)
		}
	}
	cp := make([]Threshold, len(steps))
	copy(cp, steps)
	return Thresholds{steps: cp}, nil
}

// Parse reads a table written as "min:label" pairs separated by commas,
// e.g. "0:unverified,3:verified,6:trusted".
func Parse(s string) (Thresholds, error) {
	var steps []Threshold
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		minStr, label, ok := strings.Cut(part, ":")
		if !ok {
			return Thresholds{}, fmt.Errorf("invalid rank entry %q: expected min:label", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(minStr))
		if err != nil {
			return Thresholds{}, fmt.Errorf("invalid minimum in rank entry %q: %w", part, err)
		}
		steps = append(steps, Threshold{Min: n, Label: strings.TrimSpace(label)})
	}
	return New(steps)
}

// Steps returns a copy of the table in ascending order.
func (t Thresholds) Steps() []Threshold {
	cp := make([]Threshold, len(t.steps))
	copy(cp, t.steps)
	return cp
}

// RankFor returns the label of the highest step whose minimum is <= total.
// Negative totals are treated as zero.
func (t Thresholds) RankFor(total int) string {
	return t.steps[t.index(total)].Label
}

func (t Thresholds) index(total int) int {
	idx := 0
	for i, s := range t.steps {
		if total >= s.Min {
			idx = i
		}
	}
	return idx
}

// Position returns the label's index in the table, or -1 if it is unknown.
func (t Thresholds) Position(label string) int {
	for i, s := range t.steps {
		if s.Label == label {
			return i
		}
	}
	return -1
}

// Compare orders two labels by table position. Unknown labels sort lowest.
func (t Thresholds) Compare(a, b string) int {
	pa, pb := t.Position(a), t.Position(b)
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	}
	return 0
}

// Progress describes how far a user is through their current rank bucket.
type Progress struct {
	Current string  `json:"current"`
	Next    string  `json:"next,omitempty"`
	NextMin int     `json:"next_threshold"`
	Percent float64 `json:"progress_percentage"`
}

// Progress returns the bucket progress for total. At the top bucket Next is
// empty, NextMin equals total and Percent is 100.
func (t Thresholds) Progress(total int) Progress {
	if total < 0 {
		total = 0
	}
	i := t.index(total)
	p := Progress{Current: t.steps[i].Label}
	if i == len(t.steps)-1 {
		p.NextMin = total
		p.Percent = 100
		return p
	}
	start, next := t.steps[i].Min, t.steps[i+1]
	p.Next = next.Label
	p.NextMin = next.Min
	p.Percent = float64(total-start) / float64(next.Min-start) * 100
	return p
}

func (t Thresholds) String() string {
	parts := make([]string, len(t.steps))
	for i, s := range t.steps {
		parts[i] = fmt.Sprintf("%d:%s", s.Min, s.Label)
	}
	return strings.Join(parts, ",")
}

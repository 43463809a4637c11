package inventory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Snapshot is the ordered sequence of labels detected in one frame. Order is
// informational only; comparisons treat it as a multiset.
type Snapshot []string

// Counts returns the multiplicity of each label.
func (s Snapshot) Counts() map[string]int {
	counts := make(map[string]int, len(s))
	for _, label := range s {
		counts[label]++
	}
	return counts
}

// Entry is one taken item with its positive count.
type Entry struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Delta holds the items present in a before-snapshot but absent or reduced in
// the after-snapshot. Entries are ordered by first appearance in the
// before-snapshot and every count is positive.
type Delta struct {
	entries []Entry
}

// Diff computes before minus after as multisets, clamped at zero. Labels that
// only appear in after are ignored.
func Diff(before, after Snapshot) Delta {
	remaining := after.Counts()
	beforeCounts := before.Counts()

	var entries []Entry
	seen := make(map[string]struct{}, len(beforeCounts))
	for _, label := range before {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		if taken := beforeCounts[label] - remaining[label]; taken > 0 {
			entries = append(entries, Entry{Label: label, Count: taken})
		}
	}
	return Delta{entries: entries}
}

// NewDelta builds a delta from explicit counts, ordered by label. Non-positive
// counts and blank labels are rejected.
func NewDelta(counts map[string]int) (Delta, error) {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	entries := make([]Entry, 0, len(labels))
	for _, label := range labels {
		count := counts[label]
		trimmed := strings.TrimSpace(label)
		if trimmed == "" {
			return Delta{}, fmt.Errorf("item label must not be blank")
		}
		if count <= 0 {
			return Delta{}, fmt.Errorf("item %q: count must be positive, got %d", trimmed, count)
		}
		entries = append(entries, Entry{Label: trimmed, Count: count})
	}
	return Delta{entries: entries}, nil
}

// Entries returns a copy of the ordered entries.
func (d Delta) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// Len is the number of distinct taken labels.
func (d Delta) Len() int { return len(d.entries) }

// Empty reports whether nothing was taken.
func (d Delta) Empty() bool { return len(d.entries) == 0 }

// Count returns the taken count for label, or zero.
func (d Delta) Count(label string) int {
	for _, e := range d.entries {
		if e.Label == label {
			return e.Count
		}
	}
	return 0
}

// Total is the number of individual items taken.
func (d Delta) Total() int {
	total := 0
	for _, e := range d.entries {
		total += e.Count
	}
	return total
}

// Map returns the delta as label -> count.
func (d Delta) Map() map[string]int {
	out := make(map[string]int, len(d.entries))
	for _, e := range d.entries {
		out[e.Label] = e.Count
	}
	return out
}

// Labels returns the taken labels in delta order.
func (d Delta) Labels() []string {
	out := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e.Label)
	}
	return out
}

// ItemsText renders the delta as "1 apple, 1 milk".
func (d Delta) ItemsText() string {
	parts := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		parts = append(parts, strconv.Itoa(e.Count)+" "+e.Label)
	}
	return strings.Join(parts, ", ")
}

// MarshalJSON encodes the delta as a {"label": count} object.
func (d Delta) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

// UnmarshalJSON decodes a {"label": count} object.
func (d *Delta) UnmarshalJSON(data []byte) error {
	var counts map[string]int
	if err := json.Unmarshal(data, &counts); err != nil {
		return err
	}
	parsed, err := NewDelta(counts)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

package scraper

// ListEntry is one row of the chat list.
type ListEntry struct {
	Identity  string `json:"name"`
	Preview   string `json:"msg"`
	Timestamp string `json:"time"`
}

// Accumulator collects entries in first-seen order, keeping one entry per
// identity. Later sightings of an identity are ignored.
type Accumulator struct {
	entries []ListEntry
	seen    map[string]struct{}
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{seen: make(map[string]struct{})}
}

// Merge adds the unseen entries of batch and returns how many were added.
// Entries without an identity are skipped.
func (a *Accumulator) Merge(batch []ListEntry) int {
	added := 0
	for _, e := range batch {
		if e.Identity == "" {
			continue
		}
		if _, ok := a.seen[e.Identity]; ok {
			continue
		}
		a.seen[e.Identity] = struct{}{}
		a.entries = append(a.entries, e)
		added++
	}
	return added
}

// Len returns the number of distinct identities.
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Entries returns a copy of the collected entries.
func (a *Accumulator) Entries() []ListEntry {
	out := make([]ListEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

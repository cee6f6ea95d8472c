package classify

import (
	"regexp"
	"strings"

	"github.com/roelfdiedericks/chatsweep/internal/scraper"
)

// Pair is one "identity : category" line of a model reply.
type Pair struct {
	Identity string
	Category string
}

// Result is a classification joined back to its chat list entry.
type Result struct {
	Identity  string `json:"name"`
	Category  string `json:"category"`
	Preview   string `json:"message"`
	Timestamp string `json:"time"`
}

var fragmentSep = regexp.MustCompile(`[,\n]`)

// ParseResponse decodes a reply of "identity : category" fragments
// separated by commas or newlines. Fragments are split on the first colon,
// so categories may contain colons. Fragments without a colon are skipped
// and counted in dropped. Never fails.
func ParseResponse(text string) (pairs []Pair, dropped int) {
	for _, frag := range fragmentSep.Split(text, -1) {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		identity, category, ok := strings.Cut(frag, ":")
		if !ok {
			dropped++
			continue
		}
		pairs = append(pairs, Pair{
			Identity: strings.TrimSpace(identity),
			Category: strings.TrimSpace(category),
		})
	}
	return pairs, dropped
}

// Join attaches preview and timestamp from entries to each pair by
// identity. Pairs without a matching entry are kept with blank fields.
func Join(pairs []Pair, entries []scraper.ListEntry) []Result {
	byIdentity := make(map[string]scraper.ListEntry, len(entries))
	for _, e := range entries {
		if _, ok := byIdentity[e.Identity]; !ok {
			byIdentity[e.Identity] = e
		}
	}

	results := make([]Result, 0, len(pairs))
	for _, p := range pairs {
		e := byIdentity[p.Identity]
		results = append(results, Result{
			Identity:  p.Identity,
			Category:  p.Category,
			Preview:   e.Preview,
			Timestamp: e.Timestamp,
		})
	}
	return results
}

// Counts tallies results per category.
func Counts(results []Result) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		counts[strings.ToLower(r.Category)]++
	}
	return counts
}

package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/chatsweep/internal/scraper"
)

type fakeGenerator struct {
	reply  string
	err    error
	calls  int
	user   string
	system string
}

func (g *fakeGenerator) SimpleMessage(ctx context.Context, userMessage, systemPrompt string) (string, error) {
	g.calls++
	g.user = userMessage
	g.system = systemPrompt
	return g.reply, g.err
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		want        []Pair
		wantDropped int
	}{
		{
			name:        "malformed line is skipped",
			in:          "Amit : genuine\nbadline\nFlipkart: promotional",
			want:        []Pair{{"Amit", "genuine"}, {"Flipkart", "promotional"}},
			wantDropped: 1,
		},
		{
			name: "comma separated",
			in:   "Amit : genuine, Jio: promotional,\n+91 97634556662: spam",
			want: []Pair{{"Amit", "genuine"}, {"Jio", "promotional"}, {"+91 97634556662", "spam"}},
		},
		{
			name: "split on first colon only",
			in:   "Team: standup at 10:30 : genuine",
			want: []Pair{{"Team", "standup at 10:30 : genuine"}},
		},
		{
			name: "blank fragments and CRLF",
			in:   "\r\n, ,Amit : genuine\r\n\r\n",
			want: []Pair{{"Amit", "genuine"}},
		},
		{
			name: "empty reply",
			in:   "",
		},
		{
			name:        "prose only",
			in:          "I cannot help with that",
			wantDropped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dropped := ParseResponse(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDropped, dropped)
		})
	}
}

func TestJoin(t *testing.T) {
	entries := []scraper.ListEntry{
		{Identity: "Amit", Preview: "kal milte hain", Timestamp: "09:12"},
		{Identity: "Flipkart", Preview: "Big sale!", Timestamp: "Yesterday"},
	}
	pairs := []Pair{{"Flipkart", "promotional"}, {"Ghost", "spam"}, {"Amit", "genuine"}}

	got := Join(pairs, entries)
	assert.Equal(t, []Result{
		{Identity: "Flipkart", Category: "promotional", Preview: "Big sale!", Timestamp: "Yesterday"},
		{Identity: "Ghost", Category: "spam"},
		{Identity: "Amit", Category: "genuine", Preview: "kal milte hain", Timestamp: "09:12"},
	}, got)
}

func TestClassify(t *testing.T) {
	entries := []scraper.ListEntry{
		{Identity: "Amit", Preview: "photo", Timestamp: "10:00"},
		{Identity: "Flipkart", Preview: "50% off", Timestamp: "09:00"},
	}
	gen := &fakeGenerator{reply: "Amit : genuine\nbadline\nFlipkart: promotional"}

	got, err := New(gen, DefaultConfig()).Classify(context.Background(), entries)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Result{Identity: "Amit", Category: "genuine", Preview: "photo", Timestamp: "10:00"}, got[0])
	assert.Equal(t, "promotional", got[1].Category)

	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.user, `"name":"Flipkart"`)
	assert.Contains(t, gen.system, "genuine, promotional, spam or unknown")
	assert.Contains(t, gen.system, "name : category")
}

func TestClassifyGeneratorFailure(t *testing.T) {
	cause := errors.New("429 Too Many Requests")
	gen := &fakeGenerator{err: cause}

	got, err := New(gen, DefaultConfig()).Classify(context.Background(), []scraper.ListEntry{{Identity: "A"}})
	assert.Nil(t, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClassificationFailed)
	assert.ErrorIs(t, err, cause)

	var cfe *ClassificationFailedError
	assert.ErrorAs(t, err, &cfe)
}

func TestClassifyEmptyInput(t *testing.T) {
	gen := &fakeGenerator{}
	got, err := New(gen, Config{}).Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, gen.calls)
}

func TestClassifyPromptBudget(t *testing.T) {
	var entries []scraper.ListEntry
	for i := 0; i < 200; i++ {
		entries = append(entries, scraper.ListEntry{Identity: strings.Repeat("n", 40), Preview: strings.Repeat("message ", 20)})
	}
	gen := &fakeGenerator{reply: ""}
	cfg := DefaultConfig()
	cfg.MaxPromptTokens = 500

	c := New(gen, cfg)
	included := c.fit(SystemPrompt(cfg), entries)
	assert.NotEmpty(t, included)
	assert.Less(t, len(included), len(entries))

	_, err := c.Classify(context.Background(), entries)
	require.NoError(t, err)
	assert.Less(t, strings.Count(gen.user, `"name"`), len(entries))
}

func TestCounts(t *testing.T) {
	got := Counts([]Result{{Category: "spam"}, {Category: "Spam"}, {Category: "genuine"}})
	assert.Equal(t, map[string]int{"spam": 2, "genuine": 1}, got)
}

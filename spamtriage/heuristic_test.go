package spamtriage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var c KeywordClassifier

	spam, err := c.Classify(ctx, Item{
		Subject: "You have WON!",
		Body:    "You have won the lottery. Click here to claim.",
		Links:   []string{"http://bit.ly/claim"},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, spam.SpamProb, RejectThreshold)
	assert.Equal(t, LabelSpam, spam.Label)
	assert.Equal(t, ConfidenceHigh, spam.Confidence)

	ham, err := c.Classify(ctx, Item{Subject: "Lunch tomorrow?", Body: "Shall we meet at noon?"})
	require.NoError(t, err)
	assert.Equal(t, baseSpamProb, ham.SpamProb)
	assert.Equal(t, LabelHam, ham.Label)
	assert.Equal(t, ConfidenceHigh, ham.Confidence)

	custom := KeywordClassifier{Keywords: map[string]float64{"meeting": 0.5}}
	v, err := custom.Classify(ctx, Item{Body: "Meeting notes attached", Attachments: []string{"notes.pdf"}})
	require.NoError(t, err)
	assert.InDelta(t, 0.525, v.SpamProb, 1e-9)
	assert.Equal(t, LabelUncertain, v.Label)
	assert.Equal(t, ConfidenceLow, v.Confidence)
}

func TestSuspiciousSignals(t *testing.T) {
	t.Parallel()

	assert.True(t, suspiciousLink("http://example.com"))
	assert.True(t, suspiciousLink("https://192.168.1.10/login"))
	assert.True(t, suspiciousLink("https://bit.ly/x"))
	assert.True(t, suspiciousLink("not a url"))
	assert.False(t, suspiciousLink("https://go.dev/doc"))

	assert.True(t, riskyAttachment("invoice.PDF.exe"))
	assert.False(t, riskyAttachment("report.pdf"))
}

func TestHeuristicRouter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var r HeuristicRouter

	tests := []struct {
		name string
		item Item
		want Strategy
	}{
		{"plain", Item{Subject: "Lunch", Body: "noon?"}, StrategyRule},
		{"links", Item{Body: "see", Links: []string{"https://go.dev"}}, StrategyPolicy},
		{"attachment", Item{Attachments: []string{"a.pdf"}}, StrategyPolicy},
		{"auth failure", Item{Headers: map[string]string{"authentication-results": "spf=FAIL"}}, StrategyPolicy},
		{"account cue", Item{Body: "Please verify your bank details"}, StrategyPolicy},
	}
	for _, tt := range tests {
		got, err := r.Route(ctx, tt.item)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	s, ok := ParseStrategy(" RULE ")
	assert.True(t, ok)
	assert.Equal(t, StrategyRule, s)
	_, ok = ParseStrategy("maybe")
	assert.False(t, ok)

	code, ok := ParseRiskCode("phishing")
	assert.True(t, ok)
	assert.Equal(t, ReasonPhishing, code)
	_, ok = ParseRiskCode("SYSTEM_ERROR")
	assert.False(t, ok)
}

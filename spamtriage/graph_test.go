package spamtriage

import (
	"context"
	"errors"
	"testing"

	"github.com/smallnest/tenantflow/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClassifier struct {
	v   Verdict
	err error
}

func (c fixedClassifier) Classify(context.Context, Item) (Verdict, error) { return c.v, c.err }

type fixedRouter struct {
	s   Strategy
	err error
}

func (r fixedRouter) Route(context.Context, Item) (Strategy, error) { return r.s, r.err }

type fixedAnalyzer struct {
	r     PolicyResult
	err   error
	calls int
}

func (a *fixedAnalyzer) Analyze(context.Context, Item) (PolicyResult, error) {
	a.calls++
	return a.r, a.err
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, Item) (Verdict, error) { panic("classifier bug") }

func newTriage(t *testing.T, opts Options) *Triage {
	t.Helper()
	opts.Logger = log.NoOpLogger{}
	tr, err := New(opts)
	require.NoError(t, err)
	return tr
}

func TestRoutingDeterminism(t *testing.T) {
	t.Parallel()

	tests := []struct {
		strategy Strategy
		wantPath []string
	}{
		{StrategyRule, []string{NodeGateway, NodeFinalDecision}},
		{StrategyPolicy, []string{NodeGateway, NodePolicyProcess, NodeFinalDecision}},
		{Strategy("bogus"), []string{NodeGateway, NodePolicyProcess, NodeFinalDecision}},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			t.Parallel()
			tr := newTriage(t, Options{
				Classifier: fixedClassifier{v: Verdict{SpamProb: 0.1, Confidence: ConfidenceHigh, Label: LabelHam}},
				Router:     fixedRouter{s: tt.strategy},
				Analyzer:   &fixedAnalyzer{r: PolicyResult{Confidence: ConfidenceHigh}},
			})
			for range 3 {
				final, err := tr.Invoke(context.Background(), Item{ID: "m1"})
				require.NoError(t, err)
				assert.Equal(t, tt.wantPath, final.ProcessingPath)
				require.NotNil(t, final.Decision)
				assert.Equal(t, ActionDeliver, final.Decision.Action)
			}
		})
	}
}

func TestRuleBranchReject(t *testing.T) {
	t.Parallel()

	analyzer := &fixedAnalyzer{}
	tr := newTriage(t, Options{
		Classifier: fixedClassifier{v: Verdict{SpamProb: 0.9, Confidence: ConfidenceHigh, Label: LabelSpam}},
		Router:     fixedRouter{s: StrategyRule},
		Analyzer:   analyzer,
	})

	d, err := tr.Run(context.Background(), Item{ID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, ActionReject, d.Action)
	assert.Equal(t, 0.9, d.SpamProb)
	assert.Zero(t, analyzer.calls)
}

func TestPolicyBranchQuarantine(t *testing.T) {
	t.Parallel()

	tr := newTriage(t, Options{
		Classifier: fixedClassifier{v: Verdict{SpamProb: 0.55, Confidence: ConfidenceLow, Label: LabelUncertain}},
		Router:     fixedRouter{s: StrategyPolicy},
		Analyzer:   &fixedAnalyzer{r: PolicyResult{IsSpam: true, Confidence: ConfidenceMedium, RiskCodes: []ReasonCode{ReasonPhishing}}},
	})

	d, err := tr.Run(context.Background(), Item{ID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, ActionQuarantine, d.Action)
	assert.Equal(t, []ReasonCode{ReasonPhishing}, d.ReasonCodes)
	assert.Equal(t, 0.55, d.SpamProb)
}

func TestGatewayFallbacks(t *testing.T) {
	t.Parallel()

	for name, c := range map[string]Classifier{
		"error": fixedClassifier{err: errors.New("model offline")},
		"panic": panickingClassifier{},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			analyzer := &fixedAnalyzer{r: PolicyResult{Confidence: ConfidenceHigh}}
			tr := newTriage(t, Options{
				Classifier: c,
				Router:     fixedRouter{err: errors.New("router offline")},
				Analyzer:   analyzer,
			})

			final, err := tr.Invoke(context.Background(), Item{ID: "m3"})
			require.NoError(t, err)
			require.NotNil(t, final.Verdict)
			assert.Equal(t, FallbackVerdict, *final.Verdict)
			assert.Equal(t, StrategyPolicy, final.RoutingStrategy)
			assert.Equal(t, 1, analyzer.calls)
		})
	}
}

func TestPolicyFailureAsksUser(t *testing.T) {
	t.Parallel()

	tr := newTriage(t, Options{
		Router:   fixedRouter{s: StrategyPolicy},
		Analyzer: &fixedAnalyzer{err: errors.New("context length exceeded")},
	})

	final, err := tr.Invoke(context.Background(), Item{ID: "m4", Subject: "hello"})
	require.NoError(t, err)
	require.NotNil(t, final.Policy)
	assert.True(t, final.Policy.Failed)
	assert.Equal(t, ConfidenceLow, final.Policy.Confidence)
	assert.Equal(t, ActionAskUserConfirm, final.Decision.Action)
	assert.Equal(t, []ReasonCode{ReasonAnalysisFailed}, final.Decision.ReasonCodes)
}

func TestNoAnalyzerConfigured(t *testing.T) {
	t.Parallel()

	tr := newTriage(t, Options{Router: fixedRouter{s: StrategyPolicy}})
	d, err := tr.Run(context.Background(), Item{ID: "m5"})
	require.NoError(t, err)
	assert.Equal(t, ActionAskUserConfirm, d.Action)
	assert.Equal(t, []ReasonCode{ReasonAnalysisFailed}, d.ReasonCodes)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	tr := newTriage(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := tr.Run(ctx, Item{ID: "m6"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []ReasonCode{ReasonSystemError}, d.ReasonCodes)
}

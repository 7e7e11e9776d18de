package spamtriage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleDecisionThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		verdict    Verdict
		wantAction Action
		wantCodes  []ReasonCode
	}{
		{"reject", Verdict{SpamProb: 0.9, Confidence: ConfidenceHigh}, ActionReject, []ReasonCode{ReasonHighSpamScore}},
		{"reject at threshold", Verdict{SpamProb: 0.8, Confidence: ConfidenceMedium}, ActionReject, []ReasonCode{ReasonHighSpamScore}},
		{"quarantine", Verdict{SpamProb: 0.7, Confidence: ConfidenceMedium}, ActionQuarantine, []ReasonCode{ReasonElevatedSpamScore}},
		{"uncertain low confidence", Verdict{SpamProb: 0.5, Confidence: ConfidenceLow}, ActionDeliverWithWarning, []ReasonCode{ReasonUncertainScore, ReasonLowConfidence}},
		{"uncertain medium confidence", Verdict{SpamProb: 0.5, Confidence: ConfidenceMedium}, ActionAskUserConfirm, []ReasonCode{ReasonUncertainScore}},
		{"warning band", Verdict{SpamProb: 0.3, Confidence: ConfidenceMedium}, ActionDeliverWithWarning, []ReasonCode{ReasonElevatedSpamScore}},
		{"deliver", Verdict{SpamProb: 0.1, Confidence: ConfidenceHigh}, ActionDeliver, []ReasonCode{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := RuleDecision(tt.verdict)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantCodes, d.ReasonCodes)
			assert.Equal(t, tt.verdict.SpamProb, d.SpamProb)
			assert.NotEmpty(t, d.UserMessage)
		})
	}
}

func TestPolicyDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     PolicyResult
		wantAction Action
		wantCodes  []ReasonCode
	}{
		{"failed", analysisFailed("timeout"), ActionAskUserConfirm, []ReasonCode{ReasonAnalysisFailed}},
		{"spam high", PolicyResult{IsSpam: true, Confidence: ConfidenceHigh, RiskCodes: []ReasonCode{ReasonPhishing}}, ActionReject, []ReasonCode{ReasonPhishing}},
		{"spam medium", PolicyResult{IsSpam: true, Confidence: ConfidenceMedium}, ActionQuarantine, []ReasonCode{ReasonHighSpamScore}},
		{"spam low", PolicyResult{IsSpam: true, Confidence: ConfidenceLow, RiskCodes: []ReasonCode{ReasonScam}}, ActionAskUserConfirm, []ReasonCode{ReasonScam}},
		{"risky but clean", PolicyResult{Confidence: ConfidenceHigh, RiskCodes: []ReasonCode{ReasonSuspiciousLink}}, ActionDeliverWithWarning, []ReasonCode{ReasonSuspiciousLink}},
		{"clean", PolicyResult{Confidence: ConfidenceHigh}, ActionDeliver, []ReasonCode{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := PolicyDecision(tt.result)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantCodes, d.ReasonCodes)
		})
	}
}

func TestDecideMissingUpstream(t *testing.T) {
	t.Parallel()

	for _, state := range []State{
		{RoutingStrategy: StrategyPolicy, Verdict: &Verdict{SpamProb: 0.9}},
		{RoutingStrategy: StrategyRule},
		{},
	} {
		d := Decide(state)
		assert.Equal(t, ActionAskUserConfirm, d.Action)
		assert.Equal(t, []ReasonCode{ReasonSystemError}, d.ReasonCodes)
	}
}

func TestDecidePolicyKeepsSpamProb(t *testing.T) {
	t.Parallel()

	d := Decide(State{
		RoutingStrategy: StrategyPolicy,
		Verdict:         &Verdict{SpamProb: 0.42, Confidence: ConfidenceLow},
		Policy:          &PolicyResult{IsSpam: true, Confidence: ConfidenceHigh},
	})
	assert.Equal(t, ActionReject, d.Action)
	assert.Equal(t, 0.42, d.SpamProb)
	assert.Equal(t, ConfidenceHigh, d.Confidence)
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	d := PolicyDecision(PolicyResult{IsSpam: true, Confidence: ConfidenceHigh, RiskCodes: []ReasonCode{ReasonPhishing, ReasonSuspiciousLink}})
	assert.Equal(t, "This message was blocked as spam. Reasons: "+
		"it looks like an attempt to steal credentials or personal data; it contains suspicious links.", d.UserMessage)

	assert.Equal(t, "This message was delivered.", RuleDecision(Verdict{SpamProb: 0.05}).UserMessage)
	assert.Equal(t, "custom code", ReasonCode("CUSTOM_CODE").Describe())
}

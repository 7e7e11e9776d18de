package spamtriage

import "slices"

// Rule path thresholds on spam_prob.
const (
	RejectThreshold     = 0.8
	QuarantineThreshold = 0.6
	UncertainThreshold  = 0.4
	WarningThreshold    = 0.2
)

// Decide maps the upstream result selected by the routing strategy to a
// decision. A missing result yields SystemErrorDecision.
func Decide(state State) Decision {
	if state.RoutingStrategy == StrategyRule {
		if state.Verdict == nil {
			return SystemErrorDecision()
		}
		return RuleDecision(*state.Verdict)
	}
	if state.Policy == nil {
		return SystemErrorDecision()
	}
	d := PolicyDecision(*state.Policy)
	if state.Verdict != nil {
		d.SpamProb = state.Verdict.SpamProb
	}
	return d
}

// RuleDecision applies the fixed thresholds to a classifier verdict.
func RuleDecision(v Verdict) Decision {
	p := v.SpamProb
	var (
		action Action
		codes  []ReasonCode
	)
	switch {
	case p >= RejectThreshold:
		action, codes = ActionReject, []ReasonCode{ReasonHighSpamScore}
	case p >= QuarantineThreshold:
		action, codes = ActionQuarantine, []ReasonCode{ReasonElevatedSpamScore}
	case p >= UncertainThreshold:
		if v.Confidence == ConfidenceLow {
			action, codes = ActionDeliverWithWarning, []ReasonCode{ReasonUncertainScore, ReasonLowConfidence}
		} else {
			action, codes = ActionAskUserConfirm, []ReasonCode{ReasonUncertainScore}
		}
	case p >= WarningThreshold:
		action, codes = ActionDeliverWithWarning, []ReasonCode{ReasonElevatedSpamScore}
	default:
		action = ActionDeliver
	}
	return newDecision(action, codes, v.Confidence, p)
}

// PolicyDecision maps a policy analysis to a decision.
func PolicyDecision(r PolicyResult) Decision {
	codes := append([]ReasonCode(nil), r.RiskCodes...)
	var action Action
	switch {
	case r.Failed || slices.Contains(r.RiskCodes, ReasonAnalysisFailed):
		action, codes = ActionAskUserConfirm, []ReasonCode{ReasonAnalysisFailed}
	case r.IsSpam:
		if len(codes) == 0 {
			codes = []ReasonCode{ReasonHighSpamScore}
		}
		switch r.Confidence {
		case ConfidenceHigh:
			action = ActionReject
		case ConfidenceMedium:
			action = ActionQuarantine
		default:
			action = ActionAskUserConfirm
		}
	case len(codes) > 0:
		action = ActionDeliverWithWarning
	default:
		action = ActionDeliver
	}
	return newDecision(action, codes, r.Confidence, 0)
}

// SystemErrorDecision is the answer for any internal inconsistency.
func SystemErrorDecision() Decision {
	return newDecision(ActionAskUserConfirm, []ReasonCode{ReasonSystemError}, ConfidenceLow, 0)
}

func newDecision(action Action, codes []ReasonCode, confidence Confidence, p float64) Decision {
	if codes == nil {
		codes = []ReasonCode{}
	}
	if confidence == "" {
		confidence = ConfidenceLow
	}
	return Decision{
		Action:      action,
		ReasonCodes: codes,
		UserMessage: renderMessage(action, codes),
		Confidence:  confidence,
		SpamProb:    p,
	}
}

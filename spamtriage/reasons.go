package spamtriage

import "strings"

// ReasonCode explains a decision.
type ReasonCode string

const (
	ReasonHighSpamScore     ReasonCode = "HIGH_SPAM_SCORE"
	ReasonElevatedSpamScore ReasonCode = "ELEVATED_SPAM_SCORE"
	ReasonUncertainScore    ReasonCode = "UNCERTAIN_SCORE"
	ReasonLowConfidence     ReasonCode = "LOW_CONFIDENCE"
	ReasonPhishing          ReasonCode = "PHISHING"
	ReasonMalware           ReasonCode = "MALWARE"
	ReasonScam              ReasonCode = "SCAM"
	ReasonAdult             ReasonCode = "ADULT"
	ReasonSuspiciousLink    ReasonCode = "SUSPICIOUS_LINK"
	ReasonImpersonation     ReasonCode = "IMPERSONATION"
	ReasonAnalysisFailed    ReasonCode = "ANALYSIS_FAILED"
	ReasonSystemError       ReasonCode = "SYSTEM_ERROR"
)

var reasonDescriptions = map[ReasonCode]string{
	ReasonHighSpamScore:     "the spam score is very high",
	ReasonElevatedSpamScore: "the message shows some characteristics of spam",
	ReasonUncertainScore:    "the automatic check could not classify it reliably",
	ReasonLowConfidence:     "the classification confidence is low",
	ReasonPhishing:          "it looks like an attempt to steal credentials or personal data",
	ReasonMalware:           "it may carry malicious software",
	ReasonScam:              "it resembles a known fraud or scam pattern",
	ReasonAdult:             "it contains adult content",
	ReasonSuspiciousLink:    "it contains suspicious links",
	ReasonImpersonation:     "the sender appears to impersonate someone else",
	ReasonAnalysisFailed:    "the detailed analysis could not be completed",
	ReasonSystemError:       "an internal error prevented a reliable decision",
}

// riskCodes are the codes a policy analysis may report.
var riskCodes = []ReasonCode{
	ReasonPhishing, ReasonMalware, ReasonScam, ReasonAdult, ReasonSuspiciousLink, ReasonImpersonation,
}

// Describe returns the human-readable text of a reason code.
func (c ReasonCode) Describe() string {
	if d, ok := reasonDescriptions[c]; ok {
		return d
	}
	return strings.ToLower(strings.ReplaceAll(string(c), "_", " "))
}

// ParseRiskCode accepts one of the risk codes in any case.
func ParseRiskCode(s string) (ReasonCode, bool) {
	code := ReasonCode(strings.ToUpper(strings.TrimSpace(s)))
	for _, rc := range riskCodes {
		if rc == code {
			return rc, true
		}
	}
	return "", false
}

var actionMessages = map[Action]string{
	ActionReject:             "This message was blocked as spam.",
	ActionQuarantine:         "This message was moved to quarantine for review.",
	ActionDeliverWithWarning: "This message was delivered with a warning.",
	ActionDeliver:            "This message was delivered.",
	ActionAskUserConfirm:     "Please confirm whether this message is legitimate before opening it.",
}

// renderMessage joins the base sentence for action with the description of
// every reason code.
func renderMessage(action Action, codes []ReasonCode) string {
	msg := actionMessages[action]
	if len(codes) == 0 {
		return msg
	}
	descs := make([]string, 0, len(codes))
	for _, c := range codes {
		descs = append(descs, c.Describe())
	}
	return msg + " Reasons: " + strings.Join(descs, "; ") + "."
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

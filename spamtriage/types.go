package spamtriage

// Item is the message metadata submitted for triage.
type Item struct {
	ID          string            `json:"id"`
	Sender      string            `json:"sender"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Links       []string          `json:"links,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Confidence is a coarse confidence level.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Label is the verdict of the fast classifier.
type Label string

const (
	LabelSpam      Label = "SPAM"
	LabelHam       Label = "HAM"
	LabelUncertain Label = "UNCERTAIN"
)

// Verdict is the output of a Classifier.
type Verdict struct {
	SpamProb   float64    `json:"spam_prob"`
	Confidence Confidence `json:"confidence"`
	Label      Label      `json:"label"`
}

// Strategy selects the branch after the gateway.
type Strategy string

const (
	StrategyRule   Strategy = "rule"
	StrategyPolicy Strategy = "policy"
)

// ParseStrategy accepts "rule" and "policy" in any case.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(normalize(s)) {
	case StrategyRule:
		return StrategyRule, true
	case StrategyPolicy:
		return StrategyPolicy, true
	}
	return "", false
}

// PolicyResult is the output of a PolicyAnalyzer.
type PolicyResult struct {
	IsSpam     bool         `json:"is_spam"`
	RiskCodes  []ReasonCode `json:"risk_codes,omitempty"`
	Confidence Confidence   `json:"confidence"`
	Analysis   string       `json:"analysis,omitempty"`

	// Failed marks the placeholder written when the analysis could not run.
	Failed bool `json:"failed,omitempty"`
}

// Action is what happens to the item.
type Action string

const (
	ActionReject             Action = "reject"
	ActionQuarantine         Action = "quarantine"
	ActionDeliverWithWarning Action = "deliver_with_warning"
	ActionDeliver            Action = "deliver"
	ActionAskUserConfirm     Action = "ask_user_confirm"
)

// Decision is the result of a triage run.
type Decision struct {
	Action      Action       `json:"action"`
	ReasonCodes []ReasonCode `json:"reason_codes"`
	UserMessage string       `json:"user_message"`
	Confidence  Confidence   `json:"confidence"`
	SpamProb    float64      `json:"spam_prob"`
}

// State is the triage workflow state. Upstream results are pointers so
// final_decision can tell a missing result from a zero one.
type State struct {
	Item            Item          `json:"item"`
	Verdict         *Verdict      `json:"verdict,omitempty"`
	RoutingStrategy Strategy      `json:"routing_strategy,omitempty"`
	Policy          *PolicyResult `json:"policy_result,omitempty"`
	Decision        *Decision     `json:"decision,omitempty"`
	ProcessingPath  []string      `json:"processing_path,omitempty" graph:"path"`
}

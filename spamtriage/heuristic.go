package spamtriage

import (
	"context"
	"math"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// Classifier produces a fast spam verdict.
type Classifier interface {
	Classify(ctx context.Context, item Item) (Verdict, error)
}

// Router picks the rule or policy branch.
type Router interface {
	Route(ctx context.Context, item Item) (Strategy, error)
}

// PolicyAnalyzer runs the detailed analysis of the policy branch.
type PolicyAnalyzer interface {
	Analyze(ctx context.Context, item Item) (PolicyResult, error)
}

// DefaultKeywords weights phrases that raise the spam score.
var DefaultKeywords = map[string]float64{
	"you have won":        0.6,
	"free money":          0.6,
	"lottery":             0.5,
	"winner":              0.4,
	"100% free":           0.5,
	"verify your account": 0.5,
	"gift card":           0.45,
	"wire transfer":       0.4,
	"click here":          0.35,
	"act now":             0.3,
	"risk-free":           0.3,
	"limited time":        0.25,
	"urgent":              0.2,
	"password":            0.2,
	"crypto":              0.2,
	"unsubscribe":         0.1,
}

var (
	shorteners = map[string]bool{
		"bit.ly": true, "tinyurl.com": true, "t.co": true, "goo.gl": true, "ow.ly": true, "is.gd": true,
	}
	riskyExtensions = map[string]bool{
		".exe": true, ".scr": true, ".js": true, ".bat": true, ".vbs": true, ".jar": true, ".msi": true, ".cmd": true,
	}
)

const (
	baseSpamProb = 0.05
	linkWeight   = 0.25
	attachWeight = 0.5
)

// KeywordClassifier scores an item by weighted phrases, risky links and
// executable attachments, combined as independent signals.
type KeywordClassifier struct {
	// Keywords defaults to DefaultKeywords.
	Keywords map[string]float64
}

// Classify implements Classifier.
func (c KeywordClassifier) Classify(_ context.Context, item Item) (Verdict, error) {
	keywords := c.Keywords
	if keywords == nil {
		keywords = DefaultKeywords
	}

	text := strings.ToLower(item.Subject + "\n" + item.Body)
	ham := 1 - baseSpamProb
	for phrase, w := range keywords {
		if strings.Contains(text, phrase) {
			ham *= 1 - w
		}
	}
	for _, link := range item.Links {
		if suspiciousLink(link) {
			ham *= 1 - linkWeight
		}
	}
	for _, a := range item.Attachments {
		if riskyAttachment(a) {
			ham *= 1 - attachWeight
		}
	}

	p := math.Round((1-ham)*1000) / 1000
	return Verdict{SpamProb: p, Confidence: confidenceFor(p), Label: labelFor(p)}, nil
}

func confidenceFor(p float64) Confidence {
	switch d := math.Abs(p - 0.5); {
	case d >= 0.35:
		return ConfidenceHigh
	case d >= 0.15:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func labelFor(p float64) Label {
	switch {
	case p >= QuarantineThreshold:
		return LabelSpam
	case p < UncertainThreshold:
		return LabelHam
	default:
		return LabelUncertain
	}
}

func suspiciousLink(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return true
	}
	host := strings.ToLower(u.Hostname())
	return u.Scheme != "https" || net.ParseIP(host) != nil || shorteners[host] || strings.Contains(host, "xn--")
}

func riskyAttachment(name string) bool {
	return riskyExtensions[strings.ToLower(filepath.Ext(name))]
}

// HeuristicRouter sends items with links, attachments, failed sender
// authentication or account related wording to the policy branch.
type HeuristicRouter struct{}

var policyCues = []string{"account", "bank", "invoice", "payment", "password", "login", "verify"}

// Route implements Router.
func (HeuristicRouter) Route(_ context.Context, item Item) (Strategy, error) {
	if len(item.Links) > 0 || len(item.Attachments) > 0 {
		return StrategyPolicy, nil
	}
	for k, v := range item.Headers {
		if strings.EqualFold(k, "Authentication-Results") && strings.Contains(strings.ToLower(v), "fail") {
			return StrategyPolicy, nil
		}
	}
	text := strings.ToLower(item.Subject + " " + item.Body)
	for _, cue := range policyCues {
		if strings.Contains(text, cue) {
			return StrategyPolicy, nil
		}
	}
	return StrategyRule, nil
}

package spamtriage

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/tenantflow/collab"
	"github.com/smallnest/tenantflow/graph"
	"github.com/smallnest/tenantflow/log"
)

// Node names.
const (
	NodeGateway       = "gateway"
	NodePolicyProcess = "policy_process"
	NodeFinalDecision = "final_decision"
)

// FallbackVerdict is used when the classifier fails.
var FallbackVerdict = Verdict{SpamProb: 0.5, Confidence: ConfidenceLow, Label: LabelUncertain}

// FallbackStrategy is used when the router fails.
const FallbackStrategy = StrategyPolicy

// Options configures a triage graph. Nil collaborators get the heuristic
// defaults, except Analyzer: without one every policy run reports
// ANALYSIS_FAILED.
type Options struct {
	Classifier Classifier
	Router     Router
	Analyzer   PolicyAnalyzer

	Dispatcher *collab.Dispatcher
	Logger     log.Logger
	Tracer     *graph.Tracer
}

// Triage is a compiled spam triage graph:
//
//	gateway -> final_decision                   (rule)
//	gateway -> policy_process -> final_decision (policy)
type Triage struct {
	opts     Options
	runnable *graph.Runnable[State]
}

// New builds and compiles the triage graph.
func New(opts Options) (*Triage, error) {
	if opts.Classifier == nil {
		opts.Classifier = KeywordClassifier{}
	}
	if opts.Router == nil {
		opts.Router = HeuristicRouter{}
	}
	opts.Logger = log.OrDefault(opts.Logger)

	t := &Triage{opts: opts}

	workflow := graph.NewStateGraph[State]()
	workflow.SetName("spam_triage")
	workflow.AddNode(NodeGateway, "Fast classification and routing", t.gateway, graph.Writes("verdict", "routing_strategy"))
	workflow.AddNode(NodePolicyProcess, "Detailed policy analysis", t.policyProcess, graph.Writes("policy_result"))
	workflow.AddNode(NodeFinalDecision, "Map the upstream result to an action", t.finalDecision, graph.Writes("decision"))

	workflow.SetEntryPoint(NodeGateway)
	workflow.AddConditionalEdge(NodeGateway, routeAfterGateway, map[string]string{
		string(StrategyRule):   NodeFinalDecision,
		string(StrategyPolicy): NodePolicyProcess,
	})
	workflow.AddEdge(NodePolicyProcess, NodeFinalDecision)
	workflow.AddEdge(NodeFinalDecision, graph.END)

	runnable, err := workflow.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile triage graph: %w", err)
	}
	t.runnable = runnable.WithLogger(opts.Logger)
	if opts.Tracer != nil {
		t.runnable = t.runnable.WithTracer(opts.Tracer)
	}
	return t, nil
}

// Runnable returns the compiled graph.
func (t *Triage) Runnable() *graph.Runnable[State] {
	return t.runnable
}

// Invoke runs the graph and returns the final state.
func (t *Triage) Invoke(ctx context.Context, item Item) (State, error) {
	return t.runnable.Invoke(ctx, State{Item: item})
}

// Run triages one item. It always returns a decision; when the run itself
// fails the decision is SystemErrorDecision and the error is returned too.
func (t *Triage) Run(ctx context.Context, item Item) (Decision, error) {
	final, err := t.Invoke(ctx, item)
	if err != nil {
		return SystemErrorDecision(), err
	}
	if final.Decision == nil {
		return SystemErrorDecision(), errors.New("spamtriage: run ended without a decision")
	}
	return *final.Decision, nil
}

func (t *Triage) gateway(ctx context.Context, state State) (State, error) {
	item := state.Item

	verdict := collab.Do(ctx, t.opts.Dispatcher, "classify", func(ctx context.Context) (Verdict, error) {
		return t.opts.Classifier.Classify(ctx, item)
	})
	if !verdict.OK() {
		t.opts.Logger.Warn("spamtriage: classifier failed (%s), using fallback verdict: %v", verdict.Kind, verdict.Err)
	}

	strategy := collab.Do(ctx, t.opts.Dispatcher, "route", func(ctx context.Context) (Strategy, error) {
		return t.opts.Router.Route(ctx, item)
	})
	if !strategy.OK() {
		t.opts.Logger.Warn("spamtriage: router failed (%s), using %s: %v", strategy.Kind, FallbackStrategy, strategy.Err)
	}

	v := verdict.Or(FallbackVerdict)
	return State{Verdict: &v, RoutingStrategy: strategy.Or(FallbackStrategy)}, nil
}

// routeAfterGateway sends anything but an explicit rule strategy to the
// policy branch.
func routeAfterGateway(_ context.Context, state State) string {
	if state.RoutingStrategy == StrategyRule {
		return string(StrategyRule)
	}
	return string(StrategyPolicy)
}

func (t *Triage) policyProcess(ctx context.Context, state State) (State, error) {
	if t.opts.Analyzer == nil {
		t.opts.Logger.Warn("spamtriage: no policy analyzer configured")
		r := analysisFailed("no policy analyzer configured")
		return State{Policy: &r}, nil
	}

	item := state.Item
	res := collab.Do(ctx, t.opts.Dispatcher, "policy analysis", func(ctx context.Context) (PolicyResult, error) {
		return t.opts.Analyzer.Analyze(ctx, item)
	})
	if !res.OK() {
		t.opts.Logger.Warn("spamtriage: policy analysis failed (%s): %v", res.Kind, res.Err)
		r := analysisFailed(res.Err.Error())
		return State{Policy: &r}, nil
	}
	r := res.Value
	return State{Policy: &r}, nil
}

func analysisFailed(reason string) PolicyResult {
	return PolicyResult{
		RiskCodes:  []ReasonCode{ReasonAnalysisFailed},
		Confidence: ConfidenceLow,
		Analysis:   "analysis failed: " + reason,
		Failed:     true,
	}
}

func (t *Triage) finalDecision(_ context.Context, state State) (State, error) {
	d := Decide(state)
	if len(d.ReasonCodes) == 1 && d.ReasonCodes[0] == ReasonSystemError {
		t.opts.Logger.Warn("spamtriage: item %q reached final_decision without its %s result", state.Item.ID, state.RoutingStrategy)
	}
	return State{Decision: &d}, nil
}

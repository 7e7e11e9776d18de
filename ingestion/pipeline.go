package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/tenantflow/collab"
	"github.com/smallnest/tenantflow/graph"
	"github.com/smallnest/tenantflow/log"
)

// Node names.
const (
	NodeValidate          = "validate"
	NodeErrorHandler      = "error_handler"
	NodeDetermineStrategy = "determine_strategy"
	NodeRuleProcess       = "rule_process"
	NodePolicyProcess     = "policy_process"
	NodeSave              = "save"
	NodeRetrySave         = "retry_save"
	NodeFinalize          = "finalize"
)

// errorPreview is how many validation errors error_handler logs.
const errorPreview = 5

// Options configures an ingestion pipeline.
type Options struct {
	// Repositories must cover every kind.
	Repositories Repositories

	// Normalizer serves the policy branch. Without one the policy branch
	// falls back to the rule transform.
	Normalizer Normalizer

	// Strategy defaults to DefaultStrategy.
	Strategy StrategyFunc

	Dispatcher *collab.Dispatcher
	Logger     log.Logger
	Tracer     *graph.Tracer
}

// Pipeline is a compiled ingestion graph:
//
//	validate -> [error_handler] -> determine_strategy -> rule_process|policy_process
//	  -> save -> (retry_save -> save)* -> finalize
type Pipeline struct {
	opts     Options
	runnable *graph.Runnable[State]
}

// New builds and compiles the ingestion graph.
func New(opts Options) (*Pipeline, error) {
	if err := opts.Repositories.Check(); err != nil {
		return nil, err
	}
	if opts.Strategy == nil {
		opts.Strategy = DefaultStrategy
	}
	opts.Logger = log.OrDefault(opts.Logger)

	p := &Pipeline{opts: opts}

	workflow := graph.NewStateGraph[State]()
	workflow.SetName("ingestion")
	workflow.AddNode(NodeValidate, "Per-record schema checks", p.validate, graph.Writes("validated_data", "errors"))
	workflow.AddNode(NodeErrorHandler, "Log a preview of validation errors", p.errorHandler)
	workflow.AddNode(NodeDetermineStrategy, "Pick rule or policy processing", p.determineStrategy, graph.Writes("strategy"))
	workflow.AddNode(NodeRuleProcess, "Schema-driven normalization", p.ruleProcess, graph.Writes("transformed_data", "destination"))
	workflow.AddNode(NodePolicyProcess, "Model-assisted normalization", p.policyProcess, graph.Writes("transformed_data", "destination", "errors"))
	workflow.AddNode(NodeSave, "Persist transformed records", p.save, graph.Writes("saved_count", "save_status"))
	workflow.AddNode(NodeRetrySave, "Count a failed save", p.retrySave, graph.Writes("save_retry_count", "save_status", "errors"))
	workflow.AddNode(NodeFinalize, "Assemble the result", p.finalize, graph.Writes("result"))

	workflow.SetEntryPoint(NodeValidate)
	workflow.AddConditionalEdge(NodeValidate, afterValidate, map[string]string{
		"errors": NodeErrorHandler,
		"ok":     NodeDetermineStrategy,
	})
	workflow.AddEdge(NodeErrorHandler, NodeDetermineStrategy)
	workflow.AddConditionalEdge(NodeDetermineStrategy, byStrategy, map[string]string{
		string(StrategyRule):   NodeRuleProcess,
		string(StrategyPolicy): NodePolicyProcess,
	})
	workflow.AddEdge(NodeRuleProcess, NodeSave)
	workflow.AddEdge(NodePolicyProcess, NodeSave)
	workflow.AddConditionalEdge(NodeSave, afterSave, map[string]string{
		"retry": NodeRetrySave,
		"done":  NodeFinalize,
	})
	workflow.AddConditionalEdge(NodeRetrySave, afterRetry, map[string]string{
		"retry": NodeSave,
		"done":  NodeFinalize,
	})
	workflow.AddEdge(NodeFinalize, graph.END)

	runnable, err := workflow.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile ingestion graph: %w", err)
	}
	p.runnable = runnable.WithLogger(opts.Logger)
	if opts.Tracer != nil {
		p.runnable = p.runnable.WithTracer(opts.Tracer)
	}
	return p, nil
}

// Runnable returns the compiled graph.
func (p *Pipeline) Runnable() *graph.Runnable[State] {
	return p.runnable
}

// Invoke runs the graph and returns the final state.
func (p *Pipeline) Invoke(ctx context.Context, kind Kind, records []Record) (State, error) {
	if _, ok := SchemaFor(kind); !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return p.runnable.Invoke(ctx, State{Kind: kind, Records: records})
}

// Run ingests one batch. A failed run still yields a Result describing
// the failure next to the error.
func (p *Pipeline) Run(ctx context.Context, kind Kind, records []Record) (Result, error) {
	final, err := p.Invoke(ctx, kind, records)
	if err == nil && final.Result == nil {
		err = errors.New("ingestion: run ended without a result")
	}
	if err != nil {
		return Result{Kind: kind, Total: len(records), Errors: []string{err.Error()}, SaveFailed: true}, err
	}
	return *final.Result, nil
}

func (p *Pipeline) schema(state State) (Schema, error) {
	s, ok := SchemaFor(state.Kind)
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownKind, state.Kind)
	}
	return s, nil
}

func (p *Pipeline) validate(_ context.Context, state State) (State, error) {
	s, err := p.schema(state)
	if err != nil {
		return State{}, err
	}
	valid, errs := s.Validate(state.Records)
	return State{ValidatedData: valid, Errors: errs}, nil
}

func afterValidate(_ context.Context, state State) string {
	if len(state.Errors) > 0 {
		return "errors"
	}
	return "ok"
}

func (p *Pipeline) errorHandler(_ context.Context, state State) (State, error) {
	preview := state.Errors
	if len(preview) > errorPreview {
		preview = preview[:errorPreview]
	}
	msg := strings.Join(preview, "; ")
	if extra := len(state.Errors) - len(preview); extra > 0 {
		msg += fmt.Sprintf("; and %d more", extra)
	}
	p.opts.Logger.Warn("ingestion: %d of %d %s records rejected: %s",
		len(state.Errors), len(state.Records), state.Kind, msg)
	return State{}, nil
}

func (p *Pipeline) determineStrategy(_ context.Context, state State) (State, error) {
	return State{Strategy: p.opts.Strategy(state.Kind, state.ValidatedData)}, nil
}

// byStrategy has no default: an unset strategy is an engine error.
func byStrategy(_ context.Context, state State) string {
	return string(state.Strategy)
}

func (p *Pipeline) ruleProcess(_ context.Context, state State) (State, error) {
	s, err := p.schema(state)
	if err != nil {
		return State{}, err
	}
	return State{TransformedData: RuleTransform(s, state.ValidatedData), Destination: s.Destination}, nil
}

func (p *Pipeline) policyProcess(ctx context.Context, state State) (State, error) {
	s, err := p.schema(state)
	if err != nil {
		return State{}, err
	}
	if len(state.ValidatedData) == 0 {
		return State{TransformedData: []Record{}, Destination: s.Destination}, nil
	}

	if p.opts.Normalizer == nil {
		return State{
			TransformedData: RuleTransform(s, state.ValidatedData),
			Destination:     s.Destination,
			Errors:          []string{fmt.Sprintf("policy processing unavailable for %s, used rule transform", s.Kind)},
		}, nil
	}

	res := collab.Do(ctx, p.opts.Dispatcher, "normalize "+string(s.Kind), func(ctx context.Context) ([]Record, error) {
		return p.opts.Normalizer.Normalize(ctx, s, state.ValidatedData)
	})
	if !res.OK() {
		p.opts.Logger.Warn("ingestion: policy processing of %d %s records failed (%s): %v",
			len(state.ValidatedData), s.Kind, res.Kind, res.Err)
		return State{
			TransformedData: RuleTransform(s, state.ValidatedData),
			Destination:     s.Destination,
			Errors:          []string{fmt.Sprintf("policy processing failed for %s, used rule transform: %v", s.Kind, res.Err)},
		}, nil
	}
	return State{TransformedData: RuleTransform(s, res.Value), Destination: s.Destination}, nil
}

func (p *Pipeline) save(ctx context.Context, state State) (State, error) {
	if len(state.TransformedData) == 0 {
		return State{SaveStatus: SaveSucceeded}, nil
	}

	repo := p.opts.Repositories[state.Kind]
	res := collab.Do(ctx, p.opts.Dispatcher, "save "+string(state.Kind), func(ctx context.Context) (int, error) {
		return repo.SaveBatch(ctx, state.TransformedData)
	})
	if !res.OK() {
		p.opts.Logger.Warn("ingestion: saving %d %s records failed (attempt %d, %s): %v",
			len(state.TransformedData), state.Kind, state.SaveRetryCount+1, res.Kind, res.Err)
	}

	count := res.Or(0)
	status := SaveSucceeded
	if count == 0 {
		status = SaveFailed
	}
	return State{SavedCount: count, SaveStatus: status}, nil
}

func afterSave(_ context.Context, state State) string {
	if state.SaveStatus == SaveFailed && state.SaveRetryCount < MaxSaveRetries {
		return "retry"
	}
	return "done"
}

func (p *Pipeline) retrySave(_ context.Context, state State) (State, error) {
	n := state.SaveRetryCount + 1
	if n < MaxSaveRetries {
		return State{SaveRetryCount: n}, nil
	}
	return State{
		SaveRetryCount: n,
		SaveStatus:     SaveFailed,
		Errors:         []string{fmt.Sprintf("saving %d %s records failed after %d attempts", len(state.TransformedData), state.Kind, n)},
	}, nil
}

func afterRetry(_ context.Context, state State) string {
	if state.SaveRetryCount >= MaxSaveRetries {
		return "done"
	}
	return "retry"
}

func (p *Pipeline) finalize(_ context.Context, state State) (State, error) {
	r := &Result{
		Kind:       state.Kind,
		Processed:  len(state.TransformedData),
		Total:      len(state.Records),
		Errors:     append([]string{}, state.Errors...),
		SaveFailed: state.SaveStatus == SaveFailed,
	}
	if !r.SaveFailed {
		switch state.Destination {
		case DestinationVector:
			r.Vector = state.SavedCount
		default:
			r.DB = state.SavedCount
		}
	}
	return State{Result: r}, nil
}

package graph

import "context"

type emitterKey struct{}

type emitter func(text string) error

func withEmitter(ctx context.Context, fn emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, fn)
}

// EmitToken forwards a generated text chunk to the stream consumer of the
// current run. Outside Stream it does nothing. The returned error is non-nil
// only when the run's context is done, in which case generation should stop.
func EmitToken(ctx context.Context, text string) error {
	fn, ok := ctx.Value(emitterKey{}).(emitter)
	if !ok || text == "" {
		return nil
	}
	return fn(text)
}

// Streaming reports whether tokens emitted on ctx reach a consumer.
func Streaming(ctx context.Context) bool {
	_, ok := ctx.Value(emitterKey{}).(emitter)
	return ok
}

type configKey struct{}

// WithConfig adds the run config to the context.
func WithConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfig returns the config of the current run, or nil.
func GetConfig(ctx context.Context) *Config {
	config, _ := ctx.Value(configKey{}).(*Config)
	return config
}

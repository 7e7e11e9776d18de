// Package llm builds chat models for the configured provider.
//
// Providers form a closed set (openai, ollama, local). Each carries a
// tool-calling capability flag that the chat agent consults before binding
// its tool catalog:
//
//	reg, _ := llm.NewRegistry(nil)
//	model, err := reg.New(ctx, llm.ProviderLocal, llm.Settings{
//		Model:   "qwen2.5-7b-instruct",
//		BaseURL: "http://localhost:8000/v1",
//	})
//
// The openai and ollama providers come from langchaingo. The local provider
// is LocalLLM, a go-openai client for any OpenAI-compatible server.
package llm

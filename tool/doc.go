// Package tool provides the tool catalog the chat agent binds to a model.
//
// Tools implement langchaingo's tools.Tool. A Catalog validates names at
// construction and dispatches model tool calls by exact name:
//
//	catalog, err := tool.NewCatalog(tool.Defaults(brave, knowledge)...)
//	defs := catalog.Definitions()                 // bind with llms.WithTools
//	out := catalog.Dispatch(ctx, name, arguments) // never fails
//
// Built-in tools: calculator, current_time, web_search (Brave Search API)
// and knowledge_search (a rag.VectorStore).
package tool

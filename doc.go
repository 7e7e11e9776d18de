// Tenantflow - Graph-Driven Chat, Spam Triage and Data Ingestion in Go
//
// Tenantflow runs three workflows on one small state graph engine: a
// tool-using chat agent that remembers conversations per thread, a spam
// triage pipeline that routes messages between a fast rule path and a
// detailed policy analysis, and a batch ingestion pipeline that validates,
// normalizes and stores sports data.
//
// # Quick Start
//
// Build the command and talk to the agent:
//
//	go install github.com/smallnest/tenantflow/cmd/tenantflow@latest
//	export OPENAI_API_KEY=...
//	tenantflow chat --thread demo "what is 12 * 7?"
//	tenantflow ingest teams teams.csv
//	tenantflow serve --addr :8080
//
// Or embed the application:
//
//	cfg, _ := config.Load("tenantflow.yaml")
//	a, _ := app.New(ctx, cfg)
//	defer a.Close()
//
//	answer, _ := a.Run(ctx, app.ChatRequest{Text: "hello", ThreadID: "t1"})
//	decision, _ := a.RunSpamTriage(ctx, spamtriage.Item{Subject: "You have won!"})
//	result, _ := a.RunIngestion(ctx, ingestion.KindTeams, records)
//
// # Core Concepts
//
// Every workflow is a graph.StateGraph over a typed state struct. Nodes
// return partial updates that are merged by field: plain fields are
// overwritten when written, fields tagged graph:"append" accumulate and the
// graph:"path" field records every node visited. Conditional edges pick the
// next node by label, and an unmapped label stops the run with
// graph.ErrUnknownRoute.
//
// Runs with a graph.Config carrying a thread id and a store.CheckpointStore
// save their final state, so the next run on the thread can pick it up.
//
// # Package Structure
//
//   - graph: the state graph engine, streaming events, tracing hooks and
//     Mermaid/DOT/ASCII export
//   - chatagent: retrieve, generate and invoke_tools nodes with per-turn
//     answer streaming
//   - spamtriage: gateway, policy_process and final_decision nodes with the
//     heuristic and model-backed classifiers
//   - ingestion: schemas, validation, rule and model normalization, and
//     repositories for SQLite, PostgreSQL, memory and the vector store
//   - collab: runs collaborator calls on a bounded worker pool with timeouts
//     and classifies their failures
//   - llm: model providers (OpenAI, Ollama and OpenAI-compatible local
//     servers); llm/llmtest holds a scripted model for tests
//   - tool: the tool catalog, web search, knowledge search and built-ins
//   - rag: document loading and retrieval; rag/store holds the in-memory
//     vector store
//   - store: checkpoint stores for memory, Redis, SQLite, PostgreSQL and
//     Badger
//   - config, log, metrics: layered configuration, leveled logging and
//     Prometheus metrics
//   - app: wires everything together and serves the HTTP API
//   - cmd/tenantflow: the command line
package tenantflow // import "github.com/smallnest/tenantflow"

// Package chatagent implements the conversational agent graph: an optional
// retrieval step, a model call that may request tools, and a bounded tool
// loop. Translate rebuilds the answer text from a streamed run.
package chatagent

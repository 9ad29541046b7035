// Package usage tracks token spend for generative and embedding calls.
package usage

import "sync/atomic"

// LLM is the token usage of one or more generative calls.
type LLM struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Calls            int `json:"calls"`
}

func (u *LLM) Add(other LLM) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Calls += other.Calls
}

// Embedding is the token usage of one or more embedding calls.
type Embedding struct {
	Tokens int `json:"tokens"`
	Calls  int `json:"calls"`
}

func (u *Embedding) Add(other Embedding) {
	u.Tokens += other.Tokens
	u.Calls += other.Calls
}

// Report combines generative and embedding spend for one operation.
type Report struct {
	LLM       LLM       `json:"llm"`
	Embedding Embedding `json:"embedding"`
}

func (r *Report) Merge(other Report) {
	r.LLM.Add(other.LLM)
	r.Embedding.Add(other.Embedding)
}

// Totals is a process-wide accumulator. Updates are atomic; a lock is never
// held across a provider call.
type Totals struct {
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	llmTotalTokens   atomic.Int64
	llmCalls         atomic.Int64

	embeddingTokens atomic.Int64
	embeddingCalls  atomic.Int64
}

func (t *Totals) AddLLM(u LLM) {
	t.promptTokens.Add(int64(u.PromptTokens))
	t.completionTokens.Add(int64(u.CompletionTokens))
	t.llmTotalTokens.Add(int64(u.TotalTokens))
	t.llmCalls.Add(int64(u.Calls))
}

func (t *Totals) AddReport(r Report) {
	t.AddLLM(r.LLM)
	t.AddEmbedding(r.Embedding)
}

func (t *Totals) AddEmbedding(u Embedding) {
	t.embeddingTokens.Add(int64(u.Tokens))
	t.embeddingCalls.Add(int64(u.Calls))
}

func (t *Totals) LLM() LLM {
	return LLM{
		PromptTokens:     int(t.promptTokens.Load()),
		CompletionTokens: int(t.completionTokens.Load()),
		TotalTokens:      int(t.llmTotalTokens.Load()),
		Calls:            int(t.llmCalls.Load()),
	}
}

func (t *Totals) Embedding() Embedding {
	return Embedding{
		Tokens: int(t.embeddingTokens.Load()),
		Calls:  int(t.embeddingCalls.Load()),
	}
}

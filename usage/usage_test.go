package usage

import (
	"sync"
	"testing"
)

func TestReportMerge(t *testing.T) {
	r := Report{
		LLM:       LLM{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Calls: 1},
		Embedding: Embedding{Tokens: 8, Calls: 1},
	}
	r.Merge(Report{
		LLM:       LLM{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5, Calls: 1},
		Embedding: Embedding{Tokens: 4, Calls: 2},
	})
	want := Report{
		LLM:       LLM{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20, Calls: 2},
		Embedding: Embedding{Tokens: 12, Calls: 3},
	}
	if r != want {
		t.Fatalf("merged = %+v, want %+v", r, want)
	}
}

func TestTotals_ConcurrentAdds(t *testing.T) {
	var totals Totals
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			totals.AddReport(Report{
				LLM:       LLM{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2, Calls: 1},
				Embedding: Embedding{Tokens: 3, Calls: 1},
			})
		}()
	}
	wg.Wait()

	if got := totals.LLM(); got != (LLM{PromptTokens: 50, CompletionTokens: 50, TotalTokens: 100, Calls: 50}) {
		t.Fatalf("llm totals = %+v", got)
	}
	if got := totals.Embedding(); got != (Embedding{Tokens: 150, Calls: 50}) {
		t.Fatalf("embedding totals = %+v", got)
	}
}

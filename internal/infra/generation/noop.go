package generation

import (
	"context"
	"fmt"
	"sync"

	"avisflow/internal/domain/ports/adapter"
)

var _ adapter.GenerationClient = (*NoopClient)(nil)

// NoopClient is an in-memory generation service for dev mode and tests:
// every job reports running once, then done with a canned French text.
type NoopClient struct {
	mu   sync.Mutex
	seq  int64
	seen map[string]int
}

func NewNoopClient() *NoopClient {
	return &NoopClient{seen: make(map[string]int)}
}

func (n *NoopClient) StartJob(ctx context.Context, req adapter.StartJobRequest) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	id := fmt.Sprintf("noop-job-%d", n.seq)
	n.seen[id] = 0
	return id, nil
}

func (n *NoopClient) GetJobStatus(ctx context.Context, jobID string) (*adapter.JobStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	polls, ok := n.seen[jobID]
	if !ok {
		return &adapter.JobStatus{Status: "failed", Error: "unknown job"}, nil
	}
	n.seen[jobID] = polls + 1
	if polls < 1 {
		return &adapter.JobStatus{Status: "running"}, nil
	}
	text := "Cette entreprise locale répond présente et réalise chaque intervention demandée avec sérieux."
	return &adapter.JobStatus{
		Status:           "done",
		GeneratedContent: &adapter.GeneratedContent{Text: &text},
	}, nil
}

func (n *NoopClient) FetchResult(ctx context.Context, resultURL string) (*adapter.GeneratedContent, error) {
	text := "Cette entreprise locale répond présente et réalise chaque intervention demandée avec sérieux."
	return &adapter.GeneratedContent{Text: &text}, nil
}

func (n *NoopClient) DecryptBatch(ctx context.Context, req adapter.DecryptBatchRequest) (*adapter.DecryptBatchResult, error) {
	return &adapter.DecryptBatchResult{
		Summary: fmt.Sprintf("%s à %s conserve une réputation solide auprès de ses clients.", req.CompanyName, req.City),
	}, nil
}

func (n *NoopClient) DecryptMultiBatch(ctx context.Context, reqs []adapter.DecryptBatchRequest, useLLM bool) (*adapter.MultiBatchResult, error) {
	out := &adapter.MultiBatchResult{Total: len(reqs)}
	for _, r := range reqs {
		res, _ := n.DecryptBatch(ctx, r)
		out.Results = append(out.Results, *res)
		out.SuccessCount++
	}
	return out, nil
}

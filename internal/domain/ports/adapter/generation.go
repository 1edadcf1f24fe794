package adapter

import "context"

// StartJobRequest is the payload for POST /api/v1/agent.
type StartJobRequest struct {
	Mode      string            `json:"mode"` // "redaction" | "decryptage_avis"
	CompanyID string            `json:"company_id"`
	Context   map[string]string `json:"context"`
}

// GeneratedContent is the result body of a finished job.
type GeneratedContent struct {
	Text            *string  `json:"text"`
	MetaDescription *string  `json:"meta_description"`
	HasReviews      *bool    `json:"has_reviews,omitempty"`
	Source          string   `json:"source,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
	ConfidenceScore float64  `json:"confidence_score,omitempty"`
}

// JobStatus is the response of GET /api/v1/jobs/{id}.
type JobStatus struct {
	Status           string            `json:"status"` // queued|running|done|failed
	GeneratedContent *GeneratedContent `json:"generated_content,omitempty"`
	ResultURL        string            `json:"result_url,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Review is one raw public review fed to the synchronous decrypt endpoints.
type Review struct {
	Date    string `json:"date"`
	Note    int    `json:"note"`
	Content string `json:"contenu"`
}

// DecryptBatchRequest is the single-company synchronous payload.
type DecryptBatchRequest struct {
	CompanyID   string
	CompanyName string
	City        string
	Country     string
	Subcategory string
	NAFLabel    string
	Reviews     []Review
}

// DecryptBatchResult mirrors POST /api/v1/decryptage/batch.
type DecryptBatchResult struct {
	DecryptedReviews []string `json:"avis_decryptes"`
	Strengths        string   `json:"synthese_points_forts"`
	RecentTrend      string   `json:"tendance_recente"`
	Summary          string   `json:"bilan_synthetique"`
}

// MultiBatchResult mirrors POST /api/v1/decryptage/multi-batch.
type MultiBatchResult struct {
	Total        int                  `json:"total"`
	SuccessCount int                  `json:"success_count"`
	ErrorCount   int                  `json:"error_count"`
	Results      []DecryptBatchResult `json:"results"`
}

// GenerationClient is the stateless boundary to the external generation
// service. Every method is a single bounded network round-trip with no
// internal retry; transport, HTTP and parse failures surface distinctly
// so callers can decide what is transient.
type GenerationClient interface {
	StartJob(ctx context.Context, req StartJobRequest) (jobID string, err error)
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)
	// FetchResult follows a result_url indirection, absolute or relative
	// to the service base URL.
	FetchResult(ctx context.Context, resultURL string) (*GeneratedContent, error)
	DecryptBatch(ctx context.Context, req DecryptBatchRequest) (*DecryptBatchResult, error)
	DecryptMultiBatch(ctx context.Context, reqs []DecryptBatchRequest, useLLM bool) (*MultiBatchResult, error)
}

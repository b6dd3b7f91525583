package scan

import "context"

// The pipeline's out-of-scope collaborators (ticket retrieval, intent
// extraction, candidate search) sit behind these interfaces. The bundled
// implementations are deliberately simple file/heuristic versions; richer
// backends (issue trackers, semantic search) plug in from outside.

// TicketSource fetches and cleans the ticket text driving a scan.
type TicketSource interface {
	Fetch(ctx context.Context, ticketID string) (string, error)
}

// ChangeIntent is the structured reading of a ticket.
type ChangeIntent struct {
	// Action is "CREATE" for new instrumentation, "MODIFY" otherwise.
	Action string `json:"action"`
	// Category buckets the issue, e.g. "CONFIGURATION" or "INSTRUMENTATION".
	Category string `json:"category"`
	// OperationType names the telemetry artifact, e.g. "span" or "metric".
	OperationType string `json:"operation_type"`
	// Keywords are the search terms mined from the ticket text.
	Keywords []string `json:"keywords"`
}

// IntentExtractor turns cleaned ticket text into a ChangeIntent.
type IntentExtractor interface {
	Extract(ctx context.Context, ticketText string) (ChangeIntent, error)
}

// Candidate is one scored file match for an intent.
type Candidate struct {
	FilePath string   `json:"file_path"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons,omitempty"`
}

// CandidateSearcher ranks files likely touched by the intent.
type CandidateSearcher interface {
	Search(ctx context.Context, intent ChangeIntent, limit int) ([]Candidate, error)
}

package store

// ResearchStatus is the state of a background knowledge-research job.
type ResearchStatus string

const (
	ResearchPending    ResearchStatus = "pending"
	ResearchInProgress ResearchStatus = "in_progress"
	ResearchComplete   ResearchStatus = "complete"
	ResearchFailed     ResearchStatus = "failed"
)

// ResearchRecord is cached background knowledge about a thinker, keyed by the
// thinker's canonical name and shared across all conversations. Records are
// created lazily, superseded by refresh, and never deleted.
//
// Invariant: at most one record per name is in_progress at any instant.
// Drivers enforce this with a compare-and-set on status (see
// SetResearchInProgress), never with a lock held across the research call.
type ResearchRecord struct {
	Name         string
	Status       ResearchStatus
	Payload      string // opaque JSON research data; "{}" when empty
	ErrorMessage string // set only when Status is failed
	CreatedTs    int64
	UpdatedTs    int64
	ID           int32
}

type FindResearchRecord struct {
	Name   *string
	Status *ResearchStatus
	// UpdatedBefore filters to records last updated before this unix
	// timestamp. Combined with Status for the stale sweep.
	UpdatedBefore *int64
}

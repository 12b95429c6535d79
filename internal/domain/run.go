package domain

import "time"

// CollectionResult summarizes one entity type's archival pass.
type CollectionResult struct {
	RecordsArchived int64         `json:"records_archived"`
	Duration        time.Duration `json:"duration"`
	CutoffDate      time.Time     `json:"cutoff_date"`
}

// RunResult is the outcome of one orchestrated archival run. It is built
// fresh for every run and never persisted; the job records are the durable trail.
type RunResult struct {
	Success              bool                            `json:"success"`
	DryRun               bool                            `json:"dry_run"`
	CollectionsArchived  map[EntityType]CollectionResult `json:"collections_archived"`
	Skipped              []EntityType                    `json:"skipped,omitempty"`
	TotalRecordsArchived int64                           `json:"total_records_archived"`
	TotalDuration        time.Duration                   `json:"total_duration"`
	Errors               []string                        `json:"errors"`
}

func NewRunResult(dryRun bool) *RunResult {
	return &RunResult{
		Success:             true,
		DryRun:              dryRun,
		CollectionsArchived: make(map[EntityType]CollectionResult),
		Errors:              []string{},
	}
}

// Fail marks the run unsuccessful and records msg.
func (r *RunResult) Fail(msg string) {
	r.Success = false
	r.Errors = append(r.Errors, msg)
}

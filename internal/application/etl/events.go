package etl

import "time"

// RunTotals are the record counts of a run.
type RunTotals struct {
	Read     int `json:"read"`
	Imported int `json:"imported"`
	Excluded int `json:"excluded"`
	Upserted int `json:"upserted"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// RunCompleted is published once a run has handed its catalog to the sinks.
type RunCompleted struct {
	RunID        string    `json:"run_id"`
	Source       string    `json:"source"`
	Totals       RunTotals `json:"totals"`
	Eligible     int       `json:"eligible"`
	Threshold    int       `json:"threshold"`
	Fallback     bool      `json:"fallback"`
	MeanScore    float64   `json:"mean_score"`
	ModelVersion int       `json:"model_version"`
	Warnings     []string  `json:"warnings,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ImportRequested asks a worker to run the pipeline over Source.
type ImportRequested struct {
	Source      string    `json:"source"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at,omitempty"`
}

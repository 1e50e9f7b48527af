package domain

import "time"

// SeriesConsolidated announces a consolidated series written for one variable.
type SeriesConsolidated struct {
	RunID          string    `json:"run_id"`
	Variable       string    `json:"variable"`
	Code           string    `json:"code"`
	Path           string    `json:"path"`
	Snapshots      int       `json:"snapshots"`
	Dropped        int       `json:"duplicates_dropped"`
	FirstTime      ModelTime `json:"first_time"`
	LastTime       ModelTime `json:"last_time"`
	TimeUnits      string    `json:"time_units"`
	ConsolidatedAt time.Time `json:"consolidated_at"`
}

// Identity returns the variable the event describes.
func (e SeriesConsolidated) Identity() VariableIdentity {
	return VariableIdentity{Name: e.Variable, Code: e.Code}
}

package models

import "fmt"

// StrengthVolumeSummary holds aggregated strength training stats for a period.
type StrengthVolumeSummary struct {
	WorkingSets       int     `json:"working_sets"`
	WarmupSets        int     `json:"warmup_sets"`
	TotalReps         int     `json:"total_reps"`
	TonnageKg         float64 `json:"tonnage_kg"`
	AvgSetsPerSession float64 `json:"avg_sets_per_session"`
}

// TrainingSummaryPeriod holds session and set totals for one time period.
type TrainingSummaryPeriod struct {
	Period           string                 `json:"period"`
	Sessions         int                    `json:"sessions"`
	Completed        int                    `json:"completed"`
	Cancelled        int                    `json:"cancelled"`
	TotalDurationSec int                    `json:"total_duration_sec"`
	AvgDurationSec   float64                `json:"avg_duration_sec"`
	ExerciseTimeSec  int                    `json:"exercise_time_sec"`
	Strength         *StrengthVolumeSummary `json:"strength,omitempty"`
}

// ParseSummaryBucket validates a summary period size. Empty means "week".
func ParseSummaryBucket(s string) (string, error) {
	switch s {
	case "":
		return "week", nil
	case "day", "week", "month", "year":
		return s, nil
	}
	return "", fmt.Errorf("unknown summary bucket %q", s)
}

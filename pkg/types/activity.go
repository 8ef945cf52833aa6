package types

import (
	"encoding/json"
	"time"
)

// StandardizedActivity is the normalized activity payload every source is
// converted into before it enters the pipeline.
type StandardizedActivity struct {
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Type        ActivityType `json:"type,omitempty"`
	Source      ActivitySource `json:"source,omitempty"`
	// ExternalId is the vendor's identifier for this activity, used for
	// loop-prevention lookups and pending-input keys.
	ExternalId string     `json:"external_id,omitempty"`
	StartTime  time.Time  `json:"start_time,omitzero"`
	Tags       []string   `json:"tags,omitempty"`
	Sessions   []*Session `json:"sessions,omitempty"`
}

// Session is one continuous recording block (most activities have exactly one).
type Session struct {
	StartTime        time.Time      `json:"start_time,omitzero"`
	TotalElapsedTime float64        `json:"total_elapsed_time,omitempty"` // seconds
	TotalDistance    float64        `json:"total_distance,omitempty"`     // meters
	Laps             []*Lap         `json:"laps,omitempty"`
	StrengthSets     []*StrengthSet `json:"strength_sets,omitempty"`
	Intervals        *IntervalsMeta `json:"intervals,omitempty"`
}

// Lap groups second-by-second records.
type Lap struct {
	StartTime        time.Time `json:"start_time,omitzero"`
	TotalElapsedTime float64   `json:"total_elapsed_time,omitempty"`
	Records          []*Record `json:"records,omitempty"`
}

// Record is a single sample point.
type Record struct {
	Timestamp    time.Time `json:"timestamp,omitzero"`
	HeartRate    int32     `json:"heart_rate,omitempty"`
	Cadence      int32     `json:"cadence,omitempty"`
	Power        int32     `json:"power,omitempty"`
	PositionLat  float64   `json:"position_lat,omitempty"`
	PositionLong float64   `json:"position_long,omitempty"`
	Altitude     float64   `json:"altitude,omitempty"`
	Speed        float64   `json:"speed,omitempty"` // m/s
}

// StrengthSet is one set of a strength exercise.
type StrengthSet struct {
	ExerciseName    string  `json:"exercise_name,omitempty"`
	Reps            int32   `json:"reps,omitempty"`
	WeightKg        float64 `json:"weight_kg,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	SetType         string  `json:"set_type,omitempty"`
}

// IntervalsMeta describes a structured workout (work/rest repeats).
type IntervalsMeta struct {
	WorkoutName string  `json:"workout_name,omitempty"`
	Repeats     int32   `json:"repeats,omitempty"`
	WorkSeconds float64 `json:"work_seconds,omitempty"`
	RestSeconds float64 `json:"rest_seconds,omitempty"`
}

// Clone returns a deep copy. Pipelines mutate activities step by step, so
// each pipeline in a fan-out must operate on its own copy.
func (a *StandardizedActivity) Clone() *StandardizedActivity {
	if a == nil {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		// Marshal of a plain struct cannot fail; keep the signature simple.
		return &StandardizedActivity{}
	}
	var out StandardizedActivity
	if err := json.Unmarshal(raw, &out); err != nil {
		return &StandardizedActivity{}
	}
	return &out
}

// Package logic_gate evaluates configurable rules against an activity and can
// halt the pipeline, acting as a filter step.
package logic_gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pulsesync/server/pkg/domain/activity"
	"github.com/pulsesync/server/pkg/enricher"
	"github.com/pulsesync/server/pkg/types"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "logic_gate" }

func (p *Provider) ProviderType() types.EnricherProviderType {
	return types.EnricherProviderLogicGate
}

type Rule struct {
	Field  string   `json:"field"`
	Op     string   `json:"op"`
	Values []string `json:"values"`
	Negate bool     `json:"negate,omitempty"`
}

type Config struct {
	Rules     []Rule `json:"rules"`
	MatchMode string `json:"match_mode"` // "all", "any", "none"
	OnMatch   string `json:"on_match"`   // "continue" or "halt"
	OnNoMatch string `json:"on_no_match"`
}

func (p *Provider) Enrich(ctx context.Context, logger *slog.Logger, act *types.StandardizedActivity, user *types.UserRecord, inputs map[string]string, doNotRetry bool) (*enricher.EnrichmentResult, error) {
	logger.Debug("logic_gate: starting",
		"activity_type", string(act.Type),
		"activity_name", act.Name,
	)

	var cfg Config

	// Single-JSON config takes precedence over individual fields.
	cfgStr := inputs["logic_config"]
	if strings.TrimSpace(cfgStr) != "" {
		if err := json.Unmarshal([]byte(cfgStr), &cfg); err != nil {
			return nil, fmt.Errorf("logic_gate: invalid JSON config: %w", err)
		}
	} else {
		cfg.MatchMode = inputs["match_mode"]
		cfg.OnMatch = inputs["on_match"]
		cfg.OnNoMatch = inputs["on_no_match"]

		rulesStr := inputs["rules"]
		if rulesStr != "" && rulesStr != "[]" {
			if err := json.Unmarshal([]byte(rulesStr), &cfg.Rules); err != nil {
				return nil, fmt.Errorf("logic_gate: invalid rules JSON: %w", err)
			}
		}
	}

	if cfg.MatchMode == "" {
		cfg.MatchMode = "all"
	}

	matches := make([]bool, len(cfg.Rules))
	for i, r := range cfg.Rules {
		result, err := evaluateRule(r, act)
		if err != nil {
			// Rule errors are non-fatal; treat as non-match.
			logger.Warn("logic_gate rule evaluation error",
				"rule_index", i,
				"field", r.Field,
				"error", err)
			result = false
		}
		if r.Negate {
			result = !result
		}
		matches[i] = result
	}

	overall := false
	switch strings.ToLower(cfg.MatchMode) {
	case "all":
		overall = true
		for _, m := range matches {
			if !m {
				overall = false
				break
			}
		}
	case "any":
		for _, m := range matches {
			if m {
				overall = true
				break
			}
		}
	case "none":
		overall = true
		for _, m := range matches {
			if m {
				overall = false
				break
			}
		}
	default:
		return nil, fmt.Errorf("logic_gate: unknown match_mode %s", cfg.MatchMode)
	}

	halt := false
	haltReason := ""
	if overall {
		if strings.ToLower(cfg.OnMatch) == "halt" {
			halt = true
			haltReason = "logic gate matched"
		}
	} else {
		if strings.ToLower(cfg.OnNoMatch) == "halt" {
			halt = true
			haltReason = "logic gate did not match"
		}
	}

	logger.Debug("logic_gate: decision",
		"overall_match", overall,
		"match_mode", cfg.MatchMode,
		"halt_pipeline", halt,
	)

	return &enricher.EnrichmentResult{
		Metadata: map[string]string{
			"logic_gate_applied": "true",
			"logic_gate_match":   fmt.Sprintf("%v", overall),
		},
		HaltPipeline: halt,
		HaltReason:   haltReason,
	}, nil
}

// evaluateRule checks a single rule against the activity.
func evaluateRule(r Rule, act *types.StandardizedActivity) (bool, error) {
	switch strings.ToLower(r.Field) {
	case "activity_type":
		if len(r.Values) == 0 {
			return false, fmt.Errorf("activity_type rule requires values")
		}
		for _, v := range r.Values {
			if act.Type == activity.ParseActivityType(v) {
				return true, nil
			}
		}
		return false, nil

	case "days":
		if len(r.Values) == 0 {
			return false, fmt.Errorf("days rule requires values")
		}
		curDay := act.StartTime.Weekday().String()[:3]
		curIdx := int(act.StartTime.Weekday())
		for _, v := range r.Values {
			v = strings.TrimSpace(v)
			if strings.EqualFold(v, curDay) {
				return true, nil
			}
			if idx, err := strconv.Atoi(v); err == nil && idx == curIdx {
				return true, nil
			}
		}
		return false, nil

	case "time_start":
		if len(r.Values) == 0 {
			return false, fmt.Errorf("time_start rule requires a value")
		}
		limitMins, err := parseClock(r.Values[0])
		if err != nil {
			return false, err
		}
		curMins := act.StartTime.Hour()*60 + act.StartTime.Minute()
		switch strings.ToLower(r.Op) {
		case "gt":
			return curMins > limitMins, nil
		case "lt":
			return curMins < limitMins, nil
		case "eq":
			return curMins == limitMins, nil
		default:
			return curMins >= limitMins, nil
		}

	case "time_end":
		if len(r.Values) == 0 {
			return false, fmt.Errorf("time_end rule requires a value")
		}
		limitMins, err := parseClock(r.Values[0])
		if err != nil {
			return false, err
		}
		end := activityEnd(act)
		curMins := end.Hour()*60 + end.Minute()
		return curMins <= limitMins, nil

	case "distance_meters":
		if len(r.Values) == 0 {
			return false, fmt.Errorf("distance_meters rule requires a value")
		}
		limit, err := strconv.ParseFloat(r.Values[0], 64)
		if err != nil {
			return false, fmt.Errorf("invalid distance value %s", r.Values[0])
		}
		var total float64
		for _, s := range act.Sessions {
			total += s.TotalDistance
		}
		switch strings.ToLower(r.Op) {
		case "lt":
			return total < limit, nil
		case "gt":
			return total > limit, nil
		default:
			return total >= limit, nil
		}

	case "location":
		if len(r.Values) < 3 {
			return false, fmt.Errorf("location rule requires lat, long, radius")
		}
		lat, err1 := strconv.ParseFloat(r.Values[0], 64)
		lng, err2 := strconv.ParseFloat(r.Values[1], 64)
		rad, err3 := strconv.ParseFloat(r.Values[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return false, fmt.Errorf("invalid location values")
		}
		actLat, actLng, ok := startLocation(act)
		if !ok {
			return false, nil
		}
		return distanceMeters(actLat, actLng, lat, lng) <= rad, nil

	case "title_contains":
		if len(r.Values) == 0 {
			return false, fmt.Errorf("title_contains rule requires a value")
		}
		return strings.Contains(strings.ToLower(act.Name), strings.ToLower(r.Values[0])), nil

	case "description_contains":
		if len(r.Values) == 0 {
			return false, fmt.Errorf("description_contains rule requires a value")
		}
		return strings.Contains(strings.ToLower(act.Description), strings.ToLower(r.Values[0])), nil

	default:
		return false, fmt.Errorf("unsupported field %s", r.Field)
	}
}

func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format %s", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("invalid time numbers")
	}
	return h*60 + m, nil
}

func activityEnd(act *types.StandardizedActivity) time.Time {
	end := act.StartTime
	for _, s := range act.Sessions {
		end = end.Add(time.Duration(s.TotalElapsedTime) * time.Second)
	}
	return end
}

// startLocation extracts the first GPS point from the activity.
func startLocation(act *types.StandardizedActivity) (lat, lng float64, ok bool) {
	for _, sess := range act.Sessions {
		for _, lap := range sess.Laps {
			for _, rec := range lap.Records {
				if rec.PositionLat != 0 || rec.PositionLong != 0 {
					return rec.PositionLat, rec.PositionLong, true
				}
			}
		}
	}
	return 0, 0, false
}

// distanceMeters computes haversine distance.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dphi := (lat2 - lat1) * math.Pi / 180
	dlambda := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dphi/2)*math.Sin(dphi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

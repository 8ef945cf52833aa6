package ai_companion

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/pulsesync/server/pkg/types"
)

func athleteUser() *types.UserRecord {
	return &types.UserRecord{Id: "user-1", Tier: types.UserTierAthlete}
}

func TestEnrich_HobbyistTierSkips(t *testing.T) {
	p := New("key")
	res, err := p.Enrich(context.Background(), slog.Default(), &types.StandardizedActivity{}, &types.UserRecord{Id: "user-1"}, map[string]string{}, false)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Metadata["reason"] != "tier_restricted" {
		t.Errorf("hobbyist users must be skipped: %v", res.Metadata)
	}
	if res.Description != "" || res.Name != "" {
		t.Errorf("skip must not produce content: %+v", res)
	}
}

func TestEnrich_MissingAPIKeySkips(t *testing.T) {
	p := New("")
	res, err := p.Enrich(context.Background(), slog.Default(), &types.StandardizedActivity{}, athleteUser(), map[string]string{}, false)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Metadata["reason"] != "api_key_not_configured" {
		t.Errorf("missing key must skip, not fail: %v", res.Metadata)
	}
}

func TestShouldDefer(t *testing.T) {
	if !New("key").ShouldDefer() {
		t.Error("provider must run after the main chain")
	}
}

func TestBuildActivityContext(t *testing.T) {
	activity := &types.StandardizedActivity{
		Name: "Morning Run",
		Type: types.ActivityTypeRun,
		Sessions: []*types.Session{
			{
				TotalElapsedTime: 1800,
				TotalDistance:    5000,
				Laps: []*types.Lap{
					{Records: []*types.Record{
						{HeartRate: 140},
						{HeartRate: 160},
						{HeartRate: 150},
					}},
				},
			},
		},
	}

	got := buildActivityContext(activity, "🔥 Calories: 500 kcal")

	for _, want := range []string{
		"Original Name: Morning Run",
		"Duration: 30.0 minutes",
		"Distance: 5.00 km",
		"Avg 150 bpm, Max 160 bpm, Min 140 bpm",
		"Current Description:\n🔥 Calories: 500 kcal",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context missing %q:\n%s", want, got)
		}
	}
}

func TestBuildActivityContext_StrengthSets(t *testing.T) {
	activity := &types.StandardizedActivity{
		Type: types.ActivityTypeWeightTraining,
		Sessions: []*types.Session{
			{StrengthSets: []*types.StrengthSet{
				{ExerciseName: "Bench Press"},
				{ExerciseName: "Bench Press"},
				{ExerciseName: "Deadlift"},
			}},
		},
	}

	got := buildActivityContext(activity, "")
	if !strings.Contains(got, "Bench Press x2 sets") || !strings.Contains(got, "Deadlift x1 sets") {
		t.Errorf("exercise summary missing:\n%s", got)
	}
}

func TestParseResponse(t *testing.T) {
	res := parseResponse("title", "\"Dawn Patrol 10K\"\n")
	if res.Title != "Dawn Patrol 10K" {
		t.Errorf("title mode: %+v", res)
	}

	res = parseResponse("both", "TITLE: \"Tempo Tuesday\"\nDESCRIPTION: A controlled tempo effort with steady splits.")
	if res.Title != "Tempo Tuesday" {
		t.Errorf("both mode title: %+v", res)
	}
	if res.Description != "A controlled tempo effort with steady splits." {
		t.Errorf("both mode description: %+v", res)
	}

	res = parseResponse("description", "Strong negative split over the back half.")
	if res.Description != "Strong negative split over the back half." || res.Title != "" {
		t.Errorf("description mode: %+v", res)
	}
}

func TestBuildPrompt_Modes(t *testing.T) {
	if !strings.Contains(buildPrompt("title", "ctx"), "ONLY the title") {
		t.Error("title prompt missing instruction")
	}
	if !strings.Contains(buildPrompt("both", "ctx"), "TITLE:") {
		t.Error("both prompt missing format spec")
	}
	if !strings.Contains(buildPrompt("description", "ctx"), "ONLY the description") {
		t.Error("description prompt missing instruction")
	}
}

package migration_test

import (
	"context"
	"testing"

	"tideline/internal/domain"
	"tideline/internal/migration"
	"tideline/internal/phase"
)

func TestChecklistReadinessWeighted(t *testing.T) {
	source := map[string]any{
		"checklist": []domain.ChecklistItem{
			{Title: "Check life jackets", Category: "safety", IsCompleted: true},
			{Title: "Pack snacks", Category: "optional", IsCompleted: false},
		},
		"weather":      domain.WeatherSnapshot{Temperature: 21, WindSpeed: 12},
		"participants": []map[string]any{{"id": "capt-1", "role": "captain"}},
	}
	res := migration.Defaults().Execute(context.Background(), phase.Preparation, phase.Live, source, nil)
	if !res.Success {
		t.Fatalf("migration failed: %v", res.Errors)
	}
	status, ok := res.Data["preparationStatus"].(map[string]any)
	if !ok {
		t.Fatalf("preparationStatus missing: %v", res.Data)
	}
	if status["totalTasks"] != 2 || status["completedTasks"] != 1 {
		t.Fatalf("task counts wrong: %v", status)
	}
	// 1 of 2 tasks done is 50%, but the done one is safety-weighted: 3/3.5 -> 86
	if status["completionPercentage"] != 50 {
		t.Fatalf("completion percentage: %v", status["completionPercentage"])
	}
	if status["readinessScore"] != 86 {
		t.Fatalf("readiness score: %v", status["readinessScore"])
	}
	pending, _ := status["pendingTasks"].([]string)
	if len(pending) != 1 || pending[0] != "Pack snacks" {
		t.Fatalf("pending tasks: %v", status["pendingTasks"])
	}
	if _, ok := res.Data["currentWeather"]; !ok {
		t.Fatalf("weather not carried over")
	}
	if _, ok := res.Data["roster"]; !ok {
		t.Fatalf("roster not carried over")
	}
}

func TestChecklistReadinessMissingIsRequired(t *testing.T) {
	res := migration.Defaults().Execute(context.Background(), phase.Preparation, phase.Live, map[string]any{}, nil)
	if res.Success {
		t.Fatalf("missing checklist must fail the migration")
	}
}

func TestDebriefSummaries(t *testing.T) {
	source := map[string]any{
		"catches": []domain.CatchRecord{
			{Species: "tuna", Weight: 12, Spot: "reef"},
			{Species: "Tuna", Weight: 8, Spot: "reef"},
			{Species: "snapper", Weight: 5, Spot: "bank"},
		},
		"locationHistory": []domain.LocationPoint{
			{Lat: 0, Lng: 0},
			{Lat: 0, Lng: 1},
		},
		"weatherLog": []domain.WeatherSnapshot{
			{Temperature: 18, WindSpeed: 10},
			{Temperature: 22, WindSpeed: 20},
		},
	}
	res := migration.Defaults().Execute(context.Background(), phase.Live, phase.Debrief, source, nil)
	if !res.Success {
		t.Fatalf("migration failed: %v", res.Errors)
	}
	summary, ok := res.Data["tripSummary"].(map[string]any)
	if !ok {
		t.Fatalf("tripSummary missing: %v", res.Data)
	}

	catches := summary["catches"].(map[string]any)
	if catches["total"] != 3 {
		t.Fatalf("total: %v", catches["total"])
	}
	if catches["totalWeight"] != 25.0 {
		t.Fatalf("totalWeight: %v", catches["totalWeight"])
	}
	if catches["averageWeight"] != 8.33 {
		t.Fatalf("averageWeight: %v", catches["averageWeight"])
	}
	if catches["uniqueSpecies"] != 2 {
		t.Fatalf("uniqueSpecies: %v", catches["uniqueSpecies"])
	}
	biggest := catches["biggestCatch"].(map[string]any)
	if biggest["weight"] != 12.0 {
		t.Fatalf("biggest catch: %v", biggest)
	}

	route := summary["route"].(map[string]any)
	if route["waypoints"] != 2 {
		t.Fatalf("waypoints: %v", route["waypoints"])
	}
	// one degree of longitude on the equator
	if route["distanceKm"] != 111.19 {
		t.Fatalf("distanceKm: %v", route["distanceKm"])
	}

	weather := summary["weather"].(map[string]any)
	if weather["samples"] != 2 || weather["maxWindSpeed"] != 20.0 || weather["avgTemperature"] != 20.0 {
		t.Fatalf("weather digest: %v", weather)
	}
}

func TestNextTripSuggestions(t *testing.T) {
	source := map[string]any{
		"reviews": []domain.Review{
			{Rating: 4, Comment: "Bring more bait next time"},
			{Rating: 3, Comment: "the bait ran out"},
			{Rating: 5, Comment: "windy weather all day"},
			{Rating: 5},
		},
		"catches": []domain.CatchRecord{
			{Species: "tuna", Weight: 5, Spot: "reef"},
			{Species: "tuna", Weight: 7, Spot: "reef"},
			{Species: "snapper", Weight: 3, Spot: "bank"},
			{Species: "undersized", Weight: 0, Spot: "pier"},
		},
	}
	res := migration.Defaults().Execute(context.Background(), phase.Debrief, phase.Preparation, source, nil)
	if !res.Success {
		t.Fatalf("migration failed: %v", res.Errors)
	}

	suggestions, ok := res.Data["improvementSuggestions"].([]map[string]any)
	if !ok || len(suggestions) != 2 {
		t.Fatalf("suggestions: %v", res.Data["improvementSuggestions"])
	}
	if suggestions[0]["topic"] != "bait" || suggestions[0]["mentions"] != 2 {
		t.Fatalf("top suggestion: %v", suggestions[0])
	}
	if suggestions[1]["topic"] != "weather" {
		t.Fatalf("second suggestion: %v", suggestions[1])
	}

	spots, ok := res.Data["recommendedSpots"].([]map[string]any)
	if !ok || len(spots) != 2 {
		t.Fatalf("spots: %v", res.Data["recommendedSpots"])
	}
	if spots[0]["spot"] != "reef" || spots[0]["totalWeight"] != 12.0 || spots[0]["catches"] != 2 {
		t.Fatalf("top spot: %v", spots[0])
	}
	if spots[1]["spot"] != "bank" {
		t.Fatalf("second spot: %v", spots[1])
	}
}

package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"tideline/internal/domain"
	"tideline/internal/phase"
)

// Category weights for the readiness score. Safety-critical preparation
// counts far more than nice-to-haves, so a half-done checklist with the
// safety items ticked still scores high.
var categoryWeights = map[string]float64{
	"safety":        3,
	"navigation":    2.5,
	"equipment":     2,
	"documentation": 1.5,
	"food":          1,
	"optional":      0.5,
}

const defaultCategoryWeight = 1.0

// Defaults returns a registry pre-loaded with the standard trip lifecycle
// migrations.
func Defaults() *Registry {
	r := NewRegistry()

	r.Register(&Migration{
		From: phase.Preparation,
		To:   phase.Live,
		Rules: []Rule{
			{
				ID:          "checklist-readiness",
				Description: "aggregate checklist completion into a weighted readiness score",
				SourceKey:   "checklist",
				TargetKey:   "preparationStatus",
				Transform:   checklistReadiness,
				Validate:    isObject,
				Required:    true,
			},
			{
				ID:          "weather-carryover",
				Description: "carry the latest preparation weather snapshot into the live phase",
				SourceKey:   "weather",
				TargetKey:   "currentWeather",
			},
			{
				ID:          "participant-roster",
				Description: "carry the participant roster into the live phase",
				SourceKey:   "participants",
				TargetKey:   "roster",
			},
		},
	})

	r.Register(&Migration{
		From: phase.Live,
		To:   phase.Debrief,
		Rules: []Rule{
			{
				ID:          "catch-summary",
				Description: "summarize catch records for the debrief",
				SourceKey:   "catches",
				TargetKey:   "tripSummary.catches",
				Transform:   catchSummary,
				Validate:    isObject,
				Required:    true,
			},
			{
				ID:          "route-distance",
				Description: "aggregate the location history into total route distance",
				SourceKey:   "locationHistory",
				TargetKey:   "tripSummary.route",
				Transform:   routeDistance,
			},
			{
				ID:          "weather-log",
				Description: "condense the live weather log",
				SourceKey:   "weatherLog",
				TargetKey:   "tripSummary.weather",
				Transform:   weatherDigest,
			},
		},
	})

	r.Register(&Migration{
		From: phase.Debrief,
		To:   phase.Preparation,
		Rules: []Rule{
			{
				ID:          "improvement-suggestions",
				Description: "mine review comments for recurring improvement topics",
				SourceKey:   "reviews",
				TargetKey:   "improvementSuggestions",
				Transform:   improvementSuggestions,
			},
			{
				ID:          "recommended-spots",
				Description: "rank fishing spots by landed weight for the next trip",
				SourceKey:   "catches",
				TargetKey:   "recommendedSpots",
				Transform:   recommendedSpots,
			},
		},
	})

	return r
}

// decode round-trips an arbitrary data-bag value into a typed shape, so
// transformers accept both typed slices (repo-loaded) and raw JSON maps
// (API-supplied).
func decode[T any](v any) (T, error) {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode source value: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("decode source value: %w", err)
	}
	return out, nil
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func checklistReadiness(_ context.Context, v any, _ *phase.Context) (any, error) {
	items, err := decode[[]domain.ChecklistItem](v)
	if err != nil {
		return nil, err
	}

	total := len(items)
	completed := 0
	var weightSum, weightDone float64
	var pending []string
	for _, item := range items {
		w, ok := categoryWeights[item.Category]
		if !ok {
			w = defaultCategoryWeight
		}
		weightSum += w
		if item.IsCompleted {
			completed++
			weightDone += w
		} else {
			pending = append(pending, item.Title)
		}
	}

	percentage := 0
	readiness := 0
	if total > 0 {
		percentage = int(math.Round(float64(completed) / float64(total) * 100))
	}
	if weightSum > 0 {
		readiness = int(math.Round(weightDone / weightSum * 100))
	}

	return map[string]any{
		"totalTasks":           total,
		"completedTasks":       completed,
		"completionPercentage": percentage,
		"readinessScore":       readiness,
		"pendingTasks":         pending,
	}, nil
}

func catchSummary(_ context.Context, v any, _ *phase.Context) (any, error) {
	catches, err := decode[[]domain.CatchRecord](v)
	if err != nil {
		return nil, err
	}

	summary := map[string]any{
		"total":         len(catches),
		"totalWeight":   0.0,
		"averageWeight": 0.0,
		"uniqueSpecies": 0,
	}
	if len(catches) == 0 {
		return summary, nil
	}

	var totalWeight float64
	species := map[string]bool{}
	biggest := catches[0]
	for _, c := range catches {
		totalWeight += c.Weight
		if c.Species != "" {
			species[strings.ToLower(c.Species)] = true
		}
		if c.Weight > biggest.Weight {
			biggest = c
		}
	}
	summary["totalWeight"] = round2(totalWeight)
	summary["averageWeight"] = round2(totalWeight / float64(len(catches)))
	summary["uniqueSpecies"] = len(species)
	summary["biggestCatch"] = map[string]any{
		"species": biggest.Species,
		"weight":  biggest.Weight,
	}
	return summary, nil
}

func routeDistance(_ context.Context, v any, _ *phase.Context) (any, error) {
	points, err := decode[[]domain.LocationPoint](v)
	if err != nil {
		return nil, err
	}
	var distance float64
	for i := 1; i < len(points); i++ {
		distance += haversineKm(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return map[string]any{
		"waypoints":  len(points),
		"distanceKm": round2(distance),
	}, nil
}

// haversineKm is the great-circle distance between two lat/lng waypoints.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func weatherDigest(_ context.Context, v any, _ *phase.Context) (any, error) {
	samples, err := decode[[]domain.WeatherSnapshot](v)
	if err != nil {
		return nil, err
	}
	digest := map[string]any{"samples": len(samples)}
	if len(samples) == 0 {
		return digest, nil
	}
	var maxWind, tempSum float64
	for _, s := range samples {
		if s.WindSpeed > maxWind {
			maxWind = s.WindSpeed
		}
		tempSum += s.Temperature
	}
	digest["maxWindSpeed"] = round2(maxWind)
	digest["avgTemperature"] = round2(tempSum / float64(len(samples)))
	return digest, nil
}

// suggestionTopics maps an improvement topic to the keywords that signal it
// in free-form review text.
var suggestionTopics = map[string][]string{
	"bait":          {"bait", "lure", "chum"},
	"equipment":     {"rod", "reel", "gear", "equipment", "tackle"},
	"timing":        {"early", "late", "timing", "schedule", "departure"},
	"weather":       {"weather", "wind", "rain", "swell", "forecast"},
	"location":      {"spot", "location", "area", "reef"},
	"communication": {"chat", "update", "communication", "announce"},
}

func improvementSuggestions(_ context.Context, v any, _ *phase.Context) (any, error) {
	reviews, err := decode[[]domain.Review](v)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, review := range reviews {
		comment := strings.ToLower(review.Comment)
		if comment == "" {
			continue
		}
		for topic, keywords := range suggestionTopics {
			for _, kw := range keywords {
				if strings.Contains(comment, kw) {
					counts[topic]++
					break
				}
			}
		}
	}

	type suggestion struct {
		Topic    string `json:"topic"`
		Mentions int    `json:"mentions"`
	}
	var ranked []suggestion
	for topic, n := range counts {
		ranked = append(ranked, suggestion{Topic: topic, Mentions: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Mentions != ranked[j].Mentions {
			return ranked[i].Mentions > ranked[j].Mentions
		}
		return ranked[i].Topic < ranked[j].Topic
	})

	out := make([]map[string]any, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, map[string]any{"topic": s.Topic, "mentions": s.Mentions})
	}
	return out, nil
}

// maxRecommendedSpots caps the spot ranking carried into the next trip.
const maxRecommendedSpots = 5

func recommendedSpots(_ context.Context, v any, _ *phase.Context) (any, error) {
	catches, err := decode[[]domain.CatchRecord](v)
	if err != nil {
		return nil, err
	}

	type spot struct {
		name        string
		totalWeight float64
		catches     int
		lat, lng    float64
		located     int
	}
	spots := map[string]*spot{}
	var order []string
	for _, c := range catches {
		if c.Weight <= 0 {
			continue
		}
		name := c.Spot
		if name == "" && c.Lat != nil && c.Lng != nil {
			name = fmt.Sprintf("%.3f,%.3f", *c.Lat, *c.Lng)
		}
		if name == "" {
			continue
		}
		s, ok := spots[name]
		if !ok {
			s = &spot{name: name}
			spots[name] = s
			order = append(order, name)
		}
		s.totalWeight += c.Weight
		s.catches++
		if c.Lat != nil && c.Lng != nil {
			s.lat += *c.Lat
			s.lng += *c.Lng
			s.located++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return spots[order[i]].totalWeight > spots[order[j]].totalWeight
	})
	if len(order) > maxRecommendedSpots {
		order = order[:maxRecommendedSpots]
	}

	out := make([]map[string]any, 0, len(order))
	for _, name := range order {
		s := spots[name]
		entry := map[string]any{
			"spot":        s.name,
			"totalWeight": round2(s.totalWeight),
			"catches":     s.catches,
		}
		if s.located > 0 {
			entry["lat"] = round2(s.lat / float64(s.located))
			entry["lng"] = round2(s.lng / float64(s.located))
		}
		out = append(out, entry)
	}
	return out, nil
}

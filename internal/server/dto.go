package server

import (
	"time"

	"tideline/internal/phase"
)

type CreateTripRequest struct {
	Name      string `json:"name" example:"Reef run"`
	CaptainID string `json:"captain_id" example:"capt-ahab"`
	TripDate  string `json:"trip_date" format:"date-time"`
}

type AddChecklistItemRequest struct {
	Title    string `json:"title" example:"Check life jackets"`
	Category string `json:"category,omitempty" enum:"safety,navigation,equipment,documentation,food,optional"`
}

type CheckItemRequest struct {
	Done bool `json:"done"`
}

type AddCatchRequest struct {
	Species  string   `json:"species" example:"tuna"`
	Weight   float64  `json:"weight" minimum:"0"`
	Spot     string   `json:"spot,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	CaughtAt string   `json:"caught_at,omitempty" format:"date-time"`
}

type AddReviewRequest struct {
	Rating  int    `json:"rating" minimum:"1" maximum:"5"`
	Comment string `json:"comment,omitempty"`
}

type AddLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type AddWeatherRequest struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windSpeed"`
	Conditions  string  `json:"conditions,omitempty"`
}

type TransitionRequest struct {
	To   string         `json:"to" enum:"preparation,live,debrief"`
	Data map[string]any `json:"data,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type ValidateTransitionRequest struct {
	To   string         `json:"to" enum:"preparation,live,debrief"`
	Data map[string]any `json:"data,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type ConfigPatchRequest struct {
	AutoTransitions *bool   `json:"auto_transitions,omitempty"`
	DataMigration   *bool   `json:"data_migration,omitempty"`
	CheckInterval   *string `json:"check_interval,omitempty" example:"30s"`
}

type PhaseStatusResponse struct {
	TripID            string              `json:"trip_id"`
	Phase             string              `json:"phase" enum:"preparation,live,debrief"`
	NextPhase         string              `json:"next_phase" enum:"preparation,live,debrief"`
	CurrentTransition *TransitionResponse `json:"current_transition,omitempty"`
	LastError         *phase.Error        `json:"last_error,omitempty"`
}

type TransitionResponse struct {
	ID          string   `json:"id"`
	From        string   `json:"from_phase"`
	To          string   `json:"to_phase"`
	Trigger     string   `json:"trigger"`
	Status      string   `json:"status"`
	TriggeredAt string   `json:"triggered_at" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
	DurationMS  int64    `json:"duration_ms"`
	Errors      []string `json:"errors,omitempty"`
}

type HistoryEntryResponse struct {
	Phase      string  `json:"phase"`
	EnteredAt  string  `json:"entered_at" format:"date-time"`
	ExitedAt   *string `json:"exited_at,omitempty" format:"date-time"`
	DurationMS int64   `json:"duration_ms"`
	Trigger    string  `json:"trigger"`
}

type HistoryResponse struct {
	TripID          string                 `json:"trip_id"`
	Entries         []HistoryEntryResponse `json:"entries"`
	TotalDurationMS int64                  `json:"total_duration_ms"`
	TransitionCount int                    `json:"transition_count"`
	LastUpdated     string                 `json:"last_updated" format:"date-time"`
}

type ValidationResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type ConfigResponse struct {
	AutoTransitions bool   `json:"auto_transitions"`
	DataMigration   bool   `json:"data_migration"`
	CheckInterval   string `json:"check_interval" example:"30s"`
}

func transitionResponse(t *phase.Transition) *TransitionResponse {
	if t == nil {
		return nil
	}
	resp := &TransitionResponse{
		ID:          t.ID,
		From:        string(t.From),
		To:          string(t.To),
		Trigger:     string(t.Trigger),
		Status:      string(t.Status),
		TriggeredAt: t.TriggeredAt.UTC().Format(time.RFC3339Nano),
		DurationMS:  t.Duration.Milliseconds(),
		Errors:      t.Errors,
	}
	if t.CompletedAt != nil {
		completed := t.CompletedAt.UTC().Format(time.RFC3339Nano)
		resp.CompletedAt = &completed
	}
	return resp
}

func historyResponse(h phase.History) HistoryResponse {
	resp := HistoryResponse{
		TripID:          h.TripID,
		Entries:         []HistoryEntryResponse{},
		TotalDurationMS: h.TotalDuration.Milliseconds(),
		TransitionCount: h.TransitionCount,
		LastUpdated:     h.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
	for _, e := range h.Entries {
		entry := HistoryEntryResponse{
			Phase:      string(e.Phase),
			EnteredAt:  e.EnteredAt.UTC().Format(time.RFC3339Nano),
			DurationMS: e.Duration.Milliseconds(),
			Trigger:    string(e.Trigger),
		}
		if e.ExitedAt != nil {
			exited := e.ExitedAt.UTC().Format(time.RFC3339Nano)
			entry.ExitedAt = &exited
		}
		resp.Entries = append(resp.Entries, entry)
	}
	return resp
}

func validationResponse(r phase.ValidationResult) ValidationResponse {
	return ValidationResponse{Valid: r.Valid, Errors: r.Errors, Warnings: r.Warnings}
}

func configResponse(c phase.Config) ConfigResponse {
	return ConfigResponse{
		AutoTransitions: c.AutoTransitions,
		DataMigration:   c.DataMigration,
		CheckInterval:   c.CheckInterval.String(),
	}
}

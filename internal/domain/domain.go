package domain

type Trip struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CaptainID string `json:"captain_id"`
	TripDate  string `json:"trip_date" format:"date-time"`
	Phase     string `json:"phase" enum:"preparation,live,debrief"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type ChecklistItem struct {
	ID          string `json:"id"`
	TripID      string `json:"trip_id"`
	Title       string `json:"title"`
	Category    string `json:"category" enum:"safety,navigation,equipment,documentation,food,optional"`
	IsCompleted bool   `json:"isCompleted"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type CatchRecord struct {
	ID       string   `json:"id"`
	TripID   string   `json:"trip_id"`
	Species  string   `json:"species"`
	Weight   float64  `json:"weight"`
	Spot     string   `json:"spot,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	CaughtAt string   `json:"caught_at" format:"date-time"`
}

type WeatherSnapshot struct {
	TripID      string  `json:"trip_id"`
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windSpeed"`
	Conditions  string  `json:"conditions,omitempty"`
	RecordedAt  string  `json:"recorded_at" format:"date-time"`
}

type LocationPoint struct {
	TripID     string  `json:"trip_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	RecordedAt string  `json:"recorded_at" format:"date-time"`
}

type Review struct {
	ID        string `json:"id"`
	TripID    string `json:"trip_id"`
	AuthorID  string `json:"author_id"`
	Rating    int    `json:"rating" minimum:"1" maximum:"5"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type PhaseHistoryEntry struct {
	ID         int64   `json:"id"`
	TripID     string  `json:"trip_id"`
	Phase      string  `json:"phase" enum:"preparation,live,debrief"`
	EnteredAt  string  `json:"entered_at" format:"date-time"`
	ExitedAt   *string `json:"exited_at,omitempty" format:"date-time"`
	DurationMS int64   `json:"duration_ms"`
	Trigger    string  `json:"trigger" enum:"manual,automatic"`
}

type TransitionRecord struct {
	ID          string  `json:"id"`
	TripID      string  `json:"trip_id"`
	FromPhase   string  `json:"from_phase"`
	ToPhase     string  `json:"to_phase"`
	Trigger     string  `json:"trigger" enum:"manual,automatic"`
	Status      string  `json:"status" enum:"pending,in_progress,completed,failed"`
	TriggeredAt string  `json:"triggered_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	DurationMS  int64   `json:"duration_ms"`
	Error       string  `json:"error,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TripID     string `json:"trip_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

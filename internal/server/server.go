package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"tideline/internal/app"
	"tideline/internal/domain"
	"tideline/internal/migration"
	"tideline/internal/phase"
	"tideline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	App      *app.App
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"VALIDATION_FAILED"`
	Message string         `json:"message" example:"no transition rule from live to preparation"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Tideline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Tideline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTrips(group, cfg.App)
	registerChecklist(group, cfg.App)
	registerCatches(group, cfg.App)
	registerReviews(group, cfg.App)
	registerLocations(group, cfg.App)
	registerWeather(group, cfg.App)
	registerPhase(group, cfg.App)
	registerEvents(group, cfg.App)
	registerMe(group)
	registerDevAuth(group, cfg.Auth, cfg.App)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError translates engine and repo failures into the envelope. The
// transition error taxonomy maps onto HTTP statuses; everything else falls
// through to a generic internal error.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pe *phase.Error
	if errors.As(err, &pe) {
		status := http.StatusInternalServerError
		switch pe.Code {
		case phase.CodeValidationFailed:
			status = http.StatusUnprocessableEntity
		case phase.CodePermissionDenied:
			status = http.StatusForbidden
		case phase.CodeTransitionRequestFailed:
			status = http.StatusConflict
		case phase.CodeTransitionExecutionFailed, phase.CodeInitializationFailed:
			status = http.StatusInternalServerError
		}
		return newAPIError(status, pe.Code, pe.Message, pe.Details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	openPaths := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Tideline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTrips(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-trip",
		Method:        http.MethodPost,
		Path:          "/trips",
		Summary:       "Create trip",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTripRequest `json:"body"`
	}) (*struct {
		Body domain.Trip `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		captain := input.Body.CaptainID
		if captain == "" {
			captain = principal.ActorID
		}
		tripDate, err := time.Parse(time.RFC3339, input.Body.TripDate)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "trip_date must be RFC3339", map[string]any{"field": "trip_date"})
		}
		trip, err := a.CreateTrip(ctx, input.Body.Name, captain, tripDate, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Trip `json:"body"`
		}{Body: trip}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-trips",
		Method:      http.MethodGet,
		Path:        "/trips",
		Summary:     "List trips",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Trip `json:"body"`
	}, error) {
		trips, err := a.Repo.ListTrips(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if trips == nil {
			trips = []domain.Trip{}
		}
		return &struct {
			Body []domain.Trip `json:"body"`
		}{Body: trips}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-trip",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}",
		Summary:     "Get trip",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
	}) (*struct {
		Body domain.Trip `json:"body"`
	}, error) {
		trip, err := a.Repo.GetTrip(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Trip `json:"body"`
		}{Body: trip}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-trip",
		Method:      http.MethodDelete,
		Path:        "/trips/{trip_id}",
		Summary:     "Delete trip",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !phase.HasMinimumRole(principal.Role, phase.RoleCaptain) {
			return nil, newAPIError(http.StatusForbidden, phase.CodePermissionDenied, "only captains may delete trips", nil)
		}
		if err := a.Repo.DeleteTrip(ctx, input.TripID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerChecklist(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-checklist-item",
		Method:        http.MethodPost,
		Path:          "/trips/{trip_id}/checklist",
		Summary:       "Add checklist item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string                  `path:"trip_id"`
		Body   AddChecklistItemRequest `json:"body"`
	}) (*struct {
		Body domain.ChecklistItem `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		item, err := a.AddChecklistItem(ctx, input.TripID, input.Body.Title, input.Body.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checklist",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/checklist",
		Summary:     "List checklist items",
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
	}) (*struct {
		Body []domain.ChecklistItem `json:"body"`
	}, error) {
		items, err := a.Repo.ListChecklist(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.ChecklistItem{}
		}
		return &struct {
			Body []domain.ChecklistItem `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-checklist-item",
		Method:      http.MethodPost,
		Path:        "/trips/{trip_id}/checklist/{item_id}/check",
		Summary:     "Mark checklist item done or pending",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string           `path:"trip_id"`
		ItemID string           `path:"item_id"`
		Body   CheckItemRequest `json:"body"`
	}) (*struct{}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		if err := a.Repo.SetChecklistItemDone(ctx, input.TripID, input.ItemID, input.Body.Done); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCatches(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-catch",
		Method:        http.MethodPost,
		Path:          "/trips/{trip_id}/catches",
		Summary:       "Record a catch",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string          `path:"trip_id"`
		Body   AddCatchRequest `json:"body"`
	}) (*struct {
		Body domain.CatchRecord `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Species == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "species is required", nil)
		}
		if input.Body.CaughtAt != "" {
			if _, err := time.Parse(time.RFC3339, input.Body.CaughtAt); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "caught_at must be RFC3339", map[string]any{"field": "caught_at"})
			}
		}
		c, err := a.AddCatch(ctx, input.TripID, input.Body.Species, input.Body.Weight, input.Body.Spot, input.Body.Lat, input.Body.Lng, input.Body.CaughtAt)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CatchRecord `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-catches",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/catches",
		Summary:     "List catches",
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
	}) (*struct {
		Body []domain.CatchRecord `json:"body"`
	}, error) {
		catches, err := a.Repo.ListCatches(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		if catches == nil {
			catches = []domain.CatchRecord{}
		}
		return &struct {
			Body []domain.CatchRecord `json:"body"`
		}{Body: catches}, nil
	})
}

func registerReviews(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-review",
		Method:        http.MethodPost,
		Path:          "/trips/{trip_id}/reviews",
		Summary:       "Add a trip review",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string           `path:"trip_id"`
		Body   AddReviewRequest `json:"body"`
	}) (*struct {
		Body domain.Review `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Rating < 1 || input.Body.Rating > 5 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "rating must be between 1 and 5", nil)
		}
		rv, err := a.AddReview(ctx, input.TripID, principal.ActorID, input.Body.Rating, input.Body.Comment)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Review `json:"body"`
		}{Body: rv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/reviews",
		Summary:     "List reviews",
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
	}) (*struct {
		Body []domain.Review `json:"body"`
	}, error) {
		reviews, err := a.Repo.ListReviews(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		if reviews == nil {
			reviews = []domain.Review{}
		}
		return &struct {
			Body []domain.Review `json:"body"`
		}{Body: reviews}, nil
	})
}

func registerLocations(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-location",
		Method:        http.MethodPost,
		Path:          "/trips/{trip_id}/locations",
		Summary:       "Record a location waypoint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string             `path:"trip_id"`
		Body   AddLocationRequest `json:"body"`
	}) (*struct {
		Body domain.LocationPoint `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := a.AddLocation(ctx, input.TripID, input.Body.Lat, input.Body.Lng)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LocationPoint `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-locations",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/locations",
		Summary:     "List location history",
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
	}) (*struct {
		Body []domain.LocationPoint `json:"body"`
	}, error) {
		points, err := a.Repo.ListLocations(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		if points == nil {
			points = []domain.LocationPoint{}
		}
		return &struct {
			Body []domain.LocationPoint `json:"body"`
		}{Body: points}, nil
	})
}

func registerWeather(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-weather",
		Method:        http.MethodPost,
		Path:          "/trips/{trip_id}/weather",
		Summary:       "Record a weather snapshot",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string            `path:"trip_id"`
		Body   AddWeatherRequest `json:"body"`
	}) (*struct {
		Body domain.WeatherSnapshot `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		w, err := a.AddWeather(ctx, input.TripID, input.Body.Temperature, input.Body.WindSpeed, input.Body.Conditions)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WeatherSnapshot `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-weather",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/weather",
		Summary:     "List weather log",
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
	}) (*struct {
		Body []domain.WeatherSnapshot `json:"body"`
	}, error) {
		samples, err := a.Repo.ListWeather(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		if samples == nil {
			samples = []domain.WeatherSnapshot{}
		}
		return &struct {
			Body []domain.WeatherSnapshot `json:"body"`
		}{Body: samples}, nil
	})
}

func registerPhase(api huma.API, a *app.App) {
	type tripPath struct {
		TripID string `path:"trip_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "phase-status",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/phase",
		Summary:     "Current phase status",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *tripPath) (*struct {
		Body PhaseStatusResponse `json:"body"`
	}, error) {
		m, err := a.ManagerFor(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		current := m.CurrentPhase()
		return &struct {
			Body PhaseStatusResponse `json:"body"`
		}{Body: PhaseStatusResponse{
			TripID:            input.TripID,
			Phase:             string(current),
			NextPhase:         string(current.Next()),
			CurrentTransition: transitionResponse(m.CurrentTransition()),
			LastError:         m.LastError(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-transition",
		Method:      http.MethodPost,
		Path:        "/trips/{trip_id}/phase/validate",
		Summary:     "Validate a phase transition without executing it",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string                    `path:"trip_id"`
		Body   ValidateTransitionRequest `json:"body"`
	}) (*struct {
		Body ValidationResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		to, err := phase.Parse(input.Body.To)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		m, err := a.ManagerFor(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		tc, err := a.TransitionContext(ctx, input.TripID, principal.Role, input.Body.Data)
		if err != nil {
			return nil, handleError(err)
		}
		res := m.Validate(ctx, m.CurrentPhase(), to, tc)
		return &struct {
			Body ValidationResponse `json:"body"`
		}{Body: validationResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-transition",
		Method:        http.MethodPost,
		Path:          "/trips/{trip_id}/phase/transitions",
		Summary:       "Request a phase transition",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TripID string            `path:"trip_id"`
		Body   TransitionRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		to, err := phase.Parse(input.Body.To)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		m, err := a.ManagerFor(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		tc, err := a.TransitionContext(ctx, input.TripID, principal.Role, input.Body.Data)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := m.RequestTransition(ctx, m.CurrentPhase(), to, tc, phase.TriggerManual)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: *transitionResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-transitions",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/phase/transitions",
		Summary:     "List transition records",
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.TransitionRecord `json:"body"`
	}, error) {
		records, err := a.Repo.ListTransitions(ctx, input.TripID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if records == nil {
			records = []domain.TransitionRecord{}
		}
		return &struct {
			Body []domain.TransitionRecord `json:"body"`
		}{Body: records}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "phase-history",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/phase/history",
		Summary:     "Phase history ledger",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *tripPath) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		m, err := a.ManagerFor(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: historyResponse(m.History())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "phase-migrations",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/phase/migrations",
		Summary:     "Data migration execution ledger",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *tripPath) (*struct {
		Body []migration.HistoryEntry `json:"body"`
	}, error) {
		entries, err := a.MigrationHistory(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		if entries == nil {
			entries = []migration.HistoryEntry{}
		}
		return &struct {
			Body []migration.HistoryEntry `json:"body"`
		}{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "phase-capabilities",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/phase/capabilities",
		Summary:     "Manual entry/exit capabilities for a phase",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
		Phase  string `query:"phase" enum:"preparation,live,debrief"`
	}) (*struct {
		Body phase.Capabilities `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := phase.Parse(input.Phase)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		m, err := a.ManagerFor(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		tc := &phase.Context{TripID: input.TripID, Role: principal.Role}
		return &struct {
			Body phase.Capabilities `json:"body"`
		}{Body: m.PhaseCapabilities(p, tc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-phase-config",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/phase/config",
		Summary:     "Get transition runtime config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *tripPath) (*struct {
		Body ConfigResponse `json:"body"`
	}, error) {
		m, err := a.ManagerFor(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConfigResponse `json:"body"`
		}{Body: configResponse(m.Config())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-phase-config",
		Method:      http.MethodPatch,
		Path:        "/trips/{trip_id}/phase/config",
		Summary:     "Update transition runtime config",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TripID string             `path:"trip_id"`
		Body   ConfigPatchRequest `json:"body"`
	}) (*struct {
		Body ConfigResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !phase.HasMinimumRole(principal.Role, phase.RoleCaptain) {
			return nil, newAPIError(http.StatusForbidden, phase.CodePermissionDenied, "only captains may change transition config", nil)
		}
		patch := phase.ConfigPatch{
			AutoTransitions: input.Body.AutoTransitions,
			DataMigration:   input.Body.DataMigration,
		}
		if input.Body.CheckInterval != nil {
			d, err := time.ParseDuration(*input.Body.CheckInterval)
			if err != nil || d <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "check_interval must be a positive duration", map[string]any{"field": "check_interval"})
			}
			patch.CheckInterval = &d
		}
		m, err := a.ManagerFor(ctx, input.TripID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ConfigResponse `json:"body"`
		}{Body: configResponse(m.UpdateConfig(patch))}, nil
	})
}

func registerEvents(api huma.API, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/trips/{trip_id}/events",
		Summary:     "List trip events",
	}, func(ctx context.Context, input *struct {
		TripID string `path:"trip_id"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		evs, err := a.Repo.ListEvents(ctx, input.TripID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if evs == nil {
			evs = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evs}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{
			"actor_id": principal.ActorID,
			"role":     string(principal.Role),
			"source":   principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, cfg AuthConfig, a *app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Issue a development token",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ActorID string `json:"actor_id"`
			Role    string `json:"role,omitempty" enum:"guest,angler,guide,captain,admin"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if !cfg.EnableDevLogin {
			return nil, newAPIError(http.StatusNotFound, "not_found", "dev login disabled", nil)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		role := phase.Role(input.Body.Role)
		if role.Level() < 0 {
			role = phase.RoleAngler
		}
		token, err := mintToken(cfg.JWTSecret, input.Body.ActorID, role, a.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": token}}, nil
	})
}

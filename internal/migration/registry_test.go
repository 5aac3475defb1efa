package migration_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"tideline/internal/migration"
	"tideline/internal/phase"
)

func TestPassThroughWhenUnregistered(t *testing.T) {
	r := migration.NewRegistry()
	source := map[string]any{"keep": "me", "nested": map[string]any{"x": 1}}
	res := r.Execute(context.Background(), phase.Preparation, phase.Live, source, nil)
	if !res.Success {
		t.Fatalf("pass-through should succeed: %v", res.Errors)
	}
	if !reflect.DeepEqual(res.Data, source) {
		t.Fatalf("data must pass through unchanged: %v", res.Data)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "passed through") {
		t.Fatalf("expected pass-through warning, got %v", res.Warnings)
	}
}

func TestRequiredRuleFailureFailsMigration(t *testing.T) {
	r := migration.NewRegistry()
	r.Register(&migration.Migration{
		From: phase.Preparation,
		To:   phase.Live,
		Rules: []migration.Rule{
			{ID: "must-have", SourceKey: "absent", TargetKey: "out", Required: true},
		},
	})
	res := r.Execute(context.Background(), phase.Preparation, phase.Live, map[string]any{}, nil)
	if res.Success {
		t.Fatalf("expected failure")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "absent") {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	_, _, err := r.Migrate(context.Background(), phase.Preparation, phase.Live, map[string]any{}, nil)
	if err == nil || !strings.Contains(err.Error(), "must-have") {
		t.Fatalf("Migrate should collapse required failures into an error, got %v", err)
	}
}

func TestOptionalRuleFailureDegradesToWarning(t *testing.T) {
	r := migration.NewRegistry()
	r.Register(&migration.Migration{
		From: phase.Live,
		To:   phase.Debrief,
		Rules: []migration.Rule{
			{ID: "present", SourceKey: "a", TargetKey: "b"},
			{ID: "missing", SourceKey: "nope", TargetKey: "c"},
		},
	})
	res := r.Execute(context.Background(), phase.Live, phase.Debrief, map[string]any{"a": 7}, nil)
	if !res.Success {
		t.Fatalf("optional failure must not fail the migration: %v", res.Errors)
	}
	if res.Data["b"] != 7 {
		t.Fatalf("applied rule output missing: %v", res.Data)
	}
	if _, ok := res.Data["c"]; ok {
		t.Fatalf("failed rule must leave the target absent")
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
	if !reflect.DeepEqual(res.Applied, []string{"present"}) {
		t.Fatalf("applied rules wrong: %v", res.Applied)
	}
}

func TestTransformerPanicContained(t *testing.T) {
	r := migration.NewRegistry()
	r.Register(&migration.Migration{
		From: phase.Preparation,
		To:   phase.Live,
		Rules: []migration.Rule{{
			ID:        "explodes",
			SourceKey: "a",
			TargetKey: "b",
			Transform: func(context.Context, any, *phase.Context) (any, error) { panic("kaboom") },
		}},
	})
	res := r.Execute(context.Background(), phase.Preparation, phase.Live, map[string]any{"a": 1}, nil)
	if !res.Success {
		t.Fatalf("optional panic must degrade to warning")
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "panic") {
		t.Fatalf("expected panic warning, got %v", res.Warnings)
	}
}

func TestValidatorRejectsValue(t *testing.T) {
	r := migration.NewRegistry()
	r.Register(&migration.Migration{
		From: phase.Preparation,
		To:   phase.Live,
		Rules: []migration.Rule{{
			ID:        "picky",
			SourceKey: "a",
			TargetKey: "b",
			Validate:  func(any) bool { return false },
			Required:  true,
		}},
	})
	res := r.Execute(context.Background(), phase.Preparation, phase.Live, map[string]any{"a": 1}, nil)
	if res.Success {
		t.Fatalf("expected validation rejection")
	}
	if !strings.Contains(res.Errors[0], "validation rejected") {
		t.Fatalf("unexpected error: %v", res.Errors)
	}
}

func TestTransformErrorWrapped(t *testing.T) {
	sentinel := errors.New("bad shape")
	r := migration.NewRegistry()
	r.Register(&migration.Migration{
		From: phase.Preparation,
		To:   phase.Live,
		Rules: []migration.Rule{{
			ID:        "broken",
			SourceKey: "a",
			TargetKey: "b",
			Transform: func(context.Context, any, *phase.Context) (any, error) { return nil, sentinel },
			Required:  true,
		}},
	})
	res := r.Execute(context.Background(), phase.Preparation, phase.Live, map[string]any{"a": 1}, nil)
	if res.Success || !strings.Contains(res.Errors[0], "bad shape") {
		t.Fatalf("expected transform error, got %v", res.Errors)
	}
}

func TestNestedTargetKeys(t *testing.T) {
	r := migration.NewRegistry()
	r.Register(&migration.Migration{
		From: phase.Live,
		To:   phase.Debrief,
		Rules: []migration.Rule{
			{ID: "one", SourceKey: "x", TargetKey: "summary.first"},
			{ID: "two", SourceKey: "y", TargetKey: "summary.second"},
		},
	})
	res := r.Execute(context.Background(), phase.Live, phase.Debrief, map[string]any{"x": 1, "y": 2}, nil)
	summary, ok := res.Data["summary"].(map[string]any)
	if !ok || summary["first"] != 1 || summary["second"] != 2 {
		t.Fatalf("nested targets wrong: %v", res.Data)
	}
}

func TestHistoryCapped(t *testing.T) {
	r := migration.NewRegistry()
	for i := 0; i < 105; i++ {
		r.Execute(context.Background(), phase.Preparation, phase.Live, map[string]any{"i": fmt.Sprint(i)}, nil)
	}
	h := r.History()
	if len(h) != 100 {
		t.Fatalf("expected capped ledger of 100, got %d", len(h))
	}
}

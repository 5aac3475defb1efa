package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tideline/internal/app"
	"tideline/internal/config"
	"tideline/internal/db"
	"tideline/internal/events"
	"tideline/internal/migrate"
	"tideline/internal/phase"
	"tideline/internal/repo"
	"tideline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Tideline CLI",
	Long: `Tideline runs the lifecycle of a fishing trip chat.
Core concepts:
- Workspace: your .tideline directory holding the trip database; tideline.yml tunes the rules.
- Trip: one outing with a captain, a date, and a chat that moves through phases.
- Phases: preparation -> live -> debrief. Transitions follow registered rules and can fire automatically on a schedule.
- Checklist: preparation tasks by category (safety, navigation, ...); their weighted completion becomes the readiness score when the trip goes live.
- Catches, locations, weather: the live feed; condensed into the trip summary at debrief.
- Reviews: debrief feedback; mined for improvement topics when planning the next trip.
- Phase history: the ledger of every phase stay, with durations and triggers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TIDELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", "captain", "trip role (guest, angler, guide, captain, admin)")
	rootCmd.PersistentFlags().String("trip", "", "trip id (defaults to the only trip in the workspace)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("trip", rootCmd.PersistentFlags().Lookup("trip"))
}

func registerCommands() {
	rootCmd.AddCommand(tripCmd())
	rootCmd.AddCommand(checklistCmd())
	rootCmd.AddCommand(catchCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(locationCmd())
	rootCmd.AddCommand(weatherCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func tripCmd() *cobra.Command {
	trip := &cobra.Command{Use: "trip", Short: "Manage trips"}
	trip.AddCommand(tripCreateCmd())
	trip.AddCommand(tripListCmd())
	trip.AddCommand(tripShowCmd())
	trip.AddCommand(tripDeleteCmd())
	return trip
}

func tripCreateCmd() *cobra.Command {
	var name, captain, date string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			tripDate, err := time.Parse(time.RFC3339, date)
			if err != nil {
				return fmt.Errorf("--date must be RFC3339 (e.g. 2026-09-05T06:00:00Z): %w", err)
			}
			if captain == "" {
				captain = viper.GetString("actor-id")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.CreateTrip(ctx, name, captain, tripDate, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(trip)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "trip name")
	cmd.Flags().StringVar(&captain, "captain", "", "captain actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&date, "date", "", "scheduled departure (RFC3339)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func tripListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trips",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trips, err := a.Repo.ListTrips(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(trips)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Captain", "Date", "Phase"})
				for _, t := range trips {
					tw.AppendRow(table.Row{t.ID, t.Name, t.CaptainID, t.TripDate, t.Phase})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func tripShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				return printJSONOrTable(trip)
			})
		},
	}
	return cmd
}

func tripDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteTrip(ctx, args[0])
			})
		},
	}
	return cmd
}

func checklistCmd() *cobra.Command {
	cl := &cobra.Command{
		Use:   "checklist",
		Short: "Manage the preparation checklist",
		Long:  "Checklist items carry a category weight; safety counts triple when the readiness score is computed on go-live.",
	}
	cl.AddCommand(checklistAddCmd())
	cl.AddCommand(checklistListCmd())
	cl.AddCommand(checklistCheckCmd())
	return cl
}

func checklistAddCmd() *cobra.Command {
	var title, category string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a checklist item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				item, err := a.AddChecklistItem(ctx, trip.ID, title, category)
				if err != nil {
					return err
				}
				return printJSONOrTable(item)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "item title")
	cmd.Flags().StringVar(&category, "category", "optional", "category (safety, navigation, equipment, documentation, food, optional)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func checklistListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checklist items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				items, err := a.Repo.ListChecklist(ctx, trip.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Done"})
				for _, item := range items {
					tw.AppendRow(table.Row{item.ID, item.Title, item.Category, item.IsCompleted})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func checklistCheckCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "check <item-id>",
		Short: "Mark a checklist item done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				return a.Repo.SetChecklistItemDone(ctx, trip.ID, args[0], !undo)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark pending instead")
	return cmd
}

func catchCmd() *cobra.Command {
	c := &cobra.Command{Use: "catch", Short: "Record and list catches"}
	c.AddCommand(catchAddCmd())
	c.AddCommand(catchListCmd())
	return c
}

func catchAddCmd() *cobra.Command {
	var species, spot string
	var weight, lat, lng float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a catch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				var latPtr, lngPtr *float64
				if cmd.Flags().Changed("lat") {
					latPtr = &lat
				}
				if cmd.Flags().Changed("lng") {
					lngPtr = &lng
				}
				c, err := a.AddCatch(ctx, trip.ID, species, weight, spot, latPtr, lngPtr, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&species, "species", "", "fish species")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight in kg")
	cmd.Flags().StringVar(&spot, "spot", "", "spot name")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	_ = cmd.MarkFlagRequired("species")
	return cmd
}

func catchListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				catches, err := a.Repo.ListCatches(ctx, trip.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(catches)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Species", "Weight", "Spot", "Caught at"})
				for _, c := range catches {
					tw.AppendRow(table.Row{c.ID, c.Species, c.Weight, c.Spot, c.CaughtAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func reviewCmd() *cobra.Command {
	r := &cobra.Command{Use: "review", Short: "Debrief reviews"}
	r.AddCommand(reviewAddCmd())
	r.AddCommand(reviewListCmd())
	return r
}

func reviewAddCmd() *cobra.Command {
	var rating int
	var comment string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a review",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rating < 1 || rating > 5 {
				return fmt.Errorf("--rating must be between 1 and 5")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				rv, err := a.AddReview(ctx, trip.ID, viper.GetString("actor-id"), rating, comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().IntVar(&rating, "rating", 0, "rating 1-5")
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				reviews, err := a.Repo.ListReviews(ctx, trip.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(reviews)
			})
		},
	}
	return cmd
}

func locationCmd() *cobra.Command {
	l := &cobra.Command{Use: "location", Short: "Route waypoints"}
	l.AddCommand(locationAddCmd())
	l.AddCommand(locationListCmd())
	return l
}

func locationAddCmd() *cobra.Command {
	var lat, lng float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a waypoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				p, err := a.AddLocation(ctx, trip.ID, lat, lng)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func locationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List waypoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				points, err := a.Repo.ListLocations(ctx, trip.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(points)
			})
		},
	}
	return cmd
}

func weatherCmd() *cobra.Command {
	w := &cobra.Command{Use: "weather", Short: "Weather snapshots"}
	w.AddCommand(weatherAddCmd())
	w.AddCommand(weatherListCmd())
	return w
}

func weatherAddCmd() *cobra.Command {
	var temp, wind float64
	var conditions string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a weather snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				w, err := a.AddWeather(ctx, trip.ID, temp, wind, conditions)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().Float64Var(&temp, "temperature", 0, "temperature in °C")
	cmd.Flags().Float64Var(&wind, "wind-speed", 0, "wind speed in knots")
	cmd.Flags().StringVar(&conditions, "conditions", "", "conditions text")
	return cmd
}

func weatherListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List weather snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				samples, err := a.Repo.ListWeather(ctx, trip.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(samples)
			})
		},
	}
	return cmd
}

func phaseCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "phase",
		Short: "Phase lifecycle",
		Long:  "Inspect and drive the trip chat through preparation -> live -> debrief. Transitions validate against the registered rules; data migrates between phase shapes on the way.",
	}
	p.AddCommand(phaseShowCmd())
	p.AddCommand(phaseValidateCmd())
	p.AddCommand(phaseTransitionCmd())
	p.AddCommand(phaseHistoryCmd())
	p.AddCommand(phaseMigrationsCmd())
	p.AddCommand(phaseCapabilitiesCmd())
	return p
}

func phaseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				m, err := a.ManagerFor(ctx, trip.ID)
				if err != nil {
					return err
				}
				current := m.CurrentPhase()
				out := map[string]any{
					"trip_id":    trip.ID,
					"phase":      current,
					"next_phase": current.Next(),
				}
				if t := m.CurrentTransition(); t != nil {
					out["current_transition"] = t
				}
				if le := m.LastError(); le != nil {
					out["last_error"] = le
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func phaseValidateCmd() *cobra.Command {
	var to, dataJSON string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a transition without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := phase.Parse(to)
			if err != nil {
				return err
			}
			overlay, err := parseDataOverlay(dataJSON)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				m, err := a.ManagerFor(ctx, trip.ID)
				if err != nil {
					return err
				}
				tc, err := a.TransitionContext(ctx, trip.ID, phase.Role(viper.GetString("role")), overlay)
				if err != nil {
					return err
				}
				return printJSONOrTable(m.Validate(ctx, m.CurrentPhase(), target, tc))
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target phase")
	cmd.Flags().StringVar(&dataJSON, "data-json", "", "extra context data as JSON object")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func phaseTransitionCmd() *cobra.Command {
	var to, dataJSON string
	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Request a phase transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := phase.Parse(to)
			if err != nil {
				return err
			}
			overlay, err := parseDataOverlay(dataJSON)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				m, err := a.ManagerFor(ctx, trip.ID)
				if err != nil {
					return err
				}
				tc, err := a.TransitionContext(ctx, trip.ID, phase.Role(viper.GetString("role")), overlay)
				if err != nil {
					return err
				}
				t, err := m.RequestTransition(ctx, m.CurrentPhase(), target, tc, phase.TriggerManual)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target phase")
	cmd.Flags().StringVar(&dataJSON, "data-json", "", "extra context data as JSON object")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func phaseHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the phase ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				m, err := a.ManagerFor(ctx, trip.ID)
				if err != nil {
					return err
				}
				h := m.History()
				if viper.GetBool("json") {
					return printJSON(h)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Phase", "Entered", "Exited", "Duration", "Trigger"})
				for _, e := range h.Entries {
					exited := ""
					if e.ExitedAt != nil {
						exited = e.ExitedAt.Format(time.RFC3339)
					}
					tw.AppendRow(table.Row{e.Phase, e.EnteredAt.Format(time.RFC3339), exited, e.Duration, e.Trigger})
				}
				tw.Render()
				fmt.Printf("transitions: %d, total: %s\n", h.TransitionCount, h.TotalDuration)
				return nil
			})
		},
	}
	return cmd
}

func phaseMigrationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrations",
		Short: "Show the data migration execution ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				entries, err := a.MigrationHistory(ctx, trip.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	return cmd
}

func phaseCapabilitiesCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Show manual entry/exit capabilities for a phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := phase.Parse(target)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				m, err := a.ManagerFor(ctx, trip.ID)
				if err != nil {
					return err
				}
				tc := &phase.Context{TripID: trip.ID, Role: phase.Role(viper.GetString("role"))}
				return printJSONOrTable(m.PhaseCapabilities(p, tc))
			})
		},
	}
	cmd.Flags().StringVar(&target, "phase", "", "phase to probe")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace config",
		Long:  "tideline.yml tunes transition rules (enable, cooldown, priority), per-phase manual gates, auto-transition targets, and role permissions.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var tripID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tideline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(tripID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&tripID, "trip-id", "", "trip id to seed into the config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate tideline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened on a trip: creation, transitions, failures.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail trip events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				trip, err := a.ResolveTrip(ctx, viper.GetString("trip"))
				if err != nil {
					return err
				}
				evs, err := a.Repo.ListEvents(ctx, trip.ID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(evs)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret:      os.Getenv("TIDELINE_JWT_SECRET"),
					EnableDevLogin: devLogin,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("TIDELINE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Tideline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login token minting")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	r := repo.Repo{DB: conn}
	a := app.New(r, events.Writer{DB: conn}, cfg, logger)
	defer a.Close()
	return fn(ctx, a)
}

func parseDataOverlay(dataJSON string) (map[string]any, error) {
	if dataJSON == "" {
		return nil, nil
	}
	var overlay map[string]any
	if err := json.Unmarshal([]byte(dataJSON), &overlay); err != nil {
		return nil, fmt.Errorf("--data-json must be a JSON object: %w", err)
	}
	return overlay, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package phase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const timePrecision = time.Millisecond

// Migrator transforms one phase's data shape into the next. Implementations
// return the migrated data bag, non-fatal warnings, and an error when a
// required migration rule failed.
type Migrator interface {
	Migrate(ctx context.Context, from, to Phase, source map[string]any, tc *Context) (map[string]any, []string, error)
}

// HistoryLoader fetches persisted phase history for a trip, or nil when the
// trip has none yet.
type HistoryLoader func(ctx context.Context, tripID string) (*History, error)

// ContextFunc builds the transition context the auto scheduler evaluates
// rules against.
type ContextFunc func(ctx context.Context, tripID string) (*Context, error)

// Hooks are the seams through which external collaborators (persistence,
// broadcast, UI state) observe the lifecycle. All are optional and awaited;
// errors from exit/enter/start hooks abort the transition.
type Hooks struct {
	OnTransitionStart    func(ctx context.Context, t *Transition) error
	OnTransitionComplete func(ctx context.Context, t *Transition, h *History) error
	OnTransitionError    func(ctx context.Context, t *Transition, err error)
	OnPhaseExit          func(ctx context.Context, p Phase, tc *Context) error
	OnPhaseEnter         func(ctx context.Context, p Phase, tc *Context) error
	OnDataMigrate        func(ctx context.Context, from, to Phase, data map[string]any, warnings []string) error
}

// Capabilities is a read-only probe for UI gating.
type Capabilities struct {
	CanEnter bool     `json:"can_enter"`
	CanExit  bool     `json:"can_exit"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Options configure a Manager.
type Options struct {
	Config      Config
	Rules       *RuleSet
	Migrator    Migrator
	Permissions map[Role]Permissions
	Hooks       Hooks
	LoadHistory HistoryLoader
	ContextFunc ContextFunc
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Manager owns one trip's chat phase lifecycle. It is the single logical
// owner of its state: the "exactly one in-progress transition" invariant is
// what serializes the auto scheduler against manual callers.
type Manager struct {
	mu sync.Mutex

	tripID  string
	phase   Phase
	current *Transition
	history *History

	cfg      Config
	rules    *RuleSet
	migrator Migrator
	perms    map[Role]Permissions
	hooks    Hooks

	loadHistory HistoryLoader
	contextFn   ContextFunc
	log         zerolog.Logger
	nowFn       func() time.Time

	timers    map[Phase]chan struct{}
	lastError *Error
	destroyed bool
}

// NewManager builds an uninitialized manager; call Initialize before use.
func NewManager(opts Options) *Manager {
	cfg := opts.Config
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Phases == nil {
		cfg.Phases = DefaultConfig().Phases
	}
	rules := opts.Rules
	if rules == nil {
		rules = NewRuleSet()
	}
	perms := opts.Permissions
	if perms == nil {
		perms = DefaultPermissions()
	}
	return &Manager{
		cfg:         cfg,
		rules:       rules,
		migrator:    opts.Migrator,
		perms:       perms,
		hooks:       opts.Hooks,
		loadHistory: opts.LoadHistory,
		contextFn:   opts.ContextFunc,
		log:         opts.Logger,
		nowFn:       opts.Now,
		timers:      map[Phase]chan struct{}{},
	}
}

func (m *Manager) now() time.Time {
	if m.nowFn != nil {
		return m.nowFn()
	}
	return time.Now()
}

// Initialize loads persisted history for the trip and starts auto
// monitoring for the current phase. A failing history loader is the one
// place the manager returns an error instead of a result: there is no
// coherent state to fall back to.
func (m *Manager) Initialize(ctx context.Context, tripID string, current Phase) error {
	if !current.Valid() {
		return newError(CodeInitializationFailed, fmt.Sprintf("unknown phase %q", current), nil, m.now())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return newError(CodeInitializationFailed, "manager destroyed", nil, m.now())
	}

	history := &History{TripID: tripID}
	if m.loadHistory != nil {
		loaded, err := m.loadHistory(ctx, tripID)
		if err != nil {
			return newError(CodeInitializationFailed, fmt.Sprintf("load history: %v", err), nil, m.now())
		}
		if loaded != nil {
			loaded.TripID = tripID
			history = loaded
		}
	}
	m.tripID = tripID
	m.phase = current
	m.history = history
	if len(history.Entries) == 0 {
		history.Entries = append(history.Entries, HistoryEntry{Phase: current, EnteredAt: m.now(), Trigger: TriggerManual})
		history.LastUpdated = m.now()
	}
	m.scheduleLocked(current)
	return nil
}

// CurrentPhase returns the phase the trip chat is in.
func (m *Manager) CurrentPhase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// CurrentTransition returns a copy of the in-flight transition, if any.
func (m *Manager) CurrentTransition() *Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	t := *m.current
	return &t
}

// History returns a copy of the phase ledger.
func (m *Manager) History() History {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := *m.history
	h.Entries = append([]HistoryEntry(nil), m.history.Entries...)
	return h
}

// LastError returns the most recent execution failure, if any.
func (m *Manager) LastError() *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Config returns the current runtime configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// UpdateConfig applies a partial update and reschedules monitoring so an
// interval or toggle change takes effect immediately.
func (m *Manager) UpdateConfig(p ConfigPatch) Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = m.cfg.apply(p)
	m.stopTimersLocked()
	m.scheduleLocked(m.phase)
	return m.cfg
}

// PhaseCapabilities reports whether the given phase can be manually entered
// or exited by the caller described in tc.
func (m *Manager) PhaseCapabilities(p Phase, tc *Context) Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := m.cfg.Phases[p]
	caps := Capabilities{CanEnter: settings.AllowManualEntry, CanExit: settings.AllowManualExit}
	if !settings.AllowManualEntry {
		caps.Reasons = append(caps.Reasons, fmt.Sprintf("manual entry into %s is disabled", p))
	}
	if !settings.AllowManualExit {
		caps.Reasons = append(caps.Reasons, fmt.Sprintf("manual exit from %s is disabled", p))
	}
	if tc != nil && !m.canTriggerManualLocked(tc.Role) {
		caps.CanEnter = false
		caps.Reasons = append(caps.Reasons, fmt.Sprintf("role %s cannot trigger manual transitions", tc.Role))
	}
	if tc != nil && !m.permFor(tc.Role).Allows(p) {
		caps.CanEnter = false
		caps.Reasons = append(caps.Reasons, fmt.Sprintf("role %s is not allowed into %s", tc.Role, p))
	}
	return caps
}

func (m *Manager) permFor(r Role) Permissions {
	return m.perms[r]
}

func (m *Manager) canTriggerManualLocked(r Role) bool {
	if HasMinimumRole(r, RoleCaptain) {
		return true
	}
	return m.permFor(r).CanTriggerManual
}

// RequestTransition validates and executes a phase change. Failures are
// returned as *Error; the method never panics into the caller, and a failed
// execution leaves the history ledger untouched.
func (m *Manager) RequestTransition(ctx context.Context, from, to Phase, tc *Context, trigger Trigger) (*Transition, error) {
	if trigger == "" {
		trigger = TriggerManual
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return nil, newError(CodeTransitionRequestFailed, "manager destroyed", nil, m.now())
	}
	res := m.validateLocked(ctx, from, to, tc)
	if !res.Valid {
		m.mu.Unlock()
		return nil, newError(CodeValidationFailed, strings.Join(res.Errors, "; "), map[string]any{
			"errors":   res.Errors,
			"warnings": res.Warnings,
		}, m.now())
	}
	if trigger == TriggerManual {
		role := RoleGuest
		if tc != nil {
			role = tc.Role
		}
		if !m.canTriggerManualLocked(role) || !m.permFor(role).Allows(to) {
			m.mu.Unlock()
			return nil, newError(CodePermissionDenied, fmt.Sprintf("role %s may not trigger manual transitions to %s", role, to), nil, m.now())
		}
	}

	t := &Transition{
		ID:          uuid.New().String(),
		From:        from,
		To:          to,
		Trigger:     trigger,
		Status:      StatusPending,
		TriggeredAt: m.now(),
	}
	t.Status = StatusInProgress
	m.current = t
	// UpdateConfig and Destroy rewrite cfg/hooks under the lock while
	// execution is unlocked; the transition runs against what it saw here.
	cfg := m.cfg
	hooks := m.hooks
	tripID := m.tripID
	m.mu.Unlock()

	if err := m.execute(ctx, t, tc, cfg, hooks, tripID); err != nil {
		return t, err
	}
	return t, nil
}

// execute runs the ordered sequence: start hook, phase exit, data migration,
// phase enter, completion, history commit, rescheduling. Called without the
// lock held so concurrent requests fail fast at validation instead of
// queueing behind the hooks; cfg, hooks and tripID are the request-time
// snapshots.
func (m *Manager) execute(ctx context.Context, t *Transition, tc *Context, cfg Config, hooks Hooks, tripID string) error {
	fail := func(stage string, err error) error {
		execErr := newError(CodeTransitionExecutionFailed, fmt.Sprintf("%s: %v", stage, err), map[string]any{
			"transition_id": t.ID,
			"from":          t.From,
			"to":            t.To,
		}, m.now())

		m.mu.Lock()
		t.Status = StatusFailed
		t.Errors = append(t.Errors, execErr.Message)
		m.current = nil
		m.lastError = execErr
		m.mu.Unlock()

		m.log.Error().Err(err).Str("trip_id", tripID).Str("stage", stage).
			Str("from", string(t.From)).Str("to", string(t.To)).Msg("phase transition failed")
		if hooks.OnTransitionError != nil {
			hooks.OnTransitionError(ctx, t, execErr)
		}
		return execErr
	}

	if hooks.OnTransitionStart != nil {
		if err := hooks.OnTransitionStart(ctx, t); err != nil {
			return fail("transition start", err)
		}
	}
	if hooks.OnPhaseExit != nil {
		if err := hooks.OnPhaseExit(ctx, t.From, tc); err != nil {
			return fail("phase exit", err)
		}
	}
	if cfg.DataMigration && m.migrator != nil {
		source := map[string]any{}
		if tc != nil && tc.Data != nil {
			source = tc.Data
		}
		migrated, warnings, err := m.migrator.Migrate(ctx, t.From, t.To, source, tc)
		if err != nil {
			return fail("data migration", err)
		}
		if hooks.OnDataMigrate != nil {
			if err := hooks.OnDataMigrate(ctx, t.From, t.To, migrated, warnings); err != nil {
				return fail("data migration hook", err)
			}
		}
	}
	if hooks.OnPhaseEnter != nil {
		if err := hooks.OnPhaseEnter(ctx, t.To, tc); err != nil {
			return fail("phase enter", err)
		}
	}

	m.mu.Lock()
	completed := m.now()
	t.Status = StatusCompleted
	t.CompletedAt = &completed
	t.Duration = completed.Sub(t.TriggeredAt)
	m.phase = t.To
	m.history.append(t, completed)
	historyCopy := *m.history
	historyCopy.Entries = append([]HistoryEntry(nil), m.history.Entries...)
	m.current = nil
	m.stopTimerLocked(t.From)
	m.scheduleLocked(t.To)
	m.mu.Unlock()

	m.log.Info().Str("trip_id", tripID).Str("from", string(t.From)).Str("to", string(t.To)).
		Str("trigger", string(t.Trigger)).Dur("duration", t.Duration).Msg("phase transition completed")

	if hooks.OnTransitionComplete != nil {
		if err := hooks.OnTransitionComplete(ctx, t, &historyCopy); err != nil {
			// The transition itself is done; a failing observer must not
			// unwind committed state.
			m.log.Error().Err(err).Str("trip_id", tripID).Msg("transition complete hook failed")
		}
	}
	return nil
}

// Destroy stops every timer and detaches all hooks. The manager is unusable
// afterwards.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	m.stopTimersLocked()
	m.hooks = Hooks{}
}

func (m *Manager) stopTimerLocked(p Phase) {
	if stop, ok := m.timers[p]; ok {
		close(stop)
		delete(m.timers, p)
	}
}

func (m *Manager) stopTimersLocked() {
	for p := range m.timers {
		m.stopTimerLocked(p)
	}
}

// scheduleLocked starts the periodic auto-transition check for a phase when
// auto transitions are enabled and the phase has automatic targets.
func (m *Manager) scheduleLocked(p Phase) {
	if m.destroyed || !m.cfg.AutoTransitions {
		return
	}
	if len(m.cfg.Phases[p].AutoTransitions) == 0 {
		return
	}
	m.stopTimerLocked(p)
	stop := make(chan struct{})
	m.timers[p] = stop
	interval := m.cfg.CheckInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.checkAutoTransitions(context.Background(), p)
			}
		}
	}()
}

// checkAutoTransitions re-evaluates the automatic rules for the monitored
// phase and triggers the first valid candidate. At most one automatic
// transition fires per tick; a tick racing a manual transition loses at the
// concurrent-transition check and skips.
func (m *Manager) checkAutoTransitions(ctx context.Context, p Phase) {
	m.mu.Lock()
	if m.destroyed || m.phase != p || m.current != nil {
		m.mu.Unlock()
		return
	}
	targets := m.cfg.Phases[p].AutoTransitions
	tripID := m.tripID
	m.mu.Unlock()

	if m.contextFn == nil {
		return
	}
	tc, err := m.contextFn(ctx, tripID)
	if err != nil {
		m.log.Warn().Err(err).Str("trip_id", tripID).Msg("auto-transition context unavailable")
		return
	}

	for _, rule := range m.autoCandidates(p, targets) {
		res := m.Validate(ctx, p, rule.To, tc)
		if !res.Valid || len(res.Warnings) > 0 {
			// Cooldown warnings gate the scheduler even though they are
			// advisory for manual callers.
			continue
		}
		if _, err := m.RequestTransition(ctx, p, rule.To, tc, TriggerAutomatic); err != nil {
			m.log.Warn().Err(err).Str("trip_id", tripID).Str("to", string(rule.To)).Msg("auto transition failed")
		}
		return
	}
}

func (m *Manager) autoCandidates(from Phase, targets []Phase) []*TransitionRule {
	allowed := map[Phase]bool{}
	for _, t := range targets {
		allowed[t] = true
	}
	var out []*TransitionRule
	for _, rule := range m.rules.CandidatesFrom(from) {
		if allowed[rule.To] {
			out = append(out, rule)
		}
	}
	return out
}

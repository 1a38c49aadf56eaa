// Package projection expands the recurring work catalog into the tasks that
// should exist over a date range, merging in materialized records.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/hierarchy"
	"github.com/UnknownOlympus/custodian/internal/lifecycle"
	"github.com/UnknownOlympus/custodian/internal/metrics"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/UnknownOlympus/custodian/internal/schedule"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxDays bounds the length of a projected range.
const DefaultMaxDays = 62

// Store is the read side the engine needs.
type Store interface {
	ListFacilities(ctx context.Context) ([]models.Facility, error)
	ListNodes(ctx context.Context) ([]hierarchy.Node, error)
	ListWorkItems(ctx context.Context) ([]models.RecurringWorkItem, error)
	ListTasks(ctx context.Context, from, to civil.Date, facilityIDs []string) ([]models.Task, error)
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From civil.Date
	To   civil.Date
}

// Days returns the number of dates in the range.
func (r DateRange) Days() int {
	return r.To.DaysSince(r.From) + 1
}

// Validate checks the range is well formed and at most maxDays long.
func (r DateRange) Validate(maxDays int) error {
	if !r.From.IsValid() || !r.To.IsValid() {
		return fmt.Errorf("%w: invalid date range", models.ErrValidation)
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("%w: range ends %s before it starts %s", models.ErrValidation, r.To, r.From)
	}
	if maxDays > 0 && r.Days() > maxDays {
		return fmt.Errorf("%w: range of %d days exceeds %d", models.ErrValidation, r.Days(), maxDays)
	}
	return nil
}

// Scope narrows a projection. The zero value is the unrestricted administrative view.
type Scope struct {
	FacilityID string
	AssigneeID string // facility owner
}

func (s Scope) all() bool {
	return s.FacilityID == "" && s.AssigneeID == ""
}

func (s Scope) includes(facility models.Facility) bool {
	if s.FacilityID != "" && facility.ID != s.FacilityID {
		return false
	}
	if s.AssigneeID != "" && facility.OwnerID != s.AssigneeID {
		return false
	}
	return true
}

func (s Scope) label() string {
	switch {
	case s.FacilityID != "":
		return "facility"
	case s.AssigneeID != "":
		return "assignee"
	default:
		return "all"
	}
}

// Options configure an Engine.
type Options struct {
	MaxDays int
	Now     func() time.Time
}

// Engine computes projections. It has no side effects and is safe for concurrent use.
type Engine struct {
	log      *slog.Logger
	store    Store
	resolver *schedule.Resolver
	metrics  *metrics.Metrics
	maxDays  int
	now      func() time.Time
}

// NewEngine creates a projection engine.
func NewEngine(log *slog.Logger, store Store, resolver *schedule.Resolver, m *metrics.Metrics, opts Options) *Engine {
	if opts.MaxDays <= 0 {
		opts.MaxDays = DefaultMaxDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		log:      log,
		store:    store,
		resolver: resolver,
		metrics:  m,
		maxDays:  opts.MaxDays,
		now:      opts.Now,
	}
}

// ProjectTasks returns every task, virtual or materialized, in rng and scope sorted
// by scheduled start, facility name, work item name and id. Inconsistent catalog
// entries are logged and skipped.
func (e *Engine) ProjectTasks(ctx context.Context, rng DateRange, scope Scope) ([]models.Task, error) {
	if err := rng.Validate(e.maxDays); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.ProjectionDuration.WithLabelValues(scope.label()).Observe(time.Since(start).Seconds())
		}
	}()

	var (
		facilities []models.Facility
		nodes      []hierarchy.Node
		items      []models.RecurringWorkItem
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		facilities, err = e.store.ListFacilities(gctx)
		return err
	})
	group.Go(func() error {
		var err error
		nodes, err = e.store.ListNodes(gctx)
		return err
	})
	group.Go(func() error {
		var err error
		items, err = e.store.ListWorkItems(gctx)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	byID := make(map[string]models.Facility, len(facilities))
	var scoped []string
	for _, facility := range facilities {
		byID[facility.ID] = facility
		if scope.includes(facility) {
			scoped = append(scoped, facility.ID)
		}
	}
	if !scope.all() && len(scoped) == 0 {
		return []models.Task{}, nil
	}

	var facilityFilter []string
	if !scope.all() {
		facilityFilter = scoped
	}
	stored, err := e.store.ListTasks(ctx, rng.From, rng.To, facilityFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to load materialized tasks: %w", err)
	}
	materialized := make(map[string]models.Task, len(stored))
	for _, task := range stored {
		materialized[task.ID] = task
	}

	tree := hierarchy.NewTree(nodes)
	now := e.now()
	out := make([]models.Task, 0, len(stored))
	virtual := 0

	for _, item := range items {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		loc, errResolve := tree.Resolve(item.Anchor)
		if errResolve != nil {
			e.log.WarnContext(ctx, "Skipping work item with unresolvable anchor",
				"work_item", item.ID, "anchor", item.Anchor.NodeID, "error", errResolve)
			e.skipped("orphan")
			continue
		}
		facility, ok := byID[loc.FacilityID]
		if !ok {
			e.log.WarnContext(ctx, "Skipping work item of unknown facility", "work_item", item.ID, "facility", loc.FacilityID)
			e.skipped("facility")
			continue
		}
		if !scope.includes(facility) {
			continue
		}

		tz := e.resolver.Location(facility).String()
		for date := rng.From; !date.After(rng.To); date = date.AddDays(1) {
			if !item.ActiveOn(date) || !schedule.Occurs(item.Frequency, date) {
				continue
			}

			id := models.NewTaskID(item.ID, date).String()
			if task, found := materialized[id]; found {
				out = append(out, task)
				delete(materialized, id)
				continue
			}

			window, errWindow := e.resolver.WindowFor(facility, date)
			if errWindow != nil {
				e.log.WarnContext(ctx, "Skipping work item with invalid schedule",
					"work_item", item.ID, "facility", facility.ID, "error", errWindow)
				e.skipped("schedule")
				break
			}
			if !window.WorkingDay {
				continue
			}

			out = append(out, Instance(item, loc, tz, date, window, now))
			virtual++
		}
	}

	// Materialized records whose template no longer fires or resolves still surface.
	for _, task := range materialized {
		out = append(out, task)
	}

	Sort(out)

	if e.metrics != nil {
		e.metrics.ProjectedTasks.WithLabelValues("virtual").Add(float64(virtual))
		e.metrics.ProjectedTasks.WithLabelValues("materialized").Add(float64(len(out) - virtual))
	}

	return out, nil
}

// Instance builds the virtual task of item on date with its status derived at now.
func Instance(
	item models.RecurringWorkItem,
	loc models.Location,
	timezone string,
	date civil.Date,
	window schedule.Window,
	now time.Time,
) models.Task {
	return models.Task{
		ID:             models.NewTaskID(item.ID, date).String(),
		WorkItemID:     item.ID,
		Date:           date,
		FacilityID:     loc.FacilityID,
		FacilityName:   loc.FacilityName,
		Name:           item.Name,
		Description:    item.Description,
		WorkType:       item.WorkType,
		Location:       loc.Label,
		Timezone:       timezone,
		ScheduledStart: window.Start,
		ScheduledEnd:   window.End,
		Status:         lifecycle.Derive(window.Start, window.End, now),
		Virtual:        true,
	}
}

// Sort orders tasks by scheduled start, facility name, name and id.
func Sort(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.ScheduledStart.Equal(b.ScheduledStart) {
			return a.ScheduledStart.Before(b.ScheduledStart)
		}
		if a.FacilityName != b.FacilityName {
			return a.FacilityName < b.FacilityName
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

func (e *Engine) skipped(reason string) {
	if e.metrics != nil {
		e.metrics.ProjectionSkipped.WithLabelValues(reason).Inc()
	}
}

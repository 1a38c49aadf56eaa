// Package schedule resolves facility working windows and recurring frequencies.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/models"
)

// FacilityDirectory is the external facility lookup.
type FacilityDirectory interface {
	GetFacility(ctx context.Context, id string) (models.Facility, error)
}

// Window is the facility-local availability window of one calendar date.
// Start and End are inclusive. Both are zero when WorkingDay is false.
type Window struct {
	Start      time.Time
	End        time.Time
	WorkingDay bool
}

// Options tune how missing facility settings are interpreted.
type Options struct {
	// DefaultTimezone is used when a facility has no or an unknown timezone.
	DefaultTimezone string
	// RequireWorkingHours makes facilities without configured hours unavailable
	// instead of falling back to the whole day.
	RequireWorkingHours bool
}

// Resolver computes windows for facilities. It is safe for concurrent use.
type Resolver struct {
	log          *slog.Logger
	directory    FacilityDirectory
	fallback     *time.Location
	requireHours bool

	mu        sync.RWMutex
	locations map[string]*time.Location
}

// NewResolver creates a resolver. An unknown default timezone falls back to UTC.
func NewResolver(log *slog.Logger, directory FacilityDirectory, opts Options) *Resolver {
	fallback := time.UTC
	if opts.DefaultTimezone != "" {
		loc, err := time.LoadLocation(opts.DefaultTimezone)
		if err != nil {
			log.Warn("Unknown default timezone, using UTC", "timezone", opts.DefaultTimezone, "error", err)
		} else {
			fallback = loc
		}
	}

	return &Resolver{
		log:          log,
		directory:    directory,
		fallback:     fallback,
		requireHours: opts.RequireWorkingHours,
		locations:    make(map[string]*time.Location),
	}
}

// ResolveWindow looks the facility up and returns its window for date.
func (r *Resolver) ResolveWindow(ctx context.Context, facilityID string, date civil.Date) (Window, error) {
	facility, err := r.directory.GetFacility(ctx, facilityID)
	if err != nil {
		return Window{}, fmt.Errorf("failed to get facility %s: %w", facilityID, err)
	}

	return r.WindowFor(facility, date)
}

// WindowFor returns the window of an already loaded facility on date.
func (r *Resolver) WindowFor(facility models.Facility, date civil.Date) (Window, error) {
	if !date.IsValid() {
		return Window{}, fmt.Errorf("%w: invalid date %v", models.ErrValidation, date)
	}

	loc := r.Location(facility)
	midnight := date.In(loc)

	workingDays := facility.WorkingDays
	if len(workingDays) == 0 {
		workingDays = models.DefaultWorkingDays()
	}
	if !slices.Contains(workingDays, midnight.Weekday()) {
		return Window{}, nil
	}

	hours := facility.WorkingHours
	if hours == nil {
		if r.requireHours {
			return Window{}, nil
		}
		next := date.AddDays(1).In(loc)
		return Window{Start: midnight, End: next.Add(-time.Nanosecond), WorkingDay: true}, nil
	}

	start := atClock(date, hours.Start, loc)
	end := atClock(date, hours.End, loc)
	if !end.After(start) {
		return Window{}, fmt.Errorf(
			"%w: facility %s has working hours %s-%s that end before they start",
			models.ErrValidation, facility.ID, models.FormatClock(hours.Start), models.FormatClock(hours.End),
		)
	}

	return Window{Start: start, End: end, WorkingDay: true}, nil
}

// Location returns the facility timezone, caching loaded zones.
func (r *Resolver) Location(facility models.Facility) *time.Location {
	if facility.Timezone == "" {
		return r.fallback
	}

	r.mu.RLock()
	loc, ok := r.locations[facility.Timezone]
	r.mu.RUnlock()
	if ok {
		return loc
	}

	loc, err := time.LoadLocation(facility.Timezone)
	if err != nil {
		r.log.Warn("Unknown facility timezone, using default",
			"facility", facility.ID, "timezone", facility.Timezone, "error", err)
		loc = r.fallback
	}

	r.mu.Lock()
	r.locations[facility.Timezone] = loc
	r.mu.Unlock()

	return loc
}

func atClock(date civil.Date, clock civil.Time, loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day, clock.Hour, clock.Minute, clock.Second, clock.Nanosecond, loc)
}

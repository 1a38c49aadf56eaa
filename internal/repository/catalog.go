package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/hierarchy"
	"github.com/UnknownOlympus/custodian/internal/models"
	"github.com/jackc/pgx/v5"
)

// ListFacilities returns every facility with its schedule configuration.
// Rows with an unreadable schedule are logged and left out.
func (r *Repository) ListFacilities(ctx context.Context) ([]models.Facility, error) {
	defer r.observe("list_facilities", time.Now())

	rows, err := r.db.Query(ctx, ListFacilitiesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query facilities: %w", err)
	}
	defer rows.Close()

	var facilities []models.Facility
	for rows.Next() {
		facility, errScan := scanFacility(rows)
		if errors.Is(errScan, models.ErrValidation) {
			r.log.WarnContext(ctx, "Skipping facility with invalid schedule", "error", errScan)
			continue
		}
		if errScan != nil {
			return nil, fmt.Errorf("failed to scan facility row: %w", errScan)
		}
		facilities = append(facilities, facility)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read facility rows: %w", err)
	}

	return facilities, nil
}

// GetFacility returns one facility or models.ErrNotFound.
func (r *Repository) GetFacility(ctx context.Context, id string) (models.Facility, error) {
	defer r.observe("get_facility", time.Now())

	facility, err := scanFacility(r.db.QueryRow(ctx, GetFacilitySQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Facility{}, fmt.Errorf("facility %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Facility{}, fmt.Errorf("failed to get facility %s: %w", id, err)
	}

	return facility, nil
}

// ListNodes returns the whole hierarchy.
func (r *Repository) ListNodes(ctx context.Context) ([]hierarchy.Node, error) {
	defer r.observe("list_nodes", time.Now())

	return r.queryNodes(ctx, ListNodesSQL)
}

// AnchorPath returns the chain of nodes from the root down to nodeID. The chain
// is cut short when a parent is missing.
func (r *Repository) AnchorPath(ctx context.Context, nodeID string) ([]hierarchy.Node, error) {
	defer r.observe("anchor_path", time.Now())

	return r.queryNodes(ctx, AnchorPathSQL, nodeID)
}

func (r *Repository) queryNodes(ctx context.Context, query string, args ...any) ([]hierarchy.Node, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy nodes: %w", err)
	}
	defer rows.Close()

	var nodes []hierarchy.Node
	for rows.Next() {
		var node hierarchy.Node
		var kind string
		if errScan := rows.Scan(&node.ID, &node.ParentID, &kind, &node.Name, &node.Synthetic); errScan != nil {
			return nil, fmt.Errorf("failed to scan hierarchy node: %w", errScan)
		}
		node.Kind = hierarchy.NodeKind(kind)
		nodes = append(nodes, node)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hierarchy rows: %w", err)
	}

	return nodes, nil
}

// ListWorkItems returns the whole recurring work catalog.
func (r *Repository) ListWorkItems(ctx context.Context) ([]models.RecurringWorkItem, error) {
	defer r.observe("list_work_items", time.Now())

	rows, err := r.db.Query(ctx, ListWorkItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}
	defer rows.Close()

	var items []models.RecurringWorkItem
	for rows.Next() {
		item, errScan := scanWorkItem(rows)
		if errScan != nil {
			return nil, fmt.Errorf("failed to scan work item row: %w", errScan)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read work item rows: %w", err)
	}

	return items, nil
}

// GetWorkItem returns one catalog entry or models.ErrNotFound.
func (r *Repository) GetWorkItem(ctx context.Context, id string) (models.RecurringWorkItem, error) {
	defer r.observe("get_work_item", time.Now())

	item, err := scanWorkItem(r.db.QueryRow(ctx, GetWorkItemSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RecurringWorkItem{}, fmt.Errorf("work item %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.RecurringWorkItem{}, fmt.Errorf("failed to get work item %s: %w", id, err)
	}

	return item, nil
}

func scanFacility(row scanner) (models.Facility, error) {
	var (
		facility       models.Facility
		days           []string
		start, end     *string
		requirePhoto   bool
		requireComment bool
		minPhotos      int
	)

	err := row.Scan(
		&facility.ID, &facility.Name, &facility.OwnerID, &facility.NotifyChatID, &facility.Timezone, &days,
		&start, &end, &requirePhoto, &requireComment, &minPhotos,
	)
	if err != nil {
		return models.Facility{}, err
	}

	for _, raw := range days {
		day, errDay := models.ParseWeekday(raw)
		if errDay != nil {
			return models.Facility{}, fmt.Errorf("facility %s: %w", facility.ID, errDay)
		}
		facility.WorkingDays = append(facility.WorkingDays, day)
	}

	if start != nil && end != nil && *start != "" && *end != "" {
		hours := &models.WorkingHours{}
		if hours.Start, err = models.ParseClock(*start); err != nil {
			return models.Facility{}, fmt.Errorf("facility %s: %w", facility.ID, err)
		}
		if hours.End, err = models.ParseClock(*end); err != nil {
			return models.Facility{}, fmt.Errorf("facility %s: %w", facility.ID, err)
		}
		facility.WorkingHours = hours
	}

	facility.Requirements = models.CompletionRequirements{
		Photo:     requirePhoto,
		Comment:   requireComment,
		MinPhotos: minPhotos,
	}

	return facility, nil
}

func scanWorkItem(row scanner) (models.RecurringWorkItem, error) {
	var (
		item           models.RecurringWorkItem
		frequency      string
		anchorKind     string
		activeFrom, to *time.Time
	)

	err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.WorkType, &frequency, &item.Notes,
		&anchorKind, &item.Anchor.NodeID, &activeFrom, &to,
	)
	if err != nil {
		return models.RecurringWorkItem{}, err
	}

	item.Frequency = models.Frequency(frequency)
	item.Anchor.Kind = models.AnchorKind(anchorKind)
	if activeFrom != nil {
		date := civil.DateOf(*activeFrom)
		item.ActiveFrom = &date
	}
	if to != nil {
		date := civil.DateOf(*to)
		item.ActiveTo = &date
	}

	return item, nil
}

package memory

import (
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/civil"
	"github.com/UnknownOlympus/custodian/internal/hierarchy"
	"github.com/UnknownOlympus/custodian/internal/models"
	"gopkg.in/yaml.v3"
)

// Seed is the YAML fixture format accepted by LoadSeed.
type Seed struct {
	Facilities []FacilitySeed `yaml:"facilities"`
	Nodes      []NodeSeed     `yaml:"nodes"`
	WorkItems  []WorkItemSeed `yaml:"work_items"`
}

type FacilitySeed struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	OwnerID        string   `yaml:"owner_id"`
	NotifyChatID   int64    `yaml:"notify_chat_id"`
	Timezone       string   `yaml:"timezone"`
	WorkingDays    []string `yaml:"working_days"`
	WorkStart      string   `yaml:"work_start"`
	WorkEnd        string   `yaml:"work_end"`
	RequirePhoto   bool     `yaml:"require_photo"`
	RequireComment bool     `yaml:"require_comment"`
	MinPhotos      int      `yaml:"min_photos"`
}

type NodeSeed struct {
	ID        string `yaml:"id"`
	ParentID  string `yaml:"parent_id"`
	Kind      string `yaml:"kind"`
	Name      string `yaml:"name"`
	Synthetic bool   `yaml:"synthetic"`
}

type WorkItemSeed struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	WorkType    string `yaml:"work_type"`
	Frequency   string `yaml:"frequency"`
	Notes       string `yaml:"notes"`
	Anchor      struct {
		Kind   string `yaml:"kind"`
		NodeID string `yaml:"node_id"`
	} `yaml:"anchor"`
	ActiveFrom string `yaml:"active_from"`
	ActiveTo   string `yaml:"active_to"`
}

// LoadSeedFile reads a YAML fixture file into the store.
func (s *Store) LoadSeedFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer file.Close()

	return s.LoadSeed(file)
}

// LoadSeed decodes a YAML fixture and adds its facilities, nodes and work items.
// Nothing is added when any entry is invalid.
func (s *Store) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("failed to decode seed: %w", err)
	}

	facilities := make([]models.Facility, 0, len(seed.Facilities))
	for _, raw := range seed.Facilities {
		facility, err := raw.toModel()
		if err != nil {
			return err
		}
		facilities = append(facilities, facility)
	}

	items := make([]models.RecurringWorkItem, 0, len(seed.WorkItems))
	for _, raw := range seed.WorkItems {
		item, err := raw.toModel()
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	for _, facility := range facilities {
		s.AddFacility(facility)
	}
	for _, raw := range seed.Nodes {
		s.AddNode(hierarchy.Node{
			ID:        raw.ID,
			ParentID:  raw.ParentID,
			Kind:      hierarchy.NodeKind(raw.Kind),
			Name:      raw.Name,
			Synthetic: raw.Synthetic,
		})
	}
	for _, item := range items {
		s.AddWorkItem(item)
	}

	return nil
}

func (f FacilitySeed) toModel() (models.Facility, error) {
	facility := models.Facility{
		ID:           f.ID,
		Name:         f.Name,
		OwnerID:      f.OwnerID,
		NotifyChatID: f.NotifyChatID,
		Timezone:     f.Timezone,
		Requirements: models.CompletionRequirements{
			Photo:     f.RequirePhoto,
			Comment:   f.RequireComment,
			MinPhotos: f.MinPhotos,
		},
	}

	for _, raw := range f.WorkingDays {
		day, err := models.ParseWeekday(raw)
		if err != nil {
			return models.Facility{}, fmt.Errorf("facility %s: %w", f.ID, err)
		}
		facility.WorkingDays = append(facility.WorkingDays, day)
	}

	if f.WorkStart != "" || f.WorkEnd != "" {
		start, err := models.ParseClock(f.WorkStart)
		if err != nil {
			return models.Facility{}, fmt.Errorf("facility %s: %w", f.ID, err)
		}
		end, err := models.ParseClock(f.WorkEnd)
		if err != nil {
			return models.Facility{}, fmt.Errorf("facility %s: %w", f.ID, err)
		}
		facility.WorkingHours = &models.WorkingHours{Start: start, End: end}
	}

	return facility, nil
}

func (w WorkItemSeed) toModel() (models.RecurringWorkItem, error) {
	item := models.RecurringWorkItem{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		WorkType:    w.WorkType,
		Frequency:   models.Frequency(w.Frequency),
		Notes:       w.Notes,
		Anchor: models.Anchor{
			Kind:   models.AnchorKind(w.Anchor.Kind),
			NodeID: w.Anchor.NodeID,
		},
	}

	var err error
	if item.ActiveFrom, err = parseOptionalDate(w.ActiveFrom); err != nil {
		return models.RecurringWorkItem{}, fmt.Errorf("work item %s: %w", w.ID, err)
	}
	if item.ActiveTo, err = parseOptionalDate(w.ActiveTo); err != nil {
		return models.RecurringWorkItem{}, fmt.Errorf("work item %s: %w", w.ID, err)
	}

	return item, nil
}

func parseOptionalDate(raw string) (*civil.Date, error) {
	if raw == "" {
		return nil, nil //nolint:nilnil // absent bound
	}
	date, err := civil.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q: %w", models.ErrValidation, raw, err)
	}
	return &date, nil
}

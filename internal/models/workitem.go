package models

import "cloud.google.com/go/civil"

// Frequency describes how often a recurring work item fires. Besides the enumerated
// values it may carry free legacy text such as "ежедневно" or "раз в 2 недели".
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// AnchorKind tags which hierarchy level a work item is attached to.
type AnchorKind string

const (
	AnchorFacility AnchorKind = "facility"
	AnchorRoom     AnchorKind = "room"
	AnchorSubItem  AnchorKind = "sub_item"
)

// Anchor points a work item at exactly one hierarchy node.
type Anchor struct {
	Kind   AnchorKind
	NodeID string
}

// RecurringWorkItem is a catalog entry ("tech card") that generates one task per firing date.
type RecurringWorkItem struct {
	ID          string
	Name        string
	Description string
	WorkType    string
	Frequency   Frequency
	Notes       string
	Anchor      Anchor
	ActiveFrom  *civil.Date // inclusive, nil means unbounded
	ActiveTo    *civil.Date // inclusive, nil means unbounded
}

// ActiveOn reports whether date falls inside the item's active range.
func (w RecurringWorkItem) ActiveOn(date civil.Date) bool {
	if w.ActiveFrom != nil && date.Before(*w.ActiveFrom) {
		return false
	}
	if w.ActiveTo != nil && date.After(*w.ActiveTo) {
		return false
	}
	return true
}

// Location is an anchor resolved against the hierarchy.
type Location struct {
	FacilityID   string
	FacilityName string
	Label        string // display label without synthetic placeholder levels
}

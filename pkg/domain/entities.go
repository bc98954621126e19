// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by flockcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityAnimal identifies an individual animal record.
	EntityAnimal EntityType = "animal"
	// EntityBreedingCycle identifies a breeding cycle (lambing) record.
	EntityBreedingCycle EntityType = "breeding_cycle"
	// EntityTreatment identifies a veterinary treatment record.
	EntityTreatment EntityType = "treatment"
	// EntityNote identifies a per-day operator note.
	EntityNote EntityType = "note"
	// EntityStatus identifies a status registry record.
	EntityStatus EntityType = "status"
	// EntityPlace identifies a place registry record.
	EntityPlace EntityType = "place"
)

// AnimalCategory distinguishes animal records sharing one tag-number namespace.
type AnimalCategory string

// Animal categories mirror the flock roles tracked by the registry.
const (
	// CategoryMaker is a proven sire kept for breeding service.
	CategoryMaker AnimalCategory = "maker"
	CategoryRam   AnimalCategory = "ram"
	// CategoryEwe is a young female not yet bred.
	CategoryEwe AnimalCategory = "ewe"
	// CategorySheep is a female that has been through at least one cycle.
	CategorySheep AnimalCategory = "sheep"
	CategoryLamb  AnimalCategory = "lamb"
)

// SireCapable reports whether animals of this category may be recorded as a
// cycle's father.
func (c AnimalCategory) SireCapable() bool {
	return c == CategoryMaker || c == CategoryRam
}

// DamCapable reports whether animals of this category may be recorded as a
// cycle's mother.
func (c AnimalCategory) DamCapable() bool {
	return c == CategoryEwe || c == CategorySheep
}

// Sex of an animal record.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// CycleState is the breeding cycle lifecycle state.
type CycleState string

const (
	// CycleActive is the open state between mating and recorded birth.
	CycleActive CycleState = "active"
	// CycleCompleted is terminal; completed cycles accept only note edits.
	CycleCompleted CycleState = "completed"
)

// AnimalRef identifies an animal by tag number and category. Tag numbers are
// unique across the whole namespace, but the category travels with the
// reference so callers never have to guess which registry a tag lives in.
type AnimalRef struct {
	TagNumber string         `json:"tag_number"`
	Category  AnimalCategory `json:"category"`
}

// IsZero reports whether the reference is unset.
func (r AnimalRef) IsZero() bool {
	return r.TagNumber == "" && r.Category == ""
}

func (r AnimalRef) String() string {
	return string(r.Category) + "/" + r.TagNumber
}

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Animal is the minimal animal record the breeding core owns: identity,
// parentage and current status/place references. Profile data (weights,
// veterinary history detail) lives outside the core.
type Animal struct {
	Base
	TagNumber  string         `json:"tag_number"`
	Category   AnimalCategory `json:"category"`
	Sex        Sex            `json:"sex"`
	Species    string         `json:"species"`
	BirthDate  Date           `json:"birth_date"`
	StatusID   *string        `json:"status_id"`
	StatusDate Date           `json:"status_date"`
	PlaceID    *string        `json:"place_id"`
	MotherRef  *AnimalRef     `json:"mother_ref"`
	FatherRef  *AnimalRef     `json:"father_ref"`
	Note       string         `json:"note,omitempty"`
}

// Ref returns the animal's tagged reference.
func (a Animal) Ref() AnimalRef {
	return AnimalRef{TagNumber: a.TagNumber, Category: a.Category}
}

// BreedingCycle tracks one mating-to-birth record for a mother/father pair.
type BreedingCycle struct {
	Base
	MotherRef AnimalRef  `json:"mother_ref"`
	FatherRef AnimalRef  `json:"father_ref"`
	StartDate Date       `json:"start_date"`
	// PlannedDueDate is always derived from StartDate plus the species
	// gestation length, never supplied by callers.
	PlannedDueDate       Date       `json:"planned_due_date"`
	ActualCompletionDate *Date      `json:"actual_completion_date"`
	OffspringCount       int        `json:"offspring_count"`
	OffspringIDs         []string   `json:"offspring_ids"`
	Note                 string     `json:"note,omitempty"`
	State                CycleState `json:"state"`
}

// OffspringDraft describes a newborn to be turned into an animal record at
// cycle completion. Drafts are transient and never persisted on their own.
type OffspringDraft struct {
	Sex       Sex    `json:"sex"`
	TagNumber string `json:"tag_number"`
	StatusID  string `json:"status_id"`
	PlaceID   string `json:"place_id"`
	Note      string `json:"note,omitempty"`
}

// Category returns the registry category a draft lands in, derived from sex.
func (d OffspringDraft) Category() AnimalCategory {
	if d.Sex == SexMale {
		return CategoryRam
	}
	return CategoryEwe
}

// Status is a registry entry animals transition through.
type Status struct {
	Base
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Place is a housing registry entry (sheepfold / compartment).
type Place struct {
	Base
	Name string `json:"name"`
}

// TreatmentRecord is one administered veterinary treatment with an optional
// validity window. DurationDays of zero means the treatment is indefinite
// and never produces an expiry event.
type TreatmentRecord struct {
	Base
	AnimalRef    AnimalRef `json:"animal_ref"`
	CareType     string    `json:"care_type"`
	CareName     string    `json:"care_name"`
	Medication   string    `json:"medication,omitempty"`
	DateOfCare   Date      `json:"date_of_care"`
	DurationDays int       `json:"duration_days"`
	Comments     string    `json:"comments,omitempty"`
}

// ExpiryDate returns the end of the validity window. The second return is
// false for indefinite treatments.
func (t TreatmentRecord) ExpiryDate() (Date, bool) {
	if t.DurationDays <= 0 {
		return Date{}, false
	}
	return t.DateOfCare.AddDays(t.DurationDays), true
}

// CalendarNote is free text an operator attaches to a day. RenderedText is
// the display form with any embedded tag references already resolved by the
// note subsystem.
type CalendarNote struct {
	Base
	Date         Date   `json:"date"`
	Text         string `json:"text"`
	RenderedText string `json:"rendered_text,omitempty"`
}

// Display returns the rendered text, falling back to the raw text.
func (n CalendarNote) Display() string {
	if n.RenderedText != "" {
		return n.RenderedText
	}
	return n.Text
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured for rules.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

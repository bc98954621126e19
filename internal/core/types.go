// Package core implements the breeding-cycle lifecycle and the calendar
// aggregation engine on top of the domain persistence contracts.
package core

import "flockcore/pkg/domain"

type (
	// Animal aliases domain.Animal for service operations.
	Animal = domain.Animal
	// AnimalRef aliases domain.AnimalRef.
	AnimalRef = domain.AnimalRef
	// AnimalCategory aliases domain.AnimalCategory.
	AnimalCategory = domain.AnimalCategory
	// BreedingCycle aliases domain.BreedingCycle.
	BreedingCycle = domain.BreedingCycle
	// OffspringDraft aliases domain.OffspringDraft.
	OffspringDraft = domain.OffspringDraft
	// TreatmentRecord aliases domain.TreatmentRecord.
	TreatmentRecord = domain.TreatmentRecord
	// CalendarNote aliases domain.CalendarNote.
	CalendarNote = domain.CalendarNote
	// Status aliases domain.Status.
	Status = domain.Status
	// Place aliases domain.Place.
	Place = domain.Place
	// Date aliases domain.Date, the civil calendar date.
	Date = domain.Date
	// Result aliases domain.Result from rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// PersistentStore aliases the domain storage contract.
	PersistentStore = domain.PersistentStore
	// Snapshot aliases the exported state shape used by backups.
	Snapshot = domain.Snapshot
)

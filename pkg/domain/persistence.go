package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Either every mutation made through a
// transaction commits together or none do.
type Transaction interface {
	Snapshot() TransactionView
	CreateAnimal(Animal) (Animal, error)
	UpdateAnimal(id string, mutator func(*Animal) error) (Animal, error)
	CreateBreedingCycle(BreedingCycle) (BreedingCycle, error)
	UpdateBreedingCycle(id string, mutator func(*BreedingCycle) error) (BreedingCycle, error)
	CreateTreatment(TreatmentRecord) (TreatmentRecord, error)
	CreateNote(CalendarNote) (CalendarNote, error)
	UpdateNote(id string, mutator func(*CalendarNote) error) (CalendarNote, error)
	CreateStatus(Status) (Status, error)
	CreatePlace(Place) (Place, error)
	FindAnimal(id string) (Animal, bool)
	FindAnimalByTag(tagNumber string) (Animal, bool)
	FindBreedingCycle(id string) (BreedingCycle, bool)
	FindStatus(id string) (Status, bool)
	FindPlace(id string) (Place, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	ListTreatments() []TreatmentRecord
	ListNotes() []CalendarNote
	ListStatuses() []Status
	ListPlaces() []Place
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetAnimal(id string) (Animal, bool)
	GetAnimalByTag(tagNumber string) (Animal, bool)
	ListAnimals() []Animal
	GetBreedingCycle(id string) (BreedingCycle, bool)
	ListBreedingCycles() []BreedingCycle
	ListTreatments() []TreatmentRecord
	ListNotes() []CalendarNote
	ListStatuses() []Status
	ListPlaces() []Place
}

// Snapshot captures a point-in-time clone of the full store state, keyed by
// record ID. It is the unit of durable persistence and of backups.
type Snapshot struct {
	Animals    map[string]Animal          `json:"animals"`
	Cycles     map[string]BreedingCycle   `json:"cycles"`
	Treatments map[string]TreatmentRecord `json:"treatments"`
	Notes      map[string]CalendarNote    `json:"notes"`
	Statuses   map[string]Status          `json:"statuses"`
	Places     map[string]Place           `json:"places"`
}

// StateExporter is implemented by stores that can dump and restore their
// entire state. Backup tooling depends on this rather than on a concrete
// backend.
type StateExporter interface {
	ExportState() Snapshot
	ImportState(Snapshot)
}

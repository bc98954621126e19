// Package memory provides the in-memory transactional implementation of the
// core persistence store. Durable backends wrap it and snapshot its state.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flockcore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions for the domain persistence interfaces.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.StateExporter   = (*Store)(nil)
)

type (
	// Animal aliases domain.Animal for in-memory persistence operations.
	Animal = domain.Animal
	// BreedingCycle aliases domain.BreedingCycle.
	BreedingCycle = domain.BreedingCycle
	// TreatmentRecord aliases domain.TreatmentRecord.
	TreatmentRecord = domain.TreatmentRecord
	// CalendarNote aliases domain.CalendarNote.
	CalendarNote = domain.CalendarNote
	// Status aliases domain.Status.
	Status = domain.Status
	// Place aliases domain.Place.
	Place = domain.Place
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Snapshot aliases domain.Snapshot, the exported state shape.
	Snapshot = domain.Snapshot
)

type memoryState struct {
	animals    map[string]Animal
	cycles     map[string]BreedingCycle
	treatments map[string]TreatmentRecord
	notes      map[string]CalendarNote
	statuses   map[string]Status
	places     map[string]Place
	// tagIndex maps tag numbers to animal IDs. Uniqueness of tags is a
	// storage constraint, not a service pre-check: concurrent claims of the
	// same tag serialize on the store and the second one fails here.
	tagIndex map[string]string
}

func newMemoryState() memoryState {
	return memoryState{
		animals:    make(map[string]Animal),
		cycles:     make(map[string]BreedingCycle),
		treatments: make(map[string]TreatmentRecord),
		notes:      make(map[string]CalendarNote),
		statuses:   make(map[string]Status),
		places:     make(map[string]Place),
		tagIndex:   make(map[string]string),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.animals {
		cloned.animals[k] = cloneAnimal(v)
	}
	for k, v := range s.cycles {
		cloned.cycles[k] = cloneCycle(v)
	}
	for k, v := range s.treatments {
		cloned.treatments[k] = v
	}
	for k, v := range s.notes {
		cloned.notes[k] = v
	}
	for k, v := range s.statuses {
		cloned.statuses[k] = v
	}
	for k, v := range s.places {
		cloned.places[k] = v
	}
	for k, v := range s.tagIndex {
		cloned.tagIndex[k] = v
	}
	return cloned
}

func cloneAnimal(a Animal) Animal {
	cp := a
	if a.StatusID != nil {
		id := *a.StatusID
		cp.StatusID = &id
	}
	if a.PlaceID != nil {
		id := *a.PlaceID
		cp.PlaceID = &id
	}
	if a.MotherRef != nil {
		ref := *a.MotherRef
		cp.MotherRef = &ref
	}
	if a.FatherRef != nil {
		ref := *a.FatherRef
		cp.FatherRef = &ref
	}
	return cp
}

func cloneCycle(c BreedingCycle) BreedingCycle {
	cp := c
	if c.ActualCompletionDate != nil {
		d := *c.ActualCompletionDate
		cp.ActualCompletionDate = &d
	}
	cp.OffspringIDs = append([]string(nil), c.OffspringIDs...)
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// RulesEngine returns the engine evaluated at commit time.
func (s *Store) RulesEngine() *RulesEngine { return s.engine }

// NowFunc returns the clock used to stamp created/updated times.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

// SetNowFunc overrides the store clock, primarily for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func newID() string {
	return uuid.NewString()
}

// Transaction represents a mutation set applied to a clone of the store
// state. It commits only if the enclosing RunInTransaction succeeds.
type Transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*Transaction)(nil)

type transactionView struct {
	state *memoryState
}

var _ domain.TransactionView = transactionView{}

// RunInTransaction executes fn within a transactional copy of the store
// state. Rules registered on the engine are evaluated against the mutated
// snapshot; blocking violations abort the commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := transactionView{state: &tx.state}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

func (tx *Transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to callers needing reads within
// the same atomic scope.
func (tx *Transaction) Snapshot() domain.TransactionView {
	return transactionView{state: &tx.state}
}

// CreateAnimal stores a new animal, enforcing tag uniqueness across the
// whole namespace.
func (tx *Transaction) CreateAnimal(a Animal) (Animal, error) {
	if a.TagNumber == "" {
		return Animal{}, domain.ValidationError{Field: "tag_number", Message: "tag number is required"}
	}
	if ownerID, taken := tx.state.tagIndex[a.TagNumber]; taken {
		return Animal{}, domain.ConflictError{
			Entity:  domain.EntityAnimal,
			ID:      ownerID,
			Message: fmt.Sprintf("tag %s already exists", a.TagNumber),
		}
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if _, exists := tx.state.animals[a.ID]; exists {
		return Animal{}, fmt.Errorf("animal %q already exists", a.ID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.animals[a.ID] = cloneAnimal(a)
	tx.state.tagIndex[a.TagNumber] = a.ID
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionCreate, After: cloneAnimal(a)})
	return cloneAnimal(a), nil
}

// UpdateAnimal mutates an animal using the provided mutator function.
func (tx *Transaction) UpdateAnimal(id string, mutator func(*Animal) error) (Animal, error) {
	current, ok := tx.state.animals[id]
	if !ok {
		return Animal{}, domain.NotFoundError{Entity: domain.EntityAnimal, ID: id}
	}
	before := cloneAnimal(current)
	if err := mutator(&current); err != nil {
		return Animal{}, err
	}
	if current.TagNumber != before.TagNumber {
		if ownerID, taken := tx.state.tagIndex[current.TagNumber]; taken && ownerID != id {
			return Animal{}, domain.ConflictError{
				Entity:  domain.EntityAnimal,
				ID:      ownerID,
				Message: fmt.Sprintf("tag %s already exists", current.TagNumber),
			}
		}
		delete(tx.state.tagIndex, before.TagNumber)
		tx.state.tagIndex[current.TagNumber] = id
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.animals[id] = cloneAnimal(current)
	tx.recordChange(Change{Entity: domain.EntityAnimal, Action: domain.ActionUpdate, Before: before, After: cloneAnimal(current)})
	return cloneAnimal(current), nil
}

// CreateBreedingCycle stores a new cycle record.
func (tx *Transaction) CreateBreedingCycle(c BreedingCycle) (BreedingCycle, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.cycles[c.ID]; exists {
		return BreedingCycle{}, fmt.Errorf("breeding cycle %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.cycles[c.ID] = cloneCycle(c)
	tx.recordChange(Change{Entity: domain.EntityBreedingCycle, Action: domain.ActionCreate, After: cloneCycle(c)})
	return cloneCycle(c), nil
}

// UpdateBreedingCycle mutates an existing cycle. Cycles are never deleted;
// completed ones are retained as history.
func (tx *Transaction) UpdateBreedingCycle(id string, mutator func(*BreedingCycle) error) (BreedingCycle, error) {
	current, ok := tx.state.cycles[id]
	if !ok {
		return BreedingCycle{}, domain.NotFoundError{Entity: domain.EntityBreedingCycle, ID: id}
	}
	before := cloneCycle(current)
	if err := mutator(&current); err != nil {
		return BreedingCycle{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.cycles[id] = cloneCycle(current)
	tx.recordChange(Change{Entity: domain.EntityBreedingCycle, Action: domain.ActionUpdate, Before: before, After: cloneCycle(current)})
	return cloneCycle(current), nil
}

// CreateTreatment stores an administered treatment record.
func (tx *Transaction) CreateTreatment(t TreatmentRecord) (TreatmentRecord, error) {
	if t.DurationDays < 0 {
		return TreatmentRecord{}, domain.ValidationError{Field: "duration_days", Message: "duration must not be negative"}
	}
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.treatments[t.ID]; exists {
		return TreatmentRecord{}, fmt.Errorf("treatment %q already exists", t.ID)
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.treatments[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityTreatment, Action: domain.ActionCreate, After: t})
	return t, nil
}

// CreateNote stores a per-day operator note.
func (tx *Transaction) CreateNote(n CalendarNote) (CalendarNote, error) {
	if n.Date.IsZero() {
		return CalendarNote{}, domain.ValidationError{Field: "date", Message: "note date is required"}
	}
	if n.ID == "" {
		n.ID = newID()
	}
	if _, exists := tx.state.notes[n.ID]; exists {
		return CalendarNote{}, fmt.Errorf("note %q already exists", n.ID)
	}
	n.CreatedAt = tx.now
	n.UpdatedAt = tx.now
	tx.state.notes[n.ID] = n
	tx.recordChange(Change{Entity: domain.EntityNote, Action: domain.ActionCreate, After: n})
	return n, nil
}

// UpdateNote mutates an existing note.
func (tx *Transaction) UpdateNote(id string, mutator func(*CalendarNote) error) (CalendarNote, error) {
	current, ok := tx.state.notes[id]
	if !ok {
		return CalendarNote{}, domain.NotFoundError{Entity: domain.EntityNote, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return CalendarNote{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.notes[id] = current
	tx.recordChange(Change{Entity: domain.EntityNote, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateStatus stores a status registry entry.
func (tx *Transaction) CreateStatus(st Status) (Status, error) {
	if st.Name == "" {
		return Status{}, domain.ValidationError{Field: "name", Message: "status name is required"}
	}
	if st.ID == "" {
		st.ID = newID()
	}
	if _, exists := tx.state.statuses[st.ID]; exists {
		return Status{}, fmt.Errorf("status %q already exists", st.ID)
	}
	st.CreatedAt = tx.now
	st.UpdatedAt = tx.now
	tx.state.statuses[st.ID] = st
	tx.recordChange(Change{Entity: domain.EntityStatus, Action: domain.ActionCreate, After: st})
	return st, nil
}

// CreatePlace stores a place registry entry.
func (tx *Transaction) CreatePlace(p Place) (Place, error) {
	if p.Name == "" {
		return Place{}, domain.ValidationError{Field: "name", Message: "place name is required"}
	}
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.places[p.ID]; exists {
		return Place{}, fmt.Errorf("place %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.places[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPlace, Action: domain.ActionCreate, After: p})
	return p, nil
}

// FindAnimal retrieves an animal by ID from the transactional state.
func (tx *Transaction) FindAnimal(id string) (Animal, bool) {
	a, ok := tx.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(a), true
}

// FindAnimalByTag retrieves an animal by tag number.
func (tx *Transaction) FindAnimalByTag(tagNumber string) (Animal, bool) {
	id, ok := tx.state.tagIndex[tagNumber]
	if !ok {
		return Animal{}, false
	}
	return tx.FindAnimal(id)
}

// FindBreedingCycle retrieves a cycle by ID.
func (tx *Transaction) FindBreedingCycle(id string) (BreedingCycle, bool) {
	c, ok := tx.state.cycles[id]
	if !ok {
		return BreedingCycle{}, false
	}
	return cloneCycle(c), true
}

// FindStatus retrieves a status by ID.
func (tx *Transaction) FindStatus(id string) (Status, bool) {
	st, ok := tx.state.statuses[id]
	return st, ok
}

// FindPlace retrieves a place by ID.
func (tx *Transaction) FindPlace(id string) (Place, bool) {
	p, ok := tx.state.places[id]
	return p, ok
}

// Read-only view methods -----------------------------------------------------

func (v transactionView) ListAnimals() []Animal {
	out := make([]Animal, 0, len(v.state.animals))
	for _, a := range v.state.animals {
		out = append(out, cloneAnimal(a))
	}
	return out
}

func (v transactionView) ListBreedingCycles() []BreedingCycle {
	out := make([]BreedingCycle, 0, len(v.state.cycles))
	for _, c := range v.state.cycles {
		out = append(out, cloneCycle(c))
	}
	return out
}

func (v transactionView) ListTreatments() []TreatmentRecord {
	out := make([]TreatmentRecord, 0, len(v.state.treatments))
	for _, t := range v.state.treatments {
		out = append(out, t)
	}
	return out
}

func (v transactionView) ListNotes() []CalendarNote {
	out := make([]CalendarNote, 0, len(v.state.notes))
	for _, n := range v.state.notes {
		out = append(out, n)
	}
	return out
}

func (v transactionView) ListStatuses() []Status {
	out := make([]Status, 0, len(v.state.statuses))
	for _, st := range v.state.statuses {
		out = append(out, st)
	}
	return out
}

func (v transactionView) ListPlaces() []Place {
	out := make([]Place, 0, len(v.state.places))
	for _, p := range v.state.places {
		out = append(out, p)
	}
	return out
}

func (v transactionView) FindAnimal(id string) (Animal, bool) {
	a, ok := v.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(a), true
}

func (v transactionView) FindAnimalByTag(tagNumber string) (Animal, bool) {
	id, ok := v.state.tagIndex[tagNumber]
	if !ok {
		return Animal{}, false
	}
	return v.FindAnimal(id)
}

func (v transactionView) FindBreedingCycle(id string) (BreedingCycle, bool) {
	c, ok := v.state.cycles[id]
	if !ok {
		return BreedingCycle{}, false
	}
	return cloneCycle(c), true
}

func (v transactionView) FindStatus(id string) (Status, bool) {
	st, ok := v.state.statuses[id]
	return st, ok
}

func (v transactionView) FindPlace(id string) (Place, bool) {
	p, ok := v.state.places[id]
	return p, ok
}

// Committed-state read helpers ------------------------------------------------

// GetAnimal retrieves an animal by ID from committed state.
func (s *Store) GetAnimal(id string) (Animal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(a), true
}

// GetAnimalByTag retrieves an animal by tag number from committed state.
func (s *Store) GetAnimalByTag(tagNumber string) (Animal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.tagIndex[tagNumber]
	if !ok {
		return Animal{}, false
	}
	a, ok := s.state.animals[id]
	if !ok {
		return Animal{}, false
	}
	return cloneAnimal(a), true
}

// ListAnimals returns all animals from committed state.
func (s *Store) ListAnimals() []Animal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Animal, 0, len(s.state.animals))
	for _, a := range s.state.animals {
		out = append(out, cloneAnimal(a))
	}
	return out
}

// GetBreedingCycle retrieves a cycle by ID from committed state.
func (s *Store) GetBreedingCycle(id string) (BreedingCycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cycles[id]
	if !ok {
		return BreedingCycle{}, false
	}
	return cloneCycle(c), true
}

// ListBreedingCycles returns all cycles, active and completed.
func (s *Store) ListBreedingCycles() []BreedingCycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BreedingCycle, 0, len(s.state.cycles))
	for _, c := range s.state.cycles {
		out = append(out, cloneCycle(c))
	}
	return out
}

// ListTreatments returns all treatment records.
func (s *Store) ListTreatments() []TreatmentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TreatmentRecord, 0, len(s.state.treatments))
	for _, t := range s.state.treatments {
		out = append(out, t)
	}
	return out
}

// ListNotes returns all operator notes.
func (s *Store) ListNotes() []CalendarNote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CalendarNote, 0, len(s.state.notes))
	for _, n := range s.state.notes {
		out = append(out, n)
	}
	return out
}

// ListStatuses returns the status registry.
func (s *Store) ListStatuses() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Status, 0, len(s.state.statuses))
	for _, st := range s.state.statuses {
		out = append(out, st)
	}
	return out
}

// ListPlaces returns the place registry.
func (s *Store) ListPlaces() []Place {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Place, 0, len(s.state.places))
	for _, p := range s.state.places {
		out = append(out, p)
	}
	return out
}

// ExportState returns a deep copy of the full committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Animals:    make(map[string]Animal, len(s.state.animals)),
		Cycles:     make(map[string]BreedingCycle, len(s.state.cycles)),
		Treatments: make(map[string]TreatmentRecord, len(s.state.treatments)),
		Notes:      make(map[string]CalendarNote, len(s.state.notes)),
		Statuses:   make(map[string]Status, len(s.state.statuses)),
		Places:     make(map[string]Place, len(s.state.places)),
	}
	for k, v := range s.state.animals {
		snap.Animals[k] = cloneAnimal(v)
	}
	for k, v := range s.state.cycles {
		snap.Cycles[k] = cloneCycle(v)
	}
	for k, v := range s.state.treatments {
		snap.Treatments[k] = v
	}
	for k, v := range s.state.notes {
		snap.Notes[k] = v
	}
	for k, v := range s.state.statuses {
		snap.Statuses[k] = v
	}
	for k, v := range s.state.places {
		snap.Places[k] = v
	}
	return snap
}

// ImportState replaces the committed state with the snapshot contents and
// rebuilds the tag index.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snap.Animals {
		state.animals[k] = cloneAnimal(v)
		state.tagIndex[v.TagNumber] = k
	}
	for k, v := range snap.Cycles {
		state.cycles[k] = cloneCycle(v)
	}
	for k, v := range snap.Treatments {
		state.treatments[k] = v
	}
	for k, v := range snap.Notes {
		state.notes[k] = v
	}
	for k, v := range snap.Statuses {
		state.statuses[k] = v
	}
	for k, v := range snap.Places {
		state.places[k] = v
	}
	s.state = state
}

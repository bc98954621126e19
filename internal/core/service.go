package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"flockcore/pkg/domain"
)

// Pagination bounds for cycle listings.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// DefaultMaxFutureStartDays bounds how far into the future a cycle start
// date may lie. Matings are recorded after the fact or at most a few days
// ahead; anything beyond the bound is a data-entry mistake.
const DefaultMaxFutureStartDays = 7

// Service exposes the breeding-cycle lifecycle operations. All mutations run
// inside store transactions with the commit-time rules engine.
type Service struct {
	store          PersistentStore
	logger         Logger
	metrics        MetricsRecorder
	tracer         Tracer
	clock          func() time.Time
	gestation      GestationTable
	maxFutureStart int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithGestationTable replaces the species gestation table.
func WithGestationTable(table GestationTable) Option {
	return func(s *Service) {
		if len(table) > 0 {
			s.gestation = table
		}
	}
}

// WithMaxFutureStart sets how many days into the future a start date may lie.
func WithMaxFutureStart(days int) Option {
	return func(s *Service) {
		if days >= 0 {
			s.maxFutureStart = days
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:          store,
		logger:         noopLogger{},
		metrics:        noopMetrics{},
		tracer:         noopTracer{},
		clock:          func() time.Time { return time.Now().UTC() },
		gestation:      DefaultGestationTable(),
		maxFutureStart: DefaultMaxFutureStartDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// today returns the current civil date per the service clock.
func (s *Service) today() Date { return domain.DateOf(s.clock()) }

// CreateCycleInput describes a new breeding cycle. GestationDays of zero
// means "use the species table for the mother's species".
type CreateCycleInput struct {
	MotherTag     string
	FatherTag     string
	StartDate     Date
	GestationDays int
	Note          string
}

// CreateCycle validates parents and dates, derives the planned due date, and
// persists an active cycle.
func (s *Service) CreateCycle(ctx context.Context, input CreateCycleInput) (BreedingCycle, error) {
	var created BreedingCycle
	err := s.instrument(ctx, "create_cycle", func(ctx context.Context) error {
		if input.GestationDays < 0 {
			return domain.ValidationError{Field: "gestation_days", Message: "gestation days must not be negative"}
		}
		if input.StartDate.IsZero() {
			return domain.ValidationError{Field: "start_date", Message: "start date is required"}
		}
		if limit := s.today().AddDays(s.maxFutureStart); input.StartDate.After(limit) {
			return domain.ValidationError{
				Field:   "start_date",
				Message: fmt.Sprintf("start date %s is more than %d days in the future", input.StartDate, s.maxFutureStart),
			}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			view := tx.Snapshot()
			mother, err := resolveMother(view, input.MotherTag)
			if err != nil {
				return err
			}
			father, err := resolveFather(view, input.FatherTag)
			if err != nil {
				return err
			}
			if err := requireNoActiveCycle(view, mother.Ref()); err != nil {
				return err
			}
			days := input.GestationDays
			if days == 0 {
				days = s.gestation.Days(mother.Species)
			}
			created, err = tx.CreateBreedingCycle(BreedingCycle{
				MotherRef:      mother.Ref(),
				FatherRef:      father.Ref(),
				StartDate:      input.StartDate,
				PlannedDueDate: DueDate(input.StartDate, days),
				Note:           input.Note,
				State:          domain.CycleActive,
			})
			return err
		})
		return err
	})
	if err != nil {
		return BreedingCycle{}, err
	}
	s.logger.Info("breeding cycle created",
		"cycle_id", created.ID,
		"mother", created.MotherRef.String(),
		"due", created.PlannedDueDate.String())
	return created, nil
}

func resolveMother(view domain.TransactionView, tag string) (Animal, error) {
	if tag == "" {
		return Animal{}, domain.ValidationError{Field: "mother_tag", Message: "mother tag is required"}
	}
	mother, ok := view.FindAnimalByTag(tag)
	if !ok {
		return Animal{}, domain.NotFoundError{Entity: domain.EntityAnimal, ID: tag}
	}
	if !mother.Category.DamCapable() {
		return Animal{}, domain.ValidationError{
			Field:   "mother_tag",
			Message: fmt.Sprintf("animal %s is a %s and cannot be a mother", tag, mother.Category),
		}
	}
	return mother, nil
}

func resolveFather(view domain.TransactionView, tag string) (Animal, error) {
	if tag == "" {
		return Animal{}, domain.ValidationError{Field: "father_tag", Message: "father tag is required"}
	}
	father, ok := view.FindAnimalByTag(tag)
	if !ok {
		return Animal{}, domain.NotFoundError{Entity: domain.EntityAnimal, ID: tag}
	}
	if !father.Category.SireCapable() {
		return Animal{}, domain.ValidationError{
			Field:   "father_tag",
			Message: fmt.Sprintf("animal %s is a %s and cannot be a father", tag, father.Category),
		}
	}
	return father, nil
}

func requireNoActiveCycle(view domain.RuleView, mother AnimalRef) error {
	for _, cycle := range view.ListBreedingCycles() {
		if cycle.State == domain.CycleActive && cycle.MotherRef.TagNumber == mother.TagNumber {
			return domain.ConflictError{
				Entity:  domain.EntityBreedingCycle,
				ID:      cycle.ID,
				Message: fmt.Sprintf("mother %s already has an active cycle", mother),
			}
		}
	}
	return nil
}

// BatchItemError captures a single failed mother in a bulk creation.
type BatchItemError struct {
	MotherTag string           `json:"mother_tag"`
	Code      domain.ErrorCode `json:"code"`
	Reason    string           `json:"reason"`
}

// BatchInput creates one cycle per mother against a shared father and start
// date.
type BatchInput struct {
	MotherTags    []string
	FatherTag     string
	StartDate     Date
	GestationDays int
	Note          string
}

// BatchResult reports per-mother outcomes of a bulk creation.
type BatchResult struct {
	Created []BreedingCycle  `json:"created"`
	Errors  []BatchItemError `json:"errors"`
}

// CreateCycleBatch creates cycles for several mothers at once. Mothers are
// processed in order and independently: one failure is recorded and the rest
// proceed.
func (s *Service) CreateCycleBatch(ctx context.Context, input BatchInput) (BatchResult, error) {
	var result BatchResult
	err := s.instrument(ctx, "create_cycle_batch", func(ctx context.Context) error {
		if len(input.MotherTags) == 0 {
			return domain.ValidationError{Field: "mother_tags", Message: "at least one mother is required"}
		}
		for _, tag := range input.MotherTags {
			created, err := s.CreateCycle(ctx, CreateCycleInput{
				MotherTag:     tag,
				FatherTag:     input.FatherTag,
				StartDate:     input.StartDate,
				GestationDays: input.GestationDays,
				Note:          input.Note,
			})
			if err != nil {
				result.Errors = append(result.Errors, BatchItemError{
					MotherTag: tag,
					Code:      domain.CodeOf(err),
					Reason:    err.Error(),
				})
				continue
			}
			result.Created = append(result.Created, created)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	if len(result.Errors) > 0 {
		s.logger.Warn("bulk cycle creation had failures",
			"created", len(result.Created), "failed", len(result.Errors))
	}
	return result, nil
}

// Page selects a window of a listing. Zero values take the defaults.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) normalize() (int, int, error) {
	if p.Offset < 0 {
		return 0, 0, domain.ValidationError{Field: "offset", Message: "offset must not be negative"}
	}
	limit := p.Limit
	switch {
	case limit < 0:
		return 0, 0, domain.ValidationError{Field: "limit", Message: "limit must not be negative"}
	case limit == 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}
	return p.Offset, limit, nil
}

// CyclePage is one window of the active-cycle listing.
type CyclePage struct {
	Cycles []BreedingCycle `json:"cycles"`
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Limit  int             `json:"limit"`
}

// ListActiveCycles returns active cycles ordered by planned due date, with
// record ID breaking ties.
func (s *Service) ListActiveCycles(ctx context.Context, page Page) (CyclePage, error) {
	var out CyclePage
	err := s.instrument(ctx, "list_active_cycles", func(ctx context.Context) error {
		offset, limit, err := page.normalize()
		if err != nil {
			return err
		}
		var active []BreedingCycle
		for _, cycle := range s.store.ListBreedingCycles() {
			if cycle.State == domain.CycleActive {
				active = append(active, cycle)
			}
		}
		sort.Slice(active, func(i, j int) bool {
			if active[i].PlannedDueDate != active[j].PlannedDueDate {
				return active[i].PlannedDueDate.Before(active[j].PlannedDueDate)
			}
			return active[i].ID < active[j].ID
		})
		out = CyclePage{Total: len(active), Offset: offset, Limit: limit}
		if offset >= len(active) {
			return nil
		}
		end := offset + limit
		if end > len(active) {
			end = len(active)
		}
		out.Cycles = active[offset:end]
		return nil
	})
	if err != nil {
		return CyclePage{}, err
	}
	return out, nil
}

// GetCycle fetches a cycle by ID.
func (s *Service) GetCycle(ctx context.Context, id string) (BreedingCycle, error) {
	var cycle BreedingCycle
	err := s.instrument(ctx, "get_cycle", func(ctx context.Context) error {
		found, ok := s.store.GetBreedingCycle(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityBreedingCycle, ID: id}
		}
		cycle = found
		return nil
	})
	if err != nil {
		return BreedingCycle{}, err
	}
	return cycle, nil
}

// RescheduleCycle moves an active cycle's start date and recomputes the
// planned due date, preserving the cycle's original gestation length.
func (s *Service) RescheduleCycle(ctx context.Context, id string, newStart Date) (BreedingCycle, error) {
	var updated BreedingCycle
	err := s.instrument(ctx, "reschedule_cycle", func(ctx context.Context) error {
		if newStart.IsZero() {
			return domain.ValidationError{Field: "start_date", Message: "start date is required"}
		}
		if limit := s.today().AddDays(s.maxFutureStart); newStart.After(limit) {
			return domain.ValidationError{
				Field:   "start_date",
				Message: fmt.Sprintf("start date %s is more than %d days in the future", newStart, s.maxFutureStart),
			}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateBreedingCycle(id, func(c *BreedingCycle) error {
				if c.State != domain.CycleActive {
					return domain.InvalidStateError{
						Entity:  domain.EntityBreedingCycle,
						ID:      id,
						State:   string(c.State),
						Message: "only active cycles can be rescheduled",
					}
				}
				days := c.StartDate.DaysUntil(c.PlannedDueDate)
				c.StartDate = newStart
				c.PlannedDueDate = DueDate(newStart, days)
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return BreedingCycle{}, err
	}
	return updated, nil
}

// UpdateCycleNote replaces a cycle's note. Note corrections are the one
// mutation permitted on completed cycles.
func (s *Service) UpdateCycleNote(ctx context.Context, id, note string) (BreedingCycle, error) {
	var updated BreedingCycle
	err := s.instrument(ctx, "update_cycle_note", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateBreedingCycle(id, func(c *BreedingCycle) error {
				c.Note = note
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return BreedingCycle{}, err
	}
	return updated, nil
}

// RegisterAnimal adds an animal to the registry.
func (s *Service) RegisterAnimal(ctx context.Context, animal Animal) (Animal, error) {
	var created Animal
	err := s.instrument(ctx, "register_animal", func(ctx context.Context) error {
		if animal.Species == "" {
			animal.Species = SpeciesSheep
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateAnimal(animal)
			return err
		})
		return err
	})
	if err != nil {
		return Animal{}, err
	}
	return created, nil
}

// CreateStatus adds a status registry entry.
func (s *Service) CreateStatus(ctx context.Context, status Status) (Status, error) {
	var created Status
	err := s.instrument(ctx, "create_status", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateStatus(status)
			return err
		})
		return err
	})
	if err != nil {
		return Status{}, err
	}
	return created, nil
}

// CreatePlace adds a place registry entry.
func (s *Service) CreatePlace(ctx context.Context, place Place) (Place, error) {
	var created Place
	err := s.instrument(ctx, "create_place", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreatePlace(place)
			return err
		})
		return err
	})
	if err != nil {
		return Place{}, err
	}
	return created, nil
}

// RecordTreatment stores an administered treatment after checking the animal
// exists.
func (s *Service) RecordTreatment(ctx context.Context, treatment TreatmentRecord) (TreatmentRecord, error) {
	var created TreatmentRecord
	err := s.instrument(ctx, "record_treatment", func(ctx context.Context) error {
		if treatment.DateOfCare.IsZero() {
			return domain.ValidationError{Field: "date_of_care", Message: "date of care is required"}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindAnimalByTag(treatment.AnimalRef.TagNumber); !ok {
				return domain.NotFoundError{Entity: domain.EntityAnimal, ID: treatment.AnimalRef.TagNumber}
			}
			var err error
			created, err = tx.CreateTreatment(treatment)
			return err
		})
		return err
	})
	if err != nil {
		return TreatmentRecord{}, err
	}
	return created, nil
}

// CreateNote attaches a note to a day.
func (s *Service) CreateNote(ctx context.Context, note CalendarNote) (CalendarNote, error) {
	var created CalendarNote
	err := s.instrument(ctx, "create_note", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateNote(note)
			return err
		})
		return err
	})
	if err != nil {
		return CalendarNote{}, err
	}
	return created, nil
}

// UpdateNote replaces the text of an existing note.
func (s *Service) UpdateNote(ctx context.Context, id, text string) (CalendarNote, error) {
	var updated CalendarNote
	err := s.instrument(ctx, "update_note", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateNote(id, func(n *CalendarNote) error {
				n.Text = text
				n.RenderedText = ""
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return CalendarNote{}, err
	}
	return updated, nil
}

// ListStatuses returns the status registry.
func (s *Service) ListStatuses(ctx context.Context) ([]Status, error) {
	statuses := s.store.ListStatuses()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, nil
}

// ListPlaces returns the place registry.
func (s *Service) ListPlaces(ctx context.Context) ([]Place, error) {
	places := s.store.ListPlaces()
	sort.Slice(places, func(i, j int) bool { return places[i].Name < places[j].Name })
	return places, nil
}

package core

import (
	"context"
	"sort"

	"flockcore/pkg/domain"
)

// EventKind classifies calendar events. The set is closed: aggregation
// switches on it exhaustively.
type EventKind string

const (
	// EventLambing marks a planned due date of an active cycle.
	EventLambing EventKind = "lambing"
	// EventTreatmentOccurred marks the day a treatment was administered.
	EventTreatmentOccurred EventKind = "treatment_occurred"
	// EventTreatmentExpiring marks the end of a treatment validity window.
	EventTreatmentExpiring EventKind = "treatment_expiring"
	// EventNote marks a per-day operator note.
	EventNote EventKind = "note"
)

// LambingEvent is the calendar payload for a due date.
type LambingEvent struct {
	CycleID   string    `json:"cycle_id"`
	MotherRef AnimalRef `json:"mother_ref"`
	FatherRef AnimalRef `json:"father_ref"`
	StartDate Date      `json:"start_date"`
	Note      string    `json:"note,omitempty"`
}

// TreatmentEvent is the calendar payload for an occurrence or expiry.
// ExpiryDate is nil for indefinite treatments.
type TreatmentEvent struct {
	TreatmentID string    `json:"treatment_id"`
	AnimalRef   AnimalRef `json:"animal_ref"`
	CareType    string    `json:"care_type"`
	CareName    string    `json:"care_name"`
	Medication  string    `json:"medication,omitempty"`
	ExpiryDate  *Date     `json:"expiry_date,omitempty"`
}

// NoteEvent is the calendar payload for an operator note.
type NoteEvent struct {
	NoteID string `json:"note_id"`
	Text   string `json:"text"`
}

// Event is one dated calendar entry. Exactly one payload field is set,
// matching Kind.
type Event struct {
	Date      Date            `json:"date"`
	Kind      EventKind       `json:"kind"`
	Lambing   *LambingEvent   `json:"lambing,omitempty"`
	Treatment *TreatmentEvent `json:"treatment,omitempty"`
	Note      *NoteEvent      `json:"note,omitempty"`
}

// CalendarDay groups a day's events by kind. Days without events are never
// materialized, so every list on a returned day may still be empty but at
// least one is not.
type CalendarDay struct {
	Date               Date    `json:"date"`
	Lambings           []Event `json:"lambings"`
	TreatmentsOccurred []Event `json:"treatments_occurred"`
	TreatmentsExpiring []Event `json:"treatments_expiring"`
	Notes              []Event `json:"notes"`
}

// EventSource produces the events of one subsystem inside an inclusive date
// range. An empty range is a normal outcome, not an error.
type EventSource interface {
	Name() string
	EventsInRange(ctx context.Context, from, to Date) ([]Event, error)
}

// TreatmentSchedule supplies treatment records to the calendar.
type TreatmentSchedule interface {
	TreatmentsInRange(ctx context.Context, from, to Date) ([]TreatmentRecord, error)
}

// NoteFeed supplies rendered notes to the calendar.
type NoteFeed interface {
	NotesInRange(ctx context.Context, from, to Date) ([]CalendarNote, error)
}

func inRange(d, from, to Date) bool {
	return !d.Before(from) && !d.After(to)
}

// LambingSource emits one lambing event per active cycle whose planned due
// date falls inside the range.
type LambingSource struct {
	store PersistentStore
}

// NewLambingSource constructs the due-date source over a store.
func NewLambingSource(store PersistentStore) *LambingSource {
	return &LambingSource{store: store}
}

// Name identifies the source in logs.
func (s *LambingSource) Name() string { return "lambing" }

// EventsInRange implements EventSource.
func (s *LambingSource) EventsInRange(ctx context.Context, from, to Date) ([]Event, error) {
	var events []Event
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		var due []BreedingCycle
		for _, cycle := range view.ListBreedingCycles() {
			if cycle.State != domain.CycleActive {
				continue
			}
			if !inRange(cycle.PlannedDueDate, from, to) {
				continue
			}
			due = append(due, cycle)
		}
		// Store listings iterate maps; pin a stable order so identical
		// queries return identical days.
		sort.Slice(due, func(i, j int) bool {
			if due[i].PlannedDueDate != due[j].PlannedDueDate {
				return due[i].PlannedDueDate.Before(due[j].PlannedDueDate)
			}
			return due[i].ID < due[j].ID
		})
		for _, cycle := range due {
			events = append(events, Event{
				Date: cycle.PlannedDueDate,
				Kind: EventLambing,
				Lambing: &LambingEvent{
					CycleID:   cycle.ID,
					MotherRef: cycle.MotherRef,
					FatherRef: cycle.FatherRef,
					StartDate: cycle.StartDate,
					Note:      cycle.Note,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// TreatmentSource emits an occurrence event for each treatment administered
// in range and an expiry event when the validity window ends in range.
// Indefinite treatments never expire.
type TreatmentSource struct {
	schedule TreatmentSchedule
}

// NewTreatmentSource constructs the treatment source over a schedule.
func NewTreatmentSource(schedule TreatmentSchedule) *TreatmentSource {
	return &TreatmentSource{schedule: schedule}
}

// Name identifies the source in logs.
func (s *TreatmentSource) Name() string { return "treatment" }

// EventsInRange implements EventSource.
func (s *TreatmentSource) EventsInRange(ctx context.Context, from, to Date) ([]Event, error) {
	treatments, err := s.schedule.TreatmentsInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, t := range treatments {
		payload := &TreatmentEvent{
			TreatmentID: t.ID,
			AnimalRef:   t.AnimalRef,
			CareType:    t.CareType,
			CareName:    t.CareName,
			Medication:  t.Medication,
		}
		expiry, expires := t.ExpiryDate()
		if expires {
			e := expiry
			payload.ExpiryDate = &e
		}
		if inRange(t.DateOfCare, from, to) {
			events = append(events, Event{Date: t.DateOfCare, Kind: EventTreatmentOccurred, Treatment: payload})
		}
		if expires && inRange(expiry, from, to) {
			events = append(events, Event{Date: expiry, Kind: EventTreatmentExpiring, Treatment: payload})
		}
	}
	return events, nil
}

// NoteSource emits one note event per operator note in range, using the
// feed's pre-rendered display text.
type NoteSource struct {
	feed NoteFeed
}

// NewNoteSource constructs the note source over a feed.
func NewNoteSource(feed NoteFeed) *NoteSource {
	return &NoteSource{feed: feed}
}

// Name identifies the source in logs.
func (s *NoteSource) Name() string { return "note" }

// EventsInRange implements EventSource.
func (s *NoteSource) EventsInRange(ctx context.Context, from, to Date) ([]Event, error) {
	notes, err := s.feed.NotesInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, n := range notes {
		if !inRange(n.Date, from, to) {
			continue
		}
		events = append(events, Event{
			Date: n.Date,
			Kind: EventNote,
			Note: &NoteEvent{NoteID: n.ID, Text: n.Display()},
		})
	}
	return events, nil
}

// StoreTreatmentSchedule serves treatments straight from the store. A
// treatment is relevant when its occurrence or its expiry can fall in range.
type StoreTreatmentSchedule struct {
	store PersistentStore
}

// NewStoreTreatmentSchedule wraps a store as a TreatmentSchedule.
func NewStoreTreatmentSchedule(store PersistentStore) *StoreTreatmentSchedule {
	return &StoreTreatmentSchedule{store: store}
}

// TreatmentsInRange implements TreatmentSchedule.
func (s *StoreTreatmentSchedule) TreatmentsInRange(ctx context.Context, from, to Date) ([]TreatmentRecord, error) {
	var out []TreatmentRecord
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		for _, t := range view.ListTreatments() {
			relevant := inRange(t.DateOfCare, from, to)
			if expiry, ok := t.ExpiryDate(); ok && inRange(expiry, from, to) {
				relevant = true
			}
			if relevant {
				out = append(out, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateOfCare != out[j].DateOfCare {
			return out[i].DateOfCare.Before(out[j].DateOfCare)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// StoreNoteFeed serves notes straight from the store.
type StoreNoteFeed struct {
	store PersistentStore
}

// NewStoreNoteFeed wraps a store as a NoteFeed.
func NewStoreNoteFeed(store PersistentStore) *StoreNoteFeed {
	return &StoreNoteFeed{store: store}
}

// NotesInRange implements NoteFeed.
func (s *StoreNoteFeed) NotesInRange(ctx context.Context, from, to Date) ([]CalendarNote, error) {
	var out []CalendarNote
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		for _, n := range view.ListNotes() {
			if inRange(n.Date, from, to) {
				out = append(out, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Calendar folds events from its sources into a per-day index.
type Calendar struct {
	sources []EventSource
	logger  Logger
}

// NewCalendar constructs an aggregator over the given sources. Source order
// determines ordering within each day's lists.
func NewCalendar(logger Logger, sources ...EventSource) *Calendar {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Calendar{sources: sources, logger: logger}
}

// NewStoreCalendar wires the three standard sources over one store.
func NewStoreCalendar(store PersistentStore, logger Logger) *Calendar {
	return NewCalendar(logger,
		NewLambingSource(store),
		NewTreatmentSource(NewStoreTreatmentSchedule(store)),
		NewNoteSource(NewStoreNoteFeed(store)),
	)
}

// BuildIndex queries every source and folds the events into a sparse map
// keyed by date. Days with no events are absent; an inverted range yields an
// empty map. The index is rebuilt on every call.
func (c *Calendar) BuildIndex(ctx context.Context, from, to Date) (map[Date]*CalendarDay, error) {
	index := make(map[Date]*CalendarDay)
	if from.After(to) {
		return index, nil
	}
	for _, source := range c.sources {
		events, err := source.EventsInRange(ctx, from, to)
		if err != nil {
			c.logger.Error("calendar source failed", "source", source.Name(), "error", err)
			return nil, err
		}
		for _, event := range events {
			day, ok := index[event.Date]
			if !ok {
				day = &CalendarDay{Date: event.Date}
				index[event.Date] = day
			}
			switch event.Kind {
			case EventLambing:
				day.Lambings = append(day.Lambings, event)
			case EventTreatmentOccurred:
				day.TreatmentsOccurred = append(day.TreatmentsOccurred, event)
			case EventTreatmentExpiring:
				day.TreatmentsExpiring = append(day.TreatmentsExpiring, event)
			case EventNote:
				day.Notes = append(day.Notes, event)
			}
		}
	}
	return index, nil
}

package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"flockcore/internal/infra/persistence/memory"
	"flockcore/pkg/domain"
)

var testNow = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	service  *Service
	store    *memory.Store
	statusID string
	placeID  string
}

// newFixture builds a service over a fresh in-memory store with the default
// rules, a fixed clock, and a small seeded flock: ewes 100-102, sheep 103,
// ram 200.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore(DefaultRulesEngine())
	store.SetNowFunc(func() time.Time { return testNow })
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	service := NewService(store, opts...)
	ctx := context.Background()

	status, err := service.CreateStatus(ctx, Status{Name: "healthy", Color: "#2a9d2a"})
	if err != nil {
		t.Fatalf("seed status: %v", err)
	}
	place, err := service.CreatePlace(ctx, Place{Name: "sheepfold 1"})
	if err != nil {
		t.Fatalf("seed place: %v", err)
	}

	seed := []Animal{
		{TagNumber: "100", Category: domain.CategoryEwe, Sex: domain.SexFemale},
		{TagNumber: "101", Category: domain.CategoryEwe, Sex: domain.SexFemale},
		{TagNumber: "102", Category: domain.CategoryEwe, Sex: domain.SexFemale},
		{TagNumber: "103", Category: domain.CategorySheep, Sex: domain.SexFemale},
		{TagNumber: "200", Category: domain.CategoryRam, Sex: domain.SexMale},
	}
	for _, animal := range seed {
		if _, err := service.RegisterAnimal(ctx, animal); err != nil {
			t.Fatalf("seed animal %s: %v", animal.TagNumber, err)
		}
	}
	return &fixture{service: service, store: store, statusID: status.ID, placeID: place.ID}
}

func (f *fixture) mustCreateCycle(t *testing.T, motherTag string, start Date) BreedingCycle {
	t.Helper()
	cycle, err := f.service.CreateCycle(context.Background(), CreateCycleInput{
		MotherTag: motherTag,
		FatherTag: "200",
		StartDate: start,
	})
	if err != nil {
		t.Fatalf("create cycle for %s: %v", motherTag, err)
	}
	return cycle
}

func TestCreateCycleDerivesDueDate(t *testing.T) {
	f := newFixture(t)
	start := domain.NewDate(2024, time.February, 20)

	cycle, err := f.service.CreateCycle(context.Background(), CreateCycleInput{
		MotherTag:     "100",
		FatherTag:     "200",
		StartDate:     start,
		GestationDays: 150,
	})
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	want := domain.NewDate(2024, time.July, 19)
	if cycle.PlannedDueDate != want {
		t.Fatalf("planned due date = %s, want %s", cycle.PlannedDueDate, want)
	}
	if cycle.State != domain.CycleActive {
		t.Fatalf("state = %s, want active", cycle.State)
	}
}

func TestCreateCycleUsesSpeciesTableByDefault(t *testing.T) {
	f := newFixture(t)
	start := domain.NewDate(2024, time.February, 20)
	cycle := f.mustCreateCycle(t, "100", start)
	if want := start.AddDays(155); cycle.PlannedDueDate != want {
		t.Fatalf("planned due date = %s, want %s", cycle.PlannedDueDate, want)
	}
}

func TestCreateCycleRejectsSecondActiveForMother(t *testing.T) {
	f := newFixture(t)
	start := domain.NewDate(2024, time.February, 1)
	f.mustCreateCycle(t, "100", start)

	_, err := f.service.CreateCycle(context.Background(), CreateCycleInput{
		MotherTag: "100",
		FatherTag: "200",
		StartDate: start.AddDays(3),
	})
	if domain.CodeOf(err) != domain.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateCycleValidatesParents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := domain.NewDate(2024, time.February, 1)

	cases := []struct {
		name   string
		mother string
		father string
		code   domain.ErrorCode
	}{
		{"unknown mother", "999", "200", domain.CodeNotFound},
		{"unknown father", "100", "999", domain.CodeNotFound},
		{"ram as mother", "200", "200", domain.CodeValidation},
		{"ewe as father", "100", "101", domain.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.CreateCycle(ctx, CreateCycleInput{
				MotherTag: tc.mother,
				FatherTag: tc.father,
				StartDate: start,
			})
			if domain.CodeOf(err) != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestCreateCycleRejectsFarFutureStart(t *testing.T) {
	f := newFixture(t)
	start := domain.DateOf(testNow).AddDays(DefaultMaxFutureStartDays + 1)
	_, err := f.service.CreateCycle(context.Background(), CreateCycleInput{
		MotherTag: "100",
		FatherTag: "200",
		StartDate: start,
	})
	if domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	// A wider bound admits the same date.
	wide := newFixture(t, WithMaxFutureStart(30))
	if _, err := wide.service.CreateCycle(context.Background(), CreateCycleInput{
		MotherTag: "100",
		FatherTag: "200",
		StartDate: start,
	}); err != nil {
		t.Fatalf("create cycle with wide bound: %v", err)
	}
}

func TestCreateCycleBatchPartialSuccess(t *testing.T) {
	f := newFixture(t)
	start := domain.NewDate(2024, time.February, 10)
	// Mother 101 already has an active cycle, so the middle item fails.
	f.mustCreateCycle(t, "101", start)

	result, err := f.service.CreateCycleBatch(context.Background(), BatchInput{
		MotherTags: []string{"100", "101", "102"},
		FatherTag:  "200",
		StartDate:  start,
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("created = %d, want 2", len(result.Created))
	}
	if result.Created[0].MotherRef.TagNumber != "100" || result.Created[1].MotherRef.TagNumber != "102" {
		t.Fatalf("created mothers = %s, %s; want 100, 102",
			result.Created[0].MotherRef.TagNumber, result.Created[1].MotherRef.TagNumber)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(result.Errors))
	}
	if result.Errors[0].MotherTag != "101" || result.Errors[0].Code != domain.CodeConflict {
		t.Fatalf("unexpected batch error: %+v", result.Errors[0])
	}
}

func TestListActiveCyclesOrdersByDueDate(t *testing.T) {
	f := newFixture(t)
	// Created out of due-date order on purpose.
	late := f.mustCreateCycle(t, "100", domain.NewDate(2024, time.February, 20))
	early := f.mustCreateCycle(t, "101", domain.NewDate(2024, time.February, 1))
	middle := f.mustCreateCycle(t, "102", domain.NewDate(2024, time.February, 10))

	page, err := f.service.ListActiveCycles(context.Background(), Page{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.Limit != DefaultPageLimit {
		t.Fatalf("total=%d limit=%d, want 3/%d", page.Total, page.Limit, DefaultPageLimit)
	}
	wantOrder := []string{early.ID, middle.ID, late.ID}
	for i, cycle := range page.Cycles {
		if cycle.ID != wantOrder[i] {
			t.Fatalf("position %d = %s, want %s", i, cycle.ID, wantOrder[i])
		}
	}

	window, err := f.service.ListActiveCycles(context.Background(), Page{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(window.Cycles) != 1 || window.Cycles[0].ID != middle.ID {
		t.Fatalf("offset window returned wrong cycle")
	}

	beyond, err := f.service.ListActiveCycles(context.Background(), Page{Offset: 10})
	if err != nil {
		t.Fatalf("list beyond: %v", err)
	}
	if len(beyond.Cycles) != 0 || beyond.Total != 3 {
		t.Fatalf("offset beyond end should return empty page with total intact")
	}
}

func TestListActiveCyclesCapsLimit(t *testing.T) {
	f := newFixture(t)
	page, err := f.service.ListActiveCycles(context.Background(), Page{Limit: 1000})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Limit != MaxPageLimit {
		t.Fatalf("limit = %d, want %d", page.Limit, MaxPageLimit)
	}
	if _, err := f.service.ListActiveCycles(context.Background(), Page{Offset: -1}); domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected validation error for negative offset, got %v", err)
	}
}

func TestGetCycleNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.GetCycle(context.Background(), "missing")
	if domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestRescheduleCyclePreservesGestationLength(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := domain.NewDate(2024, time.February, 1)
	cycle, err := f.service.CreateCycle(ctx, CreateCycleInput{
		MotherTag:     "100",
		FatherTag:     "200",
		StartDate:     start,
		GestationDays: 150,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newStart := domain.NewDate(2024, time.February, 5)
	updated, err := f.service.RescheduleCycle(ctx, cycle.ID, newStart)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if updated.StartDate != newStart {
		t.Fatalf("start = %s, want %s", updated.StartDate, newStart)
	}
	if want := newStart.AddDays(150); updated.PlannedDueDate != want {
		t.Fatalf("due = %s, want %s", updated.PlannedDueDate, want)
	}
}

func TestUpdateCycleNoteAllowedAfterCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cycle := f.mustCreateCycle(t, "100", domain.NewDate(2024, time.January, 10))

	if _, err := f.service.CompleteCycle(ctx, CompleteCycleInput{
		CycleID:           cycle.ID,
		ActualDate:        domain.NewDate(2024, time.February, 28),
		NewMotherStatusID: f.statusID,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	updated, err := f.service.UpdateCycleNote(ctx, cycle.ID, "twins expected next season")
	if err != nil {
		t.Fatalf("note update on completed cycle: %v", err)
	}
	if updated.Note != "twins expected next season" {
		t.Fatalf("note = %q", updated.Note)
	}

	// Everything else on a completed cycle stays frozen.
	if _, err := f.service.RescheduleCycle(ctx, cycle.ID, domain.NewDate(2024, time.January, 12)); domain.CodeOf(err) != domain.CodeInvalidState {
		t.Fatalf("expected invalid_state, got %v", err)
	}
}

func TestRecordTreatmentRequiresKnownAnimal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.RecordTreatment(ctx, TreatmentRecord{
		AnimalRef:  AnimalRef{TagNumber: "999", Category: domain.CategoryEwe},
		CareType:   "vaccination",
		CareName:   "clostridial",
		DateOfCare: domain.NewDate(2024, time.February, 1),
	})
	if domain.CodeOf(err) != domain.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}

	created, err := f.service.RecordTreatment(ctx, TreatmentRecord{
		AnimalRef:    AnimalRef{TagNumber: "100", Category: domain.CategoryEwe},
		CareType:     "vaccination",
		CareName:     "clostridial",
		DateOfCare:   domain.NewDate(2024, time.February, 1),
		DurationDays: 30,
	})
	if err != nil {
		t.Fatalf("record treatment: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected assigned treatment ID")
	}
}

func TestServiceObservabilitySeams(t *testing.T) {
	recorder := NewExpvarMetricsRecorder(fmt.Sprintf("test_metrics_%d", time.Now().UnixNano()))
	tracer := NewJSONTracer(nil)
	f := newFixture(t, WithMetrics(recorder), WithTracer(tracer))

	f.mustCreateCycle(t, "100", domain.NewDate(2024, time.February, 1))
	if _, err := f.service.GetCycle(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error")
	}

	stats := recorder.Snapshot()
	if stats["create_cycle"].Success == 0 {
		t.Fatalf("expected create_cycle success recorded, got %+v", stats)
	}
	if stats["get_cycle"].Error == 0 {
		t.Fatalf("expected get_cycle error recorded, got %+v", stats)
	}

	var sawFailure bool
	for _, entry := range tracer.Entries() {
		if entry.Operation == "get_cycle" && entry.Status == "error" {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("expected traced get_cycle failure")
	}
}

func TestRegistryListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.service.CreateStatus(ctx, Status{Name: "sold", Color: "#888888"}); err != nil {
		t.Fatalf("create status: %v", err)
	}
	statuses, err := f.service.ListStatuses(ctx)
	if err != nil {
		t.Fatalf("list statuses: %v", err)
	}
	if len(statuses) != 2 || statuses[0].Name != "healthy" || statuses[1].Name != "sold" {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
	places, err := f.service.ListPlaces(ctx)
	if err != nil {
		t.Fatalf("list places: %v", err)
	}
	if len(places) != 1 {
		t.Fatalf("expected 1 place, got %d", len(places))
	}

	if _, err := f.service.CreateStatus(ctx, Status{}); domain.CodeOf(err) != domain.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"flockcore/pkg/domain"
)

func TestStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flock.db")
	ctx := context.Background()

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateAnimal(domain.Animal{TagNumber: "700", Category: domain.CategoryEwe, Sex: domain.SexFemale}); err != nil {
			return err
		}
		start := domain.NewDate(2024, time.February, 1)
		_, err := tx.CreateBreedingCycle(domain.BreedingCycle{
			MotherRef:      domain.AnimalRef{TagNumber: "700", Category: domain.CategoryEwe},
			FatherRef:      domain.AnimalRef{TagNumber: "701", Category: domain.CategoryRam},
			StartDate:      start,
			PlannedDueDate: start.AddDays(155),
			State:          domain.CycleActive,
		})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	animal, ok := reopened.GetAnimalByTag("700")
	if !ok {
		t.Fatalf("animal must survive reopen")
	}
	if animal.Category != domain.CategoryEwe {
		t.Fatalf("category = %s", animal.Category)
	}
	cycles := reopened.ListBreedingCycles()
	if len(cycles) != 1 || cycles[0].PlannedDueDate != domain.NewDate(2024, time.July, 5) {
		t.Fatalf("cycle not restored correctly: %+v", cycles)
	}

	// Tag index is rebuilt on load: duplicates are still rejected.
	if _, err := reopened.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnimal(domain.Animal{TagNumber: "700", Category: domain.CategorySheep, Sex: domain.SexFemale})
		return err
	}); domain.CodeOf(err) != domain.CodeConflict {
		t.Fatalf("expected conflict after reopen, got %v", err)
	}
}

func TestFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flock.db")
	ctx := context.Background()

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnimal(domain.Animal{TagNumber: "710", Category: domain.CategoryEwe, Sex: domain.SexFemale})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnimal(domain.Animal{TagNumber: "710", Category: domain.CategoryEwe, Sex: domain.SexFemale})
		return err
	}); err == nil {
		t.Fatalf("expected duplicate tag failure")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if got := len(reopened.ListAnimals()); got != 1 {
		t.Fatalf("animals after reopen = %d, want 1", got)
	}
}

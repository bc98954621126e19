package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"flockcore/pkg/domain"
)

func TestRunInTransactionCommitsAndRollsBack(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnimal(Animal{TagNumber: "1001", Category: domain.CategoryEwe, Sex: domain.SexFemale})
		return err
	}); err != nil {
		t.Fatalf("commit transaction: %v", err)
	}
	if _, ok := store.GetAnimalByTag("1001"); !ok {
		t.Fatalf("expected animal 1001 after commit")
	}

	boom := errors.New("boom")
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateAnimal(Animal{TagNumber: "1002", Category: domain.CategoryEwe, Sex: domain.SexFemale}); err != nil {
			return err
		}
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := store.GetAnimalByTag("1002"); ok {
		t.Fatalf("animal 1002 must not survive a failed transaction")
	}
}

func TestCreateAnimalRejectsDuplicateTag(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnimal(Animal{TagNumber: "2001", Category: domain.CategoryRam, Sex: domain.SexMale})
		return err
	}); err != nil {
		t.Fatalf("seed animal: %v", err)
	}

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnimal(Animal{TagNumber: "2001", Category: domain.CategoryEwe, Sex: domain.SexFemale})
		return err
	})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if domain.CodeOf(err) != domain.CodeConflict {
		t.Fatalf("expected conflict code, got %q", domain.CodeOf(err))
	}
}

func TestDuplicateTagInsideOneTransactionDiscardsAllWrites(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateAnimal(Animal{TagNumber: "3001", Category: domain.CategoryEwe, Sex: domain.SexFemale}); err != nil {
			return err
		}
		_, err := tx.CreateAnimal(Animal{TagNumber: "3001", Category: domain.CategoryEwe, Sex: domain.SexFemale})
		return err
	})
	if err == nil {
		t.Fatalf("expected duplicate tag error")
	}
	if got := len(store.ListAnimals()); got != 0 {
		t.Fatalf("expected zero animals after rollback, got %d", got)
	}
}

type blockEveryCycleRule struct{}

func (blockEveryCycleRule) Name() string { return "block_every_cycle" }

func (blockEveryCycleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity == domain.EntityBreedingCycle {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "block_every_cycle",
				Severity: domain.SeverityBlock,
				Message:  "cycles are blocked in this test",
				Entity:   change.Entity,
			})
		}
	}
	return res, nil
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEveryCycleRule{})
	store := NewStore(engine)
	ctx := context.Background()

	res, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateBreedingCycle(BreedingCycle{
			MotherRef: domain.AnimalRef{TagNumber: "4001", Category: domain.CategoryEwe},
			State:     domain.CycleActive,
		})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violations in result")
	}
	if got := len(store.ListBreedingCycles()); got != 0 {
		t.Fatalf("blocked transaction must not commit, got %d cycles", got)
	}
}

func TestUpdateAnimalMovesTagIndex(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.CreateAnimal(Animal{TagNumber: "5001", Category: domain.CategorySheep, Sex: domain.SexFemale})
		if err != nil {
			return err
		}
		id = created.ID
		return nil
	}); err != nil {
		t.Fatalf("seed animal: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateAnimal(id, func(a *Animal) error {
			a.TagNumber = "5002"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("retag animal: %v", err)
	}

	if _, ok := store.GetAnimalByTag("5001"); ok {
		t.Fatalf("old tag must be released")
	}
	got, ok := store.GetAnimalByTag("5002")
	if !ok || got.ID != id {
		t.Fatalf("new tag must resolve to the same record")
	}

	// The released tag is reusable by a new record.
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnimal(Animal{TagNumber: "5001", Category: domain.CategoryEwe, Sex: domain.SexFemale})
		return err
	}); err != nil {
		t.Fatalf("reuse released tag: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.SetNowFunc(func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateAnimal(Animal{TagNumber: "6001", Category: domain.CategoryEwe, Sex: domain.SexFemale}); err != nil {
			return err
		}
		if _, err := tx.CreateStatus(Status{Name: "healthy", Color: "#00aa00"}); err != nil {
			return err
		}
		_, err := tx.CreateNote(CalendarNote{Date: domain.NewDate(2024, time.March, 2), Text: "shearing"})
		return err
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	snap := store.ExportState()
	restored := NewStore(domain.NewRulesEngine())
	restored.ImportState(snap)

	if _, ok := restored.GetAnimalByTag("6001"); !ok {
		t.Fatalf("imported store must rebuild the tag index")
	}
	if got := len(restored.ListStatuses()); got != 1 {
		t.Fatalf("expected 1 status after import, got %d", got)
	}
	if got := len(restored.ListNotes()); got != 1 {
		t.Fatalf("expected 1 note after import, got %d", got)
	}
}

func TestViewSeesCommittedStateOnly(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		view := tx.Snapshot()
		if got := len(view.ListAnimals()); got != 0 {
			t.Fatalf("fresh snapshot should be empty, got %d", got)
		}
		if _, err := tx.CreateAnimal(Animal{TagNumber: "7001", Category: domain.CategoryEwe, Sex: domain.SexFemale}); err != nil {
			return err
		}
		if _, ok := view.FindAnimalByTag("7001"); !ok {
			t.Fatalf("snapshot must see writes made in the same transaction")
		}
		return nil
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if err := store.View(ctx, func(view domain.TransactionView) error {
		if _, ok := view.FindAnimalByTag("7001"); !ok {
			t.Fatalf("view must see committed animal")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"flockcore/internal/infra/persistence/memory"
	"flockcore/pkg/domain"
)

// Rules are exercised through raw store transactions here: the service never
// produces these shapes itself, so the rules are the only guard.

func expectBlocked(t *testing.T, err error, rule string) {
	t.Helper()
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	for _, v := range violation.Result.Violations {
		if v.Rule == rule && v.Severity == domain.SeverityBlock {
			return
		}
	}
	t.Fatalf("expected blocking violation of %s, got %+v", rule, violation.Result.Violations)
}

func TestSingleActiveCycleRuleBlocksRawDuplicate(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()
	mother := AnimalRef{TagNumber: "400", Category: domain.CategoryEwe}
	start := domain.NewDate(2024, time.February, 1)

	makeCycle := func() BreedingCycle {
		return BreedingCycle{
			MotherRef:      mother,
			FatherRef:      AnimalRef{TagNumber: "401", Category: domain.CategoryRam},
			StartDate:      start,
			PlannedDueDate: start.AddDays(155),
			State:          domain.CycleActive,
		}
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateBreedingCycle(makeCycle())
		return err
	}); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateBreedingCycle(makeCycle())
		return err
	})
	expectBlocked(t, err, "single_active_cycle")
}

func TestCompletedCycleImmutableRule(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()
	start := domain.NewDate(2024, time.January, 1)
	actual := start.AddDays(150)

	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.CreateBreedingCycle(BreedingCycle{
			MotherRef:            AnimalRef{TagNumber: "410", Category: domain.CategorySheep},
			FatherRef:            AnimalRef{TagNumber: "411", Category: domain.CategoryRam},
			StartDate:            start,
			PlannedDueDate:       start.AddDays(155),
			ActualCompletionDate: &actual,
			OffspringCount:       1,
			State:                domain.CycleCompleted,
		})
		id = created.ID
		return err
	}); err != nil {
		t.Fatalf("seed completed cycle: %v", err)
	}

	// Note-only edits pass.
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateBreedingCycle(id, func(c *BreedingCycle) error {
			c.Note = "corrected"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("note edit on completed cycle: %v", err)
	}

	// Anything else is blocked.
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateBreedingCycle(id, func(c *BreedingCycle) error {
			c.OffspringCount = 5
			return nil
		})
		return err
	})
	expectBlocked(t, err, "completed_cycle_immutable")

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateBreedingCycle(id, func(c *BreedingCycle) error {
			c.State = domain.CycleActive
			return nil
		})
		return err
	})
	expectBlocked(t, err, "completed_cycle_immutable")
}

func TestDueDateWindowRuleBlocksImplausibleGestation(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()
	start := domain.NewDate(2024, time.February, 1)

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateBreedingCycle(BreedingCycle{
			MotherRef:      AnimalRef{TagNumber: "420", Category: domain.CategoryEwe},
			FatherRef:      AnimalRef{TagNumber: "421", Category: domain.CategoryRam},
			StartDate:      start,
			PlannedDueDate: start.AddDays(5),
			State:          domain.CycleActive,
		})
		return err
	})
	expectBlocked(t, err, "due_date_window")

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateBreedingCycle(BreedingCycle{
			MotherRef:      AnimalRef{TagNumber: "420", Category: domain.CategoryEwe},
			FatherRef:      AnimalRef{TagNumber: "421", Category: domain.CategoryRam},
			StartDate:      start,
			PlannedDueDate: start.AddDays(400),
			State:          domain.CycleActive,
		})
		return err
	})
	expectBlocked(t, err, "due_date_window")
}

func TestParentageIntegrityRuleBlocksUnknownParents(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()

	ghost := AnimalRef{TagNumber: "999", Category: domain.CategorySheep}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnimal(Animal{
			TagNumber: "430",
			Category:  domain.CategoryEwe,
			Sex:       domain.SexFemale,
			MotherRef: &ghost,
		})
		return err
	})
	expectBlocked(t, err, "parentage_integrity")

	// With the parent present the same create passes.
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateAnimal(Animal{TagNumber: "999", Category: domain.CategorySheep, Sex: domain.SexFemale}); err != nil {
			return err
		}
		_, err := tx.CreateAnimal(Animal{
			TagNumber: "430",
			Category:  domain.CategoryEwe,
			Sex:       domain.SexFemale,
			MotherRef: &ghost,
		})
		return err
	}); err != nil {
		t.Fatalf("create with resolvable parent: %v", err)
	}
}

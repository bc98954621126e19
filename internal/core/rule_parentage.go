package core

import (
	"context"
	"fmt"

	"flockcore/pkg/domain"
)

// ParentageIntegrityRule blocks animal creations whose parent references do
// not resolve to existing registry records.
func ParentageIntegrityRule() domain.Rule {
	return parentageIntegrityRule{}
}

type parentageIntegrityRule struct{}

func (parentageIntegrityRule) Name() string { return "parentage_integrity" }

func (parentageIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAnimal || change.Action != domain.ActionCreate {
			continue
		}
		animal, ok := change.After.(Animal)
		if !ok {
			continue
		}
		for _, parent := range []struct {
			label string
			ref   *AnimalRef
		}{
			{"mother", animal.MotherRef},
			{"father", animal.FatherRef},
		} {
			if parent.ref == nil || parent.ref.IsZero() {
				continue
			}
			if _, found := view.FindAnimalByTag(parent.ref.TagNumber); !found {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "parentage_integrity",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("animal %s references unknown %s %s", animal.TagNumber, parent.label, parent.ref),
					Entity:   domain.EntityAnimal,
					EntityID: animal.ID,
				})
			}
		}
	}
	return res, nil
}

// DefaultRulesEngine returns an engine with the standard rule set registered.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(SingleActiveCycleRule())
	engine.Register(CompletedCycleImmutableRule())
	engine.Register(DueDateWindowRule())
	engine.Register(ParentageIntegrityRule())
	return engine
}

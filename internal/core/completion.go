package core

import (
	"context"
	"fmt"

	"flockcore/pkg/domain"
)

// CompleteCycleInput carries everything recorded at birth: the actual date,
// the mother's next status, and one draft per newborn.
type CompleteCycleInput struct {
	CycleID           string
	ActualDate        Date
	NewMotherStatusID string
	Offspring         []OffspringDraft
	Note              string
}

// CompletionResult summarizes a successful completion.
type CompletionResult struct {
	CycleID          string   `json:"cycle_id"`
	OffspringCreated int      `json:"offspring_created"`
	OffspringIDs     []string `json:"offspring_ids"`
	MotherStatusID   string   `json:"mother_status_id"`
	State            string   `json:"state"`
}

// CompleteCycle records a birth in one transaction: offspring animals are
// created, the mother transitions to the new status dated on the actual
// date, and the cycle becomes completed. Any failure discards every write.
func (s *Service) CompleteCycle(ctx context.Context, input CompleteCycleInput) (CompletionResult, error) {
	var result CompletionResult
	err := s.instrument(ctx, "complete_cycle", func(ctx context.Context) error {
		if input.ActualDate.IsZero() {
			return domain.ValidationError{Field: "actual_date", Message: "actual date is required"}
		}
		if input.NewMotherStatusID == "" {
			return domain.ValidationError{Field: "new_mother_status_id", Message: "mother status is required"}
		}
		if err := validateDrafts(input.Offspring); err != nil {
			return err
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			cycle, ok := tx.FindBreedingCycle(input.CycleID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityBreedingCycle, ID: input.CycleID}
			}
			if cycle.State != domain.CycleActive {
				return domain.InvalidStateError{
					Entity:  domain.EntityBreedingCycle,
					ID:      cycle.ID,
					State:   string(cycle.State),
					Message: "cycle is already completed",
				}
			}
			if input.ActualDate.Before(cycle.StartDate) {
				return domain.ValidationError{
					Field:   "actual_date",
					Message: fmt.Sprintf("actual date %s precedes cycle start %s", input.ActualDate, cycle.StartDate),
				}
			}
			if _, ok := tx.FindStatus(input.NewMotherStatusID); !ok {
				return domain.NotFoundError{Entity: domain.EntityStatus, ID: input.NewMotherStatusID}
			}

			mother, ok := tx.FindAnimalByTag(cycle.MotherRef.TagNumber)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityAnimal, ID: cycle.MotherRef.TagNumber}
			}

			offspringIDs := make([]string, 0, len(input.Offspring))
			for _, draft := range input.Offspring {
				lamb, err := createOffspring(tx, cycle, draft, input.ActualDate)
				if err != nil {
					return err
				}
				offspringIDs = append(offspringIDs, lamb.ID)
			}

			statusID := input.NewMotherStatusID
			if _, err := tx.UpdateAnimal(mother.ID, func(a *Animal) error {
				a.StatusID = &statusID
				a.StatusDate = input.ActualDate
				// A first completed cycle graduates an ewe to sheep.
				if a.Category == domain.CategoryEwe {
					a.Category = domain.CategorySheep
				}
				return nil
			}); err != nil {
				return err
			}

			actual := input.ActualDate
			completed, err := tx.UpdateBreedingCycle(cycle.ID, func(c *BreedingCycle) error {
				c.State = domain.CycleCompleted
				c.ActualCompletionDate = &actual
				c.OffspringCount = len(offspringIDs)
				c.OffspringIDs = offspringIDs
				if input.Note != "" {
					c.Note = input.Note
				}
				return nil
			})
			if err != nil {
				return err
			}
			result = CompletionResult{
				CycleID:          completed.ID,
				OffspringCreated: len(offspringIDs),
				OffspringIDs:     offspringIDs,
				MotherStatusID:   statusID,
				State:            string(completed.State),
			}
			return nil
		})
		return err
	})
	if err != nil {
		return CompletionResult{}, err
	}
	s.logger.Info("breeding cycle completed",
		"cycle_id", result.CycleID,
		"offspring", result.OffspringCreated)
	return result, nil
}

// validateDrafts checks each draft is complete and tags are unique within
// the batch. Uniqueness against the store is the storage layer's job.
func validateDrafts(drafts []OffspringDraft) error {
	seen := make(map[string]struct{}, len(drafts))
	for i, draft := range drafts {
		if draft.TagNumber == "" {
			return domain.ValidationError{
				Field:   fmt.Sprintf("offspring[%d].tag_number", i),
				Message: "tag number is required",
			}
		}
		if draft.Sex != domain.SexMale && draft.Sex != domain.SexFemale {
			return domain.ValidationError{
				Field:   fmt.Sprintf("offspring[%d].sex", i),
				Message: "sex must be male or female",
			}
		}
		if draft.StatusID == "" {
			return domain.ValidationError{
				Field:   fmt.Sprintf("offspring[%d].status_id", i),
				Message: "status is required",
			}
		}
		if _, dup := seen[draft.TagNumber]; dup {
			return domain.ConflictError{
				Entity:  domain.EntityAnimal,
				Message: fmt.Sprintf("tag %s appears twice in the offspring list", draft.TagNumber),
			}
		}
		seen[draft.TagNumber] = struct{}{}
	}
	return nil
}

func createOffspring(tx domain.Transaction, cycle BreedingCycle, draft OffspringDraft, birth Date) (Animal, error) {
	if _, ok := tx.FindStatus(draft.StatusID); !ok {
		return Animal{}, domain.NotFoundError{Entity: domain.EntityStatus, ID: draft.StatusID}
	}
	var placeID *string
	if draft.PlaceID != "" {
		if _, ok := tx.FindPlace(draft.PlaceID); !ok {
			return Animal{}, domain.NotFoundError{Entity: domain.EntityPlace, ID: draft.PlaceID}
		}
		id := draft.PlaceID
		placeID = &id
	}
	statusID := draft.StatusID
	mother := cycle.MotherRef
	father := cycle.FatherRef
	return tx.CreateAnimal(Animal{
		TagNumber:  draft.TagNumber,
		Category:   draft.Category(),
		Sex:        draft.Sex,
		Species:    SpeciesSheep,
		BirthDate:  birth,
		StatusID:   &statusID,
		StatusDate: birth,
		PlaceID:    placeID,
		MotherRef:  &mother,
		FatherRef:  &father,
		Note:       draft.Note,
	})
}

package service

import (
	"context"
	"errors"

	"gitlab.com/dirk.krummacker/customers-service/internal/store"
)

// nameTaken reports whether a customer other than exceptID already has the candidate name, compared
// after Unicode case folding. Pass 0 as exceptID to consider every customer.
func nameTaken(ctx context.Context, s Store, candidate string, exceptID int64) (bool, error) {
	existing, err := s.FindByNameFold(ctx, candidate)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return existing.Id != exceptID, nil
}

package repositories

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"group-chat-service/internal/apperr"
)

var (
	ErrGroupNotFound      = fmt.Errorf("group %w", apperr.ErrNotFound)
	ErrMembershipNotFound = fmt.Errorf("membership %w", apperr.ErrNotFound)
	ErrMessageNotFound    = fmt.Errorf("message %w", apperr.ErrNotFound)
	ErrMembershipExists   = fmt.Errorf("membership already exists: %w", apperr.ErrConflict)
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

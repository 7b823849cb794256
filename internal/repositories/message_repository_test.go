package repositories

import (
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-chat-service/internal/apperr"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now \\o/`, escapeLike(`50% off_now \o/`))
	assert.Equal(t, "hello", escapeLike("hello"))
}

func TestSentinelsWrapTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(ErrGroupNotFound, apperr.ErrNotFound))
	assert.True(t, errors.Is(ErrMembershipNotFound, apperr.ErrNotFound))
	assert.True(t, errors.Is(ErrMessageNotFound, apperr.ErrNotFound))
	assert.True(t, errors.Is(ErrMembershipExists, apperr.ErrConflict))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestSenderArrayNeverEncodesNull(t *testing.T) {
	for _, ids := range [][]string{nil, {}} {
		v, err := senderArray(ids).(driver.Valuer).Value()
		require.NoError(t, err)
		assert.Equal(t, "{}", v)
	}

	v, err := senderArray([]string{"a", "b"}).(driver.Valuer).Value()
	require.NoError(t, err)
	assert.Equal(t, `{"a","b"}`, v)
}

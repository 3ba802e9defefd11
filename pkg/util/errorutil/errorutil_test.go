package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"retry", NewRetryableConflict(errors.New("duplicate key")), KindRetry},
		{"wrapped retry", fmt.Errorf("open: %w", NewRetryableConflict(nil)), KindRetry},
		{"already closed", NewAlreadyClosed("t-1"), KindUser},
		{"not an assignee", NewNotAnAssignee("s-1", "u-1"), KindUser},
		{"invalid transition", NewInvalidTransition("no active step", nil), KindProgramming},
		{"plain", errors.New("boom"), KindInternal},
		{"internal", NewInternalError(errors.New("boom")), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestSentinelsMatchThroughDomainError(t *testing.T) {
	err := fmt.Errorf("approve: %w", NewAlreadyClosed("t-1"))
	assert.ErrorIs(t, err, ErrAlreadyClosed)
	assert.NotErrorIs(t, err, ErrNotAnAssignee)

	conflict := NewRetryableConflict(errors.New("23505"))
	assert.ErrorIs(t, conflict, ErrRetryableConflict)
	assert.True(t, IsRetryable(conflict))
}

func TestToDomainError(t *testing.T) {
	de := ToDomainError(pgx.ErrNoRows)
	require.NotNil(t, de)
	assert.Equal(t, "NOT_FOUND", de.Code)
	assert.Equal(t, http.StatusNotFound, de.HTTPStatus)

	de = ToDomainError(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", de.Code)

	original := NewNotAnAssignee("s-1", "u-2")
	de = ToDomainError(fmt.Errorf("wrap: %w", original))
	assert.Equal(t, "NOT_AN_ASSIGNEE", de.Code)
	assert.Equal(t, "u-2", de.Details["processor"])

	assert.Nil(t, ToDomainError(nil))
}

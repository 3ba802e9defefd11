package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestTicketStepChangeState(t *testing.T) {
	step := NewTicketStep("step-1", "t-1", 1, []string{"alice", "bob"}, seqIDs("a"))
	step.SetActive()

	require.NoError(t, step.ChangeState(StepStateApproved, "bob"))
	assert.Equal(t, StepStatusClosed, step.Status)
	assert.Equal(t, StepStateApproved, step.State)
	assert.Equal(t, StepStatePending, step.Assignees[0].State)
	assert.Equal(t, StepStateApproved, step.Assignees[1].State)

	processor := step.Processor()
	require.NotNil(t, processor)
	assert.Equal(t, "bob", processor.AssigneeID)
}

func TestTicketStepChangeStateRejectsStranger(t *testing.T) {
	step := NewTicketStep("step-1", "t-1", 1, []string{"alice"}, seqIDs("a"))
	step.SetActive()

	err := step.ChangeState(StepStateRejected, "mallory")
	require.ErrorIs(t, err, apperrors.ErrNotAnAssignee)
	assert.Equal(t, StepStatusActive, step.Status)
	assert.Equal(t, StepStatePending, step.State)
	assert.Nil(t, step.Processor())

	require.ErrorIs(t, step.ChangeState(StepStateApproved, ""), apperrors.ErrNotAnAssignee)
}

func TestTicketStepReactivate(t *testing.T) {
	step := NewTicketStep("step-1", "t-1", 2, []string{"alice"}, seqIDs("a"))
	require.NoError(t, step.ChangeState(StepStateRejected, "alice"))

	step.Reactivate()
	assert.Equal(t, StepStatusActive, step.Status)
	assert.Equal(t, StepStatePending, step.State)
	assert.Equal(t, StepStatePending, step.Assignees[0].State)
	assert.Equal(t, "a-1", step.Assignees[0].ID)
}

func TestStepsNext(t *testing.T) {
	ids := seqIDs("a")
	steps := Steps{
		NewTicketStep("s3", "t-1", 3, []string{"carol"}, ids),
		NewTicketStep("s1", "t-1", 1, []string{"alice"}, ids),
		NewTicketStep("s2", "t-1", 2, []string{"bob"}, ids),
	}
	steps.Sort()
	require.True(t, steps.Contiguous())

	next := steps.Next(steps[0])
	require.NotNil(t, next)
	assert.Equal(t, 2, next.Level)

	assert.Nil(t, steps.Next(steps[2]), "final level has no next step")

	steps[1].Status = StepStatusClosed
	assert.Nil(t, steps.Next(steps[0]), "next step must still be pending")
}

func TestStepsContiguous(t *testing.T) {
	ids := seqIDs("a")
	gap := Steps{
		NewTicketStep("s1", "t-1", 1, nil, ids),
		NewTicketStep("s3", "t-1", 3, nil, ids),
	}
	assert.False(t, gap.Contiguous())

	dup := Steps{
		NewTicketStep("s1", "t-1", 1, nil, ids),
		NewTicketStep("s1b", "t-1", 1, nil, ids),
	}
	assert.False(t, dup.Contiguous())
}

func TestStepsAssigneeMembership(t *testing.T) {
	ids := seqIDs("a")
	steps := Steps{
		NewTicketStep("s1", "t-1", 1, []string{"alice"}, ids),
		NewTicketStep("s2", "t-1", 2, []string{"bob", "carol"}, ids),
	}
	assert.True(t, steps.HasAssignee("carol"))
	assert.False(t, steps.HasAssignee("dave"))
	assert.Equal(t, []string{"bob", "carol"}, steps.ByLevel(2).AssigneeIDs())
	assert.Empty(t, steps.Active())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, TicketStatusOpen, StatusFor(TicketStatePending))
	assert.Equal(t, TicketStatusOpen, StatusFor(TicketStateReopen))
	assert.Equal(t, TicketStatusClosed, StatusFor(TicketStateApproved))
	assert.Equal(t, TicketStatusClosed, StatusFor(TicketStateRejected))
	assert.Equal(t, TicketStatusClosed, StatusFor(TicketStateClosed))
}

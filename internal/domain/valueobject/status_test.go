package valueobject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

func TestProjectStatus_Transitions(t *testing.T) {
	assert.True(t, valueobject.ProjectStatusDraft.CanTransitionTo(valueobject.ProjectStatusPendingAcceptance))
	assert.True(t, valueobject.ProjectStatusAwaitingDeposit.CanTransitionTo(valueobject.ProjectStatusActive))
	assert.True(t, valueobject.ProjectStatusDisputed.CanTransitionTo(valueobject.ProjectStatusActive))
	assert.True(t, valueobject.ProjectStatusCompleted.CanTransitionTo(valueobject.ProjectStatusArchived))

	assert.False(t, valueobject.ProjectStatusActive.CanTransitionTo(valueobject.ProjectStatusDraft))
	assert.False(t, valueobject.ProjectStatusCompleted.CanTransitionTo(valueobject.ProjectStatusActive))
	assert.False(t, valueobject.ProjectStatusArchived.CanTransitionTo(valueobject.ProjectStatusDraft))
}

func TestProjectStatus_AcceptsMilestoneWork(t *testing.T) {
	assert.True(t, valueobject.ProjectStatusActive.AcceptsMilestoneWork())
	assert.True(t, valueobject.ProjectStatusDisputed.AcceptsMilestoneWork())
	assert.False(t, valueobject.ProjectStatusOnHold.AcceptsMilestoneWork())
	assert.False(t, valueobject.ProjectStatusCompleted.AcceptsMilestoneWork())
}

func TestMilestoneStatus_Transitions(t *testing.T) {
	assert.True(t, valueobject.MilestoneStatusPending.CanTransitionTo(valueobject.MilestoneStatusInProgress))
	assert.True(t, valueobject.MilestoneStatusSubmitted.CanTransitionTo(valueobject.MilestoneStatusApproved))
	assert.True(t, valueobject.MilestoneStatusRevisionRequested.CanTransitionTo(valueobject.MilestoneStatusSubmitted))

	assert.False(t, valueobject.MilestoneStatusPending.CanTransitionTo(valueobject.MilestoneStatusApproved))
	assert.False(t, valueobject.MilestoneStatusPending.CanTransitionTo(valueobject.MilestoneStatusDisputed))
	assert.False(t, valueobject.MilestoneStatusApproved.CanTransitionTo(valueobject.MilestoneStatusSubmitted))
}

func TestDisputeStatus_LegacyEscalated(t *testing.T) {
	s, err := valueobject.NewDisputeStatus("ESCALATED")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusInArbitration, s)

	_, err = valueobject.NewDisputeStatus("closed")
	assert.True(t, apperror.IsValidation(err))
}

func TestDisputeStatus_AppealReopens(t *testing.T) {
	assert.True(t, valueobject.DisputeStatusResolved.CanTransitionTo(valueobject.DisputeStatusInArbitration))
	assert.False(t, valueobject.DisputeStatusResolved.CanTransitionTo(valueobject.DisputeStatusInMediation))
	assert.False(t, valueobject.DisputeStatusResolved.IsOpen())
}

func TestDecision_CheckSplit(t *testing.T) {
	assert.NoError(t, valueobject.DecisionPartialPayment.CheckSplit(30000, 10000, 40000))
	assert.True(t, apperror.IsValidation(valueobject.DecisionPartialPayment.CheckSplit(29000, 10000, 40000)))
	assert.True(t, apperror.IsValidation(valueobject.DecisionPartialPayment.CheckSplit(29999, 10000, 40000)))
	assert.NoError(t, valueobject.DecisionFullPayment.CheckSplit(40000, 0, 40000))
	assert.True(t, apperror.IsValidation(valueobject.DecisionFullPayment.CheckSplit(30000, 10000, 40000)))
	assert.NoError(t, valueobject.DecisionFullRefund.CheckSplit(0, 40000, 40000))
	assert.NoError(t, valueobject.DecisionRevisionRequired.CheckSplit(0, 0, 40000))
	assert.True(t, apperror.IsValidation(valueobject.DecisionRevisionRequired.CheckSplit(100, 0, 40000)))
	assert.True(t, apperror.IsValidation(valueobject.DecisionFullRefund.CheckSplit(-1, 40001, 40000)))
}

func TestDecision_Outcome(t *testing.T) {
	assert.Equal(t, valueobject.MilestoneStatusApproved, valueobject.DecisionPartialPayment.MilestoneOutcome())
	assert.Equal(t, valueobject.MilestoneStatusRevisionRequested, valueobject.DecisionFullRefund.MilestoneOutcome())
	assert.True(t, valueobject.DecisionFullPayment.PaysFreelancer())
	assert.False(t, valueobject.DecisionRevisionRequired.PaysFreelancer())

	_, err := valueobject.NewDecision("payment")
	assert.True(t, apperror.IsValidation(err))
}

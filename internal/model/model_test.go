package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.True(t, TaskCompleted.IsTerminal())
	assert.True(t, TaskRejected.IsTerminal())
	assert.True(t, TaskFailed.IsTerminal())
	assert.False(t, TaskActive.IsTerminal())
	assert.False(t, TaskPending.IsTerminal())
	assert.False(t, TaskDeferred.IsTerminal())
}

func TestTask_CanAdvanceRoundRespectsMaxRounds(t *testing.T) {
	task := &Task{RoundCount: MaxRounds - 1}
	assert.True(t, task.CanAdvanceRound())

	task.RoundCount = MaxRounds
	assert.False(t, task.CanAdvanceRound())
}

func TestContextBundle_HasFollowUpMarker(t *testing.T) {
	assert.False(t, ContextBundle{}.HasFollowUpMarker())
	assert.True(t, ContextBundle{FollowUpMarker: "awaiting_reply"}.HasFollowUpMarker())
}

func TestActionType_IsConscienceExempt(t *testing.T) {
	exempt := []ActionType{ActionRecall, ActionTaskComplete, ActionObserve, ActionDefer, ActionReject}
	for _, a := range exempt {
		assert.True(t, a.IsConscienceExempt(), "%s should be exempt", a)
	}

	nonExempt := []ActionType{ActionSpeak, ActionTool, ActionMemorize, ActionForget, ActionPonder}
	for _, a := range nonExempt {
		assert.False(t, a.IsConscienceExempt(), "%s should not be exempt", a)
	}
}

func TestActionType_IsTerminal(t *testing.T) {
	terminal := []ActionType{ActionTaskComplete, ActionReject, ActionDefer}
	for _, a := range terminal {
		assert.True(t, a.IsTerminal(), "%s should be terminal", a)
	}

	nonTerminal := []ActionType{ActionSpeak, ActionTool, ActionObserve, ActionRecall, ActionPonder}
	for _, a := range nonTerminal {
		assert.False(t, a.IsTerminal(), "%s should not be terminal", a)
	}
}

func TestConsentRecord_IsExpired(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	temporary := ConsentRecord{Stream: ConsentTemporary, ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, temporary.IsExpired(now))

	stillValid := ConsentRecord{Stream: ConsentTemporary, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, stillValid.IsExpired(now))

	partnered := ConsentRecord{Stream: ConsentPartnered, ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, partnered.IsExpired(now), "non-temporary streams never expire")
}

func TestConsentRecord_PermitsDeniesAllReadsWhenRevoked(t *testing.T) {
	now := time.Now()
	revokedAt := now.Add(-time.Minute)
	record := ConsentRecord{
		Stream:     ConsentPartnered,
		Categories: []DataCategory{CategoryEssential, CategoryExtended},
		RevokedAt:  &revokedAt,
	}

	assert.False(t, record.Permits(now, CategoryEssential))
	assert.False(t, record.Permits(now, CategoryExtended))
}

func TestConsentRecord_PermitsRestrictsExpiredTemporaryToEssentialOnly(t *testing.T) {
	now := time.Now()
	record := ConsentRecord{
		Stream:     ConsentTemporary,
		Categories: []DataCategory{CategoryEssential, CategoryExtended},
		ExpiresAt:  now.Add(-time.Hour),
	}

	assert.True(t, record.Permits(now, CategoryEssential))
	assert.False(t, record.Permits(now, CategoryExtended))
}

func TestConsentRecord_PermitsHonorsGrantedCategoriesWhenActive(t *testing.T) {
	now := time.Now()
	record := ConsentRecord{
		Stream:     ConsentPartnered,
		Categories: []DataCategory{CategoryEssential},
		ExpiresAt:  now.Add(time.Hour),
	}

	assert.True(t, record.Permits(now, CategoryEssential))
	assert.False(t, record.Permits(now, CategoryExtended))
}

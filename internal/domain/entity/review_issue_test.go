package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueDedupKeyPrefersOffsetThenCharacter(t *testing.T) {
	withOffset := &IssueLocation{StartOffset: IntPtr(42), CharacterName: "Kael"}
	withName := &IssueLocation{CharacterName: "Kael"}

	assert.Equal(t, "ch1|character_death_conflict|offset:42",
		IssueDedupKey("ch1", ReviewTypeCharacterDeathConflict, withOffset, "t"))
	assert.Equal(t, "ch1|character_death_conflict|character:Kael",
		IssueDedupKey("ch1", ReviewTypeCharacterDeathConflict, withName, "t"))
	assert.Equal(t, "ch1|pacing_issue|title:节奏拖沓",
		IssueDedupKey("ch1", ReviewTypePacingIssue, nil, "节奏拖沓"))
}

func TestIssueStatusMachine(t *testing.T) {
	issue := &ReviewIssue{Status: IssueStatusOpen}

	require.NoError(t, issue.SetStatus(IssueStatusOpen))
	require.NoError(t, issue.SetStatus(IssueStatusFixed))
	require.NoError(t, issue.SetStatus(IssueStatusFixed))
	assert.ErrorIs(t, issue.SetStatus(IssueStatusOpen), ErrIssueTransition)
	assert.ErrorIs(t, issue.SetStatus(IssueStatusIgnored), ErrIssueTransition)
	assert.ErrorIs(t, issue.SetStatus("closed"), ErrIssueTransition)
	assert.Equal(t, IssueStatusFixed, issue.Status)
}

func TestReviewTypesCoverAllLevels(t *testing.T) {
	counts := map[ReviewLevel]int{}
	for _, l := range reviewTypeLevels {
		counts[l]++
	}
	assert.Len(t, reviewTypeLevels, 15)
	assert.Equal(t, 5, counts[ReviewLevelError])
	assert.Equal(t, 4, counts[ReviewLevelWarning])
	assert.Equal(t, 4, counts[ReviewLevelSuggestion])
	assert.Equal(t, 2, counts[ReviewLevelInfo])
}

func TestParseReviewLevel(t *testing.T) {
	l, err := ParseReviewLevel("B")
	require.NoError(t, err)
	assert.Equal(t, ReviewLevelWarning, l)
	_, err = ParseReviewLevel("fatal")
	assert.Error(t, err)
	assert.Greater(t, ReviewLevelError.Severity(), ReviewLevelWarning.Severity())
}

func TestReportFinalizeSumsLevels(t *testing.T) {
	start := time.Now()
	r := NewReviewReport("b1", ReviewModeSingle, start)
	r.Finalize([]*ReviewIssue{
		{Level: ReviewLevelError, Type: ReviewTypeCharacterDeathConflict},
		{Level: ReviewLevelError, Type: ReviewTypeNameInconsistency},
		{Level: ReviewLevelSuggestion, Type: ReviewTypeForeshadowForgotten},
	}, start.Add(1500*time.Millisecond))

	sum := 0
	for _, n := range r.IssuesByLevel {
		sum += n
	}
	assert.Equal(t, r.TotalIssues, sum)
	assert.Equal(t, 3, r.TotalIssues)
	assert.Equal(t, 0, r.IssuesByLevel["info"])
	assert.Equal(t, int64(1500), r.DurationMs)
}

package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlanted(planted int) *Foreshadow {
	f := &Foreshadow{BookID: "b1", Title: "玉佩之谜", PlantedChapter: planted}
	f.ApplyDefaults()
	return f
}

func TestForeshadowDefaults(t *testing.T) {
	f := newPlanted(2)
	assert.Equal(t, ForeshadowStatusPlanted, f.Status)
	assert.Equal(t, ForeshadowImportanceMinor, f.Importance)
	assert.Equal(t, ForeshadowSourceManual, f.Source)
	require.NoError(t, f.Validate())
}

func TestAddResolutionChapterMovesPlantedToPartial(t *testing.T) {
	f := newPlanted(2)

	require.NoError(t, f.AddResolutionChapter(5))
	require.NoError(t, f.AddResolutionChapter(5))
	require.NoError(t, f.AddResolutionChapter(7))

	assert.Equal(t, ForeshadowStatusPartial, f.Status)
	assert.Equal(t, []int64{5, 7}, []int64(f.ResolutionChapters))
	assert.ErrorIs(t, f.AddResolutionChapter(1), ErrResolutionBeforePlanted)
}

func TestResolveRequiresNotesAndChapters(t *testing.T) {
	f := newPlanted(2)

	assert.ErrorIs(t, f.Resolve("", 0), ErrResolutionNotesRequired)
	assert.ErrorIs(t, f.Resolve("真相大白", 0), ErrResolutionChapterRequired)
	assert.Equal(t, ForeshadowStatusPlanted, f.Status)

	require.NoError(t, f.Resolve("真相大白", 9))
	assert.Equal(t, ForeshadowStatusResolved, f.Status)
	assert.Equal(t, "真相大白", f.ResolutionNotes)
	assert.True(t, f.HasResolutionChapter(9))
	require.NoError(t, f.Validate())
}

func TestResolveAbandonedIsRejectedAndStateUnchanged(t *testing.T) {
	f := newPlanted(2)
	require.NoError(t, f.AddResolutionChapter(4))
	require.NoError(t, f.Abandon("剧情调整"))
	before := *f.Clone()

	err := f.Resolve("强行回收", 6)
	assert.ErrorIs(t, err, ErrForeshadowTerminal)
	assert.Equal(t, before.Status, f.Status)
	assert.Equal(t, before.ResolutionNotes, f.ResolutionNotes)
	assert.Equal(t, before.ResolutionChapters, f.ResolutionChapters)
	assert.ErrorIs(t, f.AddResolutionChapter(8), ErrForeshadowTerminal)
	assert.ErrorIs(t, f.Abandon("again"), ErrForeshadowTerminal)
}

func TestTransitionToFollowsGraph(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(f *Foreshadow)
		target  ForeshadowStatus
		notes   string
		wantErr error
		want    ForeshadowStatus
	}{
		{name: "planted to abandoned", target: ForeshadowStatusAbandoned, want: ForeshadowStatusAbandoned},
		{name: "planted to partial without chapters", target: ForeshadowStatusPartial, wantErr: ErrResolutionChapterRequired, want: ForeshadowStatusPlanted},
		{name: "partial back to planted", setup: func(f *Foreshadow) { _ = f.AddResolutionChapter(3) }, target: ForeshadowStatusPlanted, wantErr: ErrForeshadowTransition, want: ForeshadowStatusPartial},
		{name: "partial to resolved", setup: func(f *Foreshadow) { _ = f.AddResolutionChapter(3) }, target: ForeshadowStatusResolved, notes: "done", want: ForeshadowStatusResolved},
		{name: "same status is a no-op", target: ForeshadowStatusPlanted, want: ForeshadowStatusPlanted},
		{name: "unknown status", target: "lost", wantErr: ErrForeshadowTransition, want: ForeshadowStatusPlanted},
		{name: "resolved is terminal", setup: func(f *Foreshadow) { _ = f.Resolve("ok", 3) }, target: ForeshadowStatusAbandoned, wantErr: ErrForeshadowTerminal, want: ForeshadowStatusResolved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPlanted(2)
			if tc.setup != nil {
				tc.setup(f)
			}
			err := f.TransitionTo(tc.target, tc.notes)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, f.Status)
		})
	}
}

func TestValidateRejectsResolutionBeforePlanted(t *testing.T) {
	f := newPlanted(5)
	f.ResolutionChapters = []int64{3}
	f.Status = ForeshadowStatusPartial
	assert.ErrorIs(t, f.Validate(), ErrResolutionBeforePlanted)
}

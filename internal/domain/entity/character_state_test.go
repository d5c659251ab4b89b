package entity

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func change(seq int64, order int, field, value string) *CharacterStateChange {
	return &CharacterStateChange{
		ID:           "c" + string(rune('a'+seq)),
		Seq:          seq,
		CharacterID:  "rhea",
		BookID:       "b1",
		ChapterID:    "ch",
		ChapterOrder: order,
		Field:        field,
		NewValue:     value,
		CreatedAt:    time.Unix(seq, 0),
	}
}

func TestFoldRheaLocation(t *testing.T) {
	changes := []*CharacterStateChange{
		change(2, 7, StateFieldLocation, "Forest"),
		change(1, 3, StateFieldLocation, "Capital"),
	}

	at5 := FoldCharacterState("rhea", changes, IntPtr(5))
	at9 := FoldCharacterState("rhea", changes, IntPtr(9))

	assert.Equal(t, "Capital", at5.Fields[StateFieldLocation])
	assert.Equal(t, 3, at5.ChangedAt[StateFieldLocation])
	assert.Equal(t, "Forest", at9.Fields[StateFieldLocation])
	require.NotNil(t, at9.ChapterOrder)
	assert.Equal(t, 9, *at9.ChapterOrder)
}

func TestFoldIsOrderIndependent(t *testing.T) {
	base := []*CharacterStateChange{
		change(1, 1, "mood", "calm"),
		change(2, 2, "mood", "angry"),
		change(3, 2, "mood", "sad"),
		change(4, 2, StateFieldLocation, "Harbor"),
		change(5, 4, StateFieldIsAlive, "false"),
		change(6, 6, StateFieldLocation, "Ship"),
	}
	want := FoldCharacterState("rhea", base, nil)
	assert.Equal(t, "sad", want.Fields["mood"], "ties are broken by insertion order")

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]*CharacterStateChange(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := FoldCharacterState("rhea", shuffled, nil)
		assert.Equal(t, want.Fields, got.Fields)
		assert.Equal(t, want.ChangedAt, got.ChangedAt)
	}
}

func TestFoldIsMonotonic(t *testing.T) {
	changes := []*CharacterStateChange{
		change(1, 1, "mood", "calm"),
		change(2, 3, StateFieldLocation, "Capital"),
		change(3, 5, "mood", "angry"),
		change(4, 8, StateFieldLocation, "Forest"),
	}
	for n1 := 0; n1 <= 9; n1++ {
		for n2 := n1 + 1; n2 <= 9; n2++ {
			s1 := FoldCharacterState("rhea", changes, IntPtr(n1))
			s2 := FoldCharacterState("rhea", changes, IntPtr(n2))
			for field, v := range s1.Fields {
				changedBetween := false
				for _, c := range changes {
					if c.Field == field && c.ChapterOrder > n1 && c.ChapterOrder <= n2 {
						changedBetween = true
					}
				}
				if !changedBetween {
					assert.Equal(t, v, s2.Fields[field], "field %s between %d and %d", field, n1, n2)
				}
			}
		}
	}
}

func TestFoldIgnoresOtherCharactersAndKeepsInputIntact(t *testing.T) {
	other := change(9, 1, StateFieldLocation, "Moon")
	other.CharacterID = "kael"
	input := []*CharacterStateChange{change(2, 4, "mood", "b"), other, change(1, 2, "mood", "a")}

	state := FoldCharacterState("rhea", input, nil)

	assert.Equal(t, map[string]string{"mood": "b"}, state.Fields)
	assert.Equal(t, int64(2), input[0].Seq, "input slice must not be reordered")
}

func TestGroupStateChangesByChapter(t *testing.T) {
	orders, groups := GroupStateChangesByChapter([]*CharacterStateChange{
		change(3, 5, "a", "3"),
		change(1, 2, "a", "1"),
		change(2, 5, "b", "2"),
	})
	assert.Equal(t, []int{2, 5}, orders)
	require.Len(t, groups[5], 2)
	assert.Equal(t, "2", groups[5][0].NewValue)
}

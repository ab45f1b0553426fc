package subscription

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestCurrentPhase(t *testing.T) {
	sub := &Subscription{
		ID: "sub_1",
		Phases: []*Phase{
			{ID: "p1", StartDate: day(1), EndDate: lo.ToPtr(day(10))},
			{ID: "p2", StartDate: day(10), EndDate: lo.ToPtr(day(20))},
			{ID: "p3", StartDate: day(20)},
		},
	}

	assert.Equal(t, "p1", sub.CurrentPhase(day(5)).ID)
	// End dates are exclusive: the boundary instant belongs to the next phase.
	assert.Equal(t, "p2", sub.CurrentPhase(day(10)).ID)
	assert.Equal(t, "p3", sub.CurrentPhase(day(25)).ID)
	assert.Nil(t, sub.CurrentPhase(day(1).Add(-time.Hour)))
}

func TestValidatePhases(t *testing.T) {
	sub := &Subscription{
		Phases: []*Phase{
			{StartDate: day(1), EndDate: lo.ToPtr(day(10))},
			{StartDate: day(10), EndDate: lo.ToPtr(day(20))},
		},
	}
	require.NoError(t, sub.ValidatePhases())
}

func TestValidatePhasesOverlap(t *testing.T) {
	sub := &Subscription{
		Phases: []*Phase{
			{StartDate: day(1), EndDate: lo.ToPtr(day(15))},
			{StartDate: day(10), EndDate: lo.ToPtr(day(20))},
		},
	}
	require.Error(t, sub.ValidatePhases())

	// An open-ended phase overlaps anything after it.
	sub = &Subscription{
		Phases: []*Phase{
			{StartDate: day(1)},
			{StartDate: day(10)},
		},
	}
	require.Error(t, sub.ValidatePhases())
}

func TestValidatePhasesInvertedWindow(t *testing.T) {
	sub := &Subscription{
		Phases: []*Phase{
			{StartDate: day(10), EndDate: lo.ToPtr(day(5))},
		},
	}
	require.Error(t, sub.ValidatePhases())
}

func TestPhaseElapsed(t *testing.T) {
	phase := &Phase{StartDate: day(1), EndDate: lo.ToPtr(day(10))}
	assert.False(t, phase.Elapsed(day(5)))
	assert.True(t, phase.Elapsed(day(10)))
	assert.True(t, phase.Elapsed(day(15)))

	open := &Phase{StartDate: day(1)}
	assert.False(t, open.Elapsed(day(100)))
}

func TestSortPhases(t *testing.T) {
	sub := &Subscription{
		Phases: []*Phase{
			{ID: "b", StartDate: day(10)},
			{ID: "a", StartDate: day(1), EndDate: lo.ToPtr(day(10))},
		},
	}
	sub.SortPhases()
	assert.Equal(t, "a", sub.Phases[0].ID)
	assert.Equal(t, "b", sub.Phases[1].ID)
}

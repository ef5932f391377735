package dossier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "impfportal/pkg/domain-errors"
)

func Test_Next_PrimaryTrack(t *testing.T) {
	steps := []struct {
		from  Status
		event Event
		to    Status
	}{
		{StatusRegistered, EventRelease, StatusReleased},
		{StatusReleased, EventChooseSite, StatusSiteChosen},
		{StatusSiteChosen, EventBook, StatusBooked},
		{StatusBooked, EventControl, StatusDose1Controlled},
		{StatusDose1Controlled, EventDoseGiven, StatusDose1Given},
		{StatusDose1Given, EventControl, StatusDose2Controlled},
		{StatusDose2Controlled, EventFinalDoseGiven, StatusComplete},
	}
	for _, step := range steps {
		to, err := Next(step.from, step.event)
		require.NoError(t, err, "from %s on %s", step.from, step.event)
		assert.Equal(t, step.to, to)
	}
}

func Test_Next_BoosterCycleRepeats(t *testing.T) {
	steps := []struct {
		from  Status
		event Event
		to    Status
	}{
		{StatusComplete, EventBoosterRelease, StatusBoosterReleased},
		{StatusBoosterReleased, EventChooseSite, StatusBoosterSiteChosen},
		{StatusBoosterSiteChosen, EventBook, StatusBoosterBooked},
		{StatusBoosterBooked, EventControl, StatusBoosterControlled},
		{StatusBoosterControlled, EventDoseGiven, StatusBoosterGiven},
		// Next cycle starts from the given dose.
		{StatusBoosterGiven, EventBoosterRelease, StatusBoosterReleased},
	}
	for _, step := range steps {
		to, err := Next(step.from, step.event)
		require.NoError(t, err, "from %s on %s", step.from, step.event)
		assert.Equal(t, step.to, to)
	}
}

func Test_Next_IllegalTransitionRejected(t *testing.T) {
	cases := []struct {
		from  Status
		event Event
	}{
		{StatusRegistered, EventBook},
		{StatusRegistered, EventControl},
		{StatusBooked, EventDoseGiven},
		{StatusComplete, EventControl},
		{StatusComplete, EventWaive},
		{StatusBoosterGiven, EventBook},
		{StatusRefusedDose2, EventBook},
	}
	for _, c := range cases {
		_, err := Next(c.from, c.event)
		require.Error(t, err, "from %s on %s", c.from, c.event)
		assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))
	}
}

func Test_Next_WaiveAndResume(t *testing.T) {
	to, err := Next(StatusDose1Given, EventWaive)
	require.NoError(t, err)
	assert.Equal(t, StatusRefusedDose2, to)

	to, err = Next(StatusRefusedDose2, EventResume)
	require.NoError(t, err)
	assert.Equal(t, StatusDose1Given, to)

	to, err = Next(StatusDose1Given, EventWaiveComplete)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, to)
}

func Test_Next_ReChooseSiteAllowed(t *testing.T) {
	to, err := Next(StatusSiteChosen, EventChooseSite)
	require.NoError(t, err)
	assert.Equal(t, StatusSiteChosen, to)

	to, err = Next(StatusBoosterSiteChosen, EventChooseSite)
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterSiteChosen, to)
}

func Test_Next_DeleteFromAnyLiveStatus(t *testing.T) {
	for _, from := range []Status{
		StatusRegistered, StatusReleased, StatusSiteChosen, StatusBooked,
		StatusDose1Given, StatusComplete, StatusBoosterBooked, StatusRefusedDose2,
	} {
		to, err := Next(from, EventDelete)
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, StatusDeleted, to)
	}

	_, err := Next(StatusDeleted, EventDelete)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.Code(err))
}

func Test_Next_DoseReverted(t *testing.T) {
	to, err := Next(StatusDose1Given, EventDoseReverted)
	require.NoError(t, err)
	assert.Equal(t, StatusDose1Controlled, to)

	to, err = Next(StatusComplete, EventDoseReverted)
	require.NoError(t, err)
	assert.Equal(t, StatusDose2Controlled, to)

	to, err = Next(StatusBoosterGiven, EventDoseReverted)
	require.NoError(t, err)
	assert.Equal(t, StatusBoosterControlled, to)
}

func Test_Status_Helpers(t *testing.T) {
	assert.True(t, StatusBoosterBooked.InBoosterTrack())
	assert.False(t, StatusBooked.InBoosterTrack())

	assert.True(t, StatusRegistered.Live())
	assert.False(t, StatusDeleted.Live())

	assert.True(t, StatusBooked.HasLiveBooking())
	assert.True(t, StatusDose1Given.HasLiveBooking())
	assert.False(t, StatusComplete.HasLiveBooking())
	assert.False(t, StatusRefusedDose2.HasLiveBooking())
}

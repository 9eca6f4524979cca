package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchedule_ComputesNextDueAt(t *testing.T) {
	schedule, err := NewSchedule("sched-1", "wf-1", "*/5 * * * *")
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Second)))
	assert.False(t, schedule.NextDueAt.After(time.Now().UTC().Add(5*time.Minute)))
}

func TestNewSchedule_RejectsBadExpression(t *testing.T) {
	_, err := NewSchedule("sched-1", "wf-1", "not a cron")
	assert.Error(t, err)
}

func TestSchedule_IsDue(t *testing.T) {
	schedule := &Schedule{
		ID:             "sched-1",
		WorkflowID:     "wf-1",
		CronExpression: "* * * * *",
		NextDueAt:      time.Now().UTC().Add(-time.Minute),
		Active:         true,
	}

	assert.True(t, schedule.IsDue(time.Now().UTC()))

	schedule.Active = false
	assert.False(t, schedule.IsDue(time.Now().UTC()))

	schedule.Active = true
	schedule.NextDueAt = time.Now().UTC().Add(time.Hour)
	assert.False(t, schedule.IsDue(time.Now().UTC()))
}

func TestSchedule_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		schedule *Schedule
		wantErr  bool
	}{
		{
			name:     "valid",
			schedule: &Schedule{ID: "s", WorkflowID: "w", CronExpression: "0 9 * * 1"},
		},
		{
			name:     "missing workflow",
			schedule: &Schedule{ID: "s", CronExpression: "0 9 * * 1"},
			wantErr:  true,
		},
		{
			name:     "bad expression",
			schedule: &Schedule{ID: "s", WorkflowID: "w", CronExpression: "every tuesday"},
			wantErr:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.schedule.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

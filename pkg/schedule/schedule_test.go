package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(day, hour, minute int) time.Time {
	// January 2024; the 1st is a Monday.
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.UTC)
}

func TestSchedules_Next(t *testing.T) {
	tests := []struct {
		name  string
		sched Schedule
		from  time.Time
		want  time.Time
	}{
		{"every", Every(90 * time.Minute), utc(1, 12, 0), utc(1, 13, 30)},
		{"daily later today", Daily(9, 30), utc(1, 8, 0), utc(1, 9, 30)},
		{"daily already passed", Daily(9, 30), utc(1, 10, 0), utc(2, 9, 30)},
		{"daily exactly now", Daily(9, 30), utc(1, 9, 30), utc(2, 9, 30)},
		{"weekly same day later", Weekly(time.Monday, 10, 0), utc(1, 0, 0), utc(1, 10, 0)},
		{"weekly same day passed", Weekly(time.Monday, 10, 0), utc(1, 11, 0), utc(8, 10, 0)},
		{"weekly later in week", Weekly(time.Friday, 17, 0), utc(1, 0, 0), utc(5, 17, 0)},
		{"weekly earlier in week", Weekly(time.Sunday, 3, 0), utc(3, 0, 0), utc(7, 3, 0)},
		{"cron daily", Cron("0 9 * * *"), utc(1, 8, 0), utc(1, 9, 0)},
		{"cron weekdays", Cron("30 14 * * 1-5"), utc(5, 15, 0), utc(8, 14, 30)},
		{"cron descriptor", Cron("@daily"), utc(1, 0, 0), utc(2, 0, 0)},
		{"cron every", Cron("@every 90m"), utc(1, 0, 0), utc(1, 1, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.sched.Next(tt.from)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestEvery_Chains(t *testing.T) {
	s := Every(time.Hour)
	next := utc(1, 12, 0)
	for i := 0; i < 3; i++ {
		next = s.Next(next)
	}
	assert.Equal(t, utc(1, 15, 0), next)
}

func TestInLocation(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*60*60)

	next := DailyIn(9, 0, plus2).Next(utc(1, 6, 0)) // 08:00 local
	assert.True(t, next.Equal(utc(1, 7, 0)))

	next = WeeklyIn(time.Tuesday, 1, 0, plus2).Next(utc(1, 12, 0))
	assert.True(t, next.Equal(utc(1, 23, 0)), "Tuesday 01:00 local is Monday 23:00 UTC")

	assert.Equal(t, Daily(9, 0), DailyIn(9, 0, nil))
	assert.Equal(t, Weekly(time.Monday, 9, 0), WeeklyIn(time.Monday, 9, 0, nil))
}

func TestParseCron_Errors(t *testing.T) {
	_, err := ParseCron("61 * * * *")
	assert.ErrorContains(t, err, `invalid cron expression "61 * * * *"`)

	_, err = ParseCron("* * * * * *")
	assert.Error(t, err, "seconds field is not accepted")

	assert.Panics(t, func() { Cron("invalid cron") })
}

func TestScheduleFunc(t *testing.T) {
	var s Schedule = ScheduleFunc(func(from time.Time) time.Time {
		return from.Truncate(time.Hour).Add(time.Hour)
	})
	assert.Equal(t, utc(1, 13, 0), s.Next(utc(1, 12, 20)))
}

func TestSchedules_AlwaysAdvance(t *testing.T) {
	from := utc(1, 0, 0)
	for _, s := range []Schedule{Every(time.Minute), Daily(0, 0), Weekly(time.Monday, 0, 0), Cron("* * * * *")} {
		require.True(t, s.Next(from).After(from))
	}
}

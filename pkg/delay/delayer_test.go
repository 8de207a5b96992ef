package delay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-deferred-calls/pkg/schedule"
)

func TestDelayFor_SchedulesRelativeToNow(t *testing.T) {
	d, sub, rep, _ := newTestDelayer()

	before := UnixSeconds(time.Now())
	_, err := d.DelayFor(rep, 90*time.Second).Call(context.Background(), "Generate", 2024)
	require.NoError(t, err)
	after := UnixSeconds(time.Now())

	at := sub.last().opts.At
	require.NotNil(t, at)
	assert.GreaterOrEqual(t, *at, before+90-0.001)
	assert.LessOrEqual(t, *at, after+90+0.001)
}

func TestDelayFor_ExactWithClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 125_000_000, time.UTC)
	d, sub, rep, _ := newTestDelayer(WithClock(func() time.Time { return now }))

	_, err := d.DelayFor(rep, 90*time.Second).Call(context.Background(), "Generate", 2024)
	require.NoError(t, err)

	o := sub.last().opts
	require.NotNil(t, o.At)
	assert.Equal(t, 1709294490.125, *o.At)
	assert.True(t, o.RunAt().Equal(now.Add(90*time.Second)), "got %v", o.RunAt())
}

func TestUnixSeconds(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want float64
	}{
		{"whole second", time.Unix(1700000000, 0), 1700000000},
		{"quarter", time.Unix(1893553445, 250_000_000), 1893553445.25},
		{"before epoch", time.Unix(-2, 500_000_000), -1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UnixSeconds(tt.t))
			assert.True(t, fromUnixSeconds(tt.want).Equal(tt.t))
		})
	}

	micro := time.Date(2024, 3, 1, 12, 0, 0, 123_456_000, time.UTC)
	assert.True(t, fromUnixSeconds(UnixSeconds(micro)).Equal(micro))
}

func TestDelayFor_ZeroIntervalStillSetsAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d, _, rep, _ := newTestDelayer(WithClock(func() time.Time { return now }))

	p := d.DelayFor(rep, 0)
	require.NotNil(t, p.Options().At)
	assert.Equal(t, UnixSeconds(now), *p.Options().At)
}

func TestDelayUntil_ExactTimestamp(t *testing.T) {
	d, sub, rep, _ := newTestDelayer()
	when := time.Date(2030, 1, 2, 3, 4, 5, 250_000_000, time.UTC)

	_, err := d.DelayUntil(rep, when).Call(context.Background(), "Generate", 2024)
	require.NoError(t, err)

	o := sub.last().opts
	require.NotNil(t, o.At)
	assert.Equal(t, 1893553445.25, *o.At)
	assert.True(t, o.RunAt().Equal(when))
}

func TestComputedAtOverridesOption(t *testing.T) {
	d, _, rep, _ := newTestDelayer()
	when := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	p := d.DelayUntil(rep, when, At(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, UnixSeconds(when), *p.Options().At)

	p = d.Delay(rep, AtUnix(42.5))
	assert.Equal(t, 42.5, *p.Options().At)
}

func TestDelayNext_UsesSchedule(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	d, _, rep, _ := newTestDelayer(WithClock(func() time.Time { return now }))

	p := d.DelayNext(rep, schedule.DailyIn(9, 0, time.UTC))
	want := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	assert.True(t, p.Options().RunAt().Equal(want), "got %v", p.Options().RunAt())

	cron, err := schedule.ParseCron("@every 90m")
	require.NoError(t, err)
	p = d.DelayNext(rep, cron)
	assert.True(t, p.Options().RunAt().Equal(now.Add(90*time.Minute)))
}

func TestOptions_RunAtRoundTrip(t *testing.T) {
	var o Options
	assert.Nil(t, o.RunAt())

	when := time.Unix(1700000000, 500_000_000)
	At(when).Apply(&o)
	assert.True(t, o.RunAt().Equal(when))
}

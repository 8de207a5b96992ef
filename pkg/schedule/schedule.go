package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule answers when the next run after from is.
type Schedule interface {
	Next(from time.Time) time.Time
}

// ScheduleFunc adapts a function to Schedule.
type ScheduleFunc func(from time.Time) time.Time

func (f ScheduleFunc) Next(from time.Time) time.Time { return f(from) }

// Every runs at a fixed interval from the previous run.
func Every(d time.Duration) Schedule {
	return ScheduleFunc(func(from time.Time) time.Time { return from.Add(d) })
}

// clock fires at hour:minute in loc, every day or on one weekday.
type clock struct {
	hour, minute int
	weekday      time.Weekday
	weekly       bool
	loc          *time.Location
}

func (c clock) Next(from time.Time) time.Time {
	from = from.In(c.loc)
	next := time.Date(from.Year(), from.Month(), from.Day(), c.hour, c.minute, 0, 0, c.loc)

	step := 1
	if c.weekly {
		step = 7
		next = next.AddDate(0, 0, (int(c.weekday-from.Weekday())+7)%7)
	}
	if !next.After(from) {
		next = next.AddDate(0, 0, step)
	}
	return next
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// Daily runs every day at hour:minute UTC.
func Daily(hour, minute int) Schedule {
	return DailyIn(hour, minute, time.UTC)
}

// DailyIn runs every day at hour:minute in loc; nil means UTC.
func DailyIn(hour, minute int, loc *time.Location) Schedule {
	return clock{hour: hour, minute: minute, loc: location(loc)}
}

// Weekly runs every week on day at hour:minute UTC.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return WeeklyIn(day, hour, minute, time.UTC)
}

// WeeklyIn runs every week on day at hour:minute in loc; nil means UTC.
func WeeklyIn(day time.Weekday, hour, minute int, loc *time.Location) Schedule {
	return clock{hour: hour, minute: minute, weekday: day, weekly: true, loc: location(loc)}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// "@hourly" or "@every 90m".
func ParseCron(expr string) (Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// Cron is ParseCron for expressions known to be valid. It panics on error.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err.Error())
	}
	return s
}

package services

import (
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Calendar decides where calendar days begin. Streak credit is granted per
// day in its location.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

func NewCalendar(clock Clock, loc *time.Location) *Calendar {
	if clock == nil {
		clock = systemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{clock: clock, loc: loc}
}

func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

func (c *Calendar) TodayStart() time.Time {
	return c.StartOfDay(c.Now())
}

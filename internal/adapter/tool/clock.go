package tool

import (
	"context"
	"time"

	"fcfilter/internal/domain"
)

// Clock provides the get_current_time and get_current_date tools.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock creates a clock in loc (nil means local time).
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc, now: time.Now}
}

// Specs returns the builders for both clock tools.
func (c *Clock) Specs() []*SpecBuilder {
	return []*SpecBuilder{
		NewSpec("get_current_time", "Get the current time.").
			Handler(func(context.Context, domain.ToolArgs) (string, error) {
				return "Current Time = " + c.now().In(c.loc).Format("15:04:05"), nil
			}),
		NewSpec("get_current_date", "Get the current date.").
			Handler(func(context.Context, domain.ToolArgs) (string, error) {
				return "Current Date = " + c.now().In(c.loc).Format("Monday, January 02, 2006"), nil
			}),
	}
}

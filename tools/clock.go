package tools

import (
	"context"
	"time"
)

// Clock reports the current date and time.
type Clock struct {
	defs []Definition

	// now is swappable for tests.
	now func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Name() string {
	return "clock"
}

func (c *Clock) Init(_ context.Context) error {
	c.defs = []Definition{
		{
			Name:        "get_current_time",
			Description: "Get the current date and time",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []string{},
			},
		},
	}
	return nil
}

func (c *Clock) Definitions() []Definition {
	return c.defs
}

func (c *Clock) Call(_ context.Context, tool string, _ map[string]any) string {
	if tool != "get_current_time" {
		return "unsupported tool " + tool
	}
	return c.now().Format("Monday, January 2, 2006 at 3:04 PM MST")
}

func (c *Clock) Close() error {
	return nil
}

package cron

import (
	"fmt"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Config is the [schedule] section.
type Config struct {
	Scan     string `toml:"scan"`     // 5-field cron expression or @every/@daily descriptor; "" disables
	Timezone string `toml:"timezone"` // IANA zone for the expression; "" = local time
}

// Enabled reports whether a scan schedule is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Scan) != ""
}

// parser accepts the standard 5 fields plus descriptors like "@every 6h".
var parser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// Parse validates expr and tz and returns the schedule.
func Parse(expr, tz string) (cronlib.Schedule, *time.Location, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil, fmt.Errorf("empty cron expression")
	}

	loc := time.Local
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		loc = l
	}

	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, loc, nil
}

// Validate checks the section without starting anything.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	_, _, err := Parse(c.Scan, c.Timezone)
	return err
}

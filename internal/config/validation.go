package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// scheduleParser matches the scheduler in the sweep package: a leading seconds
// field followed by the usual five cron fields.
var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func ParseCronSchedule(schedule string) (bool, error) {
	if strings.TrimSpace(schedule) == "" {
		return false, fmt.Errorf("empty schedule")
	}

	if !strings.HasPrefix(schedule, "@") && len(strings.Fields(schedule)) != 6 {
		return false, fmt.Errorf("invalid number of fields in schedule: expected 6 (with seconds)")
	}

	if _, err := scheduleParser.Parse(schedule); err != nil {
		return false, err
	}

	return true, nil
}

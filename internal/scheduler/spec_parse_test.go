package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		raw   string
		want  ParsedSpec
		cronS string
	}{
		"five field cron":   {raw: "*/15 * * * *", want: ParsedSpec{Kind: SpecCron, Cron: "*/15 * * * *", Source: "cron"}},
		"six field cron":    {raw: "30 0 9 * * 1-5", want: ParsedSpec{Kind: SpecCron, Cron: "30 0 9 * * 1-5", Source: "cron"}},
		"descriptor":        {raw: "@daily", want: ParsedSpec{Kind: SpecCron, Cron: "@daily", Source: "cron"}},
		"forced cron":       {raw: "CRON: 0 6 * * *", want: ParsedSpec{Kind: SpecCron, Cron: "0 6 * * *", Source: "cron"}},
		"go duration":       {raw: "55m", want: ParsedSpec{Kind: SpecInterval, Every: 55 * time.Minute, Source: "duration"}, cronS: "@every 55m0s"},
		"forced interval":   {raw: "interval: 2h30m", want: ParsedSpec{Kind: SpecInterval, Every: 150 * time.Minute, Source: "duration"}},
		"every with hh:mm":  {raw: "every:00:50", want: ParsedSpec{Kind: SpecInterval, Every: 50 * time.Minute, Source: "hhmm"}},
		"bare hh:mm":        {raw: "02:30", want: ParsedSpec{Kind: SpecInterval, Every: 150 * time.Minute, Source: "hhmm"}},
		"long hh:mm":        {raw: "100:00", want: ParsedSpec{Kind: SpecInterval, Every: 100 * time.Hour, Source: "hhmm"}},
		"daily wall clock":  {raw: "daily:18:45", want: ParsedSpec{Kind: SpecCron, Cron: "45 18 * * *", Source: "daily"}, cronS: "45 18 * * *"},
		"surrounding space": {raw: "  10m  ", want: ParsedSpec{Kind: SpecInterval, Every: 10 * time.Minute, Source: "duration"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseSchedule(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			if tc.cronS != "" {
				assert.Equal(t, tc.cronS, got.CronSpec())
			}
		})
	}
}

func TestParseScheduleRejects(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		"   ",
		"soon",
		"-5m",
		"0s",
		"cron:",
		"61 * * * *",
		"daily:24:00",
		"daily:7",
		"00:00",
		"01:75",
		"interval:abc",
	} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, "ParseSchedule(%q)", raw)
	}
}

func TestSpecKindString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "cron", SpecCron.String())
	assert.Equal(t, "interval", SpecInterval.String())
}

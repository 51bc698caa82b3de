package domain

import "testing"

func TestRunConfigMatches(t *testing.T) {
	base := RunConfig{StartDate: "20240101", EndDate: "20241231", ConfigPath: "user_data/config.json"}

	same := base
	same.Timeframe = "1h"
	if !base.Matches(same) {
		t.Error("timeframe must not affect cache validity")
	}

	cases := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"start date", func(c *RunConfig) { c.StartDate = "20230101" }},
		{"end date", func(c *RunConfig) { c.EndDate = "20250101" }},
		{"config path", func(c *RunConfig) { c.ConfigPath = "other.json" }},
	}
	for _, tc := range cases {
		other := base
		tc.mutate(&other)
		if base.Matches(other) {
			t.Errorf("changed %s should not match", tc.name)
		}
	}
}

func TestRunConfigTimerange(t *testing.T) {
	c := RunConfig{StartDate: "20240101", EndDate: "20241231"}
	if got := c.Timerange(); got != "20240101-20241231" {
		t.Errorf("Timerange = %q", got)
	}
}

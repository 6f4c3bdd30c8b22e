package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("acme-clean")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "acme-clean", cfg.Operator.ID)
	assert.Equal(t, 4, cfg.BusinessDay.RolloverHour)
	assert.Equal(t, 30*time.Minute, cfg.Staleness.WarnAfter)
	assert.Equal(t, 60*time.Minute, cfg.Staleness.AlertAfter)
	assert.Equal(t, 2.5, cfg.Capacity.StandardPerWorkerDay)
	assert.ElementsMatch(t, []string{"recleaning", "shortfall_makeup"}, cfg.Status.TroubleReasons)
	assert.Equal(t, 2*time.Second, cfg.MasterData.LookupTimeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cases := map[string]string{
		"missing operator":   strings.Replace(GenerateDefault("x"), "id: x", "id: \"\"", 1),
		"inverted staleness": strings.Replace(GenerateDefault("x"), "alert_after: 60m", "alert_after: 10m", 1),
		"inverted capacity":  strings.Replace(GenerateDefault("x"), "max_per_worker_day: 3.0", "max_per_worker_day: 1.0", 1),
		"bad timezone":       strings.Replace(GenerateDefault("x"), "Asia/Tokyo", "Mars/Olympus", 1),
		"bad log level":      strings.Replace(GenerateDefault("x"), "level: info", "level: loud", 1),
		"negative lookup":    strings.Replace(GenerateDefault("x"), "lookup_timeout: 2s", "lookup_timeout: -1s", 1),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, "60", cfg.Incentive.DefaultCountryCode)
	require.Equal(t, 3, cfg.Incentive.PayoutMaxRetries)
	require.Equal(t, 10, cfg.Incentive.RejectionReasonMinLength)
	require.Equal(t, time.Hour, cfg.Incentive.RapidReferralWindow)
	require.False(t, cfg.Incentive.DedupeProofEvents)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
APP_ENV: staging
DATABASE:
  TYPE: sqlite
  PATH: /tmp/incentives.db
INCENTIVE:
  PAYOUT_MAX_RETRIES: 5
  RAPID_REFERRAL_WINDOW: 30m
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("INCENTIVE_REJECTION_REASON_MIN_LENGTH", "20")

	cfg, err := Load(viper.New(), dir)
	require.NoError(t, err)

	require.Equal(t, "staging", cfg.AppEnv)
	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, 5, cfg.Incentive.PayoutMaxRetries)
	require.Equal(t, 30*time.Minute, cfg.Incentive.RapidReferralWindow)
	require.Equal(t, 20, cfg.Incentive.RejectionReasonMinLength)
}

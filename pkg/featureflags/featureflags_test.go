package featureflags

import (
	"context"
	"testing"

	"partner-incentives/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestEnabledWithoutApiKeyUsesFallback(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})

	require.True(t, ff.Enabled(context.Background(), DedupeProofEvents, true))
	require.False(t, ff.Enabled(context.Background(), DedupeProofEvents, false))
}

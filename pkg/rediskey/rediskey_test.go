package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "incentives:rate_limit:referral:r-1", BuildRateLimitKey("referral", "r-1"))
	require.Equal(t, "incentives:seq:REF:referrer:261016", BuildDailySequenceKey("REF", "referrer", "261016"))
	require.Equal(t, "incentives:seq:link:REF-ABC", BuildLinkSequenceKey("REF-ABC"))
}

package sequence

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFallbackCodes(t *testing.T) {
	ctx := context.Background()
	var g Generator = Fallback{}

	ref, err := g.NextReferralCode(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "REF-"))
	require.Len(t, ref, len("REF-")+8)

	link, err := g.NextLinkCode(ctx, ref)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, ref+"-"))

	other, err := g.NextReferralCode(ctx)
	require.NoError(t, err)
	require.NotEqual(t, ref, other)
}

func TestRandomAlphaNumericAlphabet(t *testing.T) {
	s, err := randomAlphaNumeric(64)
	require.NoError(t, err)
	require.NotContains(t, s, "0")
	require.NotContains(t, s, "O")
	require.NotContains(t, s, "1")
	require.NotContains(t, s, "I")
}

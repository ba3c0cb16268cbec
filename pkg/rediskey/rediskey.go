package rediskey

import "fmt"

// Key prefixes shared by every process talking to the same Redis.
const (
	RateLimitPrefix = "incentives:rate_limit"
	SequencePrefix  = "incentives:seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRateLimitKey returns "incentives:rate_limit:{scope}:{subject}"
func BuildRateLimitKey(scope, subject string) string {
	return NamespaceKey(RateLimitPrefix, scope+":"+subject)
}

// BuildDailySequenceKey returns "incentives:seq:{prefix}:{scope}:{yymmdd}"
func BuildDailySequenceKey(prefix, scope, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s:%s", prefix, scope, day))
}

// BuildLinkSequenceKey returns "incentives:seq:link:{referralCode}"
func BuildLinkSequenceKey(referralCode string) string {
	return NamespaceKey(SequencePrefix, "link:"+referralCode)
}

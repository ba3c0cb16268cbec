package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"partner-incentives/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human-friendly, collision-resistant codes.
type Generator interface {
	NextReferralCode(ctx context.Context) (string, error)
	NextLinkCode(ctx context.Context, referralCode string) (string, error)
	NextPayoutReference(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
		now: time.Now,
	}
}

func (g *RedisGenerator) NextReferralCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "REF", "referrer")
}

func (g *RedisGenerator) NextLinkCode(ctx context.Context, referralCode string) (string, error) {
	seq, err := g.rdb.Incr(ctx, rediskey.BuildLinkSequenceKey(referralCode)).Result()
	if err != nil {
		return "", err
	}
	suffix, err := randomAlphaNumeric(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s%s", referralCode, strings.ToUpper(strconv.FormatInt(seq, 36)), suffix), nil
}

func (g *RedisGenerator) NextPayoutReference(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, "PAY", "payout")
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix, scope string) (string, error) {
	today := g.now().UTC().Format("060102")
	key := rediskey.BuildDailySequenceKey(prefix, scope, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		_ = g.rdb.Expire(ctx, key, 48*time.Hour).Err()
	}

	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, today, encodedSeq, randSuffix), nil
}

// Fallback derives codes locally when no Redis sequence is wired.
type Fallback struct{}

func (Fallback) NextReferralCode(context.Context) (string, error) {
	return randomCode("REF", 8)
}

func (Fallback) NextLinkCode(_ context.Context, referralCode string) (string, error) {
	return randomCode(referralCode, 5)
}

func (Fallback) NextPayoutReference(context.Context) (string, error) {
	return randomCode("PAY", 10)
}

func randomCode(prefix string, n int) (string, error) {
	s, err := randomAlphaNumeric(n)
	if err != nil {
		return "", err
	}
	return prefix + "-" + s, nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}

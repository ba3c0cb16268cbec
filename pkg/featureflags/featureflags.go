package featureflags

import (
	"context"

	"partner-incentives/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// Feature names toggled remotely.
const (
	DedupeProofEvents = "dedupe_proof_events"
)

// FeatureFlag answers runtime toggles. Enabled returns fallback when the flag
// store is unreachable or the flag is unknown.
type FeatureFlag interface {
	Enabled(ctx context.Context, name string, fallback bool) bool
}

type featureflag struct {
	client *flagsmith.Client
	logger *zap.Logger
}

type FeatureParams struct {
	fx.In
	Config *config.Config
	Logger *zap.Logger `optional:"true"`
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{logger: log}
	}

	var opts []flagsmith.Option
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
		logger: log.Named("featureflags"),
	}
}

func (s *featureflag) Enabled(ctx context.Context, name string, fallback bool) bool {
	if s.client == nil {
		return fallback
	}
	flags, err := s.client.GetEnvironmentFlags()
	if err != nil {
		s.logger.Warn("flag lookup failed", zap.String("flag", name), zap.Error(err))
		return fallback
	}
	on, err := flags.IsFeatureEnabled(name)
	if err != nil {
		return fallback
	}
	return on
}

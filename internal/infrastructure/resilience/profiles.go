package resilience

import "time"

// Retry bounds the attempts of one outbound call.
type Retry struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// Breaker trips per operation name once enough calls failed.
type Breaker struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Config struct {
	Retry   Retry
	Breaker Breaker
}

// Profile is a class of outbound call with its own retry budget.
type Profile string

const (
	// ProfileQueryEmbed runs on the retrieval path. A failure falls through to the substring
	// steps, so it never retries and its breaker trips early to skip a dead provider fast.
	ProfileQueryEmbed Profile = "query_embed"
	// ProfileBuildEmbed embeds record batches offline; a cold model can take seconds to load.
	ProfileBuildEmbed Profile = "build_embed"
	ProfileGenerate   Profile = "generate"
	// ProfilePublish announces a rebuild. Delivery is best effort.
	ProfilePublish Profile = "publish"
)

func DefaultConfig() Config {
	return Config{
		Retry: Retry{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: Breaker{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

// For derives the settings of one call class from the base config. MaxAttempts of the
// base applies to build embedding and generation; the other classes have fixed budgets.
func (c Config) For(p Profile) Config {
	out := c.normalize()
	switch p {
	case ProfileQueryEmbed:
		out.Retry.MaxAttempts = 1
		out.Breaker.MinRequests = min(out.Breaker.MinRequests, 5)
		out.Breaker.OpenTimeout = min(out.Breaker.OpenTimeout, 15*time.Second)
	case ProfileBuildEmbed:
		out.Retry.InitialBackoff = max(out.Retry.InitialBackoff, 250*time.Millisecond)
		out.Retry.MaxBackoff = max(out.Retry.MaxBackoff, 2*time.Second)
	case ProfilePublish:
		out.Retry.MaxAttempts = min(out.Retry.MaxAttempts, 2)
		out.Retry.MaxBackoff = min(out.Retry.MaxBackoff, 200*time.Millisecond)
		out.Retry.InitialBackoff = min(out.Retry.InitialBackoff, out.Retry.MaxBackoff)
	}
	return out
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	r := &out.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.Retry.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = def.Retry.InitialBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = def.Retry.MaxBackoff
	}
	r.MaxBackoff = max(r.MaxBackoff, r.InitialBackoff)
	if r.Multiplier < 1.0 {
		r.Multiplier = def.Retry.Multiplier
	}

	b := &out.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return out
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/fund-facts-assistant/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		Retry: Retry{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2},
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		Retry: Retry{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2},
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		Retry:   Retry{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2},
		Breaker: Breaker{Enabled: true, MinRequests: 2, FailureRatio: 0.5, OpenTimeout: 50 * time.Millisecond, HalfOpenMaxCalls: 1},
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestQueryEmbedProfileDisablesRetries(t *testing.T) {
	exec := NewExecutor(DefaultConfig().For(ProfileQueryEmbed))

	attempts := 0
	err := exec.Execute(context.Background(), "embed_query", func(context.Context) error {
		attempts++
		return domain.WrapError(domain.ErrTemporary, "embed", errors.New("503"))
	}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestProfiles(t *testing.T) {
	base := DefaultConfig()
	base.Retry.MaxAttempts = 5
	base.Breaker.Enabled = false

	tests := []struct {
		profile  Profile
		attempts int
	}{
		{ProfileQueryEmbed, 1},
		{ProfileBuildEmbed, 5},
		{ProfileGenerate, 5},
		{ProfilePublish, 2},
	}
	for _, tc := range tests {
		got := base.For(tc.profile)
		if got.Retry.MaxAttempts != tc.attempts {
			t.Fatalf("%s: attempts = %d, want %d", tc.profile, got.Retry.MaxAttempts, tc.attempts)
		}
		if got.Breaker.Enabled {
			t.Fatalf("%s: breaker setting must follow the base config", tc.profile)
		}
		if got.Retry.InitialBackoff > got.Retry.MaxBackoff {
			t.Fatalf("%s: initial backoff %s above max %s", tc.profile, got.Retry.InitialBackoff, got.Retry.MaxBackoff)
		}
	}

	if q := base.For(ProfileQueryEmbed); q.Breaker.MinRequests != 5 || q.Breaker.OpenTimeout != 15*time.Second {
		t.Fatalf("query breaker should trip early, got %+v", q.Breaker)
	}
	if b := base.For(ProfileBuildEmbed); b.Retry.MaxBackoff != 2*time.Second {
		t.Fatalf("build backoff should allow a cold model, got %s", b.Retry.MaxBackoff)
	}
	if zero := (Config{}).For(ProfileGenerate); zero.Retry.MaxAttempts != 3 || zero.Breaker.MinRequests != 10 {
		t.Fatalf("zero config should normalize to defaults, got %+v", zero)
	}
}

func TestCallReturnsValue(t *testing.T) {
	exec := NewExecutor(Config{Retry: Retry{MaxAttempts: 2, InitialBackoff: time.Millisecond}})

	attempts := 0
	got, err := Call(context.Background(), exec, "embed", func(context.Context) ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, domain.WrapError(domain.ErrTemporary, "embed", errors.New("429"))
		}
		return []float32{1, 2}, nil
	}, ClassifyDomainError)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(got) != 2 || attempts != 2 {
		t.Fatalf("unexpected result %v after %d attempts", got, attempts)
	}
}

func TestStateListenerSeesBreakerOpen(t *testing.T) {
	var transitions []string
	exec := NewExecutor(Config{
		Retry:   Retry{MaxAttempts: 1},
		Breaker: Breaker{Enabled: true, MinRequests: 1, FailureRatio: 1, OpenTimeout: time.Minute, HalfOpenMaxCalls: 1},
	}, WithStateListener(func(op, from, to string) {
		transitions = append(transitions, op+":"+from+"->"+to)
	}))

	_ = exec.Execute(context.Background(), "generate", func(context.Context) error {
		return errors.New("down")
	}, nil)

	if len(transitions) != 1 || transitions[0] != "generate:closed->open" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	if exec.State("generate") != "open" || exec.State("never") != "closed" {
		t.Fatalf("unexpected states %s/%s", exec.State("generate"), exec.State("never"))
	}
}

func TestClassifyDomainError(t *testing.T) {
	if c := ClassifyDomainError(domain.WrapError(domain.ErrInvalidInput, "op", errors.New("bad"))); c.Retryable || c.RecordFailure {
		t.Fatalf("invalid input must not count: %+v", c)
	}
	if c := ClassifyDomainError(context.Canceled); c.RecordFailure {
		t.Fatalf("cancellation must not count: %+v", c)
	}
	if c := ClassifyDomainError(errors.New("other")); c.Retryable || !c.RecordFailure {
		t.Fatalf("unknown errors count but do not retry: %+v", c)
	}
}

package resilience

import (
	"time"

	"github.com/sells-group/permit-cli/internal/config"
)

// Policy pairs the retry and breaker settings for one upstream.
type Policy struct {
	Retry   RetryConfig
	Breaker BreakerConfig
}

// OraclePolicy converts the oracle config section into a Policy.
func OraclePolicy(name string, cfg config.OracleConfig) Policy {
	p := Policy{
		Retry:   DefaultRetryConfig(),
		Breaker: BreakerConfig{Name: name},
	}
	if cfg.MaxAttempts > 0 {
		p.Retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.FailureThreshold > 0 {
		p.Breaker.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		p.Breaker.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	p.Retry.OnRetry = RetryLogger(name, "generate")
	return p
}

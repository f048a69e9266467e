package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/manifest"
)

// 默认重试参数：最多 15 次，每次间隔 500ms。
const (
	DefaultMaxAttempts   = 15
	DefaultRetryInterval = 500 * time.Millisecond
)

// ErrManifestFailed 表示加载器明确报告清单加载失败（非加载中）。
var ErrManifestFailed = errors.New("loader reported manifest failure")

var errStillLoading = errors.New("manifest still loading")

// OutcomeKind 区分等待清单的三种结局。
type OutcomeKind int

const (
	// OutcomeReady 表示拿到了清单。
	OutcomeReady OutcomeKind = iota
	// OutcomeExhausted 表示重试次数耗尽（超时或一直在加载）。
	OutcomeExhausted
	// OutcomeFailed 表示加载器确认清单不可用，继续重试没有意义。
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReady:
		return "ready"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "failed"
	}
}

// Outcome 是 AwaitManifest 的结果，仅 Kind==OutcomeReady 时 Manifest 非空。
type Outcome struct {
	Kind     OutcomeKind
	Manifest *manifest.Manifest
	Attempts int
	Err      error
}

// RetryPolicy 描述有界的固定间隔重试。
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Logger      *logrus.Logger
}

// AwaitManifest 轮询 GET_MANIFEST，直到拿到清单、加载器确认失败或重试耗尽。
func AwaitManifest(ctx context.Context, client *Client, policy RetryPolicy) Outcome {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.Interval <= 0 {
		policy.Interval = DefaultRetryInterval
	}
	logger := policy.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	attempts := 0
	operation := func() (*manifest.Manifest, error) {
		attempts++
		reply, err := client.GetManifest(ctx)
		if err != nil {
			return nil, err
		}
		if reply.Success && reply.Data != nil {
			return reply.Data, nil
		}
		if reply.Loading {
			return nil, errStillLoading
		}
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrManifestFailed, reply.Error))
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Interval)),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WithFields(logrus.Fields{
				"action":   "await_manifest",
				"attempt":  attempts,
				"retry_in": next.String(),
			}).WithError(err).Debug("manifest_not_ready")
		}),
	)

	switch {
	case err == nil:
		return Outcome{Kind: OutcomeReady, Manifest: result, Attempts: attempts}
	case errors.Is(err, ErrManifestFailed):
		return Outcome{Kind: OutcomeFailed, Attempts: attempts, Err: err}
	default:
		return Outcome{Kind: OutcomeExhausted, Attempts: attempts, Err: err}
	}
}

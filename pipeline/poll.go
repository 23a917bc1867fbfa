package pipeline

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

var errPollTimeout = errors.New("poll timeout")

// poll evaluates condition immediately, then every interval, until it
// reports done, returns an error, or timeout elapses. Cancellation of ctx is
// reported as ctx.Err(); an elapsed timeout as errPollTimeout.
func poll(ctx context.Context, interval, timeout time.Duration, condition wait.ConditionWithContextFunc) error {
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, condition)
	if err != nil && wait.Interrupted(err) && ctx.Err() == nil {
		return errPollTimeout
	}
	return err
}

package gateway

import (
	"context"

	"abquant/pkg/backoff"
	"abquant/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Reconnect calls dial until it succeeds, pausing between failures as the
// retrier dictates. It gives up only when ctx is done.
func Reconnect(ctx context.Context, name string, r *backoff.Retrier, dial func(ctx context.Context) error) error {
	for {
		err := dial(ctx)
		if err == nil {
			r.Reset()
			return nil
		}
		logs.Warnf("[%s] connect failed, err: %+v", name, err)

		cooldown, werr := r.Wait(ctx)
		if werr != nil {
			return errors.Wrapf(exception.ErrGatewayRetryExhausted, "%s, last err: %+v", name, err)
		}
		if cooldown {
			logs.Warnf("[%s] too many connect failures, cooled down before retrying", name)
		}
	}
}

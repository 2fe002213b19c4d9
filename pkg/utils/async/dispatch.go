package async

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/bulkdm/pkg/utils/errutil"
)

// Dispatch runs handler in a new goroutine. The handler context keeps the
// values of ctx, including its logger, but is never cancelled with it.
// Errors and panics are reported under name and go no further.
func Dispatch(ctx context.Context, name string, handler func(ctx context.Context) error) {
	bgCtx := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				_ = errutil.Handle(bgCtx, goerr.New("panic in async handler",
					goerr.V("handler", name),
					goerr.V("panic", fmt.Sprint(r))), "async handler panicked")
			}
		}()

		if err := handler(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, goerr.Wrap(err, "async handler failed",
				goerr.V("handler", name)), "async handler failed")
		}
	}()
}

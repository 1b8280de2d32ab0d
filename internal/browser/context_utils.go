// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext returns a context that carries the values of tabCtx (the chromedp
// target) and is canceled when either tabCtx or opCtx is done. chromedp actions
// must run on a context derived from the tab, while deadlines usually come from
// the caller.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancelCause(tabCtx)
	stop := context.AfterFunc(opCtx, func() {
		cancel(context.Cause(opCtx))
	})
	return combined, func() {
		stop()
		cancel(context.Canceled)
	}
}

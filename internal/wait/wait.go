// Package wait dispatches the post-navigation readiness rule a FetchRequest asked
// for onto a driver.Page's primitives. It is a pure dispatcher: it validates and
// normalizes the strategy/selector/timeout triple and delegates, touching neither
// the network nor the cache itself.
package wait

import (
	"context"
	"time"

	"github.com/r3co87/iris/internal/driver"
	"github.com/r3co87/iris/internal/model"
)

// Apply resolves strategy against page, honoring the "wait_for_selector forces
// selector strategy" tie-break already folded into strategy by the caller
// (FetchRequest.EffectiveWaitStrategy). timeout bounds how long the wait may run.
func Apply(ctx context.Context, page driver.Page, strategy model.WaitStrategy, selector string, timeout time.Duration) error {
	switch strategy {
	case model.WaitSelector:
		if selector == "" {
			selector = "body"
		}
		return page.Wait(ctx, model.WaitSelector, selector, timeout)
	case model.WaitTimeout, model.WaitLoad, model.WaitDOMContentLoaded, model.WaitNetworkIdle:
		return page.Wait(ctx, strategy, "", timeout)
	default:
		return page.Wait(ctx, model.WaitLoad, "", timeout)
	}
}

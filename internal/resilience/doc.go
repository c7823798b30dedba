// Package resilience groups the fault-tolerance helpers used by the fetch
// pipeline and notifiers.
//
//   - retry: exponential backoff for the first fetch strategy
//   - circuitbreaker: gobreaker wrapper guarding the heavy fetch path
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.HeavyFetchConfig())
//	body, err := circuitbreaker.Call(cb, func() (string, error) {
//	    return render(ctx, url)
//	})
//
//	err := retry.WithBackoff(ctx, retry.FeedFetchConfig(), func() error {
//	    return attempt(ctx)
//	})
package resilience

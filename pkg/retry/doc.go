// Package retry provides the fixed-delay retry policy used by the paginated fetcher.
//
// A Policy re-runs the same operation after Delay until it succeeds. Errors are
// split by a Classifier into Retryable and Fatal; fatal errors end the loop at
// once. MaxAttempts bounds the number of consecutive failures; the default of 0
// retries forever, which means a permanently failing endpoint that is
// misclassified as retryable will never return. Set MaxAttempts when that matters.
//
// Example usage:
//
//	policy := retry.DefaultPolicy()
//	policy.MaxAttempts = 5
//	err := policy.Do(ctx, "conversations.list", func(ctx context.Context) error {
//		return callAPI(ctx)
//	})
//
// Waits are cancellable through ctx and reported once per second via OnWait.
package retry

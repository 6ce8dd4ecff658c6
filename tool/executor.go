package tool

import (
	"context"
	"sync"
)

// ExecuteAll runs every call against the provider concurrently and returns
// results in call order, regardless of completion order. A failed call
// produces a Result with Err set; ExecuteAll itself never fails.
func ExecuteAll(ctx context.Context, provider Provider, calls []Call) []Result {
	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			content, err := provider.Execute(ctx, call.Name, call.Arguments)
			results[i] = Result{
				CallID:  call.ID,
				Name:    call.Name,
				Content: content,
				Err:     err,
			}
		}(i, call)
	}
	wg.Wait()

	return results
}

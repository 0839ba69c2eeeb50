package service

import (
	"context"
	"sync"
	"time"

	"github.com/drg911/htb-pro-card/pkg/profile"
	"github.com/drg911/htb-pro-card/pkg/source"
)

// WarmResult reports one identifier processed by WarmAll.
type WarmResult struct {
	Identifier string
	Profile    profile.Profile
	Err        error
}

// WarmAll refreshes every id against the Labs API with up to concurrency
// workers. onDone, if non-nil, is called from worker goroutines as each id
// completes. Results are returned in completion order.
func (s *Service) WarmAll(ctx context.Context, ids []string, labs source.RemoteAPI, ttl time.Duration, concurrency int, onDone func(WarmResult)) []WarmResult {
	if len(ids) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	idChan := make(chan string, len(ids))

	var mu sync.Mutex
	results := make([]WarmResult, 0, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range idChan {
				res := WarmResult{Identifier: id}
				if ctx.Err() != nil {
					res.Err = ctx.Err()
				} else {
					res.Profile, res.Err = s.Refresh(ctx, id, labs, ttl)
				}
				if res.Err != nil {
					s.log.Warnf("warm %s: %v", id, res.Err)
				}

				mu.Lock()
				results = append(results, res)
				mu.Unlock()

				if onDone != nil {
					onDone(res)
				}
			}
		}()
	}

	for _, id := range ids {
		idChan <- id
	}
	close(idChan)
	wg.Wait()

	return results
}

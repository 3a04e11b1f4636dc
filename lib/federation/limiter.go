// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/eventgraph/lib/ref"
)

// limiterPool holds one token bucket per remote server.
type limiterPool struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	m     map[ref.ServerName]*rate.Limiter
}

func newLimiterPool(perSecond float64, burst int) *limiterPool {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiterPool{limit: limit, burst: burst, m: make(map[ref.ServerName]*rate.Limiter)}
}

func (p *limiterPool) get(server ref.ServerName) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	limiter, ok := p.m[server]
	if !ok {
		limiter = rate.NewLimiter(p.limit, p.burst)
		p.m[server] = limiter
	}
	return limiter
}

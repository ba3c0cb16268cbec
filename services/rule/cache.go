package rule

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "incentives",
		Subsystem: "rule",
		Name:      "condition_cache_hits_total",
		Help:      "Compiled rule conditions served from cache.",
	})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "incentives",
		Subsystem: "rule",
		Name:      "condition_cache_miss_total",
		Help:      "Rule conditions compiled on demand.",
	})
)

// ProgramCache holds compiled conditions keyed by their source text.
// Concurrent misses on the same expression compile once.
type ProgramCache struct {
	mu    sync.RWMutex
	items map[string]cel.Program
	group singleflight.Group
}

func NewProgramCache() *ProgramCache {
	return &ProgramCache{items: make(map[string]cel.Program)}
}

func (c *ProgramCache) Get(expression string) (cel.Program, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.items[expression]
	return p, ok
}

func (c *ProgramCache) Set(expression string, p cel.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[expression] = p
}

func (c *ProgramCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrCompile returns the cached program for expression, building it with
// build on a miss.
func (c *ProgramCache) GetOrCompile(expression string, build func() (cel.Program, error)) (cel.Program, error) {
	if p, ok := c.Get(expression); ok {
		cacheHits.Inc()
		return p, nil
	}
	cacheMiss.Inc()

	v, err, _ := c.group.Do(expression, func() (any, error) {
		if p, ok := c.Get(expression); ok {
			return p, nil
		}
		p, err := build()
		if err != nil {
			return nil, err
		}
		c.Set(expression, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(cel.Program), nil
}

package engine

import (
	"sync"
	"time"
)

const ledgerRetention = time.Hour

// quoteLedger remembers consumed quote ids so a quote backs at most one intent
type quoteLedger struct {
	mu       sync.Mutex
	consumed map[string]time.Time
}

func newQuoteLedger() *quoteLedger {
	return &quoteLedger{consumed: make(map[string]time.Time)}
}

// consume marks id as used. It returns false if id was already consumed.
func (l *quoteLedger) consume(id string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, at := range l.consumed {
		if now.Sub(at) > ledgerRetention {
			delete(l.consumed, k)
		}
	}
	if _, ok := l.consumed[id]; ok {
		return false
	}
	l.consumed[id] = now
	return true
}

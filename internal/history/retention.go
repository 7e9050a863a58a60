package history

import (
	"log"
	"sync"
	"time"
)

// pruneInterval is how often the background pruner runs. Retention is
// measured in days, so a daily pass wastes nothing.
const pruneInterval = 24 * time.Hour

// Pruner periodically deletes rows past the store's retention horizon.
type Pruner struct {
	store     *Store
	interval  time.Duration
	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewPruner creates a pruner for the store.
func NewPruner(store *Store) *Pruner {
	return &Pruner{
		store:     store,
		interval:  pruneInterval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins the background prune goroutine.
func (p *Pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || !p.store.Enabled() {
		return
	}
	p.running = true
	go p.run()
}

// Stop signals the background goroutine to stop and waits for it to exit.
func (p *Pruner) Stop() {
	shouldStop := false
	func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.running {
			return
		}
		p.running = false
		shouldStop = true
	}()

	if !shouldStop {
		return
	}

	close(p.stopCh)
	<-p.stoppedCh
}

func (p *Pruner) run() {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !p.store.Enabled() {
				return
			}
			n, err := p.store.prune()
			if err != nil {
				log.Printf("[History] Prune failed: %v", err)
			} else if n > 0 {
				log.Printf("[History] Pruned %d rows older than %d days", n, p.store.cfg.RetentionDays)
			}
		case <-p.stopCh:
			return
		}
	}
}

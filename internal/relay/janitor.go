package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Janitor runs cleanup work after a response has been handed off. Tasks are
// tracked so shutdown and tests can wait for them.
type Janitor struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func NewJanitor() *Janitor {
	return &Janitor{}
}

// Schedule runs fn in the background. Errors are logged, never returned.
// Once the janitor is closed, fn runs inline.
func (j *Janitor) Schedule(name string, fn func() error) {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		run(name, fn)
		return
	}
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		run(name, fn)
	}()
}

// Wait blocks until every scheduled task has finished.
func (j *Janitor) Wait() {
	j.wg.Wait()
}

func (j *Janitor) Close() {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	j.wg.Wait()
}

func run(name string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn().Err(err).Str("task", name).Msg("Cleanup task failed")
	}
}

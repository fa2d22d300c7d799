package services

import "sync"

// saveQueue runs at most one save at a time and keeps at most one waiting.
// Enqueueing while a save is waiting replaces it, so the next save to run
// always carries the newest snapshot.
type saveQueue struct {
	run func(saveJob)

	mu      sync.Mutex
	idle    *sync.Cond
	pending *saveJob
	running bool
}

func newSaveQueue(run func(saveJob)) *saveQueue {
	q := &saveQueue{run: run}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Enqueue reports whether job replaced a save that had not started yet.
func (q *saveQueue) Enqueue(job saveJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	replaced := q.pending != nil
	q.pending = &job
	if !q.running {
		q.running = true
		go q.drain()
	}
	return replaced
}

func (q *saveQueue) drain() {
	for {
		q.mu.Lock()
		job := q.pending
		q.pending = nil
		if job == nil {
			q.running = false
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
		q.run(*job)
	}
}

// Wait blocks until nothing is running or waiting.
func (q *saveQueue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.running {
		q.idle.Wait()
	}
}

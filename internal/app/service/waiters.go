package service

import (
	"sync"

	"code_arena/internal/domain/model"
)

// JudgeResult is what a submitter ends up waiting on: either the finalized
// submission or the infrastructure error that prevented a verdict.
type JudgeResult struct {
	Submission *model.Submission
	Err        error
}

// ResultWaiters lets the HTTP submit path block until the worker finishes a
// submission, without the worker knowing about HTTP. One waiter per
// submission id; registration happens before the job is enqueued so the
// notification cannot be missed.
type ResultWaiters struct {
	mu      sync.Mutex
	waiters map[string]chan JudgeResult
}

func NewResultWaiters() *ResultWaiters {
	return &ResultWaiters{waiters: make(map[string]chan JudgeResult)}
}

func (w *ResultWaiters) Register(submissionID string) <-chan JudgeResult {
	ch := make(chan JudgeResult, 1)
	w.mu.Lock()
	w.waiters[submissionID] = ch
	w.mu.Unlock()
	return ch
}

func (w *ResultWaiters) Unregister(submissionID string) {
	w.mu.Lock()
	delete(w.waiters, submissionID)
	w.mu.Unlock()
}

// Notify delivers the result to the registered waiter, if any. The buffered
// channel means a worker never blocks on a waiter that already gave up.
func (w *ResultWaiters) Notify(submissionID string, res JudgeResult) {
	w.mu.Lock()
	ch, ok := w.waiters[submissionID]
	if ok {
		delete(w.waiters, submissionID)
	}
	w.mu.Unlock()

	if ok {
		ch <- res
	}
}

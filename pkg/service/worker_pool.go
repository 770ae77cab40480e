package service

import (
	"runtime"
	"sync"

	"github.com/ignatij/approvalflow/pkg/models"
)

// WorkerPool fans independent overdue approvals out to a bounded set of
// workers. Jobs never share rows (one pending approval per execution), so the
// only coordination needed is the index-addressed results slice.
type WorkerPool struct {
	workers int
}

func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{workers: workers}
}

// Process runs handle over every approval and returns the results in input
// order.
func (wp *WorkerPool) Process(approvals []models.WorkflowApproval, handle func(models.WorkflowApproval) Result) []Result {
	results := make([]Result, len(approvals))
	jobs := make(chan int, len(approvals))

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = handle(approvals[idx])
			}
		}()
	}

	for i := range approvals {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

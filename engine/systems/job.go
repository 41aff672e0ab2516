package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/shaderpixel/engine/core"
)

// JobTask is one unit of work for the JobSystem.
type JobTask struct {
	Name string
	// Run is required.
	Run func() error
	// OnComplete runs on the worker after Run succeeded.
	OnComplete func()
	// OnFailure runs on the worker after Run failed.
	OnFailure func(err error)
}

// JobSystem runs submitted tasks on a fixed number of workers. With a single
// worker tasks run one at a time in submission order.
type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrQueueFull = fmt.Errorf("job queue is full")
var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	if err := job.Run(); err != nil {
		core.LogError("job %s failed: %s", job.Name, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete()
	}
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full and fails once the system is shut down.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	if jt.Run == nil {
		return fmt.Errorf("job %s has no entry point", jt.Name)
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return fmt.Errorf("job %s: %w", jt.Name, core.ErrQueueClosed)
	}
	js.jobQueue <- jt
	return nil
}

// TrySubmit queues jt without blocking. It fails with ErrQueueFull when no
// slot is free.
func (js *JobSystem) TrySubmit(jt JobTask) error {
	if jt.Run == nil {
		return fmt.Errorf("job %s has no entry point", jt.Name)
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return fmt.Errorf("job %s: %w", jt.Name, core.ErrQueueClosed)
	}
	select {
	case js.jobQueue <- jt:
		return nil
	default:
		return ErrQueueFull
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run; Shutdown returns
 * once the workers are done. Calling it twice is a no-op.
 */
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

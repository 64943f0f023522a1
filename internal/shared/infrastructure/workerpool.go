package infrastructure

import (
	"context"
	"fmt"
	"sync"
)

// Task représente une tâche à exécuter
type Task func(ctx context.Context) error

// WorkerPool exécute des tâches en parallèle sur un nombre fixe de workers
// et conserve chaque erreur retournée, dans l'ordre de fin des tâches.
type WorkerPool struct {
	workerCount int
	tasks       chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	mu     sync.Mutex
	errors []error

	// closed est posé par Wait; protège l'envoi sur le canal fermé
	submitMu sync.RWMutex
	closed   bool
}

// NewWorkerPool crée un nouveau pool de workers rattaché à ctx
func NewWorkerPool(ctx context.Context, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		workerCount: workerCount,
		tasks:       make(chan Task, workerCount*2),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// worker est la routine d'exécution des tâches
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task, ok := <-wp.tasks:
			if !ok {
				return
			}
			if err := wp.run(task); err != nil {
				wp.mu.Lock()
				wp.errors = append(wp.errors, err)
				wp.mu.Unlock()
			}
		}
	}
}

// run isole une tâche: une panique devient une erreur
func (wp *WorkerPool) run(task Task) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return task(wp.ctx)
}

// Start démarre les workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Submit soumet une tâche au pool
func (wp *WorkerPool) Submit(task Task) error {
	wp.submitMu.RLock()
	defer wp.submitMu.RUnlock()
	if wp.closed || wp.ctx.Err() != nil {
		return fmt.Errorf("worker pool is stopped")
	}
	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is stopped")
	case wp.tasks <- task:
		return nil
	}
}

// Wait attend que toutes les tâches soient terminées et ferme le canal de tâches
func (wp *WorkerPool) Wait() []error {
	wp.submitMu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.tasks)
	}
	wp.submitMu.Unlock()
	wp.wg.Wait()
	wp.cancel()
	return wp.Errors()
}

// Errors retourne une copie des erreurs collectées
func (wp *WorkerPool) Errors() []error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return append([]error(nil), wp.errors...)
}

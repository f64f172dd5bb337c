// Package concurrency implements the VM's worker-pool thread subsystem
// (§4.7, §5): a fixed-capacity slot table of Thread descriptors, a shared
// job queue, cooperative pause/cancel/kill, and per-worker resource
// metrics. It is deliberately VM-agnostic — a Job carries its own
// entrypoint closure — so package vm can spawn sibling VM instances
// without this package importing vm (which would create an import
// cycle, since vm also needs to reach into the registry from THREAD_*
// and MUTEX_* opcodes).
package concurrency

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pscalvm/pscalvm/internal/value"
)

// DefaultMaxWorkers mirrors the source's VM_MAX_WORKERS (VM_MAX_THREADS-1
// with VM_MAX_THREADS=16, §4.7).
const DefaultMaxWorkers = 15

// DefaultMaxMutexes mirrors VM_MAX_MUTEXES.
const DefaultMaxMutexes = 64

// ThreadNameMax bounds a thread's display name (§4.7).
const ThreadNameMax = 64

// JobFunc is the entrypoint a spawned worker runs. It receives a Control
// handle so it can cooperatively poll pause/cancel/kill at opcode-boundary
// style checkpoints (§4.7's "cooperative poll point"). The returned Value
// and bool (ok/status) are handed off via Thread.storeResult.
type JobFunc func(ctrl *Control) (value.Value, bool, error)

// Control is the cooperative signaling surface a running job polls.
// All three flags are non-blocking for the caller that sets them (§4.7).
type Control struct {
	paused  atomicBool
	cancel  atomicBool
	kill    atomicBool
	resumeC chan struct{}
	mu      sync.Mutex
}

func newControl() *Control {
	return &Control{resumeC: make(chan struct{})}
}

// Poll should be called at cooperative checkpoints inside a long-running
// job. It parks on the pause condition and returns true once cancel or
// kill has been requested, so the job can unwind.
func (c *Control) Poll() (cancelled bool) {
	for c.paused.get() {
		c.mu.Lock()
		ch := c.resumeC
		c.mu.Unlock()
		<-ch
	}
	return c.cancel.get() || c.kill.get()
}

func (c *Control) Cancelled() bool { return c.cancel.get() }
func (c *Control) Killed() bool    { return c.kill.get() }

func (c *Control) pause() {
	c.paused.set(true)
}

func (c *Control) resume() {
	c.mu.Lock()
	old := c.resumeC
	c.resumeC = make(chan struct{})
	c.mu.Unlock()
	c.paused.set(false)
	close(old)
}

// atomicBool is a tiny helper so Control doesn't need a full atomic.Bool
// (kept for parity with the teacher's plain style rather than reaching
// for sync/atomic.Bool's generics-era API everywhere).
type atomicBool struct {
	mu sync.RWMutex
	v  bool
}

func (a *atomicBool) get() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.v
}

func (a *atomicBool) set(v bool) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

// ResourceSnapshot mirrors the source's ThreadMetricsSample (§4.7): a
// point-in-time capture of wall clock, CPU time and RSS. Valid is false
// when gopsutil cannot open the process or read its CPU times; if only
// the memory read fails, Valid stays true and RSSBytes is 0.
type ResourceSnapshot struct {
	Valid    bool
	At       time.Time
	CPUTime  time.Duration
	RSSBytes uint64
}

// ThreadMetrics bundles the start/end ResourceSnapshot pair a caller reads
// back via Registry.SnapshotWorkerUsage (§4.7).
type ThreadMetrics struct {
	Start ResourceSnapshot
	End   ResourceSnapshot
}

// ThreadState is the lifecycle stage of a Thread slot.
type ThreadState int

const (
	StateIdle ThreadState = iota
	StateQueued
	StateRunning
	StateDone
)

// Thread is one slot in the registry's fixed-capacity table (§4.7).
type Thread struct {
	ID            uuid.UUID
	Name          string
	State         ThreadState
	Control       *Control
	QueuedAt      time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
	Metrics       ThreadMetrics
	resultMu      sync.Mutex
	resultCond    *sync.Cond
	resultReady   bool
	resultValue   value.Value
	resultStatus  bool
	resultErr     error
}

func newThread(name string) *Thread {
	if len(name) > ThreadNameMax {
		name = name[:ThreadNameMax]
	}
	t := &Thread{ID: uuid.New(), Name: name, Control: newControl()}
	t.resultCond = sync.NewCond(&t.resultMu)
	return t
}

// storeResult publishes a job's outcome — the consumer side is TakeResult
// (§4.7's "Result hand-off"). The Value is deep-copied so the worker and
// the joiner never share mutable storage.
func (t *Thread) storeResult(v value.Value, ok bool, err error) {
	t.resultMu.Lock()
	defer t.resultMu.Unlock()
	t.resultValue = value.Copy(v)
	t.resultStatus = ok
	t.resultErr = err
	t.resultReady = true
	t.resultCond.Broadcast()
}

// TakeResult blocks until a result has been published, then returns it.
// Each call returns a fresh deep copy so callers never alias the stored
// value.
func (t *Thread) TakeResult() (value.Value, bool, error) {
	t.resultMu.Lock()
	defer t.resultMu.Unlock()
	for !t.resultReady {
		t.resultCond.Wait()
	}
	return value.Copy(t.resultValue), t.resultStatus, t.resultErr
}

// Registry is the owner-VM-rooted thread/mutex subsystem (§4.7). Sibling
// VMs hold a pointer back to the owner's Registry rather than keeping
// their own — "concurrency operations must walk to the owner before
// touching the registry".
type Registry struct {
	mu      sync.Mutex
	threads map[uuid.UUID]*Thread
	sem     *semaphore.Weighted
	maxJobs int

	mutexMu sync.Mutex
	mutexes map[int]*mutexSlot
	nextMutexID int
}

// NewRegistry builds a Registry capped at maxWorkers concurrent jobs,
// admission-controlled by a weighted semaphore (golang.org/x/sync) rather
// than an unbounded goroutine-per-job fan-out.
func NewRegistry(maxWorkers int) *Registry {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Registry{
		threads: make(map[uuid.UUID]*Thread),
		sem:     semaphore.NewWeighted(int64(maxWorkers)),
		maxJobs: maxWorkers,
		mutexes: make(map[int]*mutexSlot),
	}
}

// Spawn enqueues fn on a pool worker, returning the Thread descriptor
// immediately (job lifecycle step 1-2 in §4.7). If the pool is exhausted
// and the semaphore cannot be acquired, it returns a "thread pool
// exhausted" error rather than blocking forever — §7's Resource/Concurrency error category.
func (r *Registry) Spawn(name string, fn JobFunc) (*Thread, error) {
	t := newThread(name)
	t.State = StateQueued
	t.QueuedAt = time.Now()

	r.mu.Lock()
	r.threads[t.ID] = t
	r.mu.Unlock()

	if !r.sem.TryAcquire(1) {
		return nil, fmt.Errorf("Concurrency: thread pool exhausted (max %d workers)", r.maxJobs)
	}

	go func() {
		defer r.sem.Release(1)
		t.StartedAt = time.Now()
		t.State = StateRunning
		t.Metrics.Start = snapshotSelf()

		v, ok, err := fn(t.Control)

		t.Metrics.End = snapshotSelf()
		t.FinishedAt = time.Now()
		t.State = StateDone
		t.storeResult(v, ok, err)
	}()

	return t, nil
}

// Get looks a thread slot up by ID.
func (r *Registry) Get(id uuid.UUID) (*Thread, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[id]
	return t, ok
}

// Join waits for a thread to finish and returns its published result
// (§8 invariant 5: finishedAt >= startedAt >= queuedAt).
func (r *Registry) Join(id uuid.UUID) (value.Value, bool, error) {
	t, ok := r.Get(id)
	if !ok {
		return value.MakeNil(), false, fmt.Errorf("Concurrency: join of unknown thread %s", id)
	}
	return t.TakeResult()
}

// Pause/Cancel/Kill are all non-blocking for the caller (§4.7).
func (r *Registry) Pause(id uuid.UUID) error {
	t, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("Concurrency: pause of unknown thread %s", id)
	}
	t.Control.pause()
	return nil
}

func (r *Registry) Resume(id uuid.UUID) error {
	t, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("Concurrency: resume of unknown thread %s", id)
	}
	t.Control.resume()
	return nil
}

func (r *Registry) Cancel(id uuid.UUID) error {
	t, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("Concurrency: cancel of unknown thread %s", id)
	}
	t.Control.cancel.set(true)
	t.Control.resume() // unstick a paused worker so it can observe cancel
	return nil
}

func (r *Registry) Kill(id uuid.UUID) error {
	t, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("Concurrency: kill of unknown thread %s", id)
	}
	t.Control.kill.set(true)
	t.Control.resume()
	return nil
}

// SnapshotWorkerUsage copies the ThreadMetrics recorded for id into a
// fresh value the caller owns (§4.7's vm_snapshot_worker_usage).
func (r *Registry) SnapshotWorkerUsage(id uuid.UUID) (ThreadMetrics, error) {
	t, ok := r.Get(id)
	if !ok {
		return ThreadMetrics{}, fmt.Errorf("Concurrency: no such thread %s", id)
	}
	return t.Metrics, nil
}

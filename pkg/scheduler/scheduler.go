// Package scheduler implements the client-level work scheduler (C4):
// it shares a connection budget across every active meta-request and
// drives the single-threaded cooperative work loop spec.md §4.3
// describes. Grounded on the teacher's pkg/pool.WorkerPool (atomic
// counters, a dedicated context-cancelable goroutine, Stats snapshotting)
// generalized from "N fixed workers draining a task channel" to "a budget
// of in-flight S3 requests shared across many independent state machines."
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"s3transfer/pkg/pool"
	"s3transfer/pkg/transfer"
)

// Client is the scheduler: an endpoint table, a set of active uploads, and
// the dedicated work-executor goroutine that drives them all.
type Client struct {
	table   *pool.Table
	budgets Budgets

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active []*transfer.UploadMetaRequest
	hostOf map[*transfer.UploadMetaRequest]string

	prepareQueueMu sync.Mutex
	prepareQueue   []*preparedEntry

	requestsInFlight   atomic.Int32
	requestsPreparing  atomic.Int32
	prepareQueueLen    atomic.Int32
	workScheduled      atomic.Bool
	workInProgress     atomic.Bool
	wakeCh             chan struct{}

	wg sync.WaitGroup

	onMetric func(event string, n int64) // optional hook for pkg/metrics
}

type preparedEntry struct {
	req  *transfer.Request
	mr   *transfer.UploadMetaRequest
	host string
}

// NewClient starts a scheduler backed by table, sized to budgets.
func NewClient(ctx context.Context, table *pool.Table, budgets Budgets) *Client {
	cctx, cancel := context.WithCancel(ctx)
	c := &Client{
		table:   table,
		budgets: budgets,
		ctx:     cctx,
		cancel:  cancel,
		hostOf:  make(map[*transfer.UploadMetaRequest]string),
		wakeCh:  make(chan struct{}, 1),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// OnMetric registers a callback invoked for scheduler counter changes;
// pkg/metrics wires this to Prometheus gauges.
func (c *Client) OnMetric(fn func(event string, n int64)) { c.onMetric = fn }

func (c *Client) emit(event string, n int64) {
	if c.onMetric != nil {
		c.onMetric(event, n)
	}
}

// Submit adds a meta-request to the active set, keyed by host for endpoint
// acquisition, and wakes the work loop.
func (c *Client) Submit(mr *transfer.UploadMetaRequest, host string) {
	c.mu.Lock()
	c.active = append(c.active, mr)
	c.hostOf[mr] = host
	n := len(c.active)
	c.mu.Unlock()
	c.emit("active_uploads", int64(n))
	c.scheduleWork()
}

// Close stops the work executor and cancels the context that dispatched
// requests run under, so requests still on the wire fail with a
// cancellation error. Close does not wait for them.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

// scheduleWork is schedule_process_work_synced: a no-op if a work task is
// already queued. It does not check workInProgress: a call made while a
// pass is running queues one more pass after it.
func (c *Client) scheduleWork() {
	if c.workScheduled.CompareAndSwap(false, true) {
		select {
		case c.wakeCh <- struct{}{}:
		default:
		}
	}
}

func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wakeCh:
			c.workScheduled.Store(false)
			c.workInProgress.Store(true)
			again := c.processWorkTask()
			c.workInProgress.Store(false)
			if again {
				c.scheduleWork()
			}
		}
	}
}

// processWorkTask runs one update/dispatch/retire cycle and reports
// whether there is more to do (so the executor re-arms itself instead of
// waiting for an external event that may never come, e.g. parts still
// queued to prepare).
func (c *Client) processWorkTask() bool {
	more := c.updatePass()
	c.dispatchPass()
	c.retirePass()
	return more
}

// updatePass is work-loop step 1.
func (c *Client) updatePass() bool {
	c.mu.Lock()
	snapshot := append([]*transfer.UploadMetaRequest(nil), c.active...)
	c.mu.Unlock()

	c.prepareQueueMu.Lock()
	queued := len(c.prepareQueue)
	c.prepareQueueMu.Unlock()

	conservative := int(c.requestsPreparing.Load())+queued >= c.budgets.MaxRequestsPrepare

	more := false
	for _, mr := range snapshot {
		req := mr.Update(conservative)
		if req == nil {
			continue
		}
		more = true

		c.mu.Lock()
		host := c.hostOf[mr]
		c.mu.Unlock()

		if int(c.requestsPreparing.Load())+queued >= c.budgets.MaxRequestsPrepare && !req.AlwaysSend {
			// Prepare budget saturated; drop the request back for the next
			// pass rather than block. update() will re-emit it since its
			// sent flag wasn't durably cleared for anything but resumable
			// steps (LIST_PARTS pagination); for every other tag the flag
			// is already latched, so skip preparing but still count as
			// pending work.
			continue
		}

		c.requestsPreparing.Add(1)
		c.emit("requests_preparing", int64(c.requestsPreparing.Load()))
		if err := req.PrepareRequest(c.ctx); err != nil {
			c.requestsPreparing.Add(-1)
			mr.RequestFinished(req, err)
			more = true
			continue
		}
		c.requestsPreparing.Add(-1)

		c.prepareQueueMu.Lock()
		c.prepareQueue = append(c.prepareQueue, &preparedEntry{req: req, mr: mr, host: host})
		queued = len(c.prepareQueue)
		c.prepareQueueMu.Unlock()
		c.prepareQueueLen.Store(int32(queued))
		c.emit("prepare_queue_length", int64(queued))
	}
	return more
}

// dispatchPass is work-loop step 2: drain the prepared queue while under
// budget, issuing each request against a pooled endpoint connection.
// Dispatch itself is asynchronous (network I/O happens off the work
// executor); dispatchOne folds each completion back in via RequestFinished.
func (c *Client) dispatchPass() {
	for {
		if int(c.requestsInFlight.Load()) >= c.budgets.MaxRequestsInFlight {
			return
		}

		c.prepareQueueMu.Lock()
		if len(c.prepareQueue) == 0 {
			c.prepareQueueMu.Unlock()
			return
		}
		entry := c.prepareQueue[0]
		c.prepareQueue = c.prepareQueue[1:]
		c.prepareQueueLen.Store(int32(len(c.prepareQueue)))
		c.emit("prepare_queue_length", int64(len(c.prepareQueue)))
		c.prepareQueueMu.Unlock()

		ep, err := c.table.Acquire(c.ctx, entry.host, false)
		if err != nil {
			entry.mr.RequestFinished(entry.req, err)
			c.scheduleWork()
			continue
		}

		c.requestsInFlight.Add(1)
		c.emit("requests_in_flight", int64(c.requestsInFlight.Load()))
		go c.dispatchOne(ep, entry)
	}
}

func (c *Client) dispatchOne(ep *pool.Endpoint, entry *preparedEntry) {
	client := ep.Client()
	err := entry.req.Execute(c.ctx, client)
	if err != nil {
		ep.RecordError()
		c.emit("endpoint_error", 1)
		if transfer.IsRetryable(err) {
			c.emit("retryable_error", 1)
		} else {
			c.emit("nonretryable_error", 1)
		}
	}
	if entry.req.Tag == transfer.TagUploadPart {
		if err != nil {
			c.emit("part_failed", 1)
		} else {
			c.emit("part_uploaded", 1)
			c.emit("bytes_transferred", int64(entry.req.BodyLen()))
		}
	}

	c.requestsInFlight.Add(-1)
	c.emit("requests_in_flight", int64(c.requestsInFlight.Load()))
	c.table.Release(ep)

	entry.mr.RequestFinished(entry.req, err)
	c.scheduleWork()
}

// retirePass is work-loop step 3: drop finished meta-requests from the
// active set and invoke their completion callback, outside any lock.
func (c *Client) retirePass() {
	c.mu.Lock()
	kept := c.active[:0]
	var done []*transfer.UploadMetaRequest
	for _, mr := range c.active {
		if mr.Done() {
			done = append(done, mr)
			delete(c.hostOf, mr)
			continue
		}
		kept = append(kept, mr)
	}
	c.active = kept
	n := len(c.active)
	c.mu.Unlock()

	if len(done) > 0 {
		c.emit("active_uploads", int64(n))
	}
	for _, mr := range done {
		mr.Finalize()
	}
}

// Stats reports a point-in-time view of scheduler occupancy.
type Stats struct {
	ActiveUploads     int
	RequestsInFlight  int
	RequestsPreparing int
	PrepareQueueLen   int
	Budgets           Budgets
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	activeUploads := len(c.active)
	c.mu.Unlock()

	return Stats{
		ActiveUploads:     activeUploads,
		RequestsInFlight:  int(c.requestsInFlight.Load()),
		RequestsPreparing: int(c.requestsPreparing.Load()),
		PrepareQueueLen:   int(c.prepareQueueLen.Load()),
		Budgets:           c.budgets,
	}
}

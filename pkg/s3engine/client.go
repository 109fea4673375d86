// Package s3engine wires the engine's components (pool, transfer,
// scheduler, resume) into the single facade a caller actually uses: submit
// an UploadInput, get an UploadOutput back. Grounded on the teacher's
// pkg/core.EnhancedMigrator, which performs the same kind of composition
// (connection pool + tuner + streamer + progress tracker behind one
// constructor), generalized from migration jobs to multipart uploads.
package s3engine

import (
	"context"
	"errors"
	"fmt"

	"s3transfer/pkg/metrics"
	"s3transfer/pkg/pool"
	"s3transfer/pkg/resume"
	"s3transfer/pkg/scheduler"
	"s3transfer/pkg/transfer"
)

// Config bundles the pool/connection settings with the scheduler's
// throughput target.
type Config struct {
	Pool pool.Config

	// ThroughputTargetGbps sizes the scheduler's connection budget; see
	// scheduler.DeriveBudgets.
	ThroughputTargetGbps float64

	// MaxActiveConnectionsOverride, if non-zero, caps max_active_connections
	// below what the throughput target would otherwise derive.
	MaxActiveConnectionsOverride int

	// ResumeStore, if set, lets Upload persist a pause token automatically
	// when an upload that obtained an upload id ends with an error, a pause
	// (including one triggered by cancelling Upload's context) included.
	ResumeStore resume.Store

	// Metrics, if set, receives upload-outcome and scheduler-occupancy
	// counters; see pkg/httpstatus for exposing them over /metrics.
	Metrics *metrics.Collector
}

// Client is the engine's public entry point.
type Client struct {
	cfg   Config
	table *pool.Table
	sched *scheduler.Client
}

// New builds a Client. The scheduler's work executor goroutine starts
// immediately and runs until Close.
func New(ctx context.Context, cfg Config) *Client {
	if cfg.ThroughputTargetGbps <= 0 {
		cfg.ThroughputTargetGbps = 10
	}
	table := pool.NewTable(cfg.Pool)
	budgets := scheduler.DeriveBudgets(cfg.ThroughputTargetGbps, cfg.Pool.ConnectionsPerVIP, cfg.MaxActiveConnectionsOverride)
	sched := scheduler.NewClient(ctx, table, budgets)
	if cfg.Metrics != nil {
		sched.OnMetric(cfg.Metrics.SchedulerHook)
	}
	return &Client{
		cfg:   cfg,
		table: table,
		sched: sched,
	}
}

// Close stops the scheduler's work executor.
func (c *Client) Close() { c.sched.Close() }

// Stats reports current scheduler occupancy, for the /status endpoint.
func (c *Client) Stats() scheduler.Stats { return c.sched.Stats() }

// Table exposes the endpoint pool for callers building their own status or
// housekeeping surface (pkg/httpstatus, pkg/housekeeping).
func (c *Client) Table() *pool.Table { return c.table }

// hostFor derives the endpoint-table key for a bucket. Virtual-hosted-style
// addressing means each bucket effectively gets its own front-end identity;
// a custom endpoint (S3-compatible store) collapses every bucket onto that
// one configured host instead.
func (c *Client) hostFor(bucket string) string {
	if c.cfg.Pool.EndpointURL != "" {
		return c.cfg.Pool.EndpointURL
	}
	return fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, c.cfg.Pool.Region)
}

// Upload submits in as a new (or resumed, if in.ResumeToken is set)
// meta-request and blocks until it reaches a terminal condition.
func (c *Client) Upload(ctx context.Context, in transfer.UploadInput) (*transfer.UploadOutput, error) {
	type result struct {
		out *transfer.UploadOutput
		err error
	}
	done := make(chan result, 1)

	mr, err := transfer.New(in, func(out *transfer.UploadOutput, err error) {
		done <- result{out, err}
	})
	if err != nil {
		return nil, err
	}

	c.sched.Submit(mr, c.hostFor(in.Bucket))
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.UploadsStarted.Inc()
	}

	select {
	case r := <-done:
		c.recordOutcome(r.err)
		if r.err != nil && c.cfg.ResumeStore != nil {
			if tok, ok := mr.Token(); ok {
				_ = c.cfg.ResumeStore.Save(resumeKey(in.Bucket, in.Key), tok)
			}
		}
		return r.out, r.err
	case <-ctx.Done():
		mr.Pause()
		r := <-done // wait for the termination sub-machine to finalize
		c.recordOutcome(r.err)
		if r.err != nil && c.cfg.ResumeStore != nil {
			if tok, ok := mr.Token(); ok {
				_ = c.cfg.ResumeStore.Save(resumeKey(in.Bucket, in.Key), tok)
			}
		}
		return nil, ctx.Err()
	}
}

// recordOutcome classifies a finished upload's error against the engine's
// own ErrorCode rather than the caller's ctx.Err(), since Upload returns
// ctx.Err() on the pause path while the meta-request's own finish_result is
// what actually determines Paused vs Failed.
func (c *Client) recordOutcome(err error) {
	if c.cfg.Metrics == nil {
		return
	}
	var uerr *transfer.UploadError
	switch {
	case err == nil:
		c.cfg.Metrics.UploadsSucceeded.Inc()
	case errors.As(err, &uerr) && uerr.Code == transfer.ErrPaused:
		c.cfg.Metrics.UploadsPaused.Inc()
	default:
		c.cfg.Metrics.UploadsFailed.Inc()
	}
}

// UploadAsync is Upload without blocking; the returned meta-request can be
// paused, and its token persisted, from another goroutine.
func (c *Client) UploadAsync(in transfer.UploadInput, onDone transfer.DoneFunc) (*transfer.UploadMetaRequest, error) {
	mr, err := transfer.New(in, func(out *transfer.UploadOutput, err error) {
		c.recordOutcome(err)
		onDone(out, err)
	})
	if err != nil {
		return nil, err
	}
	c.sched.Submit(mr, c.hostFor(in.Bucket))
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.UploadsStarted.Inc()
	}
	return mr, nil
}

// PutObject is the engine's "just upload it" entry point: if in would fit in
// a single part and the caller didn't ask for ResumeCompatible, it issues
// one S3 PutObject call, never reaching CREATE_MPU/COMPLETE_MPU. Otherwise
// it falls through to the full multipart Upload path. A meta-request built
// directly via transfer.New always drives the full multipart sequence; only
// this convenience entry point applies the single-part shortcut.
func (c *Client) PutObject(ctx context.Context, in transfer.UploadInput) (*transfer.UploadOutput, error) {
	if !transfer.FitsSinglePart(in) || in.ResumeCompatible {
		return c.Upload(ctx, in)
	}

	ep, err := c.table.Acquire(ctx, c.hostFor(in.Bucket), false)
	if err != nil {
		return nil, err
	}
	defer c.table.Release(ep)
	return transfer.SinglePartUpload(ctx, ep.Client(), in)
}

// Resume rebuilds a meta-request from a previously persisted token and
// blocks until it completes, exactly like Upload.
func (c *Client) Resume(ctx context.Context, in transfer.UploadInput, key string) (*transfer.UploadOutput, error) {
	if c.cfg.ResumeStore == nil {
		return nil, fmt.Errorf("s3engine: no resume store configured")
	}
	tok, err := c.cfg.ResumeStore.Load(key)
	if err != nil {
		return nil, err
	}
	in.ResumeToken = &tok
	out, err := c.Upload(ctx, in)
	if err == nil {
		_ = c.cfg.ResumeStore.Delete(key)
	}
	return out, err
}

func resumeKey(bucket, key string) string { return bucket + "/" + key }

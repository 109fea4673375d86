package pool

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// HealthCheck probes every live endpoint's clients with ListBuckets in
// parallel. Adapted from the teacher's ConnectionPool.HealthCheck, which
// fanned out with a raw sync.WaitGroup and a results-map mutex; here the
// fan-out is expressed with golang.org/x/sync/errgroup the way
// kelindar-s3's UploadFrom parallelizes part uploads, trading the manual
// WaitGroup bookkeeping for errgroup's built-in error propagation.
func (t *Table) HealthCheck(ctx context.Context) map[string]error {
	t.mu.Lock()
	hosts := make([]string, 0, len(t.eps))
	endpoints := make([]*Endpoint, 0, len(t.eps))
	for host, ep := range t.eps {
		hosts = append(hosts, host)
		endpoints = append(endpoints, ep)
	}
	t.mu.Unlock()

	results := make([]error, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			_, err := ep.Client().ListBuckets(gctx, &s3.ListBucketsInput{})
			results[i] = err
			return nil // collect per-endpoint errors, don't abort the group
		})
	}
	_ = g.Wait()

	out := make(map[string]error, len(hosts))
	for i, host := range hosts {
		out[host] = results[i]
	}
	return out
}

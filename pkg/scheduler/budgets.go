package scheduler

import "math"

// perVIPThroughputBytesPerSec is the assumed steady-state throughput of one
// virtual IP (one S3 front-end address) under the connections-per-VIP this
// client opens against it. S3 documents roughly 100 Gbps per prefix when
// spread across enough VIPs; 625 MiB/s (about 5.2 Gbps) per VIP is a conservative
// per-address planning figure in that range.
const perVIPThroughputBytesPerSec = 625 * 1024 * 1024

// inFlightFactor sets how far num_requests_in_flight can run ahead of
// max_active_connections: a connection that just finished writing a part's
// body can have its response still in flight while the connection is
// reused for the next part.
const inFlightFactor = 2

// Budgets are the scheduler's connection and pipeline ceilings, derived
// once from a throughput target and re-applied every work-loop pass.
type Budgets struct {
	MaxActiveConnections int
	MaxRequestsInFlight  int
	MaxRequestsPrepare   int
}

// DeriveBudgets computes a Budgets from a throughput target (in Gbps), an
// optional hard override on connection count (0 means "no override"), and
// the number of connections this client opens per VIP.
func DeriveBudgets(throughputTargetGbps float64, connectionsPerVIP int, override int) Budgets {
	if connectionsPerVIP <= 0 {
		connectionsPerVIP = 1
	}

	bytesPerSec := throughputTargetGbps * 1e9 / 8
	idealVIPCount := int(math.Ceil(bytesPerSec / perVIPThroughputBytesPerSec))
	if idealVIPCount < 1 {
		idealVIPCount = 1
	}

	derived := idealVIPCount * connectionsPerVIP
	maxActive := derived
	if override > 0 && override < derived {
		maxActive = override
	}
	if maxActive < 1 {
		maxActive = 1
	}

	return Budgets{
		MaxActiveConnections: maxActive,
		MaxRequestsInFlight:  maxActive * inFlightFactor,
		MaxRequestsPrepare:   maxActive,
	}
}

package rpcfleet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-resty/resty/v2"
	"go.uber.org/atomic"
	"go.uber.org/ratelimit"
)

// Endpoint is a single JSON-RPC HTTP(S) URL with a health score and a
// request-pacing limiter. No pack repo carries a circuit-breaker
// library, so failure tracking here is a plain consecutive-failure
// counter rather than anything more elaborate.
type Endpoint struct {
	URL    string
	Client *ethclient.Client
	RPC    *rpc.Client

	consecutiveFailures atomic.Int32
	limiter             ratelimit.Limiter
	health              *resty.Client
}

func newEndpoint(ctx context.Context, url string) (*Endpoint, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return &Endpoint{
		URL:     url,
		Client:  ethclient.NewClient(rpcClient),
		RPC:     rpcClient,
		limiter: ratelimit.New(50), // requests/sec; fixed, not configurable
		health:  resty.New().SetTimeout(3 * time.Second),
	}, nil
}

// Healthy reports whether the endpoint's recent requests succeeded
// enough to keep it at the front of the fan-out order. Unhealthy
// endpoints are deprioritized by HealthyEndpoints, not removed, and a
// single success (broadcast or monitor ping) restores them.
func (self *Endpoint) Healthy() bool {
	return self.consecutiveFailures.Load() < 5
}

func (self *Endpoint) RecordSuccess() {
	self.consecutiveFailures.Store(0)
}

func (self *Endpoint) RecordFailure() {
	self.consecutiveFailures.Add(1)
}

// Throttle blocks until the endpoint's rate limiter admits the next
// request.
func (self *Endpoint) Throttle() {
	self.limiter.Take()
}

// Ping does a lightweight liveness check via JSON-RPC over HTTP using
// resty, independent of the ethclient/rpc.Client connection, so a
// stuck websocket or a provider-side bug in one code path doesn't mask
// the endpoint's real reachability.
func (self *Endpoint) Ping(ctx context.Context) error {
	_, err := self.health.R().SetContext(ctx).
		SetBody(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  "eth_blockNumber",
			"params":  []any{},
		}).
		Post(self.URL)
	if err != nil {
		self.RecordFailure()
		return err
	}
	self.RecordSuccess()
	return nil
}

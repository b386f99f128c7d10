// Package rpcfleet manages per-chain pools of JSON-RPC endpoints:
// connection, health tracking, and websocket derivation for streaming
// subscriptions.
package rpcfleet

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/warp-contracts/tempo-watchtower/src/utils/config"
	l "github.com/warp-contracts/tempo-watchtower/src/utils/logger"

	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainRpc is one chain's pool of HTTP endpoints plus an optional
// websocket connection for streaming.
type ChainRpc struct {
	ChainID   uint64
	Endpoints []*Endpoint
	WS        *ethclient.Client

	rrIndex int
}

// Fleet holds every configured chain's ChainRpc.
type Fleet struct {
	chains map[uint64]*ChainRpc
}

// New connects every configured endpoint. A chain with zero reachable
// HTTP endpoints is an error: broadcaster/watcher have nothing to do
// for it. A chain whose websocket endpoint fails to connect logs a
// warning and falls back to polling; the websocket is an optimization,
// not a requirement.
func New(ctx context.Context, cfg *config.Config) (*Fleet, error) {
	log := l.NewSublogger("rpcfleet")

	chainURLs, err := cfg.RpcChains()
	if err != nil {
		return nil, err
	}

	fleet := &Fleet{chains: make(map[uint64]*ChainRpc, len(chainURLs))}

	for chainID, urls := range chainURLs {
		chain := &ChainRpc{ChainID: chainID}

		for _, url := range urls {
			ep, err := newEndpoint(ctx, url)
			if err != nil {
				log.WithField("chainId", chainID).WithField("url", url).WithError(err).Warn("failed to connect http endpoint")
				continue
			}
			chain.Endpoints = append(chain.Endpoints, ep)
		}

		if len(chain.Endpoints) == 0 {
			return nil, fmt.Errorf("rpcfleet: no reachable RPC URLs for chain %d", chainID)
		}

		if cfg.Watcher.UseWebsocket {
			wsURL := pickWsURL(urls)
			if wsURL != "" {
				ws, err := ethclient.DialContext(ctx, wsURL)
				if err != nil {
					log.WithField("chainId", chainID).WithField("url", wsURL).WithError(err).Warn("failed to connect ws endpoint")
				} else {
					chain.WS = ws
				}
			}
		}

		fleet.chains[chainID] = chain
	}

	return fleet, nil
}

// Chain returns the pool for chainID, or nil if unconfigured.
func (self *Fleet) Chain(chainID uint64) *ChainRpc {
	return self.chains[chainID]
}

// ChainIDs returns every configured chain id, sorted ascending.
func (self *Fleet) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(self.chains))
	for id := range self.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HealthyEndpoints returns the chain's endpoints in fan-out order:
// rotated to start at attempt % len(endpoints) so repeated retries
// don't always hammer the same first endpoint, then with endpoints
// whose recent requests kept failing moved to the back. Nothing is
// dropped outright: a wholly down chain still needs every endpoint
// tried so recovery is noticed.
func (c *ChainRpc) HealthyEndpoints(attempt int) []*Endpoint {
	n := len(c.Endpoints)
	if n == 0 {
		return nil
	}

	start := attempt % n
	healthy := make([]*Endpoint, 0, n)
	var degraded []*Endpoint
	for i := 0; i < n; i++ {
		ep := c.Endpoints[(start+i)%n]
		if ep.Healthy() {
			healthy = append(healthy, ep)
		} else {
			degraded = append(degraded, ep)
		}
	}
	return append(healthy, degraded...)
}

// pickWsURL prefers an explicit ws(s):// URL among the configured
// endpoints, falling back to deriving one from the first http(s) URL.
func pickWsURL(urls []string) string {
	for _, u := range urls {
		if strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") {
			return u
		}
	}
	if len(urls) == 0 {
		return ""
	}
	return toWsURL(urls[0])
}

// toWsURL derives a websocket URL from an http(s) one. Returns "" if
// url isn't an http(s) URL (e.g. already ws(s), or malformed).
func toWsURL(url string) string {
	if rest, ok := strings.CutPrefix(url, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(url, "http://"); ok {
		return "ws://" + rest
	}
	return ""
}

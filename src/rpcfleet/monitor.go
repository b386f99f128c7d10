package rpcfleet

import (
	"time"

	"github.com/warp-contracts/tempo-watchtower/src/utils/config"
	"github.com/warp-contracts/tempo-watchtower/src/utils/task"
)

// Monitor periodically pings every endpoint of every chain, feeding
// the per-endpoint health scores independently of broadcast traffic.
// Without it a quiet chain would never notice an endpoint recovering.
type Monitor struct {
	*task.Task

	fleet *Fleet
}

func NewMonitor(cfg *config.Config, fleet *Fleet) (self *Monitor) {
	self = new(Monitor)
	self.fleet = fleet

	self.Task = task.NewTask(cfg, "rpcfleet-monitor").
		WithPeriodicSubtaskFunc(30*time.Second, self.probe)

	return
}

func (self *Monitor) probe() error {
	for _, chainID := range self.fleet.ChainIDs() {
		chain := self.fleet.Chain(chainID)
		for _, ep := range chain.Endpoints {
			err := ep.Ping(self.Ctx)
			if err != nil {
				self.Log.WithField("chainId", chainID).WithField("url", ep.URL).
					WithError(err).Debug("Endpoint ping failed")
			}
		}
	}
	return nil
}

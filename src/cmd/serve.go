package cmd

import (
	"github.com/warp-contracts/tempo-watchtower/src/accelerator"
	"github.com/warp-contracts/tempo-watchtower/src/api"
	"github.com/warp-contracts/tempo-watchtower/src/ingest"
	"github.com/warp-contracts/tempo-watchtower/src/rpcfleet"
	"github.com/warp-contracts/tempo-watchtower/src/scheduler"
	"github.com/warp-contracts/tempo-watchtower/src/sig"
	"github.com/warp-contracts/tempo-watchtower/src/store"
	"github.com/warp-contracts/tempo-watchtower/src/utils/task"
	"github.com/warp-contracts/tempo-watchtower/src/watcher"

	conn "github.com/warp-contracts/tempo-watchtower/src/utils/model"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transaction relay: API, scheduler and watcher",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		db, err := conn.NewConnection(ctx, conf)
		if err != nil {
			return
		}
		st := store.New(db)

		opts, err := redis.ParseURL(conf.Accelerator.URL)
		if err != nil {
			return
		}
		opts.DialTimeout = conf.Accelerator.DialTimeout
		opts.ReadTimeout = conf.Accelerator.ReadTimeout
		opts.WriteTimeout = conf.Accelerator.WriteTimeout
		opts.PoolSize = conf.Accelerator.PoolSize
		rdb := redis.NewClient(opts)

		accel := accelerator.New(rdb)
		writeBehind := accelerator.NewWriteBehind(conf, accel)

		fleet, err := rpcfleet.New(ctx, conf)
		if err != nil {
			return
		}
		monitor := rpcfleet.NewMonitor(conf, fleet)

		watch := watcher.New(conf, st, writeBehind, fleet)
		sched := scheduler.New(conf, st, accel, writeBehind, fleet, watch)

		ing, err := ingest.New(conf, st, writeBehind, watch, sig.New(nil))
		if err != nil {
			return
		}

		server := api.NewServer(conf, ing, st, db, rdb)

		// Construction order above is dependency order; shutdown is
		// the whole tree at once, with producers draining into the
		// write-behind queue's best-effort flush.
		main := task.NewTask(conf, "main").
			WithSubtask(writeBehind.Task()).
			WithSubtask(monitor.Task).
			WithSubtask(watch.Task).
			WithSubtask(sched.Task).
			WithSubtask(server.Task)

		err = main.Start()
		if err != nil {
			return
		}

		<-ctx.Done()
		main.StopWait()
		return nil
	},
}

package cmd

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/warp-contracts/tempo-watchtower/src/model/migrations"
	"github.com/warp-contracts/tempo-watchtower/src/utils/logger"

	migrate "github.com/rubenv/sql-migrate"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the transaction store",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		// One-shot command: release the root context so PostRun
		// doesn't wait for a signal.
		defer cancel()

		log := logger.NewSublogger("migrate")

		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			conf.Database.Host, conf.Database.Port, conf.Database.User,
			conf.Database.Password, conf.Database.Name, conf.Database.SslMode)

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		defer db.Close()

		source := &migrate.HttpFileSystemMigrationSource{
			FileSystem: http.FS(migrations.FS),
		}

		n, err := migrate.Exec(db, "postgres", source, migrate.Up)
		if err != nil {
			return err
		}

		log.WithField("num", n).Info("Applied migrations")
		return nil
	},
}

package cmd

import (
	"context"

	"wesense/internal/clickhouse"
	"wesense/internal/logging"
	"wesense/internal/migrate"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var migrateOpts struct {
	sourceHost     string
	sourcePort     int
	sourceUser     string
	sourcePassword string
	sourceDB       string
	destDB         string
	tables         []string
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy readings from another ClickHouse instance",
	Long: `One-time migration: copy tables from a source ClickHouse database into
the local one, renaming the database on the way. The copy runs
server-side via remote(), so the source must be reachable from the
destination server. Row counts are compared per table and mismatches
reported.`,
	Run: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringVar(&migrateOpts.sourceHost, "source-host", "", "Source ClickHouse host (as reachable from the destination)")
	migrateCmd.Flags().IntVar(&migrateOpts.sourcePort, "source-port", 9000, "Source ClickHouse native protocol port")
	migrateCmd.Flags().StringVar(&migrateOpts.sourceUser, "source-user", "default", "Source ClickHouse user")
	migrateCmd.Flags().StringVar(&migrateOpts.sourcePassword, "source-password", "", "Source ClickHouse password")
	migrateCmd.Flags().StringVar(&migrateOpts.sourceDB, "source-db", "", "Source database to copy")
	migrateCmd.Flags().StringVar(&migrateOpts.destDB, "dest-db", "wesense", "Destination database")
	migrateCmd.Flags().StringSliceVar(&migrateOpts.tables, "tables", nil, "Tables to copy (default: all)")
	migrateCmd.MarkFlagRequired("source-host")
	migrateCmd.MarkFlagRequired("source-db")
}

func runMigrate(cmd *cobra.Command, args []string) {
	run := uuid.NewString()[:8]
	log := logging.Component("migrate").With().Str("run", run).Logger()
	ctx := context.Background()

	srcCfg := clickhouse.Config{
		Host:     migrateOpts.sourceHost,
		Port:     migrateOpts.sourcePort,
		Database: migrateOpts.sourceDB,
		Username: migrateOpts.sourceUser,
		Password: migrateOpts.sourcePassword,
	}
	src, err := clickhouse.Open(ctx, srcCfg)
	if err != nil {
		log.Fatal().Err(err).Str("addr", srcCfg.Addr()).Msg("connecting to source ClickHouse")
	}
	defer src.Close()

	dstCfg := chConfig()
	dstCfg.Database = "default" // dest database may not exist yet
	dst, err := clickhouse.Open(ctx, dstCfg)
	if err != nil {
		log.Fatal().Err(err).Str("addr", dstCfg.Addr()).Msg("connecting to destination ClickHouse")
	}
	defer dst.Close()

	m := migrate.New(src, dst, migrate.Options{
		SourceAddr:     srcCfg.Addr(),
		SourceUser:     migrateOpts.sourceUser,
		SourcePassword: migrateOpts.sourcePassword,
		SourceDB:       migrateOpts.sourceDB,
		DestDB:         migrateOpts.destDB,
		Tables:         migrateOpts.tables,
	}, log)

	results, err := m.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	failed := 0
	for _, r := range results {
		if !r.Match() {
			failed++
		}
	}
	if failed > 0 {
		log.Fatal().Int("tables", len(results)).Int("failed", failed).
			Msg("migration finished with failures")
	}
	log.Info().Int("tables", len(results)).Msg("migration complete")
}

package cmd

import (
	"context"

	"wesense/internal/clickhouse"
	"wesense/internal/logging"
	"wesense/internal/schema"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Apply the ClickHouse schema",
	Long: `Create the ClickHouse database and tables the bridge writes into.
All DDL is idempotent (IF NOT EXISTS); re-running against a populated
database is safe.`,
	Run: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func chConfig() clickhouse.Config {
	return clickhouse.Config{
		Host:     viper.GetString("clickhouse.host"),
		Port:     viper.GetInt("clickhouse.port"),
		Database: viper.GetString("clickhouse.database"),
		Username: viper.GetString("clickhouse.user"),
		Password: viper.GetString("clickhouse.password"),
	}
}

func runSchema(cmd *cobra.Command, args []string) {
	log := logging.Component("schema")
	ctx := context.Background()

	cfg := chConfig()
	// Connect to the default database; the target may not exist yet.
	database := cfg.Database
	cfg.Database = "default"

	conn, err := clickhouse.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Addr()).Msg("connecting to ClickHouse")
	}
	defer conn.Close()

	if err := schema.Apply(ctx, conn, database, log); err != nil {
		log.Fatal().Err(err).Msg("applying schema")
	}
	log.Info().Str("database", database).Msg("schema applied")
}

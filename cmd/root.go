package cmd

import (
	"fmt"
	"os"
	"strings"

	"wesense/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wesense",
	Short: "Sensor platform tooling: broker bootstrap, ingest bridge, deployment",
	Long: `WeSense is the operations binary for a self-hosted sensor platform:
- Broker entrypoint wrapper that seeds MQTT credentials and drops privileges
- MQTT to ClickHouse ingest bridge with signature verification
- ClickHouse schema management and one-time data migration
- Deployment generator for the fixed container stack`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(viper.GetString("log.level"), viper.GetString("log.format"))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./wesense.yaml)")

	rootCmd.PersistentFlags().String("data-dir", "./data", "Base data directory")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console or json)")

	// Registry database flags (PostgreSQL - if not set, SQLite is used)
	rootCmd.PersistentFlags().String("db-host", "", "PostgreSQL host (if empty, uses SQLite)")
	rootCmd.PersistentFlags().Int("db-port", 5432, "PostgreSQL port")
	rootCmd.PersistentFlags().String("db-user", "wesense", "PostgreSQL user")
	rootCmd.PersistentFlags().String("db-password", "", "PostgreSQL password")
	rootCmd.PersistentFlags().String("db-name", "wesense", "PostgreSQL database name")
	rootCmd.PersistentFlags().String("db-sslmode", "disable", "PostgreSQL SSL mode")

	// ClickHouse flags
	rootCmd.PersistentFlags().String("clickhouse-host", "localhost", "ClickHouse host")
	rootCmd.PersistentFlags().Int("clickhouse-port", 9000, "ClickHouse native protocol port")
	rootCmd.PersistentFlags().String("clickhouse-database", "wesense", "ClickHouse database")
	rootCmd.PersistentFlags().String("clickhouse-user", "default", "ClickHouse user")
	rootCmd.PersistentFlags().String("clickhouse-password", "", "ClickHouse password")

	// Bind flags to viper
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("db.host", rootCmd.PersistentFlags().Lookup("db-host"))
	viper.BindPFlag("db.port", rootCmd.PersistentFlags().Lookup("db-port"))
	viper.BindPFlag("db.user", rootCmd.PersistentFlags().Lookup("db-user"))
	viper.BindPFlag("db.password", rootCmd.PersistentFlags().Lookup("db-password"))
	viper.BindPFlag("db.name", rootCmd.PersistentFlags().Lookup("db-name"))
	viper.BindPFlag("db.sslmode", rootCmd.PersistentFlags().Lookup("db-sslmode"))
	viper.BindPFlag("clickhouse.host", rootCmd.PersistentFlags().Lookup("clickhouse-host"))
	viper.BindPFlag("clickhouse.port", rootCmd.PersistentFlags().Lookup("clickhouse-port"))
	viper.BindPFlag("clickhouse.database", rootCmd.PersistentFlags().Lookup("clickhouse-database"))
	viper.BindPFlag("clickhouse.user", rootCmd.PersistentFlags().Lookup("clickhouse-user"))
	viper.BindPFlag("clickhouse.password", rootCmd.PersistentFlags().Lookup("clickhouse-password"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/wesense/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("wesense")
	}

	viper.SetEnvPrefix("WESENSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Container-facing names fixed by the deployment contract, bound
	// without the WESENSE prefix.
	viper.BindEnv("mqtt.user", "MQTT_USER")
	viper.BindEnv("mqtt.password", "MQTT_PASSWORD")
	viper.BindEnv("puid", "PUID")
	viper.BindEnv("pgid", "PGID")
	viper.BindEnv("trust_file", "TRUST_FILE")
	viper.BindEnv("stats_interval", "STATS_INTERVAL")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

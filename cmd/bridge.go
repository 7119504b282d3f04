package cmd

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"wesense/internal/bridge"
	"wesense/internal/clickhouse"
	"wesense/internal/logging"
	"wesense/internal/schema"
	"wesense/internal/trust"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run the MQTT to ClickHouse ingest bridge",
	Long: `Subscribe to the live readings topic, verify reading signatures
against the trust list, drop duplicates, and batch rows into ClickHouse.
Runs until interrupted.`,
	Run: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	bridgeCmd.Flags().String("trust-file", "", "Ingester trust list path (default <data-dir>/trust_list.json)")
	bridgeCmd.Flags().String("stats-interval", "60s", "Interval between stats log lines (duration or bare seconds)")
	viper.BindPFlag("mqtt.broker", bridgeCmd.Flags().Lookup("mqtt-broker"))
	viper.BindPFlag("trust_file", bridgeCmd.Flags().Lookup("trust-file"))
	viper.BindPFlag("stats_interval", bridgeCmd.Flags().Lookup("stats-interval"))
}

func runBridge(cmd *cobra.Command, args []string) {
	log := logging.Component("bridge")

	trustFile := viper.GetString("trust_file")
	if trustFile == "" {
		trustFile = filepath.Join(viper.GetString("data_dir"), "trust_list.json")
	}
	store, err := trust.Load(trustFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", trustFile).Msg("loading trust list")
	}
	log.Info().Int("ingesters", store.Len()).Msg("trust list loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := clickhouse.Open(ctx, chConfig())
	if err != nil {
		log.Fatal().Err(err).Str("addr", chConfig().Addr()).Msg("connecting to ClickHouse")
	}
	defer conn.Close()

	writer := clickhouse.NewWriter(
		clickhouse.NewInserter(conn), "readings", schema.ReadingsColumns,
		clickhouse.WithLogger(logging.Component("writer")),
	)
	writer.Start()

	b := bridge.New(bridge.Config{
		BrokerURL:     viper.GetString("mqtt.broker"),
		Username:      viper.GetString("mqtt.user"),
		Password:      viper.GetString("mqtt.password"),
		StatsInterval: bridge.ParseInterval(viper.GetString("stats_interval")),
	}, store, writer, log)

	if err := b.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("bridge failed")
	}

	// Drain what is still buffered before exiting.
	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("final flush failed")
	}
	log.Info().Msg("bridge stopped")
}

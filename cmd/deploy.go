package cmd

import (
	"context"
	"fmt"

	"wesense/internal/deploy"
	"wesense/internal/logging"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	deployCreate   bool
	deployManifest string
)

var deployCmd = &cobra.Command{
	Use:   "deploy [service...]",
	Short: "Render or create the container stack",
	Long: `Print the docker run invocations for the WeSense stack (clickhouse,
emqx, bridge, grafana), or create the containers directly with --create.
Naming specific services limits the output to those.`,
	Run: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().BoolVar(&deployCreate, "create", false, "Create and start the containers via the Docker API")
	deployCmd.Flags().StringVar(&deployManifest, "manifest", "wesense-deploy.yaml", "Deploy manifest with per-service overrides")
}

func runDeploy(cmd *cobra.Command, args []string) {
	log := logging.Component("deploy")

	cfg := deploy.Config{
		DataDir:      viper.GetString("data_dir"),
		MQTTUser:     viper.GetString("mqtt.user"),
		MQTTPassword: viper.GetString("mqtt.password"),
		PUID:         viper.GetInt("puid"),
		PGID:         viper.GetInt("pgid"),
		ClickHouseDB: viper.GetString("clickhouse.database"),
	}
	if cfg.PUID == 0 {
		cfg.PUID = 1000
	}
	if cfg.PGID == 0 {
		cfg.PGID = 1000
	}

	manifest, err := deploy.LoadManifest(deployManifest)
	if err != nil {
		log.Fatal().Err(err).Msg("loading deploy manifest")
	}
	services := deploy.Select(manifest.Apply(deploy.Catalog(cfg)), args)
	if len(services) == 0 {
		log.Fatal().Strs("requested", args).Msg("no matching services")
	}

	if !deployCreate {
		for _, s := range services {
			fmt.Println(deploy.RunCommand(s))
		}
		return
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to Docker")
	}
	defer cli.Close()

	ctx := context.Background()
	for _, s := range services {
		id, err := deploy.Create(ctx, cli, s)
		if err != nil {
			log.Fatal().Err(err).Str("service", s.Name).Msg("creating container")
		}
		log.Info().Str("service", s.Name).Str("container", s.ContainerName()).
			Str("id", id[:12]).Str("ports", deploy.PortSummary(s)).
			Msg("container started")
	}
}

package cmd

import (
	"errors"
	"os"
	"strings"

	"wesense/internal/bootstrap"
	"wesense/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var entrypointCmd = &cobra.Command{
	Use:   "entrypoint [broker args...]",
	Short: "Run as the broker container's entrypoint",
	Long: `Seed the broker's credential bootstrap file, fix ownership of the
broker tree, drop privileges, and exec the real broker entrypoint.
Replaces this process on success; any remaining args are forwarded to
the broker.`,
	Run: runEntrypoint,
}

var watchFile string

var watchCmd = &cobra.Command{
	Use:    "watch",
	Short:  "Poll broker health and remove the bootstrap file",
	Hidden: true,
	Run:    runWatch,
}

func init() {
	rootCmd.AddCommand(entrypointCmd)
	entrypointCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchFile, "file", bootstrap.BootstrapFile, "bootstrap file to remove")
}

func runEntrypoint(cmd *cobra.Command, args []string) {
	log := logging.Component("entrypoint")

	id := bootstrap.DefaultIdentity
	if uid := viper.GetInt("puid"); uid > 0 {
		id.UID = uid
	}
	if gid := viper.GetInt("pgid"); gid > 0 {
		id.GID = gid
	}

	// Best effort: a partially chowned tree still usually boots, and the
	// broker's own error is more useful than ours.
	if err := id.ChownTree(bootstrap.InstallDir); err != nil {
		log.Warn().Err(err).Str("dir", bootstrap.InstallDir).
			Msg("could not fix ownership of the broker tree")
	}

	env := os.Environ()

	cred := bootstrap.Credential{
		Username: viper.GetString("mqtt.user"),
		Password: viper.GetString("mqtt.password"),
	}
	if cred.Configured() {
		record, err := bootstrap.NewRecord(cred)
		if err != nil {
			log.Fatal().Err(err).Msg("hashing bootstrap credential")
		}
		if err := bootstrap.WriteFile(bootstrap.BootstrapFile, []bootstrap.Record{record}, id); err != nil {
			log.Fatal().Err(err).Msg("writing bootstrap file")
		}
		log.Info().Str("user", cred.Username).Str("file", bootstrap.BootstrapFile).
			Msg("bootstrap credential staged")

		env = append(env, bootstrap.AuthEnv(bootstrap.BootstrapFile)...)

		if err := bootstrap.SpawnWatcher(bootstrap.BootstrapFile); err != nil {
			log.Fatal().Err(err).Msg("spawning bootstrap watcher")
		}
	} else {
		log.Warn().Msg("MQTT_USER/MQTT_PASSWORD not both set, broker starts with anonymous access")
	}

	// The broker writes runtime state (the Erlang cookie) under HOME; the
	// plaintext password must not reach the broker's environment.
	env = scrubEnv(env, "MQTT_PASSWORD", "HOME")
	env = append(env, "HOME="+bootstrap.InstallDir)

	if err := id.Drop(); err != nil {
		log.Fatal().Err(err).Int("uid", id.UID).Int("gid", id.GID).
			Msg("dropping privileges")
	}

	log.Info().Str("entrypoint", bootstrap.BrokerEntrypoint).Strs("args", args).
		Msg("handing off to broker")
	if err := bootstrap.Handoff(bootstrap.BrokerEntrypoint, args, env); err != nil {
		log.Fatal().Err(err).Msg("exec into broker entrypoint failed")
	}
}

// scrubEnv removes the named variables from an environment list.
func scrubEnv(env []string, names ...string) []string {
	out := env[:0]
	for _, kv := range env {
		drop := false
		for _, name := range names {
			if strings.HasPrefix(kv, name+"=") {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, kv)
		}
	}
	return out
}

func runWatch(cmd *cobra.Command, args []string) {
	log := logging.Component("watcher")

	w := &bootstrap.Watcher{File: watchFile, Log: log}
	if err := w.Run(); err != nil && !errors.Is(err, bootstrap.ErrTimeout) {
		log.Fatal().Err(err).Msg("bootstrap watcher failed")
	}
	// A timeout is already logged as a warning; the file holds only a
	// salted hash, so the watcher exits cleanly.
}

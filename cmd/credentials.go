package cmd

import (
	"fmt"
	"os"

	"wesense/internal/bootstrap"
	"wesense/internal/logging"
	"wesense/internal/models"
	"wesense/internal/registry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage broker credentials in the registry",
}

var credAddOpts struct {
	password  string
	superuser bool
}

var credAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a credential",
	Args:  cobra.ExactArgs(1),
	Run:   runCredAdd,
}

var credListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials",
	Run:   runCredList,
}

var credRemoveCmd = &cobra.Command{
	Use:   "remove <username>",
	Short: "Remove a credential",
	Args:  cobra.ExactArgs(1),
	Run:   runCredRemove,
}

var credExportFile string

var credExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export enabled credentials as a broker bootstrap file",
	Long: `Write every enabled credential to a bootstrap import file in the
broker's built-in-database format. The stored salted hashes are exported
as-is; no plaintext is involved.`,
	Run: runCredExport,
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credAddCmd, credListCmd, credRemoveCmd, credExportCmd)

	credAddCmd.Flags().StringVar(&credAddOpts.password, "password", "", "Password (required)")
	credAddCmd.Flags().BoolVar(&credAddOpts.superuser, "superuser", false, "Grant superuser access")
	credAddCmd.MarkFlagRequired("password")

	credExportCmd.Flags().StringVar(&credExportFile, "file", "bootstrap_users.csv", "Output file")
}

// openRegistry picks the backend: PostgreSQL when db.host is set, the
// SQLite file under the data dir otherwise.
func openRegistry() (registry.Store, error) {
	if host := viper.GetString("db.host"); host != "" {
		return registry.NewPostgresStore(&registry.Config{
			Host:     host,
			Port:     viper.GetInt("db.port"),
			User:     viper.GetString("db.user"),
			Password: viper.GetString("db.password"),
			DBName:   viper.GetString("db.name"),
			SSLMode:  viper.GetString("db.sslmode"),
		})
	}
	dataDir := viper.GetString("data_dir")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return registry.NewSQLiteStore(dataDir)
}

func runCredAdd(cmd *cobra.Command, args []string) {
	log := logging.Component("credentials")

	store, err := openRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("opening registry")
	}
	defer store.Close()

	cred := &models.Credential{
		Username:  args[0],
		Superuser: credAddOpts.superuser,
		Enabled:   true,
	}
	if err := cred.SetPassword(credAddOpts.password); err != nil {
		log.Fatal().Err(err).Msg("hashing password")
	}
	if err := store.CreateCredential(cred); err != nil {
		log.Fatal().Err(err).Str("username", cred.Username).Msg("creating credential")
	}
	log.Info().Str("username", cred.Username).Bool("superuser", cred.Superuser).
		Msg("credential added")
}

func runCredList(cmd *cobra.Command, args []string) {
	log := logging.Component("credentials")

	store, err := openRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("opening registry")
	}
	defer store.Close()

	creds, err := store.ListCredentials()
	if err != nil {
		log.Fatal().Err(err).Msg("listing credentials")
	}

	fmt.Printf("%-24s %-10s %-8s %s\n", "USERNAME", "SUPERUSER", "ENABLED", "LAST EXPORTED")
	for _, c := range creds {
		exported := "never"
		if c.LastExported != nil {
			exported = c.LastExported.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-24s %-10t %-8t %s\n", c.Username, c.Superuser, c.Enabled, exported)
	}
}

func runCredRemove(cmd *cobra.Command, args []string) {
	log := logging.Component("credentials")

	store, err := openRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("opening registry")
	}
	defer store.Close()

	if err := store.DeleteCredential(args[0]); err != nil {
		log.Fatal().Err(err).Str("username", args[0]).Msg("removing credential")
	}
	log.Info().Str("username", args[0]).Msg("credential removed")
}

func runCredExport(cmd *cobra.Command, args []string) {
	log := logging.Component("credentials")

	store, err := openRegistry()
	if err != nil {
		log.Fatal().Err(err).Msg("opening registry")
	}
	defer store.Close()

	creds, err := store.ListCredentials()
	if err != nil {
		log.Fatal().Err(err).Msg("listing credentials")
	}

	var records []bootstrap.Record
	var exported []string
	for _, c := range creds {
		if !c.Enabled {
			continue
		}
		records = append(records, c.Record())
		exported = append(exported, c.Username)
	}
	if len(records) == 0 {
		log.Fatal().Msg("no enabled credentials to export")
	}

	id := bootstrap.DefaultIdentity
	if uid := viper.GetInt("puid"); uid > 0 {
		id.UID = uid
	}
	if gid := viper.GetInt("pgid"); gid > 0 {
		id.GID = gid
	}
	if err := bootstrap.WriteFile(credExportFile, records, id); err != nil {
		log.Fatal().Err(err).Str("file", credExportFile).Msg("writing bootstrap file")
	}
	if err := store.MarkExported(exported); err != nil {
		log.Fatal().Err(err).Msg("recording export")
	}
	log.Info().Int("credentials", len(records)).Str("file", credExportFile).
		Msg("bootstrap file exported")
}

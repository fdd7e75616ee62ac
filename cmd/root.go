package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-acme-ca/pkg/app"
)

var (
	App       *app.App
	DebugFlag bool
	ConfigDir,
	PlatformDir,
	LogDir string
)

var rootCmd = &cobra.Command{
	Use:   app.Name,
	Short: "Private ACME certificate authority",
	Long: `An RFC 8555 compliant certificate authority that issues
certificates to ACME clients after proving control over their
identifiers with http-01, dns-01 or tls-alpn-01 challenges.`,
	Run: func(cmd *cobra.Command, args []string) {
	},
	TraverseChildren: true,
}

func init() {

	cobra.OnInitialize(func() {
		App = app.NewApp()
		if err := App.Init(&app.AppInitParams{
			Debug:       DebugFlag,
			LogDir:      LogDir,
			ConfigDir:   ConfigDir,
			PlatformDir: PlatformDir,
		}); err != nil {
			log.Fatal(err)
		}
	})

	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	platformDir := fmt.Sprintf("%s/%s", wd, "acmeca-data")
	rootCmd.PersistentFlags().BoolVarP(&DebugFlag, "debug", "", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVarP(&PlatformDir, "platform-dir", "", platformDir, "Platform home / data directory")
	rootCmd.PersistentFlags().StringVarP(&ConfigDir, "config-dir", "", fmt.Sprintf("/etc/%s", app.Name), "Directory where configuration files are stored")
	rootCmd.PersistentFlags().StringVarP(&LogDir, "log-dir", "", "acmeca-data/log", "Logging directory")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return err
	}
	return nil
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(webserverCmd)
}

var webserverCmd = &cobra.Command{
	Use:   "webserver",
	Short: "Run the ACME certificate authority web service",
	Long:  `Starts the TLS web service and serves the ACME directory`,
	Run: func(cmd *cobra.Command, args []string) {

		sigChan := make(chan os.Signal, 1)

		go func() {
			if err := App.WebServer.Run(); err != nil {
				App.Logger.FatalError(err)
			}
		}()

		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		<-sigChan
		close(sigChan)

		App.Logger.Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		App.Logger.MaybeError(App.WebServer.Shutdown(ctx))
		App.Shutdown()
	},
}

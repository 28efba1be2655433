package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fieldstone/bugtrack/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bug tracker API server",
	Long: `Start the HTTP API server backed by the local SQLite database.
By default it listens on port 5000. Use --port to change it.

With --dev, error responses include the underlying error message.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		port := viper.GetInt("port")
		devMode := viper.GetBool("dev_mode")

		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		srv := api.NewServer(s,
			api.WithDevMode(devMode),
			api.WithLogger(logger),
		)

		addr := fmt.Sprintf(":%d", port)
		ui.Info("Serving API at http://localhost%s", addr)
		if devMode {
			ui.Warning("Dev mode enabled: error responses include internal details")
		}
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 5000, "port to listen on")
	serveCmd.Flags().Bool("dev", false, "enable dev mode error responses")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("dev_mode", serveCmd.Flags().Lookup("dev"))
}

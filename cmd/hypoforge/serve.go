package main

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"hypoforge/internal"
	"hypoforge/internal/api"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded runs over a read-only HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), cmd, root)
			if err != nil {
				return err
			}
			defer e.Close()

			if cmd.Flags().Changed("port") {
				e.cfg.Server.Port = port
			}
			gin.SetMode(e.cfg.Server.GinMode)

			logger := internal.NewJSONLogger(internal.ParseLogLevel(e.cfg.LogLevel)).With("component", "api")
			defer logger.Sync()

			srv := api.NewServer(e.store, e.index, logger)
			return srv.Run(":" + e.cfg.Server.Port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (default from config, 8080)")
	return cmd
}

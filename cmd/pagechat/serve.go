package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/pagechat/config"
	srv "github.com/mohammad-safakhou/pagechat/internal/server"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
				cfg.Server = cfg.Server.Normalize()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := srv.Build(ctx, cfg)
			if err != nil {
				return err
			}
			return srv.New(cfg, deps).Run(ctx, "")
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config or .)")

	return serve
}

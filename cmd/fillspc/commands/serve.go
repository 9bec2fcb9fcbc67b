package commands

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fillspc/internal/server"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/plotpage"
	"github.com/Sumatoshi-tech/fillspc/pkg/version"
)

// NewServeCommand creates the serve subcommand.
func NewServeCommand() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve <run-dir>",
		Short: "Serve the dashboard and JSON API of an exported run",
		Long: `Serve an exported run over HTTP until interrupted:

  /              HTML dashboard (filter and theme query parameters)
  /api/results   scored observations
  /api/limits    control limits
  /api/kpis      KPIs of the filtered observations
  /api/reload    POST to re-read the run directory
  /healthz       liveness
  /readyz        readiness
  /metrics       Prometheus scrape endpoint`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, observability.ModeServe)
			if err != nil {
				return err
			}
			defer e.close()

			if cmd.Flags().Changed("host") {
				e.cfg.Server.Host = host
			}

			if cmd.Flags().Changed("port") {
				e.cfg.Server.Port = port

				err = e.cfg.Validate()
				if err != nil {
					return err
				}
			}

			red, err := observability.NewREDMetrics(e.providers.Meter)
			if err != nil {
				return err
			}

			srv, err := server.Load(args[0], server.Options{
				Logger:         e.logger,
				Tracer:         e.providers.Tracer,
				RED:            red,
				MetricsHandler: e.providers.MetricsHandler,
				Version:        version.Version,
				Theme:          plotpage.ParseTheme(e.cfg.Output.Theme),
				ReadTimeout:    e.cfg.Server.ReadTimeout,
				WriteTimeout:   e.cfg.Server.WriteTimeout,
				IdleTimeout:    e.cfg.Server.IdleTimeout,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := net.JoinHostPort(e.cfg.Server.Host, strconv.Itoa(e.cfg.Server.Port))

			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")

	return cmd
}

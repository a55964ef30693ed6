package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/pvrsettings/internal/config/registry"
	"github.com/dshills/pvrsettings/internal/pvr/settings"
)

func newGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print the cached value of a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			value, err := a.typedValue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List PVR settings with their values and visibility",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			var rows [][]string
			for _, id := range settings.IDs() {
				s := a.registry.Get(id)
				value, err := a.typedValue(id)
				if err != nil {
					return err
				}

				options := "-"
				if s.OptionsFiller != "" {
					list, _, err := a.registry.Options(id, nil)
					if err == nil {
						options = strconv.Itoa(len(list))
					}
				}

				rows = append(rows, []string{
					id,
					s.Type.String(),
					quoteEmpty(value),
					strconv.FormatBool(s.IsDefault()),
					strconv.FormatBool(a.registry.IsVisible(id, nil)),
					options,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Setting", "Type", "Value", "Default", "Visible", "Options"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newMarginsCommand(ctx *commandContext) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "margins",
		Short: "Print the recording margin choices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			options, current, err := a.registry.Options(id, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, option := range options {
				marker := " "
				if option.Value == current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %4d  %s\n", marker, option.Value, option.Label)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "setting", settings.MarginStart, "Margin setting to show choices for")
	return cmd
}

func newClientsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List configured PVR clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			var rows [][]string
			for _, c := range a.clients.List() {
				rows = append(rows, []string{
					c.ID,
					a.strings.Title(c.Name),
					strconv.FormatBool(c.Enabled),
					strconv.Itoa(c.Priority),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Enabled", "Priority"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "\n%d of %d enabled\n", a.clients.EnabledClientAmount(), a.clients.Len())
			return nil
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload settings on file changes and serve metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := &changeLogger{logger: a.logger.Named("watch"), settings: a.settings}
			a.registry.RegisterSettingsHandler(logger)
			a.registry.RegisterCallback(logger, settings.IDs())
			defer a.registry.UnregisterCallback(logger)
			defer a.registry.UnregisterSettingsHandler(logger)

			if err := a.config.Start(runCtx); err != nil {
				return err
			}
			a.logger.Info("watching settings", zap.String("path", a.config.Path()))

			if metricsAddr == "" {
				<-runCtx.Done()
				return nil
			}
			return serveMetrics(runCtx, a, metricsAddr, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9464", "Address to serve /metrics on (empty disables)")
	return cmd
}

func serveMetrics(ctx context.Context, a *app, addr string, out io.Writer) error {
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	fmt.Fprintf(out, "serving metrics on http://%s/metrics\n", ln.Addr())

	srv := &http.Server{Handler: newMetricsRouter(a.metrics), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newMetricsRouter serves reg on /metrics and a liveness check on /health.
func newMetricsRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

// changeLogger logs setting changes and reloads as the cache sees them.
type changeLogger struct {
	logger   *zap.Logger
	settings *settings.Settings
}

func (l *changeLogger) OnSettingsLoaded() {
	l.logger.Info("settings reloaded", zap.Int("cached", l.settings.Len()))
}

func (l *changeLogger) OnSettingChanged(setting *registry.Setting) {
	if setting == nil {
		return
	}
	l.logger.Info("setting changed",
		zap.String("setting", setting.ID),
		zap.Stringer("value", setting.Value()),
	)
}

func quoteEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return s
}

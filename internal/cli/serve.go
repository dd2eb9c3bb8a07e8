package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conduit/internal/api"
	"github.com/shaiso/Conduit/internal/connector"
	"github.com/shaiso/Conduit/internal/scheduler"
)

// NewServeCmd создаёт команду HTTP API сервера.
func NewServeCmd(serviceFn func() *connector.Service, loggerFn func() *slog.Logger) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFn()

			handler := api.NewHandler(api.Config{
				Service: serviceFn(),
				Logger:  logger,
			})

			mux := http.NewServeMux()
			handler.RegisterRoutes(mux)
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			mux.Handle("/metrics", promhttp.Handler())

			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				server.Shutdown(shutdownCtx)
			}()

			logger.Info("listening", "addr", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")

	return cmd
}

// NewScheduleCmd создаёт команду планировщика.
func NewScheduleCmd(serviceFn func() *connector.Service, loggerFn func() *slog.Logger) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run scripts on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFn()
			service := serviceFn()

			if file == "" {
				file = service.Home() + "/schedules.yaml"
			}

			sched := scheduler.New(scheduler.Config{
				Service: service,
				Logger:  logger,
			})
			if err := sched.Load(file); err != nil {
				return err
			}

			sched.Start()
			<-cmd.Context().Done()
			sched.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Schedule file (default: <home>/schedules.yaml)")

	return cmd
}

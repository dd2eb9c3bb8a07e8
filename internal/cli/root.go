package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conduit/internal/connector"
	"github.com/shaiso/Conduit/internal/events"
	"github.com/shaiso/Conduit/internal/telemetry"
)

// NewRootCmd создаёт корневую команду conduit.
func NewRootCmd() *cobra.Command {
	var (
		home     string
		jsonMode bool
		amqpURL  string
	)

	var (
		service *connector.Service
		logger  *slog.Logger
	)

	root := &cobra.Command{
		Use:   "conduit",
		Short: "Declarative workflow execution engine",
		Long: `Conduit выполняет декларативные workflow-скрипты: граф шагов
с зависимостями, шаблонными параметрами и подключаемыми стратегиями
(REST, SQL, файловая система, python-песочница, браузерные сессии).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = telemetry.SetupLogger()

			var publisher *events.Publisher
			if amqpURL != "" {
				conn, err := events.NewConnection(amqpURL, logger)
				if err != nil {
					logger.Warn("event broker not available, events disabled", "error", err)
				} else {
					if err := events.SetupTopology(cmd.Context(), conn); err != nil {
						logger.Warn("failed to setup event topology", "error", err)
					}
					publisher = events.NewPublisher(conn, logger)
				}
			}

			service = connector.New(connector.Config{
				Home:      home,
				Publisher: publisher,
				Logger:    logger,
			})
		},
	}

	root.PersistentFlags().StringVar(&home, "home", os.Getenv("CONDUIT_HOME"), "Home directory (connections, secrets, scripts)")
	root.PersistentFlags().BoolVar(&jsonMode, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&amqpURL, "amqp-url", os.Getenv("AMQP_URL"), "AMQP broker URL for lifecycle events (optional)")

	serviceFn := func() *connector.Service { return service }
	loggerFn := func() *slog.Logger { return logger }
	outputFn := func() *Output { return NewOutput(jsonMode) }

	root.AddCommand(
		NewRunCmd(serviceFn, outputFn),
		NewConnectionCmd(serviceFn, outputFn),
		NewStrategiesCmd(serviceFn, outputFn),
		NewServeCmd(serviceFn, loggerFn),
		NewScheduleCmd(serviceFn, loggerFn),
	)

	return root
}

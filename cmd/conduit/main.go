// Conduit — движок декларативных workflow-скриптов.
//
// Использование:
//
//	conduit [--home DIR] [--json] <command> [flags]
//
// Команды:
//
//	run        Выполнить workflow-скрипт
//	connection Проверка подключений
//	strategies Список стратегий
//	serve      HTTP API сервер
//	schedule   Запуск по cron-расписанию
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conduit/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := cli.NewRootCmd()
	rootCmd.Version = version
	rootCmd.SilenceErrors = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

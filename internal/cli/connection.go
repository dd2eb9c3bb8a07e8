package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conduit/internal/connector"
	"github.com/shaiso/Conduit/internal/strategy"
)

// NewConnectionCmd создаёт группу команд для подключений.
func NewConnectionCmd(serviceFn func() *connector.Service, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Manage connections",
	}

	cmd.AddCommand(
		newConnectionTestCmd(serviceFn, outputFn),
	)

	return cmd
}

func newConnectionTestCmd(serviceFn func() *connector.Service, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "test SOURCE",
		Short: "Test a connection (user:NAME or file:PATH)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			result := serviceFn().TestConnection(cmd.Context(), args[0])

			status, _ := result["status"].(string)
			message, _ := result["message"].(string)

			out.KV([][2]string{
				{"Source", args[0]},
				{"Status", status},
				{"Message", message},
			}, result)

			if status != "success" {
				return fmt.Errorf("connection test failed")
			}
			return nil
		},
	}
}

// NewStrategiesCmd создаёт команду листинга стратегий.
func NewStrategiesCmd(serviceFn func() *connector.Service, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List registered connector strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			registry := serviceFn().Registry()

			type info struct {
				Key          string   `json:"key"`
				Capabilities []string `json:"capabilities"`
			}

			var infos []info
			rows := make([][]string, 0, registry.Count())
			for _, key := range registry.Keys() {
				strat, err := registry.Lookup(key)
				if err != nil {
					continue
				}
				caps := strategy.Capabilities(strat)
				infos = append(infos, info{Key: key, Capabilities: caps})
				rows = append(rows, []string{key, strings.Join(caps, ", ")})
			}

			out.Print([]string{"KEY", "CAPABILITIES"}, rows, infos)
			return nil
		},
	}
}

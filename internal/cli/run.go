package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conduit/internal/connector"
)

// NewRunCmd создаёт команду выполнения скрипта.
func NewRunCmd(serviceFn func() *connector.Service, outputFn func() *Output) *cobra.Command {
	var (
		inputFile string
		inputs    []string
		vars      []string
	)

	cmd := &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Run a workflow script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			input, err := buildInput(inputFile, inputs)
			if err != nil {
				return err
			}
			sessionVars, err := parseKeyValues(vars)
			if err != nil {
				return err
			}

			outcome, err := serviceFn().RunScript(cmd.Context(), args[0], input, sessionVars)
			if err != nil {
				return err
			}

			if outcome.Failed() {
				out.Error(fmt.Sprintf("Run failed at step %q", outcome.FailedStep))
			} else {
				out.Success(fmt.Sprintf("Run %s succeeded", outcome.Run.ID))
			}

			out.JSON(outcome.Results)

			if outcome.Failed() {
				// Ненулевой код выхода, но результаты уже напечатаны.
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputFile, "input-file", "", "JSON file with script input")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Script input as KEY=VALUE (repeatable)")
	cmd.Flags().StringSliceVar(&vars, "var", nil, "Session variable as KEY=VALUE (repeatable)")

	return cmd
}

// buildInput собирает вход скрипта из файла и флагов.
// Значения флагов перекрывают файл.
func buildInput(inputFile string, inputs []string) (map[string]any, error) {
	input := make(map[string]any)

	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("invalid input file %s: %w", inputFile, err)
		}
	}

	flagInput, err := parseKeyValues(inputs)
	if err != nil {
		return nil, err
	}
	for k, v := range flagInput {
		input[k] = v
	}

	return input, nil
}

// parseKeyValues разбирает флаги формата KEY=VALUE.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid format %q, expected KEY=VALUE", kv)
		}
		out[key] = value
	}
	return out, nil
}

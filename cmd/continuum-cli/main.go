// Continuum CLI — инструмент командной строки для работы
// с workflow регистрации через HTTP API.
//
// Использование:
//
//	continuum [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	register  Старт регистрации клиента
//	verify    Подтверждение email по токену
//	run       Просмотр runs и журнала шагов
//	customer  Просмотр клиентов
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Continuum/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "continuum",
		Short:         "Continuum CLI — durable workflow tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRegisterCmd(clientFn, outputFn),
		cli.NewVerifyCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewCustomerCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

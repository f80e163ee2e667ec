package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/guseggert/webcli/internal/calc"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "calculator-cli",
		Usage:     "CLI Calculator",
		ArgsUsage: "[expression]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Interactive mode.",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	expr := strings.Join(ctx.Args().Slice(), " ")
	if ctx.Bool("interactive") || expr == "" {
		return calc.Interactive(os.Stdin, os.Stdout)
	}
	result, err := calc.Calculate(expr)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", expr, calc.Format(result))
	return nil
}

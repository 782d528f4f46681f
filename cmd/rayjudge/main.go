package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "rayjudge",
		Usage: "judge request intake and dispatch",
		Flags: configFlags(),
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "consume judge requests and run them on the worker pool",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return serve(ctx, cmd)
				},
			},
			{
				Name:  "publish",
				Usage: "publish judge requests to the broker",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "sample", Usage: "publish the built-in csharp job"},
					&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "TOML scenario or JSON job file"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return publish(ctx, cmd, out)
				},
			},
			{
				Name:  "health",
				Usage: "check broker, result stream and executor",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return health(ctx, cmd, out)
				},
			},
			{
				Name:  "config",
				Usage: "print the effective configuration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return printConfig(cmd, out)
				},
			},
		},
	}
}

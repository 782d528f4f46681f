package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/programme-lv/rayjudge/internal/behave"
	"github.com/programme-lv/rayjudge/internal/logging"
	"github.com/urfave/cli/v3"
)

func publish(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	cases, err := publishCases(cmd.Bool("sample"), cmd.StringSlice("file"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.Setup(cfg.LogLevel)
	if err != nil {
		return err
	}

	b := openBroker(cfg, logger)
	if err := b.Connect(ctx); err != nil {
		return err
	}
	defer b.Close()
	if err := b.DeclareTopology(ctx); err != nil {
		return err
	}

	ok := color.New(color.FgGreen)
	fail := color.New(color.FgRed)
	var failed int
	for _, c := range cases {
		body, err := json.Marshal(c.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", c.Name, err)
		}
		if err := b.Publish(ctx, body); err != nil {
			failed++
			fail.Fprintf(out, "FAIL  %s: %v\n", c.Name, err)
			continue
		}
		ok.Fprintf(out, "SENT  %s\n", c.Config)
	}
	if failed > 0 {
		return fmt.Errorf("failed to publish %d of %d jobs", failed, len(cases))
	}
	return nil
}

func publishCases(sample bool, files []string) ([]behave.Case, error) {
	var cases []behave.Case
	if sample {
		cases = append(cases, behave.Case{Name: "sample", Config: behave.Sample()})
	}
	for _, f := range files {
		loaded, err := behave.Load(f)
		if err != nil {
			return nil, err
		}
		cases = append(cases, loaded...)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("nothing to publish: pass --sample or --file")
	}
	return cases, nil
}

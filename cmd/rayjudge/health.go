package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/rayjudge/internal/environment"
	"github.com/programme-lv/rayjudge/internal/judge"
	"github.com/urfave/cli/v3"
)

type healthLevel int

const (
	healthOK healthLevel = iota
	healthWarn
	healthError
)

func (h healthLevel) String() string {
	switch h {
	case healthOK:
		return "OKAY"
	case healthWarn:
		return "WARN"
	}
	return "ERROR"
}

type feedbackRow struct {
	unit    string
	health  healthLevel
	message string
}

func health(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	feedback := []feedbackRow{
		checkBroker(ctx, cfg),
		checkResultStream(cfg),
		checkExecutor(cfg),
	}
	outputFeedback(out, feedback)
	return nil
}

func checkBroker(ctx context.Context, cfg environment.Config) feedbackRow {
	row := feedbackRow{unit: "Broker (" + cfg.Broker + ")"}
	b := openBroker(cfg, discardLogger())
	if err := b.Connect(ctx); err != nil {
		row.health = healthError
		row.message = err.Error()
		return row
	}
	defer b.Close()
	row.message = "connected"
	return row
}

func checkResultStream(cfg environment.Config) feedbackRow {
	row := feedbackRow{unit: "Result stream (nats)"}
	if cfg.NATS.URL == "" {
		row.health = healthWarn
		row.message = "disabled"
		return row
	}
	nc, err := nats.Connect(cfg.NATS.URL, nats.Timeout(5*time.Second))
	if err != nil {
		row.health = healthError
		row.message = err.Error()
		return row
	}
	nc.Close()
	row.message = "connected, subject " + cfg.NATS.Subject
	return row
}

func checkExecutor(cfg environment.Config) feedbackRow {
	row := feedbackRow{unit: "Executor"}
	if _, err := judge.New(cfg.Executor); err != nil {
		row.health = healthError
		row.message = err.Error()
		return row
	}
	if cfg.Executor == judge.KindDryRun {
		row.health = healthWarn
	}
	row.message = judge.Describe(cfg.Executor)
	return row
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func outputFeedback(out io.Writer, feedback []feedbackRow) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Unit", "Health", "Message"})
	for _, row := range feedback {
		t.AppendRow(table.Row{row.unit, row.health.String(), row.message})
	}
	t.SetStyle(table.StyleColoredDark)
	textColor := text.Transformer(func(s interface{}) string {
		switch s.(string) {
		case "OKAY":
			return text.FgHiGreen.Sprint(s)
		case "WARN":
			return text.FgHiYellow.Sprint(s)
		case "ERROR":
			return text.FgHiRed.Sprint(s)
		}
		return ""
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{
			Name:        "Health",
			Transformer: textColor,
			Align:       text.AlignCenter,
		},
	})
	t.Render()
}

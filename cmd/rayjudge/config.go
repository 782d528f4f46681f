package main

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/rayjudge/internal/environment"
	"github.com/urfave/cli/v3"
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file (default: $XDG_CONFIG_HOME/rayjudge/config.toml)"},
		&cli.StringFlag{Name: "broker", Usage: "broker kind: amqp or sqs"},
		&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "AMQP url"},
		&cli.StringFlag{Name: "queue", Aliases: []string{"q"}, Usage: "queue name"},
		&cli.StringFlag{Name: "exchange", Aliases: []string{"e"}, Usage: "exchange name"},
		&cli.StringFlag{Name: "routing-key", Aliases: []string{"r"}, Usage: "routing key"},
		&cli.StringFlag{Name: "queue-type", Usage: "AMQP queue type: classic or quorum (default: quorum when --max-deliveries is set)"},
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "number of judge workers"},
		&cli.IntFlag{Name: "prefetch", Usage: "unacknowledged AMQP deliveries per consumer (0 = unlimited)"},
		&cli.Int64Flag{Name: "max-deliveries", Usage: "dead-letter a failing job after this many deliveries (0 = never)"},
		&cli.StringFlag{Name: "executor", Usage: "judge executor: host or dryrun"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
	}
}

// loadConfig layers CLI flags over environment.Load and validates the result.
func loadConfig(cmd *cli.Command) (environment.Config, error) {
	cfg, err := environment.Load(cmd.String("config"))
	if err != nil {
		return cfg, err
	}

	strs := map[string]*string{
		"broker":      &cfg.Broker,
		"url":         &cfg.AMQP.URL,
		"queue":       &cfg.AMQP.Queue,
		"exchange":    &cfg.AMQP.Exchange,
		"routing-key": &cfg.AMQP.RoutingKey,
		"queue-type":  &cfg.AMQP.QueueType,
		"executor":    &cfg.Executor,
		"log-level":   &cfg.LogLevel,
	}
	for name, dst := range strs {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	if cmd.IsSet("workers") {
		cfg.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("prefetch") {
		cfg.AMQP.Prefetch = cmd.Int("prefetch")
	}
	if cmd.IsSet("max-deliveries") {
		cfg.MaxDeliveries = cmd.Int64("max-deliveries")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printConfig(cmd *cli.Command, out io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	b, err := toml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = out.Write(b)
	return err
}

package environment

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/rayjudge/internal/xdg"
)

const (
	BrokerAMQP = "amqp"
	BrokerSQS  = "sqs"
)

type Config struct {
	Broker        string     `toml:"broker"`
	Workers       int        `toml:"workers"`
	MaxDeliveries int64      `toml:"max_deliveries"`
	Executor      string     `toml:"executor"`
	LogLevel      string     `toml:"log_level"`
	AMQP          AMQPConfig `toml:"amqp"`
	SQS           SQSConfig  `toml:"sqs"`
	NATS          NATSConfig `toml:"nats"`
}

type AMQPConfig struct {
	URL                string `toml:"url"`
	Queue              string `toml:"queue"`
	Exchange           string `toml:"exchange"`
	RoutingKey         string `toml:"routing_key"`
	Prefetch           int    `toml:"prefetch"`
	DeadLetterExchange string `toml:"dead_letter_exchange"`
	DeadLetterQueue    string `toml:"dead_letter_queue"`

	// QueueType is classic or quorum. Empty picks quorum when MaxDeliveries
	// is set and the broker default otherwise.
	QueueType string `toml:"queue_type"`
}

type SQSConfig struct {
	QueueURL      string `toml:"queue_url"`
	Region        string `toml:"region"`
	DeadLetterURL string `toml:"dead_letter_url"`
	WaitSeconds   int32  `toml:"wait_seconds"`
}

// NATSConfig enables the result stream when URL is set.
type NATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

func Default() Config {
	return Config{
		Broker:   BrokerAMQP,
		Workers:  4,
		Executor: "host",
		LogLevel: "info",
		AMQP: AMQPConfig{
			URL:      "amqp://localhost:5672",
			Queue:    "rayjudge",
			Exchange: "rayjudge",
		},
		SQS: SQSConfig{
			Region:      "eu-central-1",
			WaitSeconds: 20,
		},
		NATS: NATSConfig{
			Subject: "rayjudge.results",
		},
	}
}

// Load layers the defaults, a TOML file, .env and RAYJUDGE_* variables.
// Without an explicit path the XDG config directories are searched for
// rayjudge/config.toml. CLI flags are applied by the caller on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		found, ok, err := xdg.New().FindConfig("rayjudge", "config.toml")
		if err != nil {
			return cfg, fmt.Errorf("failed to look up config file: %w", err)
		}
		if ok {
			path = found
		}
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env file: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return c.DecodeTOML(content)
}

// DecodeTOML overlays the values present in content. Unknown keys are an error.
func (c *Config) DecodeTOML(content []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays RAYJUDGE_* variables. RMQ_HOST, RMQ_PORT, RMQ_USER and
// RMQ_PASS build the AMQP url when RAYJUDGE_AMQP_URL is unset.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if host, ok := lookup("RMQ_HOST"); ok && host != "" {
		port := "5672"
		if p, ok := lookup("RMQ_PORT"); ok && p != "" {
			port = p
		}
		user, _ := lookup("RMQ_USER")
		pass, _ := lookup("RMQ_PASS")
		if user != "" {
			c.AMQP.URL = fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)
		} else {
			c.AMQP.URL = fmt.Sprintf("amqp://%s:%s/", host, port)
		}
	}

	strs := map[string]*string{
		"RAYJUDGE_BROKER":        &c.Broker,
		"RAYJUDGE_EXECUTOR":      &c.Executor,
		"RAYJUDGE_LOG_LEVEL":     &c.LogLevel,
		"RAYJUDGE_AMQP_URL":      &c.AMQP.URL,
		"RAYJUDGE_QUEUE":         &c.AMQP.Queue,
		"RAYJUDGE_EXCHANGE":      &c.AMQP.Exchange,
		"RAYJUDGE_ROUTING_KEY":   &c.AMQP.RoutingKey,
		"RAYJUDGE_QUEUE_TYPE":    &c.AMQP.QueueType,
		"RAYJUDGE_DLX":           &c.AMQP.DeadLetterExchange,
		"RAYJUDGE_DLQ":           &c.AMQP.DeadLetterQueue,
		"RAYJUDGE_SQS_QUEUE_URL": &c.SQS.QueueURL,
		"RAYJUDGE_SQS_REGION":    &c.SQS.Region,
		"RAYJUDGE_SQS_DLQ_URL":   &c.SQS.DeadLetterURL,
		"RAYJUDGE_NATS_URL":      &c.NATS.URL,
		"RAYJUDGE_NATS_SUBJECT":  &c.NATS.Subject,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := []struct {
		key  string
		bits int
		set  func(int64)
	}{
		{"RAYJUDGE_WORKERS", 0, func(n int64) { c.Workers = int(n) }},
		{"RAYJUDGE_PREFETCH", 0, func(n int64) { c.AMQP.Prefetch = int(n) }},
		{"RAYJUDGE_MAX_DELIVERIES", 64, func(n int64) { c.MaxDeliveries = n }},
		{"RAYJUDGE_SQS_WAIT_SECONDS", 32, func(n int64) { c.SQS.WaitSeconds = int32(n) }},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, e.bits)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", e.key, err)
		}
		e.set(n)
	}
	return nil
}

// Redacted returns a copy safe to print: broker url passwords are masked.
func (c Config) Redacted() Config {
	c.AMQP.URL = redactURL(c.AMQP.URL)
	c.NATS.URL = redactURL(c.NATS.URL)
	return c
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "REDACTED"
	}
	return u.Redacted()
}

// AMQPQueueType is the x-queue-type to declare the intake queue with. A
// redelivery ceiling needs quorum semantics to count attempts.
func (c Config) AMQPQueueType() string {
	if c.AMQP.QueueType == "" && c.MaxDeliveries > 0 {
		return "quorum"
	}
	return c.AMQP.QueueType
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxDeliveries < 0 {
		return fmt.Errorf("max_deliveries must not be negative, got %d", c.MaxDeliveries)
	}
	switch c.Broker {
	case BrokerAMQP:
		if c.AMQP.URL == "" {
			return fmt.Errorf("amqp url is empty")
		}
		if c.AMQP.Queue == "" {
			return fmt.Errorf("amqp queue name is empty")
		}
		if c.AMQP.Exchange == "" {
			return fmt.Errorf("amqp exchange name is empty")
		}
		if c.AMQP.Prefetch < 0 {
			return fmt.Errorf("amqp prefetch must not be negative, got %d", c.AMQP.Prefetch)
		}
		switch c.AMQP.QueueType {
		case "", "quorum":
		case "classic":
			if c.MaxDeliveries > 0 {
				return fmt.Errorf("max_deliveries needs a quorum queue, classic queues do not count redeliveries")
			}
		default:
			return fmt.Errorf("unknown amqp queue type %q", c.AMQP.QueueType)
		}
		if c.AMQP.DeadLetterQueue != "" && c.AMQP.DeadLetterExchange == "" {
			return fmt.Errorf("amqp dead-letter queue needs a dead-letter exchange")
		}
	case BrokerSQS:
		if c.SQS.QueueURL == "" {
			return fmt.Errorf("sqs queue url is empty")
		}
		if c.SQS.Region == "" {
			return fmt.Errorf("sqs region is empty")
		}
	default:
		return fmt.Errorf("unknown broker %q", c.Broker)
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("nats subject is empty")
	}
	return nil
}

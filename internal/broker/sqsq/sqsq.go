package sqsq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/programme-lv/rayjudge/internal/broker"
	"github.com/programme-lv/rayjudge/internal/pipeline"
	"github.com/puzpuzpuz/xsync/v3"
)

type Config struct {
	QueueURL string
	Region   string
	// DeadLetterURL receives the bodies of rejected messages. Without it a
	// rejected message is deleted.
	DeadLetterURL string
	WaitSeconds   int32
	MaxMessages   int32
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

type inflight struct {
	receipt string
	body    string
}

// Client consumes judge requests from an SQS queue. SQS has no delivery
// tags, so the client numbers received messages itself and acts as the
// Acknowledger for every delivery it hands out.
type Client struct {
	cfg      Config
	api      sqsAPI
	inflight *xsync.MapOf[uint64, inflight]
	nextTag  atomic.Uint64
	logger   *slog.Logger
}

var (
	_ broker.Broker         = (*Client)(nil)
	_ pipeline.Acknowledger = (*Client)(nil)
)

const rpcTimeout = 30 * time.Second

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.WaitSeconds <= 0 {
		cfg.WaitSeconds = 20
	}
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > 10 {
		cfg.MaxMessages = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		inflight: xsync.NewMapOf[uint64, inflight](),
		logger:   logger.With(slog.String("broker", "sqs")),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.cfg.Region))
	if err != nil {
		return fmt.Errorf("%w: unable to load SDK config: %w", broker.ErrConnect, err)
	}
	c.api = sqs.NewFromConfig(awsCfg)
	return nil
}

// DeclareTopology only verifies the queues exist. SQS queues are created
// out of band.
func (c *Client) DeclareTopology(ctx context.Context) error {
	if c.api == nil {
		return fmt.Errorf("%w: not connected", broker.ErrDeclare)
	}
	urls := []string{c.cfg.QueueURL}
	if c.cfg.DeadLetterURL != "" {
		urls = append(urls, c.cfg.DeadLetterURL)
	}
	for _, url := range urls {
		_, err := c.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
			QueueUrl:       aws.String(url),
			AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
		})
		if err != nil {
			return fmt.Errorf("%w: queue %s: %w", broker.ErrDeclare, url, err)
		}
	}
	return nil
}

func (c *Client) Publish(ctx context.Context, body []byte) error {
	if c.api == nil {
		return fmt.Errorf("failed to publish: not connected")
	}
	_, err := c.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.cfg.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Consume long-polls the queue until ctx is cancelled. Receive errors are
// logged and retried after a pause.
func (c *Client) Consume(ctx context.Context, handler func(pipeline.Delivery)) error {
	if c.api == nil {
		return fmt.Errorf("failed to consume: not connected")
	}
	c.logger.Info("consuming judge requests", slog.String("queue_url", c.cfg.QueueURL))

	for ctx.Err() == nil {
		out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.cfg.QueueURL),
			MaxNumberOfMessages: c.cfg.MaxMessages,
			WaitTimeSeconds:     c.cfg.WaitSeconds,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("failed to receive messages", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range out.Messages {
			handler(c.track(m))
		}
	}
	return nil
}

func (c *Client) track(m types.Message) pipeline.Delivery {
	tag := c.nextTag.Add(1)
	body := aws.ToString(m.Body)
	c.inflight.Store(tag, inflight{receipt: aws.ToString(m.ReceiptHandle), body: body})

	count := int64(1)
	if v, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			count = n
		}
	}
	return pipeline.Delivery{
		Acknowledger:  c,
		Tag:           tag,
		Body:          []byte(body),
		DeliveryCount: count,
	}
}

func (c *Client) Close() error { return nil }

var errUnknownTag = errors.New("unknown delivery tag")

func (c *Client) take(tag uint64) (inflight, error) {
	msg, ok := c.inflight.LoadAndDelete(tag)
	if !ok {
		return inflight{}, fmt.Errorf("%w %d", errUnknownTag, tag)
	}
	return msg, nil
}

// Ack deletes the message. multiple is not supported by SQS and ignored.
func (c *Client) Ack(tag uint64, multiple bool) error {
	msg, err := c.take(tag)
	if err != nil {
		return err
	}
	return c.delete(msg)
}

// Nack with requeue makes the message visible again right away.
func (c *Client) Nack(tag uint64, multiple bool, requeue bool) error {
	msg, err := c.take(tag)
	if err != nil {
		return err
	}
	if !requeue {
		return c.deadLetter(msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	_, err = c.api.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.cfg.QueueURL),
		ReceiptHandle:     aws.String(msg.receipt),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to change message visibility: %w", err)
	}
	return nil
}

func (c *Client) Reject(tag uint64, requeue bool) error {
	return c.Nack(tag, false, requeue)
}

func (c *Client) deadLetter(msg inflight) error {
	if c.cfg.DeadLetterURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
		defer cancel()
		_, err := c.api.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(c.cfg.DeadLetterURL),
			MessageBody: aws.String(msg.body),
		})
		if err != nil {
			return fmt.Errorf("failed to forward message to dead-letter queue: %w", err)
		}
	}
	return c.delete(msg)
}

func (c *Client) delete(msg inflight) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.cfg.QueueURL),
		ReceiptHandle: aws.String(msg.receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

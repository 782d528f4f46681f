package sqsq

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/programme-lv/rayjudge/internal/broker"
	"github.com/programme-lv/rayjudge/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	mu        sync.Mutex
	batches   [][]types.Message
	deleted   []string
	visible   []string
	sent      map[string][]string
	deleteErr error
	attrErr   error
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: b}, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = append(f.visible, aws.ToString(in.ReceiptHandle))
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	url := aws.ToString(in.QueueUrl)
	f.sent[url] = append(f.sent[url], aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, in *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	if f.attrErr != nil {
		return nil, f.attrErr
	}
	return &sqs.GetQueueAttributesOutput{}, nil
}

func newTestClient(cfg Config, api *fakeSQS) *Client {
	c := New(cfg, nil)
	c.api = api
	return c
}

func message(receipt, body, receiveCount string) types.Message {
	m := types.Message{ReceiptHandle: aws.String(receipt), Body: aws.String(body)}
	if receiveCount != "" {
		m.Attributes = map[string]string{"ApproximateReceiveCount": receiveCount}
	}
	return m
}

func consumeAll(t *testing.T, c *Client, want int) []pipeline.Delivery {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	var got []pipeline.Delivery
	err := c.Consume(ctx, func(d pipeline.Delivery) {
		got = append(got, d)
		if len(got) == want {
			cancel()
		}
	})
	require.NoError(t, err)
	require.Len(t, got, want)
	return got
}

func TestConsume_NumbersDeliveries(t *testing.T) {
	api := &fakeSQS{batches: [][]types.Message{
		{message("r1", `{"a":1}`, "1"), message("r2", `{"a":2}`, "3")},
		{message("r3", `{"a":3}`, "")},
	}}
	c := newTestClient(Config{QueueURL: "q"}, api)

	got := consumeAll(t, c, 3)
	assert.Equal(t, uint64(1), got[0].Tag)
	assert.Equal(t, uint64(2), got[1].Tag)
	assert.Equal(t, uint64(3), got[2].Tag)
	assert.Equal(t, []byte(`{"a":2}`), got[1].Body)
	assert.Equal(t, int64(1), got[0].DeliveryCount)
	assert.Equal(t, int64(3), got[1].DeliveryCount)
	assert.Equal(t, int64(1), got[2].DeliveryCount)
	assert.Same(t, c, got[0].Acknowledger)
}

func TestAcknowledger(t *testing.T) {
	api := &fakeSQS{batches: [][]types.Message{{
		message("ack", "a", "1"),
		message("nack", "b", "1"),
		message("reject", "c", "1"),
	}}}
	c := newTestClient(Config{QueueURL: "q", DeadLetterURL: "dlq"}, api)
	got := consumeAll(t, c, 3)

	require.NoError(t, c.Ack(got[0].Tag, false))
	require.NoError(t, c.Nack(got[1].Tag, false, true))
	require.NoError(t, c.Reject(got[2].Tag, false))

	assert.Equal(t, []string{"ack", "reject"}, api.deleted)
	assert.Equal(t, []string{"nack"}, api.visible)
	assert.Equal(t, []string{"c"}, api.sent["dlq"])
	assert.Equal(t, 0, c.inflight.Size())
}

func TestAcknowledger_TagResolvesOnce(t *testing.T) {
	api := &fakeSQS{batches: [][]types.Message{{message("r", "a", "1")}}}
	c := newTestClient(Config{QueueURL: "q"}, api)
	got := consumeAll(t, c, 1)

	require.NoError(t, c.Ack(got[0].Tag, false))
	err := c.Nack(got[0].Tag, false, true)
	assert.ErrorIs(t, err, errUnknownTag)
	assert.Equal(t, []string{"r"}, api.deleted)
	assert.Empty(t, api.visible)
}

func TestAcknowledger_RejectWithoutDeadLetterDeletes(t *testing.T) {
	api := &fakeSQS{batches: [][]types.Message{{message("r", "a", "1")}}}
	c := newTestClient(Config{QueueURL: "q"}, api)
	got := consumeAll(t, c, 1)

	require.NoError(t, c.Reject(got[0].Tag, false))
	assert.Equal(t, []string{"r"}, api.deleted)
	assert.Empty(t, api.sent)
}

func TestAcknowledger_DeleteFailure(t *testing.T) {
	api := &fakeSQS{batches: [][]types.Message{{message("r", "a", "1")}}, deleteErr: errors.New("throttled")}
	c := newTestClient(Config{QueueURL: "q"}, api)
	got := consumeAll(t, c, 1)

	assert.ErrorContains(t, c.Ack(got[0].Tag, false), "throttled")
}

func TestDeclareTopology(t *testing.T) {
	c := New(Config{QueueURL: "q"}, nil)
	assert.ErrorIs(t, c.DeclareTopology(t.Context()), broker.ErrDeclare)

	c = newTestClient(Config{QueueURL: "q", DeadLetterURL: "dlq"}, &fakeSQS{})
	assert.NoError(t, c.DeclareTopology(t.Context()))

	c = newTestClient(Config{QueueURL: "q"}, &fakeSQS{attrErr: errors.New("no such queue")})
	assert.ErrorIs(t, c.DeclareTopology(t.Context()), broker.ErrDeclare)
}

func TestPublish(t *testing.T) {
	api := &fakeSQS{}
	c := newTestClient(Config{QueueURL: "q"}, api)
	require.NoError(t, c.Publish(t.Context(), []byte(`{"id":1}`)))
	assert.Equal(t, []string{`{"id":1}`}, api.sent["q"])
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/stackhead/task-management-app/domain"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// Queue carries cleanup jobs left behind by failed cascade deletes.
type Queue struct {
	client     queueClient
	visibility time.Duration
}

// Message is a dequeued cleanup job. Err is set when the body could not be
// decoded; such messages should be acknowledged and dropped.
type Message struct {
	ID           string
	PopReceipt   string
	DequeueCount int64
	Envelope     domain.CleanupEnvelope
	Err          error
}

// NewQueue creates a Queue for the named Azure Storage queue. visibility is
// how long a received message stays hidden from other workers.
func NewQueue(connStr, name string, visibility time.Duration) (*Queue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	qc, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	if visibility <= 0 {
		visibility = time.Minute
	}
	return &Queue{client: qc, visibility: visibility}, nil
}

// EnqueueCleanup sends one job to the queue.
func (q *Queue) EnqueueCleanup(ctx context.Context, env domain.CleanupEnvelope) error {
	data, err := sonic.MarshalString(env)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueMessage(ctx, data, nil); err != nil {
		return fmt.Errorf("enqueue cleanup: %w", err)
	}
	return nil
}

// Receive dequeues up to max messages.
func (q *Queue) Receive(ctx context.Context, max int) ([]Message, error) {
	n := int32(max)
	vis := int32(q.visibility / time.Second)
	resp, err := q.client.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{NumberOfMessages: &n, VisibilityTimeout: &vis})
	if err != nil {
		return nil, fmt.Errorf("dequeue cleanup: %w", err)
	}
	out := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.MessageID == nil || m.PopReceipt == nil {
			continue
		}
		msg := Message{ID: *m.MessageID, PopReceipt: *m.PopReceipt}
		if m.DequeueCount != nil {
			msg.DequeueCount = *m.DequeueCount
		}
		if m.MessageText == nil {
			msg.Err = fmt.Errorf("message %s has no body", msg.ID)
		} else if err := sonic.UnmarshalString(*m.MessageText, &msg.Envelope); err != nil {
			msg.Err = fmt.Errorf("decode message %s: %w", msg.ID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Ack deletes a processed message.
func (q *Queue) Ack(ctx context.Context, m Message) error {
	if _, err := q.client.DeleteMessage(ctx, m.ID, m.PopReceipt, nil); err != nil {
		return fmt.Errorf("delete message %s: %w", m.ID, err)
	}
	return nil
}

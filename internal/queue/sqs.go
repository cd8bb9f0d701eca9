package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
)

var _ Broker = (*SQSBroker)(nil)

// maxSQSDelay is the largest DelaySeconds SQS accepts.
const maxSQSDelay = 15 * time.Minute

// SQSAPI is the subset of the SQS client the broker uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSBroker is a Broker on an SQS queue. Visibility and delays are native.
type SQSBroker struct {
	client   SQSAPI
	queueURL string
	opts     options
}

func NewSQSBroker(client SQSAPI, queueURL string, opts ...Option) *SQSBroker {
	o := defaultOptions()
	o.block = 20 * time.Second
	for _, opt := range opts {
		opt(&o)
	}
	return &SQSBroker{client: client, queueURL: queueURL, opts: o}
}

// NewSQSClient loads the default AWS credential chain for region.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

func (b *SQSBroker) Enqueue(ctx context.Context, d Dispatch, delay time.Duration) (string, error) {
	body, err := Encode(d)
	if err != nil {
		return "", err
	}
	if delay > maxSQSDelay {
		b.opts.log.Warn().Dur("delay", delay).Msg("clamping delay to the SQS maximum")
		delay = maxSQSDelay
	}

	out, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(b.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if delay > 0 {
		metrics.RecordQueueMessage("delay")
	} else {
		metrics.RecordQueueMessage("enqueue")
	}
	return aws.ToString(out.MessageId), nil
}

func (b *SQSBroker) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(b.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     int32(b.opts.block / time.Second),
			VisibilityTimeout:   int32(b.opts.visibility / time.Second),
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("receive message: %w", err)
		}

		for _, m := range out.Messages {
			d, err := Decode([]byte(aws.ToString(m.Body)))
			if err != nil {
				b.opts.log.Error().Err(err).Str("message_id", aws.ToString(m.MessageId)).Msg("dropping malformed dispatch")
				_ = b.delete(ctx, aws.ToString(m.ReceiptHandle))
				continue
			}

			receives, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
			redelivered := receives > 1
			if redelivered {
				metrics.RecordQueueMessage("redeliver")
			} else {
				metrics.RecordQueueMessage("receive")
			}
			return &Delivery{
				ID:          aws.ToString(m.MessageId),
				Dispatch:    d,
				Receipt:     aws.ToString(m.ReceiptHandle),
				Redelivered: redelivered,
			}, nil
		}
	}
}

func (b *SQSBroker) Ack(ctx context.Context, del *Delivery) error {
	if err := b.delete(ctx, del.Receipt); err != nil {
		return err
	}
	metrics.RecordQueueMessage("ack")
	return nil
}

func (b *SQSBroker) delete(ctx context.Context, receipt string) error {
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(receipt),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (b *SQSBroker) Close() error {
	return nil
}

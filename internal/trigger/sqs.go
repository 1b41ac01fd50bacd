package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
)

const sourceSQS = "sqs"

// sqsAPI abstracts the AWS SQS client for testability.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error)
	DeleteMessage(ctx context.Context, input *sqsDeleteInput) error
}

// sqsReceiveInput mirrors the fields needed for SQS ReceiveMessage.
type sqsReceiveInput struct {
	QueueURL            string
	MaxNumberOfMessages int32
	WaitTimeSeconds     int32
}

// sqsReceiveOutput contains the messages returned by ReceiveMessage.
type sqsReceiveOutput struct {
	Messages []sqsReceivedMessage
}

// sqsReceivedMessage represents a single message received from SQS.
type sqsReceivedMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string
}

// sqsDeleteInput mirrors the fields needed for SQS DeleteMessage.
type sqsDeleteInput struct {
	QueueURL      string
	ReceiptHandle string
}

// awsSQSClient wraps the real AWS SQS SDK client and implements sqsAPI.
type awsSQSClient struct {
	client *sqs.Client
}

// newAWSSQSClient creates an awsSQSClient. region and endpoint are optional
// and fall back to the default AWS configuration chain.
func newAWSSQSClient(ctx context.Context, region, endpoint string) (*awsSQSClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &awsSQSClient{client: client}, nil
}

// ReceiveMessage long-polls the specified SQS queue for messages.
func (c *awsSQSClient) ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &input.QueueURL,
		MaxNumberOfMessages: input.MaxNumberOfMessages,
		WaitTimeSeconds:     input.WaitTimeSeconds,
	})
	if err != nil {
		return nil, err
	}

	messages := make([]sqsReceivedMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		messages = append(messages, sqsReceivedMessage{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		})
	}
	return &sqsReceiveOutput{Messages: messages}, nil
}

// DeleteMessage deletes a message from the specified SQS queue.
func (c *awsSQSClient) DeleteMessage(ctx context.Context, input *sqsDeleteInput) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &input.QueueURL,
		ReceiptHandle: &input.ReceiptHandle,
	})
	return err
}

// SQSConfig configures the SQS source.
type SQSConfig struct {
	QueueURL string
	Region   string
	Endpoint string
	// WaitTime is the long-poll duration in seconds (0-20).
	WaitTime int32
}

// SQSSource long-polls an SQS queue for created-record events. Each message
// is deleted after it has been handled, whatever the outcome.
type SQSSource struct {
	client   sqsAPI
	queueURL string
	waitTime int32
	log      zerolog.Logger
}

// NewSQSSource creates an SQSSource backed by the AWS SDK.
func NewSQSSource(ctx context.Context, cfg SQSConfig, log zerolog.Logger) (*SQSSource, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs source: queue url is required")
	}
	client, err := newAWSSQSClient(ctx, cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return newSQSSource(client, cfg, log), nil
}

func newSQSSource(client sqsAPI, cfg SQSConfig, log zerolog.Logger) *SQSSource {
	wait := cfg.WaitTime
	if wait < 0 || wait > 20 {
		wait = 20
	}
	return &SQSSource{
		client:   client,
		queueURL: cfg.QueueURL,
		waitTime: wait,
		log:      log.With().Str("source", sourceSQS).Str("queue_url", cfg.QueueURL).Logger(),
	}
}

// Name implements Source.
func (s *SQSSource) Name() string { return sourceSQS }

// Run polls the queue until ctx is cancelled.
func (s *SQSSource) Run(ctx context.Context, h Handler) error {
	s.log.Info().Int32("wait_time", s.waitTime).Msg("sqs source started")

	for {
		if ctx.Err() != nil {
			s.log.Info().Msg("sqs source stopped")
			return nil
		}

		out, err := s.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            s.queueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     s.waitTime,
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.log.Error().Err(err).Msg("receive message failed")
			sleepCtx(ctx, time.Second)
			continue
		}

		for _, msg := range out.Messages {
			s.processMessage(ctx, h, msg)
		}
	}
}

func (s *SQSSource) processMessage(ctx context.Context, h Handler, msg sqsReceivedMessage) {
	deliver(ctx, sourceSQS, h, msg.Body, s.log.With().Str("sqs_message_id", msg.MessageID).Logger())

	if err := s.client.DeleteMessage(context.WithoutCancel(ctx), &sqsDeleteInput{
		QueueURL:      s.queueURL,
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		s.log.Error().Err(err).Str("sqs_message_id", msg.MessageID).Msg("failed to delete message")
	}
}

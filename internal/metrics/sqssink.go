package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SqsSink sends records to an SQS queue.
type SqsSink struct {
	client   *sqs.Client
	queueUrl string
	logger   *slog.Logger
}

func NewSqsSink(ctx context.Context, queueUrl, region string, logger *slog.Logger) (*SqsSink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return &SqsSink{
		client:   sqs.NewFromConfig(cfg),
		queueUrl: queueUrl,
		logger:   logger,
	}, nil
}

func (s *SqsSink) Emit(rec Record) {
	b, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("failed to marshal metrics record", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body := string(b)
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &s.queueUrl,
		MessageBody: &body,
	})
	if err != nil {
		s.logger.Error("failed to send metrics record to SQS",
			"queue", s.queueUrl, "error", err)
	}
}

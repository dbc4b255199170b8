// Package notify publishes gateway events to an AWS SQS queue. It is an
// optional integration; publish failures are logged and never surface to
// the operation that triggered the event.
package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/goccy/go-json"

	"github.com/farmgate-io/farmgate/core/logger"
)

// Event is the message body published to the queue.
type Event struct {
	Type            string    `json:"type"`
	FirmwareVersion string    `json:"firmwareVersion"`
	Timestamp       time.Time `json:"timestamp"`
}

// SQSConfiguration contains the configuration for the SQS notifier
type SQSConfiguration struct {
	QueueURL  string
	AWSRegion string
	AccessID  string
	AccessKey string
}

// SQS publishes events to a single SQS queue.
type SQS struct {
	client   *sqs.Client
	queueURL string
}

// NewSQS returns a new SQS notifier.
func NewSQS(sqsConfig SQSConfiguration) (*SQS, error) {
	cfg, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithRegion(sqsConfig.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(sqsConfig.AccessID, sqsConfig.AccessKey, "")),
	)
	if err != nil {
		return nil, err
	}
	logger.Default().Debugln("SQS notifications enabled")
	return &SQS{client: sqs.NewFromConfig(cfg), queueURL: sqsConfig.QueueURL}, nil
}

// FirmwareUploaded announces a stored firmware binary.
func (n *SQS) FirmwareUploaded(version string) {
	n.publish("firmware.uploaded", version)
}

// StableChanged announces a new stable firmware pointer.
func (n *SQS) StableChanged(version string) {
	n.publish("firmware.stable_changed", version)
}

func (n *SQS) publish(eventType, version string) {
	body, err := json.Marshal(Event{
		Type:            eventType,
		FirmwareVersion: version,
		Timestamp:       time.Now().UTC(),
	})
	if err != nil {
		logger.Default().WithError(err).Error("cannot marshal event")
		return
	}
	_, err = n.client.SendMessage(context.TODO(), &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		logger.Default().WithError(err).WithField("event", eventType).
			Error("cannot publish event to SQS")
	}
}

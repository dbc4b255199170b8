package kss

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/farmgate-io/farmgate/core/logger"
)

// S3 is the implementation of the Driver interface for AWS S3
type S3 struct {
	config      aws.Config
	bucket      string
	baseKeyName string
}

// NewS3 returns a new S3
func NewS3(kssConfig S3Configuration) (*S3, error) {
	if kssConfig.AWSBucketName == "" {
		return nil, fmt.Errorf("AWSBucketName must not be empty")
	}

	config, err := config.LoadDefaultConfig(
		context.TODO(),
		config.WithRegion(kssConfig.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(kssConfig.AccessID, kssConfig.AccessKey, "")),
	)

	if err != nil {
		return nil, err
	}
	logger.Default().Debugln("KSS S3 enabled")
	s := S3{config, kssConfig.AWSBucketName, kssConfig.KeyPrefix}
	return &s, nil
}

// UploadData uploads data into a new key object
func (s S3) UploadData(key string, data []byte, contentType string) error {
	client := s3.NewFromConfig(s.config)
	uploader := manager.NewUploader(client)

	_, err := uploader.Upload(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.baseKeyName + key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", s.baseKeyName+key, err)
	}
	return nil
}

// Delete deletes the key object
func (s S3) Delete(key string) error {
	logger.Default().Infoln("deleting", s.baseKeyName+key)
	client := s3.NewFromConfig(s.config)

	input := &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(s.baseKeyName + key),
	}

	_, err := client.DeleteObject(context.TODO(), input)
	if err != nil {
		logger.Default().Error("could not delete ", s.baseKeyName+key)
		return err
	}

	return nil
}

// DeleteAllWithPrefix deletes all keys starting with prefix
func (s S3) DeleteAllWithPrefix(prefix string) error {
	client := s3.NewFromConfig(s.config)

	keys, err := s.ListAllWithPrefix(prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		input := &s3.DeleteObjectInput{
			Bucket: &s.bucket,
			Key:    aws.String(s.baseKeyName + key),
		}
		logger.Default().Infoln("deleting", key)
		_, err := client.DeleteObject(context.TODO(), input)
		if err != nil {
			logger.Default().Error("could not delete ", key)
			return err
		}
	}

	return nil
}

// ListAllWithPrefix lists all keys with prefix
func (s S3) ListAllWithPrefix(prefix string) (keys []string, err error) {
	client := s3.NewFromConfig(s.config)

	var continuationToken *string
	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            aws.String(s.baseKeyName + prefix),
			ContinuationToken: continuationToken,
		}
		var resp *s3.ListObjectsV2Output
		resp, err = client.ListObjectsV2(context.TODO(), input)
		if err != nil {
			logger.Default().Error("could not ListObjectsV2 from ", s.bucket)
			return
		}
		// keys are reported relative to the configured key prefix
		for _, item := range resp.Contents {
			keys = append(keys, strings.TrimPrefix(*item.Key, s.baseKeyName))
		}
		continuationToken = resp.NextContinuationToken
		if resp.NextContinuationToken == nil {
			break
		}
	}

	return
}

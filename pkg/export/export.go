// Package export publishes collection run summaries to S3-compatible
// object storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/orchestrator"
)

// Exporter publishes run summaries to remote storage.
type Exporter interface {
	orchestrator.Exporter

	// Preflight verifies that the remote storage is reachable and
	// writable. Writes a small test object to the bucket to fail fast
	// on misconfiguration.
	Preflight(ctx context.Context) error
}

// s3Exporter implements Exporter for S3-compatible storage.
type s3Exporter struct {
	log    logrus.FieldLogger
	cfg    *config.S3ExportConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Exporter = (*s3Exporter)(nil)

// NewS3Exporter creates a new S3 run summary exporter from the given
// configuration.
func NewS3Exporter(
	log logrus.FieldLogger,
	cfg *config.S3ExportConfig,
) (Exporter, error) {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	client := s3.New(s3.Options{}, opts...)

	return &s3Exporter{
		log:    log.WithField("component", "s3-exporter"),
		cfg:    cfg,
		client: client,
	}, nil
}

// Preflight verifies S3 connectivity by writing a small test object.
func (e *s3Exporter) Preflight(ctx context.Context) error {
	content := fmt.Sprintf(
		"flowpulse write test: %s", time.Now().UTC().Format(time.RFC3339),
	)

	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.Bucket),
		Key:         aws.String(".flowpulse-write-test"),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", e.cfg.Bucket, err)
	}

	return nil
}

// ExportRunSummary marshals the summary and writes it under
// {prefix}/{date}/summary.json.
func (e *s3Exporter) ExportRunSummary(
	ctx context.Context,
	summary *orchestrator.RunSummary,
) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}

	key := e.resolveKey(summary.Date)

	e.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": e.cfg.Bucket,
	}).Debug("Exporting run summary")

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": e.cfg.Bucket,
		"bytes":  len(data),
	}).Info("Run summary exported")

	return nil
}

// resolveKey builds the S3 object key for a run date.
func (e *s3Exporter) resolveKey(date string) string {
	prefix := e.cfg.Prefix
	if prefix == "" {
		prefix = "runs"
	}

	return strings.TrimRight(prefix, "/") + "/" + date + "/summary.json"
}

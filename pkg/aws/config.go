// Package aws holds the thin AWS SDK v2 clients the settlement service uses:
// SQS for retries, SNS for settlement notifications, S3 for payload
// archives, Secrets Manager for credentials and CloudWatch for metrics/logs.
package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig loads the default credential chain. AWS_ENDPOINT (or the
// per-service AWS_SQS_ENDPOINT / AWS_S3_ENDPOINT) points every client at
// LocalStack for local runs.
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return cfg, fmt.Errorf("failed to load aws config: %w", err)
	}

	endpoint := firstNonEmpty(os.Getenv("AWS_ENDPOINT"), os.Getenv("AWS_SQS_ENDPOINT"), os.Getenv("AWS_S3_ENDPOINT"))
	if endpoint == "" {
		return cfg, nil
	}

	signingRegion := firstNonEmpty(cfg.Region, os.Getenv("AWS_REGION"))
	cfg.EndpointResolverWithOptions = sdkaws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (sdkaws.Endpoint, error) {
			return sdkaws.Endpoint{
				URL:               endpoint,
				SigningRegion:     firstNonEmpty(signingRegion, region),
				HostnameImmutable: true,
			}, nil
		})
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

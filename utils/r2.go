// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"delivery-impact-service/config"
	"delivery-impact-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the slice of the S3 API the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2LeaderboardPublisher writes the leaderboard as a JSON object to R2.
type R2LeaderboardPublisher struct {
	Client ObjectPutter
	Bucket string
	Key    string
	clock  func() time.Time
}

func NewR2Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.R2AccessKeyID, cfg.R2AccessSecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	}), nil
}

func NewR2LeaderboardPublisher(client ObjectPutter, bucket, key string) *R2LeaderboardPublisher {
	return &R2LeaderboardPublisher{Client: client, Bucket: bucket, Key: key, clock: time.Now}
}

type leaderboardDocument struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Entries     []models.LeaderboardEntry `json:"entries"`
}

func (p *R2LeaderboardPublisher) PublishLeaderboard(ctx context.Context, entries []models.LeaderboardEntry) error {
	body, err := json.Marshal(leaderboardDocument{GeneratedAt: p.clock().UTC(), Entries: entries})
	if err != nil {
		return err
	}
	_, err = p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.Bucket),
		Key:          aws.String(p.Key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String("application/json"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload leaderboard to R2: %w", err)
	}
	return nil
}

// Package photos reports how many photos were attached to a plan day. The
// journal uses the count and a few keys as generation signals.
package photos

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxKeys is how many photo keys a signal carries.
const MaxKeys = 20

// Signal is the photo summary of one plan day.
type Signal struct {
	Count int
	Keys  []string
}

// Source looks up photo signals.
type Source interface {
	DaySignal(ctx context.Context, planID, dateLocal string) (Signal, error)
}

// NopSource reports no photos. It is used when object storage is not
// configured.
type NopSource struct{}

func (NopSource) DaySignal(context.Context, string, string) (Signal, error) {
	return Signal{}, nil
}

// Prefix is the object key prefix of a plan day's photos.
func Prefix(planID, dateLocal string) string {
	return fmt.Sprintf("plans/%s/photos/%s/", planID, dateLocal)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type S3Config struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Source lists photo objects in an S3-compatible bucket.
type S3Source struct {
	client s3.ListObjectsV2APIClient
	bucket string
}

func NewS3Source(ctx context.Context, c S3Config) (*S3Source, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{client: client, bucket: c.Bucket}, nil
}

func (s *S3Source) DaySignal(ctx context.Context, planID, dateLocal string) (Signal, error) {
	var sig Signal
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(Prefix(planID, dateLocal)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return Signal{}, fmt.Errorf("list photos: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			sig.Count++
			if len(sig.Keys) < MaxKeys {
				sig.Keys = append(sig.Keys, key)
			}
		}
	}
	return sig, nil
}

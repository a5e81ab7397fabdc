package storage

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go/aws"                  //nolint:staticcheck // TODO: Migrate to aws-sdk-go-v2
	"github.com/aws/aws-sdk-go/aws/session"          //nolint:staticcheck
	"github.com/aws/aws-sdk-go/service/s3/s3manager" //nolint:staticcheck
)

const midiContentType = "audio/midi"

// Mirror publishes generated files somewhere clients can fetch them
type Mirror interface {
	Upload(ctx context.Context, name string, body io.Reader) (string, error)
}

// S3Mirror copies generated files to an S3 bucket
type S3Mirror struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

// NewS3Mirror creates a mirror for bucket. Credentials come from the
// default AWS chain.
func NewS3Mirror(bucket, region, prefix string) (*S3Mirror, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Mirror{
		bucket:   bucket,
		prefix:   prefix,
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Upload stores body under prefix/name and returns the object URL
func (m *S3Mirror) Upload(ctx context.Context, name string, body io.Reader) (string, error) {
	key := name
	if m.prefix != "" {
		key = m.prefix + "/" + name
	}

	out, err := m.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(midiContentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s: %w", name, m.bucket, err)
	}

	log.Printf("☁️  Uploaded %s to %s", name, out.Location)
	return out.Location, nil
}

package taxonomy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the slice of the S3 API the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader loads the catalog from an object-storage location.
type S3Loader struct {
	client ObjectGetter
	bucket string
	key    string
}

// NewS3Loader creates a loader for s3://bucket/key.
func NewS3Loader(client ObjectGetter, bucket, key string) *S3Loader {
	return &S3Loader{client: client, bucket: bucket, key: key}
}

// Load fetches and parses the taxonomy object.
func (l *S3Loader) Load(ctx context.Context) (*Catalog, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch taxonomy s3://%s/%s: %w", l.bucket, l.key, err)
	}
	defer out.Body.Close()
	return Parse(out.Body)
}

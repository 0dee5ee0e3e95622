package corpus

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Compile-time interface check.
var _ Source = (*S3Source)(nil)

// S3Client is the subset of the S3 API used by S3Source.
type S3Client interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source enumerates image objects under an S3 prefix. Listing is
// paginated lazily; object bodies are fetched one item at a time.
type S3Source struct {
	client S3Client
	bucket string
	prefix string

	paginator *s3.ListObjectsV2Paginator
	keys      []string
	pos       int
	done      bool
}

// NewS3Source creates a Source over s3://bucket/prefix.
func NewS3Source(client S3Client, bucket, prefix string) *S3Source {
	s := &S3Source{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
	_ = s.Reset()

	return s
}

// Next fetches the next image object or io.EOF.
func (s *S3Source) Next(ctx context.Context) (Item, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Item{}, err
		}

		if s.pos < len(s.keys) {
			key := s.keys[s.pos]
			s.pos++

			data, err := s.fetch(ctx, key)
			if err != nil {
				return Item{}, err
			}

			return Item{
				ID:   key,
				Data: data,
				Metadata: map[string]string{
					"source": "s3://" + path.Join(s.bucket, key),
				},
			}, nil
		}

		if s.done {
			return Item{}, io.EOF
		}

		if err := s.nextPage(ctx); err != nil {
			return Item{}, err
		}
	}
}

// nextPage loads the next listing page, filtering for image keys.
func (s *S3Source) nextPage(ctx context.Context) error {
	if !s.paginator.HasMorePages() {
		s.done = true
		return nil
	}

	page, err := s.paginator.NextPage(ctx)
	if err != nil {
		return err
	}

	s.keys = s.keys[:0]
	s.pos = 0

	for _, obj := range page.Contents {
		key := aws.ToString(obj.Key)
		if imageExtensions[strings.ToLower(path.Ext(key))] {
			s.keys = append(s.keys, key)
		}
	}

	if !s.paginator.HasMorePages() {
		s.done = true
	}

	return nil
}

// fetch downloads a single object.
func (s *S3Source) fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// Reset restarts the listing from the beginning.
func (s *S3Source) Reset() error {
	s.paginator = s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	s.keys = nil
	s.pos = 0
	s.done = false

	return nil
}

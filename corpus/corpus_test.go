package corpus

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s Source) []Item {
	t.Helper()

	var items []Item
	for {
		item, err := s.Next(context.Background())
		if err == io.EOF {
			return items
		}
		require.NoError(t, err)
		items = append(items, item)
	}
}

func TestSliceSource(t *testing.T) {
	s := NewSliceSource([]Item{
		{ID: "a", Data: []byte{1}},
		{ID: "b", Data: []byte{2}},
	})

	items := drain(t, s)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)

	// Restartable.
	require.NoError(t, s.Reset())
	assert.Len(t, drain(t, s), 2)
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("jpg-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.png"), []byte("png-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("skip me"), 0o644))

	s, err := NewDirSource(root)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	items := drain(t, s)
	require.Len(t, items, 2)

	ids := []string{items[0].ID, items[1].ID}
	assert.Contains(t, ids, "a.jpg")
	assert.Contains(t, ids, "sub/b.png")

	for _, item := range items {
		assert.NotEmpty(t, item.Data)
		assert.NotEmpty(t, item.Metadata["source"])
	}

	require.NoError(t, s.Reset())
	assert.Len(t, drain(t, s), 2)
}

type fakeS3Client struct {
	objects map[string][]byte
}

func (f *fakeS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}

	return out, nil
}

func (f *fakeS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data := f.objects[aws.ToString(params.Key)]

	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func TestS3Source(t *testing.T) {
	client := &fakeS3Client{objects: map[string][]byte{
		"images/cat.jpg": []byte("cat"),
		"images/readme":  []byte("skip"),
	}}

	s := NewS3Source(client, "bucket", "images/")

	items := drain(t, s)
	require.Len(t, items, 1)
	assert.Equal(t, "images/cat.jpg", items[0].ID)
	assert.Equal(t, []byte("cat"), items[0].Data)
	assert.Equal(t, "s3://bucket/images/cat.jpg", items[0].Metadata["source"])
}

package taxonomy

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectGetter struct {
	body   string
	err    error
	bucket string
	key    string
}

func (f *fakeObjectGetter) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket = *params.Bucket
	f.key = *params.Key
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3LoaderLoad(t *testing.T) {
	getter := &fakeObjectGetter{body: `{
		"version": "s3-test",
		"entries": [{"code": "MOD-ING", "category": "MOD"}],
		"aliases": {}
	}`}

	catalog, err := NewS3Loader(getter, "finanzas-config", "taxonomy.json").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3-test", catalog.Version())
	assert.Equal(t, "finanzas-config", getter.bucket)
	assert.Equal(t, "taxonomy.json", getter.key)
}

func TestS3LoaderPropagatesFetchError(t *testing.T) {
	getter := &fakeObjectGetter{err: errors.New("access denied")}
	_, err := NewS3Loader(getter, "b", "k").Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/k")
}

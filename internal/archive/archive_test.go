package archive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	in  *s3.PutObjectInput
	err error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, f.err
}

func TestKey(t *testing.T) {
	u := &Uploader{prefix: "/exports/"}
	assert.Equal(t, "exports/c1/2025-W38.csv", u.Key("c1", "2025-W38", "csv"))

	u = &Uploader{}
	assert.Equal(t, "c1/2025-W38.yaml", u.Key("c1", "2025-W38", "yaml"))
}

func TestUpload(t *testing.T) {
	fp := &fakePutter{}
	u := &Uploader{client: fp, bucket: "timesheets"}

	uri, err := u.Upload(context.Background(), "c1/2025-W38.csv", ContentType("csv"), []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://timesheets/c1/2025-W38.csv", uri)
	assert.Equal(t, "timesheets", aws.ToString(fp.in.Bucket))
	assert.Equal(t, "text/csv", aws.ToString(fp.in.ContentType))

	fp.err = errors.New("access denied")
	_, err = u.Upload(context.Background(), "k", "text/csv", nil)
	assert.ErrorIs(t, err, fp.err)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestUpload_AgainstEndpoint(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		body = string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	u, err := New(context.Background(), Config{
		Bucket:    "timesheets",
		Region:    "us-east-1",
		Endpoint:  ts.URL,
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), "c1/2025-W38.json", ContentType("json"), []byte(`{"ok":true}`))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/timesheets/c1/2025-W38.json", path)
	assert.Contains(t, body, `{"ok":true}`)
}

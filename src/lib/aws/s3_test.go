package aws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bucketServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (b *bucketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[r.URL.Path] = body
		b.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := b.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3StorageUpload(t *testing.T) {
	bucket := &bucketServer{objects: map[string][]byte{}, types: map[string]string{}}
	server := httptest.NewServer(bucket)
	defer server.Close()

	client := s3.New(s3.Options{
		Region:       "ap-southeast-1",
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	})
	storage := NewS3Storage(client, "assets")

	url, err := storage.Upload(context.Background(), []byte("jpeg-bytes"), "vouchers/spa/1.jpeg", "image/jpeg")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, server.URL+"/assets/vouchers/spa/1.jpeg?"))
	assert.Contains(t, url, "X-Amz-Expires=3600")
	assert.Contains(t, bucket.objects, "/assets/vouchers/spa/1.jpeg")
	assert.Equal(t, "image/jpeg", bucket.types["/assets/vouchers/spa/1.jpeg"])
}

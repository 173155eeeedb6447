// Package s3test serves an in-memory S3 endpoint for persist tests.
package s3test

import (
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// Client starts a fake S3 server holding one empty bucket. The server is
// stopped when the test finishes.
func Client(t testing.TB) (*s3.S3, string) {
	t.Helper()
	server := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(server.Close)

	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials("snapshot-key", "snapshot-secret", ""),
		Endpoint:         aws.String(server.URL),
		Region:           aws.String("us-east-1"),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		t.Fatalf("s3 session: %v", err)
	}
	client := s3.New(sess)
	bucket := "snapshots-" + uuid.NewString()
	if _, err := client.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("create bucket %s: %v", bucket, err)
	}
	return client, bucket
}

// Keys lists every object key in bucket.
func Keys(t testing.TB, client *s3.S3, bucket string) []string {
	t.Helper()
	var keys []string
	err := client.ListObjectsV2Pages(&s3.ListObjectsV2Input{Bucket: aws.String(bucket)},
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, o := range page.Contents {
				keys = append(keys, aws.StringValue(o.Key))
			}
			return true
		})
	if err != nil {
		t.Fatalf("list %s: %v", bucket, err)
	}
	return keys
}

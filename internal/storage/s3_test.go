package storage

import (
	"context"
	"testing"
)

func TestNewS3ClientOptions(t *testing.T) {
	for _, pathStyle := range []bool{false, true} {
		c, err := NewS3Client(context.Background(), S3Options{
			Bucket:    "pages",
			Endpoint:  "http://localhost:9000",
			Region:    "auto",
			AccessKey: "key",
			SecretKey: "secret",
			PathStyle: pathStyle,
		})
		if err != nil {
			t.Fatal(err)
		}
		o := c.client.Options()
		if o.UsePathStyle != pathStyle {
			t.Errorf("UsePathStyle = %v, want %v", o.UsePathStyle, pathStyle)
		}
		if o.BaseEndpoint == nil || *o.BaseEndpoint != "http://localhost:9000" {
			t.Errorf("BaseEndpoint = %v", o.BaseEndpoint)
		}
	}
}

func TestNewS3ClientRequiresBucket(t *testing.T) {
	if _, err := NewS3Client(context.Background(), S3Options{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestR2Endpoint(t *testing.T) {
	if got := R2Endpoint("acc"); got != "https://acc.r2.cloudflarestorage.com" {
		t.Errorf("R2Endpoint = %q", got)
	}
}

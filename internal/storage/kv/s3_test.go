// internal/storage/kv/s3_test.go
package kv

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

func responseError(status int, cause error) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      cause,
		},
	}
}

func TestS3Store_ImplementsStore(t *testing.T) {
	var _ Store = (*S3Store)(nil)
}

func TestS3Store_Key(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{"", "token", "token"},
		{"sessions", "token", "sessions/token"},
		{"sessions/", "username", "sessions/username"},
	}

	for _, tt := range tests {
		s := &S3Store{prefix: strings.TrimSuffix(tt.prefix, "/")}
		got := s.key(tt.key)
		if got != tt.want {
			t.Errorf("key(%q) with prefix %q = %q, want %q", tt.key, tt.prefix, got, tt.want)
		}
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(S3Config{Region: "us-east-1"}); err == nil {
		t.Error("expected error for missing bucket")
	}
}

func TestNewS3_Prefix(t *testing.T) {
	s, err := NewS3(S3Config{Bucket: "b", Region: "us-east-1", Prefix: "tradedesk/", Endpoint: "http://localhost:9000"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if s.prefix != "tradedesk" {
		t.Errorf("expected trimmed prefix, got %q", s.prefix)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", &types.NoSuchKey{}, true},
		{"not found", &types.NotFound{}, true},
		{"wrapped no such key", fmt.Errorf("get: %w", &types.NoSuchKey{}), true},
		{"bare 404 response", responseError(http.StatusNotFound, errors.New("not found")), true},
		{"no such bucket", &types.NoSuchBucket{}, false},
		{"no such bucket on 404", responseError(http.StatusNotFound, &types.NoSuchBucket{}), false},
		{"no such bucket api code", responseError(http.StatusNotFound, &smithy.GenericAPIError{Code: "NoSuchBucket"}), false},
		{"404 only in message", errors.New("StatusCode: 404"), false},
		{"forbidden response", responseError(http.StatusForbidden, errors.New("AccessDenied")), false},
		{"access denied", errors.New("AccessDenied"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

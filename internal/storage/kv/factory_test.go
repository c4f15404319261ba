package kv

import (
	"testing"

	"github.com/newthinker/tradedesk/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    string
		wantErr bool
	}{
		{name: "localfs", cfg: config.StoreConfig{Type: "localfs", Path: t.TempDir()}, want: "*kv.LocalFS"},
		{name: "memory", cfg: config.StoreConfig{Type: "memory"}, want: "*kv.MemoryStore"},
		{name: "s3", cfg: config.StoreConfig{Type: "s3", S3: config.S3Config{Bucket: "b", Region: "us-east-1"}}, want: "*kv.S3Store"},
		{name: "unknown", cfg: config.StoreConfig{Type: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch store.(type) {
			case *LocalFS:
				if tt.want != "*kv.LocalFS" {
					t.Errorf("got LocalFS, want %s", tt.want)
				}
			case *MemoryStore:
				if tt.want != "*kv.MemoryStore" {
					t.Errorf("got MemoryStore, want %s", tt.want)
				}
			case *S3Store:
				if tt.want != "*kv.S3Store" {
					t.Errorf("got S3Store, want %s", tt.want)
				}
			}
		})
	}
}

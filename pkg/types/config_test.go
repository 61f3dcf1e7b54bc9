package types

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "mysql", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "postgres without DSN returns ErrDSNEmpty",
			config:  Config{Backend: "postgres"},
			wantErr: ErrDSNEmpty,
		},
		{
			name:    "valid postgres config",
			config:  Config{Backend: "postgres", PostgresDSN: "postgres://localhost/boards"},
			wantErr: nil,
		},
		{
			name:    "valid sqlite config",
			config:  Config{Backend: "sqlite", DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "sqlite with empty DataDir is valid at config level",
			config:  Config{Backend: "sqlite", DataDir: ""},
			wantErr: nil,
		},
		{
			name:    "memory needs nothing else",
			config:  Config{Backend: "memory"},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	if err := DefaultRetryPolicy.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	if err := (RetryPolicy{}).Validate(); !errors.Is(err, ErrRetryInvalid) {
		t.Fatalf("expected ErrRetryInvalid, got %v", err)
	}
}

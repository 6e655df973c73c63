package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"wrapped deadline", fmt.Errorf("put: %w", context.DeadlineExceeded), ErrTimeout},
		{"timed out message", errors.New("operation timed out"), ErrTimeout},
		{"permission denied", errors.New("open /data/kv/x: permission denied"), ErrPermissionDenied},
		{"forbidden", errors.New("api error Forbidden: 403"), ErrPermissionDenied},
		{"enoent", errors.New("open /data/kv/x: no such file or directory"), ErrNotFound},
		{"nosuchkey", errors.New("NoSuchKey: The specified key does not exist."), ErrNotFound},
		{"disk full", errors.New("write /data/kv/x: no space left on device"), ErrDiskFull},
		{"redis oom", errors.New("OOM command not allowed when used memory > 'maxmemory'"), ErrDiskFull},
		{"refused", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), ErrNetwork},
		{"closed sentinel", ErrClosed, ErrClosed},
		{"unclassified", errors.New("something odd"), ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.wantKind {
				t.Errorf("classify(%q) = %v, want %v", tt.err, got, tt.wantKind)
			}
		})
	}
}

func TestStorageError_Chain(t *testing.T) {
	underlying := errors.New("no space left on device")
	err := wrap(underlying, "set", "_chunk-episode-1-0")

	if !errors.Is(err, ErrDiskFull) {
		t.Error("expected errors.Is(err, ErrDiskFull)")
	}
	if !errors.Is(err, underlying) {
		t.Error("expected underlying error in chain")
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatal("expected *StorageError")
	}
	if se.Op != "set" || se.Key != "_chunk-episode-1-0" {
		t.Errorf("StorageError = %+v", se)
	}
	want := "set _chunk-episode-1-0: no space left on device: no space left on device"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := wrap(nil, "get", "k"); err != nil {
		t.Errorf("wrap(nil) = %v, want nil", err)
	}
}

func TestWrap_DoesNotDoubleWrap(t *testing.T) {
	inner := notFound("get", "k")
	if got := wrap(inner, "list", ""); got != inner {
		t.Errorf("wrap re-wrapped a StorageError: %v", got)
	}
}

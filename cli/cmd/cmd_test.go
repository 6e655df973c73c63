package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

var episodeAudio = bytes.Repeat([]byte("frame-"), 64)

func audioServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		for i := 0; i < len(episodeAudio); i += 100 {
			_, _ = w.Write(episodeAudio[i:min(i+100, len(episodeAudio))])
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// run executes the app against an fs store rooted at dir and returns the
// exit code.
func run(t *testing.T, dir string, args ...string) int {
	t.Helper()
	app := NewApp("test")
	app.ExitErrHandler = func(*cli.Context, error) {}
	argv := append([]string{"spool", "--store-path", dir, "--format", "json", "--log-level", "error"}, args...)
	err := app.RunContext(t.Context(), argv)
	if err == nil {
		return exitSuccess
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	t.Logf("unexpected error: %v", err)
	return -1
}

func TestGlobalFlags(t *testing.T) {
	want := map[string]bool{
		"config": false, "log-level": false, "store-backend": false,
		"store-path": false, "redis-url": false, "format": false, "no-color": false,
	}
	for _, f := range GlobalFlags() {
		want[f.Names()[0]] = true
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing global flag --%s", name)
		}
	}
}

func TestFetchAssembleDelete(t *testing.T) {
	srv := audioServer(t)
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "episode.mp3")

	if code := run(t, dir, "fetch", "--quiet", "--id", "42", srv.URL+"/ep.mp3"); code != exitSuccess {
		t.Fatalf("fetch exit = %d", code)
	}
	if code := run(t, dir, "fetch", "--quiet", "--id", "42", srv.URL+"/other.mp3"); code != exitDownloadFailure {
		t.Errorf("refetch of downloaded id exit = %d, want %d", code, exitDownloadFailure)
	}
	if code := run(t, dir, "inspect", "--id", "42"); code != exitSuccess {
		t.Fatalf("inspect exit = %d", code)
	}
	if code := run(t, dir, "assemble", "--id", "42", "-o", out); code != exitSuccess {
		t.Fatalf("assemble exit = %d", code)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, episodeAudio) {
		t.Errorf("assembled %d bytes, want %d", len(got), len(episodeAudio))
	}

	if code := run(t, dir, "delete", "--id", "42"); code != exitSuccess {
		t.Fatalf("delete exit = %d", code)
	}
	if code := run(t, dir, "assemble", "--id", "42", "-o", out); code != exitDownloadFailure {
		t.Errorf("assemble after delete exit = %d, want %d", code, exitDownloadFailure)
	}
}

func TestFetch_TransportFailureExitCode(t *testing.T) {
	srv := audioServer(t)
	if code := run(t, t.TempDir(), "fetch", "--quiet", srv.URL+"/missing.mp3"); code != exitDownloadFailure {
		t.Errorf("exit = %d, want %d", code, exitDownloadFailure)
	}
}

func TestFetch_UsageErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"no urls", []string{"fetch"}},
		{"id with two urls", []string{"fetch", "--id", "1", "https://a/1.mp3", "https://a/2.mp3"}},
		{"bad scheme", []string{"fetch", "ftp://a/1.mp3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := run(t, dir, tt.args...); code != exitUsage {
				t.Errorf("exit = %d, want %d", code, exitUsage)
			}
		})
	}
}

func TestSetup_InvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "spool.yaml")
	if err := os.WriteFile(cfgPath, []byte("store:\n  backend: tape\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code := run(t, t.TempDir(), "--config", cfgPath, "list"); code != exitUsage {
		t.Errorf("exit = %d, want %d", code, exitUsage)
	}
}

func TestSetup_InvalidLogLevel(t *testing.T) {
	app := NewApp("test")
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(t.Context(), []string{"spool", "--store-backend", "memory", "--log-level", "loud", "list"})
	var ec cli.ExitCoder
	if !errors.As(err, &ec) || ec.ExitCode() != exitUsage {
		t.Errorf("err = %v, want exit %d", err, exitUsage)
	}
}

func TestSetup_StoreOpenFailure(t *testing.T) {
	app := NewApp("test")
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.RunContext(t.Context(), []string{"spool", "--store-backend", "redis", "--redis-url", "redis://127.0.0.1:1", "list"})
	var ec cli.ExitCoder
	if !errors.As(err, &ec) || ec.ExitCode() != exitStorage {
		t.Errorf("err = %v, want exit %d", err, exitStorage)
	}
}

func TestVersion(t *testing.T) {
	if code := run(t, t.TempDir(), "version"); code != exitSuccess {
		t.Errorf("exit = %d", code)
	}
}

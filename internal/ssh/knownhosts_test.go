package ssh

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/die-net/linerelay/internal/testutil"
)

func TestNewHostKeyCallback(t *testing.T) {
	t.Parallel()

	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 22}

	t.Run("empty path accepts any key", func(t *testing.T) {
		t.Parallel()

		cb, err := NewHostKeyCallback("")
		if err != nil {
			t.Fatalf("NewHostKeyCallback: %v", err)
		}
		if err := cb("example.com:22", addr, testutil.MustGenerateSigner(t).PublicKey()); err != nil {
			t.Fatalf("expected any key to be accepted: %v", err)
		}
	})

	t.Run("creates directory and file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "subdir", "known_hosts")
		if _, err := NewHostKeyCallback(path); err != nil {
			t.Fatalf("NewHostKeyCallback: %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("file not created: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("expected file mode 0600, got %o", info.Mode().Perm())
		}
	})

	t.Run("trust on first use then verify", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "known_hosts")
		cb, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatalf("NewHostKeyCallback: %v", err)
		}

		key := testutil.MustGenerateSigner(t).PublicKey()
		if err := cb("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("first contact should be accepted: %v", err)
		}

		data, err := os.ReadFile(path) //nolint:gosec // Test path from t.TempDir().
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "192.0.2.1") {
			t.Fatalf("expected host in known_hosts, got: %s", data)
		}

		reloaded, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatalf("NewHostKeyCallback (reload): %v", err)
		}
		if err := reloaded("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("known host with same key should be accepted: %v", err)
		}

		other := testutil.MustGenerateSigner(t).PublicKey()
		err = reloaded("192.0.2.1:22", addr, other)
		if !errors.Is(err, ErrHostKeyMismatch) {
			t.Fatalf("expected ErrHostKeyMismatch, got %v", err)
		}
	})
}

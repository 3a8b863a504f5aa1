package ssh

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/die-net/linerelay/internal/testutil"
)

func TestClientConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  ClientConfig
		wantErr string
	}{
		{
			name:    "missing username",
			config:  ClientConfig{Password: "pass"},
			wantErr: "missing username",
		},
		{
			name:    "missing auth method",
			config:  ClientConfig{Username: "user"},
			wantErr: "missing password or key",
		},
		{
			name:   "password",
			config: ClientConfig{Username: "user", Password: "pass"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestHandshake(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	sshLn := testutil.StartSSHForwardServer(t, ctx, "user", "pass")

	dial := func(password string) (*ssh.Client, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", sshLn.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		return Handshake(conn, ClientConfig{
			Username:         "user",
			Password:         password,
			HandshakeTimeout: 2 * time.Second,
		}, sshLn.Addr().String())
	}

	client, err := dial("pass")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	c, err := client.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	testutil.AssertEcho(t, c, c, []byte("hello"))

	if _, err := dial("wrong"); err == nil {
		t.Fatal("expected handshake with wrong password to fail")
	}
}

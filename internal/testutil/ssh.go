package testutil

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

type directTCPIPPayload struct {
	Host       string
	Port       uint32
	OriginHost string
	OriginPort uint32
}

// MustGenerateSigner returns a fresh ed25519 signer.
func MustGenerateSigner(t *testing.T) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

// StartSSHForwardServer runs an SSH server that accepts password auth for
// username/password and serves "direct-tcpip" channels by dialing the
// requested destination.
func StartSSHForwardServer(t *testing.T, ctx context.Context, username, password string) net.Listener {
	t.Helper()

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() != username || string(pass) != password {
				return nil, errors.New("invalid credentials")
			}
			return &ssh.Permissions{}, nil
		},
	}
	cfg.AddHostKey(MustGenerateSigner(t))

	return StartAcceptServer(t, ctx, func(c net.Conn) {
		_, chans, reqs, err := ssh.NewServerConn(c, cfg)
		if err != nil {
			return
		}
		go ssh.DiscardRequests(reqs)

		for newChan := range chans {
			go serveDirectTCPIP(ctx, newChan)
		}
	})
}

func serveDirectTCPIP(ctx context.Context, newChan ssh.NewChannel) {
	if newChan.ChannelType() != "direct-tcpip" {
		_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel")
		return
	}

	var p directTCPIPPayload
	if err := ssh.Unmarshal(newChan.ExtraData(), &p); err != nil {
		_ = newChan.Reject(ssh.Prohibited, "bad direct-tcpip payload")
		return
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port))))
	if err != nil {
		_ = newChan.Reject(ssh.ConnectionFailed, "dial failed")
		return
	}
	defer dst.Close()

	ch, reqs, err := newChan.Accept()
	if err != nil {
		return
	}
	defer ch.Close()
	go ssh.DiscardRequests(reqs)

	g := errgroup.Group{}
	g.Go(func() error {
		_, err := io.Copy(dst, ch)
		if tc, ok := dst.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(ch, dst)
		_ = ch.CloseWrite()
		return err
	})
	_ = g.Wait()
}

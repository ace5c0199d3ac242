package retroctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/broadcast"
	"github.com/dmitrijs2005/postfacto/internal/server/config"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/services"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	gs "github.com/dmitrijs2005/postfacto/internal/server/grpc"
)

type fakeBackend struct {
	cfg       *config.Config
	migrated  bool
	passwords map[string]string
	closed    bool
	err       error
}

func (f *fakeBackend) Migrate(context.Context) error {
	f.migrated = true
	return f.err
}

func (f *fakeBackend) MagicLink(_ context.Context, slug string) (*services.MagicLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.MagicLink{
		Token:     "tok-" + slug,
		URL:       f.cfg.PublicURL + "/api/join/tok-" + slug,
		ExpiresAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeBackend) SetPassword(_ context.Context, slug, password string) error {
	if f.err != nil {
		return f.err
	}
	f.passwords[slug] = password
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func newTestCLI(b *fakeBackend, passwords ...string) (*CLI, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	c := New(out, errOut)
	c.openBackend = func(_ context.Context, cfg *config.Config) (Backend, error) {
		b.cfg = cfg
		return b, nil
	}
	c.readPassword = func(int) ([]byte, error) {
		if len(passwords) == 0 {
			return nil, errors.New("no input")
		}
		p := passwords[0]
		passwords = passwords[1:]
		return []byte(p), nil
	}
	return c, out, errOut
}

func TestMigrate(t *testing.T) {
	b := &fakeBackend{}
	c, out, _ := newTestCLI(b)

	require.Equal(t, 0, c.Execute(context.Background(), []string{"migrate", "--dsn", "postgres://x"}))
	assert.True(t, b.migrated)
	assert.True(t, b.closed)
	assert.Equal(t, "postgres://x", b.cfg.DatabaseDSN)
	assert.Contains(t, out.String(), "Migrations applied")
}

func TestMagicLink_PrintsURL(t *testing.T) {
	b := &fakeBackend{}
	c, out, _ := newTestCLI(b)

	require.Equal(t, 0, c.Execute(context.Background(), []string{"magic-link", "team-a", "--secret", "s3"}))
	assert.Equal(t, "s3", b.cfg.SecretKey)
	assert.Equal(t, b.cfg.PublicURL+"/api/join/tok-team-a\n", out.String())
}

func TestMagicLink_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unknown retro", fmt.Errorf("retro %q: %w", "nope", common.ErrorNotFound), "retro not found"},
		{"disabled", common.Validation("magic link is disabled"), "magic link is disabled"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _, errOut := newTestCLI(&fakeBackend{err: tc.err})
			assert.Equal(t, 1, c.Execute(context.Background(), []string{"magic-link", "nope"}))
			assert.Contains(t, errOut.String(), tc.want)
		})
	}
}

func TestMagicLink_RequiresSlug(t *testing.T) {
	c, _, _ := newTestCLI(&fakeBackend{})
	assert.Equal(t, 1, c.Execute(context.Background(), []string{"magic-link"}))
}

func TestSetPassword(t *testing.T) {
	b := &fakeBackend{passwords: map[string]string{}}
	c, out, _ := newTestCLI(b, "hunter2", "hunter2")

	require.Equal(t, 0, c.Execute(context.Background(), []string{"set-password", "team-a"}))
	assert.Equal(t, "hunter2", b.passwords["team-a"])
	assert.Contains(t, out.String(), "Password updated")
}

func TestSetPassword_Mismatch(t *testing.T) {
	b := &fakeBackend{passwords: map[string]string{}}
	c, _, errOut := newTestCLI(b, "hunter2", "hunter3")

	assert.Equal(t, 1, c.Execute(context.Background(), []string{"set-password", "team-a"}))
	assert.Empty(t, b.passwords)
	assert.Contains(t, errOut.String(), errPasswordMismatch.Error())
}

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

type publicRetros struct{}

func (publicRetros) Get(_ context.Context, slug string) (*models.Retro, error) {
	return &models.Retro{ID: 7, Slug: slug}, nil
}

type openGate struct{}

func (openGate) Load(_ context.Context, id string) (*session.Session, error) {
	return session.New(id), nil
}

func (openGate) Authorize(context.Context, *models.Retro) error { return nil }

func (openGate) VerifyMagicLink(context.Context, string) (*models.Retro, error) {
	return nil, common.AuthFailed("invalid or expired link")
}

func TestWatch_PrintsEventsUntilRetroDeleted(t *testing.T) {
	hub := broadcast.NewHub()
	srv := gs.NewGRPCServer("bufnet", nopLogger{}, publicRetros{}, openGate{}, hub)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, lis) }()
	defer func() {
		cancel()
		<-served
	}()

	c, out, _ := newTestCLI(&fakeBackend{})
	c.dial = func(string) (*grpc.ClientConn, error) {
		return grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	done := make(chan int, 1)
	go func() { done <- c.Execute(ctx, []string{"watch", "team-a", "--session", "abc"}) }()

	topic := broadcast.Topic(7)
	require.Eventually(t, func() bool { return hub.Subscribers(topic) > 0 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(ctx, topic, []byte(`{"type":"item.changed","retro_id":7}`))
	hub.Publish(ctx, topic, []byte(`{"type":"retro.deleted","retro_id":7}`))

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not finish after retro.deleted")
	}
	assert.Contains(t, out.String(), `"item.changed"`)
	assert.Contains(t, out.String(), `"retro.deleted"`)
}

package grpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"characterchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type flagHealth struct{ healthy atomic.Bool }

func (f *flagHealth) IsSystemHealthy() bool { return f.healthy.Load() }

func startServer(t *testing.T, source HealthSource) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(source, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, healthpb.NewHealthClient(conn)
}

func TestHealth_ReflectsSource(t *testing.T) {
	source := &flagHealth{}
	source.healthy.Store(true)
	srv, client := startServer(t, source)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	source.healthy.Store(false)
	srv.refresh()

	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

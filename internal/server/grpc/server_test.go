package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Additional-Code/tabula/pkg/errorbank"
)

type stubHealth struct {
	err error
}

func (s *stubHealth) Driver() string              { return "memory" }
func (s *stubHealth) Check(context.Context) error { return s.err }

func TestToStatus(t *testing.T) {
	assert.NoError(t, ToStatus(nil))

	st, _ := status.FromError(ToStatus(errorbank.InvalidAction()))
	assert.Equal(t, codes.InvalidArgument, st.Code())
	assert.Equal(t, "Invalid action", st.Message())

	st, _ = status.FromError(ToStatus(errorbank.Store(errors.New("quota exceeded"))))
	assert.Equal(t, errorbank.Store(errors.New("x")).GRPCCode(), st.Code())

	original := status.Error(codes.Unavailable, "down")
	assert.Equal(t, original, ToStatus(original))
}

func TestHealthFollowsStore(t *testing.T) {
	ln := bufconn.Listen(1 << 20)
	server := NewServer(zap.NewNop())
	hs := NewHealth(server)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	store := &stubHealth{}
	ReportHealth(ctx, hs, store)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: StoreService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	store.err = errors.New("connection refused")
	ReportHealth(ctx, hs, store)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

package adminrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
	"github.com/chimera-pool/chimera-pool-core/internal/migration"
	"github.com/chimera-pool/chimera-pool-core/internal/validation"
)

// #region harness
type harness struct {
	client *Client
	health healthpb.HealthClient
	ctrl   *migration.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	vcfg := validation.DefaultConfig()
	vcfg.PerformanceTarget = 1
	vcfg.PerformanceWindow = time.Millisecond
	ctrl, err := migration.New(engine.NewBlake2s(), migration.DefaultConfig(),
		migration.WithValidator(validation.New(vcfg, nil)))
	require.NoError(t, err)

	hs := health.NewServer()
	srv := grpc.NewServer()
	Register(srv, NewServer(ctrl, engine.DefaultRegistry(), hs, nil))
	healthpb.RegisterHealthServer(srv, hs)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough://bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: NewClient(conn), health: healthpb.NewHealthClient(conn), ctrl: ctrl}
}

func (h *harness) candidateHealth(t *testing.T) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: CandidateHealth})
	require.NoError(t, err)
	return resp.GetStatus()
}

// #endregion harness

func TestStatus_Initial(t *testing.T) {
	h := newHarness(t)
	st, err := h.client.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "blake2s_1.0.0", st["active"])
	assert.Equal(t, "", st["staged"])
	assert.Equal(t, "idle", st["state"])
	assert.Equal(t, "not_staged", st["staging"])
	assert.NotContains(t, st, "report")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, h.candidateHealth(t))
}

func TestStage_ErrorsMapToCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Stage(ctx, StageRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Stage(ctx, StageRequest{Engine: "md5"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.Start(ctx)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.client.Advance(ctx)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	// same identity as the active engine fails compatibility
	_, err = h.client.Stage(ctx, StageRequest{Engine: "blake2s"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "validation failed")
}

func TestLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	st, err := h.client.Stage(ctx, StageRequest{Engine: "sha256d", Name: "sha256d-canary", Version: "2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "sha256d-canary_2.0.0", st["staged"])
	assert.Equal(t, "validation_passed", st["staging"])
	report, ok := st["report"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, report["success"])
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.candidateHealth(t))

	_, err = h.client.Stage(ctx, StageRequest{Engine: "scrypt"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	st, err = h.client.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shadow_mode", st["state"])
	assert.NotEmpty(t, st["migration_id"])

	_, err = h.client.Advance(ctx)
	assert.Equal(t, codes.Unavailable, status.Code(err), "too few shadow samples")

	for i := range 60 {
		_, err := h.ctrl.ProcessRequest([]byte{byte(i)})
		require.NoError(t, err)
	}
	st, err = h.client.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gradual_migration", st["state"])
	assert.Equal(t, 0.01, st["percentage"])

	st, err = h.client.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rollback_complete", st["state"])
	assert.Equal(t, "blake2s_1.0.0", st["active"])
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, h.candidateHealth(t))
}

func TestDial(t *testing.T) {
	c, err := Dial("localhost:0")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
	assert.NoError(t, NewClient(nil).Close())
}

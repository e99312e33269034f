package adminrpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chimera-pool/chimera-pool-core/internal/engine"
	"github.com/chimera-pool/chimera-pool-core/internal/migration"
)

// Controller is the control plane the server drives.
type Controller interface {
	Stage(ctx context.Context, candidate engine.Engine) (string, error)
	StartMigration(ctx context.Context) (string, error)
	AdvanceMigration(ctx context.Context) (migration.State, error)
	RollbackMigration(ctx context.Context) (migration.State, error)
	Status() migration.StatusSnapshot
}

// Server implements MigrationControlServer. Stage requests name a registry
// engine; an optional name, version or fail_rate wraps it as a canary.
type Server struct {
	ctrl   Controller
	reg    *engine.Registry
	health *health.Server
	logger *slog.Logger
}

// NewServer returns a server. hs may be nil; when set, its CandidateHealth
// status follows the controller after every call.
func NewServer(ctrl Controller, reg *engine.Registry, hs *health.Server, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default().With("component", "adminrpc")
	}
	s := &Server{ctrl: ctrl, reg: reg, health: hs, logger: logger}
	s.syncHealth()
	return s
}

func (s *Server) Status(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return s.reply()
}

func (s *Server) Stage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	name := f["engine"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "engine is required")
	}
	inner, err := s.reg.Get(name)
	if err != nil {
		return nil, toStatus(err)
	}

	candidate := inner
	alias, version := f["name"].GetStringValue(), f["version"].GetStringValue()
	rate := f["fail_rate"].GetNumberValue()
	if alias != "" || version != "" || rate > 0 {
		candidate = engine.NewFaulty(inner, alias, version, rate)
	}

	s.logger.Info("stage requested", "engine", engine.Identity(candidate))
	if _, err := s.ctrl.Stage(ctx, candidate); err != nil {
		return nil, toStatus(err)
	}
	return s.reply()
}

func (s *Server) Start(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if _, err := s.ctrl.StartMigration(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.reply()
}

func (s *Server) Advance(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if _, err := s.ctrl.AdvanceMigration(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.reply()
}

func (s *Server) Rollback(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if _, err := s.ctrl.RollbackMigration(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.reply()
}

func (s *Server) reply() (*structpb.Struct, error) {
	snap := s.ctrl.Status()
	s.syncHealth()
	out, err := structpb.NewStruct(Snapshot(snap))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return out, nil
}

func (s *Server) syncHealth() {
	if s.health == nil {
		return
	}
	st := s.ctrl.Status()
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if st.State.IsMigrating() || st.Staging == migration.ValidationPassed || st.Staging == migration.Ready {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(CandidateHealth, serving)
}

// #region status-mapping

func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, engine.ErrUnknownEngine):
		code = codes.NotFound
	case errors.Is(err, migration.ErrStagingInProgress), errors.Is(err, migration.ErrMigrationInProgress):
		code = codes.AlreadyExists
	case errors.Is(err, migration.ErrAdvanceDeferred):
		code = codes.Unavailable
	case errors.Is(err, migration.ErrStagingAborted):
		code = codes.Aborted
	case errors.Is(err, migration.ErrValidationFailed),
		errors.Is(err, migration.ErrNotReadyForMigration),
		errors.Is(err, migration.ErrInvalidState):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// #endregion status-mapping

// #region snapshot

// Snapshot flattens a status snapshot into structpb-compatible values.
func Snapshot(s migration.StatusSnapshot) map[string]any {
	out := map[string]any{
		"active":       s.ActiveIdentity,
		"staged":       s.StagedIdentity,
		"staging":      s.Staging.String(),
		"state":        s.State.Kind.String(),
		"percentage":   s.State.Percentage,
		"migration_id": s.MigrationID,
		"metrics": map[string]any{
			"shadow_successes":     float64(s.Metrics.ShadowSuccesses),
			"shadow_errors":        float64(s.Metrics.ShadowErrors),
			"migration_successes":  float64(s.Metrics.MigrationSuccesses),
			"migration_errors":     float64(s.Metrics.MigrationErrors),
			"shadow_error_rate":    s.Metrics.ShadowErrorRate,
			"migration_error_rate": s.Metrics.MigrationErrorRate,
		},
	}
	if r := s.Report; r != nil {
		out["report"] = map[string]any{
			"success":           r.Success(),
			"compatibility":     r.Compatibility,
			"performance_score": r.PerformanceScore,
			"security":          r.Security,
			"test_vectors":      r.TestVectors,
			"memory_ok":         r.MemoryOK,
			"errors":            anyStrings(r.Errors),
			"warnings":          anyStrings(r.Warnings),
		}
	}
	return out
}

func anyStrings(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// #endregion snapshot

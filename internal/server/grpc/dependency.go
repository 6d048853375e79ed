package grpc

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 2 * time.Second

// Dependency is one backing service the health status follows.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

func DatabaseDependency(db *sql.DB) Dependency {
	return Dependency{Name: "postgres", Check: db.PingContext}
}

func RedisDependency(client redis.UniversalClient) Dependency {
	return Dependency{Name: "redis", Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// check pings every dependency and publishes the combined result.
func (s *GRPCServer) check(ctx context.Context) bool {
	healthy := true
	for _, p := range s.deps {
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := p.Check(pctx)
		cancel()
		if err != nil {
			healthy = false
			s.logger.Warn(ctx, "health check failed", "dependency", p.Name, "error", err)
		}
	}

	if ctx.Err() != nil {
		return healthy
	}
	if healthy {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

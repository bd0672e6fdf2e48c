package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hamed0406/watchdog/internal/domain"
)

// GRPCChecker calls the standard grpc.health.v1 Check method.
type GRPCChecker struct {
	name    string
	addr    string
	service string
}

func NewGRPCChecker(def domain.ServiceDefinition) *GRPCChecker {
	return &GRPCChecker{
		name:    def.Name,
		addr:    net.JoinHostPort(def.Probe.Host, strconv.Itoa(def.Probe.Port)),
		service: def.Probe.GRPCService,
	}
}

func (g *GRPCChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	conn, err := grpc.NewClient(g.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return failure(g.name, start, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: g.service})
	if err != nil {
		if ctx.Err() != nil {
			return failure(g.name, start, ctx.Err())
		}
		return failure(g.name, start, err)
	}
	st := resp.GetStatus()
	details := map[string]any{"serving_status": st.String()}
	switch st {
	case healthpb.HealthCheckResponse_SERVING:
		return withDetails(healthy(g.name, start, "serving"), details)
	case healthpb.HealthCheckResponse_SERVICE_UNKNOWN:
		return withDetails(degraded(g.name, start, fmt.Sprintf("service %q unknown to server", g.service)), details)
	}
	return withDetails(newResult(g.name, start, domain.OutcomeUnhealthy, st.String()), details)
}

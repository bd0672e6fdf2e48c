package probe

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/hamed0406/watchdog/internal/domain"
)

const defaultPingCount = 3

// PingChecker sends ICMP echo requests. Unprivileged mode uses UDP sockets,
// which needs net.ipv4.ping_group_range on Linux.
type PingChecker struct {
	name       string
	host       string
	count      int
	privileged bool
}

func NewPingChecker(def domain.ServiceDefinition) *PingChecker {
	count := def.Probe.Count
	if count <= 0 {
		count = defaultPingCount
	}
	return &PingChecker{name: def.Name, host: def.Probe.Host, count: count, privileged: def.Probe.Privileged}
}

func (p *PingChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	pinger, err := probing.NewPinger(p.host)
	if err != nil {
		return failure(p.name, start, err)
	}
	pinger.Count = p.count
	pinger.Interval = 200 * time.Millisecond
	pinger.SetPrivileged(p.privileged)
	if dl, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(dl)
	}

	if err := pinger.RunWithContext(ctx); err != nil && ctx.Err() == nil {
		return failure(p.name, start, err)
	}
	return pingResult(p.name, p.host, start, pinger.Statistics(), ctx.Err())
}

// pingResult grades a finished run: no replies is Unhealthy, partial loss
// is Degraded.
func pingResult(name, host string, start time.Time, st *probing.Statistics, ctxErr error) domain.CheckResult {
	details := map[string]any{
		"packets_sent": st.PacketsSent,
		"packets_recv": st.PacketsRecv,
		"packet_loss":  st.PacketLoss,
		"avg_rtt_ms":   float64(st.AvgRtt.Microseconds()) / 1000,
	}
	switch {
	case st.PacketsRecv == 0:
		if ctxErr != nil {
			return withDetails(failure(name, start, ctxErr), details)
		}
		return withDetails(failure(name, start, fmt.Errorf("%w: no reply from %s", domain.ErrConnectionFailure, host)), details)
	case st.PacketsRecv < st.PacketsSent:
		return withDetails(degraded(name, start, fmt.Sprintf("%.0f%% packet loss to %s", st.PacketLoss, host)), details)
	}
	return withDetails(healthy(name, start, fmt.Sprintf("%d/%d replies, avg %s", st.PacketsRecv, st.PacketsSent, st.AvgRtt.Round(time.Microsecond))), details)
}

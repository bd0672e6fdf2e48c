package probe

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

const (
	telnetIAC   = 255
	bannerBytes = 4096
)

// TCPChecker dials host:port and optionally runs a tiny send/expect exchange,
// which covers raw text protocols and telnet banners.
type TCPChecker struct {
	name   string
	addr   string
	send   string
	expect string
	dialer net.Dialer
}

func NewTCPChecker(def domain.ServiceDefinition) *TCPChecker {
	return &TCPChecker{
		name:   def.Name,
		addr:   net.JoinHostPort(def.Probe.Host, strconv.Itoa(def.Probe.Port)),
		send:   def.Probe.Send,
		expect: def.Probe.Expect,
	}
}

func (c *TCPChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return failure(c.name, start, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if c.send != "" {
		if _, err := conn.Write([]byte(c.send)); err != nil {
			return failure(c.name, start, err)
		}
	}
	if c.expect == "" {
		return healthy(c.name, start, "connected to "+c.addr)
	}

	banner, err := readUntil(conn, []byte(c.expect))
	if bytes.Contains(banner, []byte(c.expect)) {
		return healthy(c.name, start, fmt.Sprintf("connected to %s, got %q", c.addr, c.expect))
	}
	if err != nil && len(banner) == 0 {
		return failure(c.name, start, err)
	}
	return failure(c.name, start, protocolError("expected %q, got %q", c.expect, truncate(string(banner), 120)))
}

// readUntil reads until want shows up, the peer stops talking or the
// deadline hits. Telnet negotiation sequences are dropped.
func readUntil(conn net.Conn, want []byte) ([]byte, error) {
	var got []byte
	buf := make([]byte, 512)
	for len(got) < bannerBytes {
		n, err := conn.Read(buf)
		got = append(got, stripTelnet(buf[:n])...)
		if bytes.Contains(got, want) {
			return got, nil
		}
		if err != nil {
			return got, err
		}
	}
	return got, nil
}

func stripTelnet(p []byte) []byte {
	out := p[:0:0]
	for i := 0; i < len(p); i++ {
		if p[i] == telnetIAC {
			i += 2
			continue
		}
		out = append(out, p[i])
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

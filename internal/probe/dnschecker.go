package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

// DNS resolution classes.
const (
	DNSResolves    = "RESOLVES"
	DNSNoARecord   = "NO_A_RECORD"
	DNSNXDomain    = "NXDOMAIN"
	DNSServFail    = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName = "INVALID_NAME"
)

type DNSStatus struct {
	Domain        string
	IPs           []net.IP
	CNAME         string
	Nameservers   []string
	Class         string
	ResolverError string
}

// Resolver is the subset of *net.Resolver the DNS check uses.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// CheckDNS classifies how name resolves. A name with nameservers but no
// address records is NO_A_RECORD rather than NXDOMAIN.
func CheckDNS(ctx context.Context, r Resolver, name string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(name)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	if err == nil && len(ips) > 0 {
		s.IPs = ips
		s.Class = DNSResolves
	} else if err != nil {
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServFail
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain || s.Class == "" {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		if s.ResolverError != "" {
			s.Class = DNSServFail
		} else {
			s.Class = DNSNXDomain
		}
	}
	return s
}

type DNSChecker struct {
	Resolver Resolver
	name     string
	host     string
}

func NewDNSChecker(def domain.ServiceDefinition) *DNSChecker {
	host := def.Probe.Host
	if host == "" {
		host = extractHost(def.Probe.URL)
	}
	return &DNSChecker{Resolver: net.DefaultResolver, name: def.Name, host: host}
}

func (d *DNSChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	st := CheckDNS(ctx, d.Resolver, d.host)
	details := map[string]any{"class": st.Class}
	if len(st.IPs) > 0 {
		ips := make([]string, len(st.IPs))
		for i, ip := range st.IPs {
			ips[i] = ip.String()
		}
		details["ips"] = ips
	}
	if st.CNAME != "" {
		details["cname"] = st.CNAME
	}

	switch st.Class {
	case DNSResolves:
		return withDetails(healthy(d.name, start, fmt.Sprintf("%s resolves to %d address(es)", d.host, len(st.IPs))), details)
	case DNSNoARecord:
		return withDetails(degraded(d.name, start, d.host+" has nameservers but no address records"), details)
	case DNSServFail:
		if ctx.Err() != nil {
			return withDetails(failure(d.name, start, ctx.Err()), details)
		}
	}
	msg := st.Class
	if st.ResolverError != "" {
		msg += ": " + st.ResolverError
	}
	return withDetails(failure(d.name, start, fmt.Errorf("%w: %s", domain.ErrConnectionFailure, msg)), details)
}

func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

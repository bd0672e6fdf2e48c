package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

type clusterHealth struct {
	ClusterName         string `json:"cluster_name"`
	Status              string `json:"status"`
	NumberOfNodes       int    `json:"number_of_nodes"`
	UnassignedShards    int    `json:"unassigned_shards"`
	ActivePrimaryShards int    `json:"active_primary_shards"`
}

// SearchChecker reads the Elasticsearch/OpenSearch cluster health endpoint.
// green is healthy, yellow degraded, red unhealthy.
type SearchChecker struct {
	Client  *http.Client
	name    string
	url     string
	headers map[string]string
}

func NewSearchChecker(def domain.ServiceDefinition) *SearchChecker {
	u := strings.TrimRight(def.Probe.URL, "/")
	if !strings.Contains(u, "/_cluster/health") {
		u += "/_cluster/health"
	}
	return &SearchChecker{Client: &http.Client{}, name: def.Name, url: u, headers: def.Probe.Headers}
}

func (s *SearchChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return failure(s.name, start, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return failure(s.name, start, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failure(s.name, start, protocolError("cluster health returned %s", resp.Status))
	}
	var h clusterHealth
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&h); err != nil {
		return failure(s.name, start, protocolError("decode cluster health: %v", err))
	}
	details := map[string]any{
		"cluster":           h.ClusterName,
		"cluster_status":    h.Status,
		"nodes":             h.NumberOfNodes,
		"unassigned_shards": h.UnassignedShards,
	}
	msg := fmt.Sprintf("cluster %s is %s", h.ClusterName, h.Status)
	switch h.Status {
	case "green":
		return withDetails(healthy(s.name, start, msg), details)
	case "yellow":
		return withDetails(degraded(s.name, start, msg), details)
	case "red":
		return withDetails(newResult(s.name, start, domain.OutcomeUnhealthy, msg), details)
	}
	return withDetails(failure(s.name, start, protocolError("unknown cluster status %q", h.Status)), details)
}

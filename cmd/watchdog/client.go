package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/watchdog/internal/scheduler"
)

type clientFlags struct {
	baseURL string
	key     string
}

// apiClient talks to a running watchdog over its HTTP API.
type apiClient struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

func (f *clientFlags) client() *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(f.baseURL, "/"),
		key:        f.key,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &apiError{Status: resp.StatusCode, Message: body.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) services(ctx context.Context) ([]scheduler.ServiceView, error) {
	var out []scheduler.ServiceView
	err := c.do(ctx, http.MethodGet, "/api/services", &out)
	return out, err
}

func (c *apiClient) service(ctx context.Context, name string) (scheduler.ServiceView, error) {
	var out scheduler.ServiceView
	err := c.do(ctx, http.MethodGet, "/api/services/"+url.PathEscape(name), &out)
	return out, err
}

func (c *apiClient) ack(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/services/"+url.PathEscape(name)+"/ack", nil)
}

type reloadResponse struct {
	Version  uint64    `json:"version"`
	Services int       `json:"services"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (c *apiClient) reload(ctx context.Context) (reloadResponse, error) {
	var out reloadResponse
	err := c.do(ctx, http.MethodPost, "/api/reload", &out)
	return out, err
}

func newStatusCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [service]",
		Short: "Show the health of every service, or of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := f.client()
			if len(args) == 1 {
				v, err := c.service(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printServices(cmd.OutOrStdout(), []scheduler.ServiceView{v})
			}
			views, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			return printServices(cmd.OutOrStdout(), views)
		},
	}
}

func newAckCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ack <service>",
		Short: "Acknowledge the active escalation of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.client().ack(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acknowledged %s\n", args[0])
			return nil
		},
	}
}

func newReloadCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask a running watchdog to re-read its catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := f.client().reload(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalogue v%d active: %d services (loaded %s)\n",
				res.Version, res.Services, res.LoadedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func printServices(w io.Writer, views []scheduler.ServiceView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tTYPE\tSTATUS\tFAILURES\tLATENCY\tESCALATION\tLAST CHECK")
	for _, v := range views {
		status := v.Status.String()
		if v.Suppressed {
			status += " (maint)"
		}
		latency := "-"
		if v.LastResult.Latency > 0 {
			latency = v.LastResult.Latency.Round(time.Millisecond).String()
		}
		esc := "-"
		if v.Escalation != nil {
			esc = fmt.Sprintf("L%d", v.Escalation.Level)
			if v.Escalation.Acknowledged {
				esc += " ack"
			}
		}
		last := "-"
		if !v.LastResult.Timestamp.IsZero() {
			last = v.LastResult.Timestamp.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			v.Name, v.Type, status, v.ConsecutiveFailures, latency, esc, last)
	}
	return tw.Flush()
}

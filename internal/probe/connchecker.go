package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/watchdog/internal/domain"
)

// ConnChecker is healthy when its ping function returns nil. It backs the
// database and message broker service types.
type ConnChecker struct {
	name string
	kind string
	ping func(ctx context.Context) error
}

func (c *ConnChecker) Check(ctx context.Context) domain.CheckResult {
	start := time.Now()
	if err := c.ping(ctx); err != nil {
		return withDetails(failure(c.name, start, err), map[string]any{"driver": c.kind})
	}
	return withDetails(healthy(c.name, start, c.kind+" reachable"), map[string]any{"driver": c.kind})
}

func NewDatabaseChecker(def domain.ServiceDefinition) (*ConnChecker, error) {
	switch def.Probe.Driver {
	case "postgres":
		query := def.Probe.Query
		if query == "" {
			query = "SELECT 1"
		}
		dsn := def.Probe.DSN
		return &ConnChecker{name: def.Name, kind: "postgres", ping: func(ctx context.Context) error {
			return pingPostgres(ctx, dsn, query)
		}}, nil
	case "redis":
		return newRedisChecker(def)
	}
	return nil, fmt.Errorf("%w: database driver %q", domain.ErrConfigInvalid, def.Probe.Driver)
}

func NewBrokerChecker(def domain.ServiceDefinition) (*ConnChecker, error) {
	switch def.Probe.Driver {
	case "rabbitmq":
		url := def.Probe.DSN
		return &ConnChecker{name: def.Name, kind: "rabbitmq", ping: func(ctx context.Context) error {
			return pingRabbit(ctx, url)
		}}, nil
	case "redis":
		return newRedisChecker(def)
	}
	return nil, fmt.Errorf("%w: broker driver %q", domain.ErrConfigInvalid, def.Probe.Driver)
}

func pingPostgres(ctx context.Context, dsn, query string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	if _, err := conn.Exec(ctx, query); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return protocolError("query failed: %v", err)
	}
	return nil
}

func newRedisChecker(def domain.ServiceDefinition) (*ConnChecker, error) {
	opts, err := redis.ParseURL(def.Probe.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: redis dsn: %v", domain.ErrConfigInvalid, err)
	}
	opts.MaxRetries = -1
	return &ConnChecker{name: def.Name, kind: "redis", ping: func(ctx context.Context) error {
		client := redis.NewClient(opts)
		defer client.Close()
		return client.Ping(ctx).Err()
	}}, nil
}

// pingRabbit opens a connection and a channel. amqp091 has no context aware
// dial, so the remaining deadline becomes the dial and handshake timeout.
func pingRabbit(ctx context.Context, url string) error {
	timeout := domain.DefaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	type dialed struct {
		conn *amqp.Connection
		err  error
	}
	done := make(chan dialed, 1)
	go func() {
		conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
		done <- dialed{conn, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if d := <-done; d.conn != nil {
				d.conn.Close()
			}
		}()
		return ctx.Err()
	case d := <-done:
		if d.err != nil {
			return d.err
		}
		defer d.conn.Close()
		ch, err := d.conn.Channel()
		if err != nil {
			return protocolError("open channel: %v", err)
		}
		return ch.Close()
	}
}

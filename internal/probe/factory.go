package probe

import (
	"fmt"
	"time"

	"github.com/hamed0406/watchdog/internal/domain"
)

// Builder turns a service definition into a Checker.
type Builder func(def domain.ServiceDefinition) (Checker, error)

// Factory maps service types to builders. It is not safe for concurrent
// Register calls; register everything before the first Build.
type Factory struct {
	builders     map[domain.ServiceType]Builder
	RetryBackoff time.Duration
}

// NewFactory returns a factory with every built in service type registered.
func NewFactory() *Factory {
	f := &Factory{builders: map[domain.ServiceType]Builder{}, RetryBackoff: 500 * time.Millisecond}
	f.Register(domain.TypeHTTP, func(d domain.ServiceDefinition) (Checker, error) { return NewHTTPChecker(d), nil })
	f.Register(domain.TypeTCP, func(d domain.ServiceDefinition) (Checker, error) { return NewTCPChecker(d), nil })
	f.Register(domain.TypePing, func(d domain.ServiceDefinition) (Checker, error) { return NewPingChecker(d), nil })
	f.Register(domain.TypeDatabase, func(d domain.ServiceDefinition) (Checker, error) { return NewDatabaseChecker(d) })
	f.Register(domain.TypeBroker, func(d domain.ServiceDefinition) (Checker, error) { return NewBrokerChecker(d) })
	f.Register(domain.TypeSearch, func(d domain.ServiceDefinition) (Checker, error) { return NewSearchChecker(d), nil })
	f.Register(domain.TypeScript, func(d domain.ServiceDefinition) (Checker, error) { return NewScriptChecker(d), nil })
	f.Register(domain.TypeJob, func(d domain.ServiceDefinition) (Checker, error) { return NewJobChecker(d) })
	f.Register(domain.TypeGRPC, func(d domain.ServiceDefinition) (Checker, error) { return NewGRPCChecker(d), nil })
	f.Register(domain.TypeDNS, func(d domain.ServiceDefinition) (Checker, error) { return NewDNSChecker(d), nil })
	return f
}

func (f *Factory) Register(t domain.ServiceType, b Builder) {
	f.builders[t] = b
}

// Build returns the checker for def, wrapped in a RetryChecker when the
// definition asks for retries.
func (f *Factory) Build(def domain.ServiceDefinition) (Checker, error) {
	b, ok := f.builders[def.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q (service %s)", domain.ErrUnknownServiceType, def.Type, def.Name)
	}
	c, err := b(def)
	if err != nil {
		return nil, err
	}
	if def.Retries > 0 {
		c = &RetryChecker{Inner: c, Attempts: def.Retries + 1, Backoff: f.RetryBackoff}
	}
	return c, nil
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orca-network/explorer/internal/chain"
	"github.com/orca-network/explorer/internal/logging"
	"github.com/orca-network/explorer/internal/metrics"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/traces"
)

// Service runs the read pipeline against the configured networks.
type Service struct {
	provider    *chain.Provider
	concurrency int
	now         func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithConcurrency bounds the summary fan-out.
func WithConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock replaces the wall clock used for createdAt and timestamp.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a service over provider.
func NewService(provider *chain.Provider, opts ...ServiceOption) *Service {
	s := &Service{
		provider:    provider,
		concurrency: DefaultSummaryConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListRegistrations returns the raw registrations of chainID, newest first.
func (s *Service) ListRegistrations(ctx context.Context, chainID int64) Result[[]RawRegistration] {
	client, err := s.provider.Client(ctx, chainID)
	if err != nil {
		res := Result[[]RawRegistration]{
			Data:     []RawRegistration{},
			Degraded: []Degradation{degrade("registrations", err)},
		}
		s.record(ctx, s.provider.Catalog().Lookup(chainID).Name, res.Degraded)
		return res
	}
	res := ListRegistrations(ctx, client)
	s.record(ctx, client.Network().Name, res.Degraded)
	return res
}

// ListAgents returns the projected agents of chainID that match f, newest
// first.
func (s *Service) ListAgents(ctx context.Context, chainID int64, f Filter) Result[[]AgentData] {
	ctx, span := traces.StartSpan(ctx, "registry.ListAgents", traces.ChainID(chainID))
	defer span.End()

	client, err := s.provider.Client(ctx, chainID)
	if err != nil {
		res := Result[[]AgentData]{
			Data:     []AgentData{},
			Degraded: []Degradation{degrade("registrations", err)},
		}
		s.finish(ctx, span, s.provider.Catalog().Lookup(chainID).Name, 0, res.Degraded)
		return res
	}
	netName := client.Network().Name
	span.SetAttributes(traces.Network(netName))

	regs := ListRegistrations(ctx, client)
	sums := FetchSummaries(ctx, client, regs.Data, s.concurrency)

	now := s.now()
	agents := make([]AgentData, len(regs.Data))
	for i, raw := range regs.Data {
		agents[i] = Project(raw, sums.Data[i].Reputation, sums.Data[i].Validation, now)
	}
	metrics.AgentsProjected.WithLabelValues(netName).Add(float64(len(agents)))

	res := Result[[]AgentData]{
		Data:     ApplyFilters(agents, f),
		Degraded: append(regs.Degraded, sums.Degraded...),
	}
	s.finish(ctx, span, netName, len(res.Data), res.Degraded)
	return res
}

// GetAgent returns the agent with the given id on chainID. The id is
// compared as a decimal string. It returns ErrAgentNotFound when the
// registrations were read and the id is absent, and ErrUpstream when they
// could not be read.
func (s *Service) GetAgent(ctx context.Context, chainID int64, id string) (Result[AgentData], error) {
	ctx, span := traces.StartSpan(ctx, "registry.GetAgent", traces.ChainID(chainID), traces.AgentID(id))
	defer span.End()

	client, err := s.provider.Client(ctx, chainID)
	if err != nil {
		span.SetStatus(codes.Error, "dial failed")
		s.record(ctx, s.provider.Catalog().Lookup(chainID).Name, []Degradation{degrade("registrations", err)})
		return Result[AgentData]{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	netName := client.Network().Name

	regs := ListRegistrations(ctx, client)
	s.record(ctx, netName, regs.Degraded)

	var found *RawRegistration
	for i := range regs.Data {
		if regs.Data[i].AgentID.String() == id {
			found = &regs.Data[i]
			break
		}
	}
	if found == nil {
		if failed := registrationFailure(regs.Degraded); failed != nil {
			span.SetStatus(codes.Error, "registrations unavailable")
			return Result[AgentData]{}, fmt.Errorf("%w: %w", ErrUpstream, failed)
		}
		return Result[AgentData]{}, ErrAgentNotFound
	}

	sums := FetchSummaries(ctx, client, []RawRegistration{*found}, 1)
	s.record(ctx, netName, sums.Degraded)

	agent := Project(*found, sums.Data[0].Reputation, sums.Data[0].Validation, s.now())
	span.SetAttributes(traces.Degraded(len(sums.Degraded)))
	return Result[AgentData]{Data: agent, Degraded: sums.Degraded}, nil
}

// registrationFailure returns the cause when the registration query itself
// failed, as opposed to single undecodable logs.
func registrationFailure(ds []Degradation) error {
	for _, d := range ds {
		if d.Scope == "registrations" {
			return d.Cause
		}
	}
	return nil
}

// ListTransactions returns the registry log feed of chainID, newest first.
func (s *Service) ListTransactions(ctx context.Context, chainID int64) Result[[]TxSummary] {
	ctx, span := traces.StartSpan(ctx, "registry.ListTransactions", traces.ChainID(chainID))
	defer span.End()

	client, err := s.provider.Client(ctx, chainID)
	if err != nil {
		res := Result[[]TxSummary]{Data: []TxSummary{}}
		for _, name := range []string{RegistryIdentity, RegistryReputation, RegistryValidation} {
			res.Degraded = append(res.Degraded, degrade("transactions:"+name, err))
		}
		s.finish(ctx, span, s.provider.Catalog().Lookup(chainID).Name, 0, res.Degraded)
		return res
	}

	res := ListTransactions(ctx, client, s.now())
	s.finish(ctx, span, client.Network().Name, len(res.Data), res.Degraded)
	return res
}

// Networks returns the public descriptors of every configured network.
func (s *Service) Networks() []network.Descriptor {
	nets := s.provider.Networks()
	out := make([]network.Descriptor, 0, len(nets))
	for _, n := range nets {
		out = append(out, n.Descriptor())
	}
	return out
}

func (s *Service) finish(ctx context.Context, span trace.Span, netName string, count int, ds []Degradation) {
	span.SetAttributes(traces.Count(count), traces.Degraded(len(ds)))
	if len(ds) > 0 {
		span.SetStatus(codes.Error, "degraded")
	}
	s.record(ctx, netName, ds)
}

func (s *Service) record(ctx context.Context, netName string, ds []Degradation) {
	for _, d := range ds {
		metrics.DegradationsTotal.WithLabelValues(netName, string(d.Kind)).Inc()
	}
	if len(ds) > 0 {
		logging.L(ctx).Debug("result degraded", "network", netName, "issues", len(ds))
	}
}

// IsUpstream reports whether err means the chain could not be read.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}

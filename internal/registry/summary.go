package registry

import (
	"context"
	"math"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/orca-network/explorer/internal/logging"
)

// DefaultSummaryConcurrency bounds how many agents are fetched at once.
const DefaultSummaryConcurrency = 8

// ReputationSummary reads the unfiltered reputation summary of agentID.
func ReputationSummary(ctx context.Context, r SummaryReader, agentID *big.Int) (Summary, error) {
	count, score, err := r.ReputationSummary(ctx, agentID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Count: narrow(count), Score: int(score)}, nil
}

// ValidationSummary reads the unfiltered validation summary of agentID.
func ValidationSummary(ctx context.Context, r SummaryReader, agentID *big.Int) (Summary, error) {
	count, score, err := r.ValidationSummary(ctx, agentID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Count: narrow(count), Score: int(score)}, nil
}

func narrow(v uint64) int {
	if v > math.MaxInt {
		return math.MaxInt
	}
	return int(v)
}

// Summaries is the pair of summaries for one agent.
type Summaries struct {
	Reputation Summary
	Validation Summary
}

// FetchSummaries reads both summaries for every registration, at most
// limit agents at a time. Result i belongs to regs[i]. A failed read
// leaves that summary at zero and is reported; it never affects any other
// read.
func FetchSummaries(ctx context.Context, r SummaryReader, regs []RawRegistration, limit int) Result[[]Summaries] {
	if limit <= 0 {
		limit = DefaultSummaryConcurrency
	}

	out := make([]Summaries, len(regs))
	issues := make([][]Degradation, len(regs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, reg := range regs {
		g.Go(func() error {
			out[i], issues[i] = fetchPair(ctx, r, reg.AgentID)
			return nil
		})
	}
	_ = g.Wait()

	res := Result[[]Summaries]{Data: out}
	for _, d := range issues {
		res.Degraded = append(res.Degraded, d...)
	}
	return res
}

// fetchPair runs the reputation and validation reads for one agent
// concurrently.
func fetchPair(ctx context.Context, r SummaryReader, agentID *big.Int) (Summaries, []Degradation) {
	var (
		s              Summaries
		repErr, valErr error
		pair           errgroup.Group
	)
	pair.Go(func() error {
		s.Reputation, repErr = ReputationSummary(ctx, r, agentID)
		return nil
	})
	pair.Go(func() error {
		s.Validation, valErr = ValidationSummary(ctx, r, agentID)
		return nil
	})
	_ = pair.Wait()

	var issues []Degradation
	id := agentID.String()
	if repErr != nil {
		logging.L(ctx).Warn("reputation summary failed", "agent_id", id, "error", repErr)
		issues = append(issues, degrade("reputation:"+id, repErr))
	}
	if valErr != nil {
		logging.L(ctx).Warn("validation summary failed", "agent_id", id, "error", valErr)
		issues = append(issues, degrade("validation:"+id, valErr))
	}
	return s, issues
}

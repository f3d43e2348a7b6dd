package registry

import (
	"context"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orca-network/explorer/internal/chain"
	"github.com/orca-network/explorer/internal/logging"
)

// ListRegistrations reads every Registered event of the network's identity
// registry and returns them newest first. A failed query yields an empty
// slice and an upstream degradation; logs that do not decode are skipped
// and reported as malformed.
func ListRegistrations(ctx context.Context, r LogReader) Result[[]RawRegistration] {
	cfg := r.Network()
	logger := logging.L(ctx).With("network", cfg.Name)

	logs, err := r.Logs(ctx, chain.LogQuery{
		Addresses: []common.Address{cfg.IdentityRegistry},
		Topics:    [][]common.Hash{{chain.RegisteredEventID}},
		From:      cfg.StartBlock,
		ChunkSize: cfg.LogChunkSize,
	})
	if err != nil {
		logger.Warn("registration query failed", "error", err)
		return Result[[]RawRegistration]{
			Data:     []RawRegistration{},
			Degraded: []Degradation{degrade("registrations", err)},
		}
	}

	res := Result[[]RawRegistration]{Data: make([]RawRegistration, 0, len(logs))}
	for _, l := range logs {
		reg, err := chain.DecodeRegistered(l)
		if err != nil {
			logger.Warn("skipping undecodable registration", "tx", l.TxHash.Hex(), "error", err)
			res.Degraded = append(res.Degraded, degrade("registration:"+l.TxHash.Hex(), err))
			continue
		}
		res.Data = append(res.Data, RawRegistration{
			AgentID:     reg.AgentID,
			Owner:       reg.Owner,
			TokenURI:    reg.TokenURI,
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
		})
	}

	slices.Reverse(res.Data)
	return res
}

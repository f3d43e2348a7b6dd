package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Minimal ABIs: only the members the explorer reads.
const (
	identityRegistryABI = `[
	{"anonymous":false,"inputs":[{"indexed":true,"name":"agentId","type":"uint256"},{"indexed":false,"name":"tokenURI","type":"string"},{"indexed":true,"name":"owner","type":"address"}],"name":"Registered","type":"event"}
]`

	reputationRegistryABI = `[
	{"inputs":[{"name":"agentId","type":"uint256"},{"name":"clientAddresses","type":"address[]"},{"name":"tag1","type":"bytes32"},{"name":"tag2","type":"bytes32"}],"name":"getSummary","outputs":[{"name":"count","type":"uint64"},{"name":"averageScore","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

	validationRegistryABI = `[
	{"inputs":[{"name":"agentId","type":"uint256"},{"name":"validatorAddresses","type":"address[]"},{"name":"tag","type":"bytes32"}],"name":"getSummary","outputs":[{"name":"count","type":"uint64"},{"name":"avgResponse","type":"uint8"}],"stateMutability":"view","type":"function"}
]`
)

// Parsed registry ABIs. Exported so fakes can encode matching payloads.
var (
	IdentityABI   = mustParseABI(identityRegistryABI)
	ReputationABI = mustParseABI(reputationRegistryABI)
	ValidationABI = mustParseABI(validationRegistryABI)

	// RegisteredEventID is topic 0 of the identity Registered event.
	RegisteredEventID = IdentityABI.Events["Registered"].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse ABI: %v", err))
	}
	return parsed
}

// Registration is a decoded Registered event.
type Registration struct {
	AgentID  *big.Int
	Owner    common.Address
	TokenURI string
}

// DecodeRegistered decodes an identity registry Registered log.
// Errors wrap ErrMalformed.
func DecodeRegistered(log types.Log) (Registration, error) {
	if len(log.Topics) != 3 || log.Topics[0] != RegisteredEventID {
		return Registration{}, fmt.Errorf("%w: not a Registered log (tx %s)", ErrMalformed, log.TxHash.Hex())
	}

	out, err := IdentityABI.Unpack("Registered", log.Data)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: Registered data: %v", ErrMalformed, err)
	}
	if len(out) != 1 {
		return Registration{}, fmt.Errorf("%w: Registered data has %d values", ErrMalformed, len(out))
	}
	uri, ok := out[0].(string)
	if !ok {
		return Registration{}, fmt.Errorf("%w: tokenURI is %T", ErrMalformed, out[0])
	}

	return Registration{
		AgentID:  new(big.Int).SetBytes(log.Topics[1].Bytes()),
		Owner:    common.BytesToAddress(log.Topics[2].Bytes()),
		TokenURI: uri,
	}, nil
}

// IsRegistered reports whether log carries the Registered signature.
func IsRegistered(log types.Log) bool {
	return len(log.Topics) > 0 && log.Topics[0] == RegisteredEventID
}

func unpackSummary(a abi.ABI, data []byte) (uint64, uint8, error) {
	out, err := a.Unpack("getSummary", data)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: getSummary: %v", ErrMalformed, err)
	}
	if len(out) != 2 {
		return 0, 0, fmt.Errorf("%w: getSummary returned %d values", ErrMalformed, len(out))
	}
	count, ok := out[0].(uint64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: count is %T", ErrMalformed, out[0])
	}
	score, ok := out[1].(uint8)
	if !ok {
		return 0, 0, fmt.Errorf("%w: score is %T", ErrMalformed, out[1])
	}
	return count, score, nil
}

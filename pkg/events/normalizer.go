package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	walletabi "github.com/0xmhha/wallet-activity/pkg/abi"
	activitytypes "github.com/0xmhha/wallet-activity/pkg/types"
)

// RawKind is one of the events the custodial wallet contract emits
type RawKind uint8

const (
	RawEthDeposit RawKind = iota
	RawEthWithdrawal
	RawTokenDeposit
	RawTokenWithdrawal
	RawContractPaused
	RawContractUnpaused
	RawTokenBlockStatusChanged
)

var rawKindEvents = [...]string{
	RawEthDeposit:              "EthDeposit",
	RawEthWithdrawal:           "EthWithdrawal",
	RawTokenDeposit:            "TokenDeposit",
	RawTokenWithdrawal:         "TokenWithdrawal",
	RawContractPaused:          "ContractPaused",
	RawContractUnpaused:        "ContractUnpaused",
	RawTokenBlockStatusChanged: "TokenBlockStatusChanged",
}

// RawKinds returns every contract event kind in normalization order
func RawKinds() []RawKind {
	kinds := make([]RawKind, len(rawKindEvents))
	for i := range rawKindEvents {
		kinds[i] = RawKind(i)
	}
	return kinds
}

// EventName returns the ABI event name of the kind
func (k RawKind) EventName() string {
	if int(k) < len(rawKindEvents) {
		return rawKindEvents[k]
	}
	return fmt.Sprintf("RawKind(%d)", uint8(k))
}

func (k RawKind) String() string {
	return k.EventName()
}

// RawEvent is a decoded contract log before normalization
type RawEvent struct {
	Kind        RawKind
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Args        map[string]interface{}
}

// Batches groups raw events by kind, one batch per remote query
type Batches map[RawKind][]RawEvent

// ParseLog decodes a node log as an event of the given kind
func ParseLog(kind RawKind, log types.Log) (RawEvent, error) {
	event, err := walletabi.CustodialEvent(kind.EventName())
	if err != nil {
		return RawEvent{}, err
	}
	decoded, err := walletabi.DecodeEventLog(event, log)
	if err != nil {
		return RawEvent{}, err
	}
	return RawEvent{
		Kind:        kind,
		BlockNumber: decoded.BlockNumber,
		TxHash:      decoded.TxHash,
		LogIndex:    decoded.LogIndex,
		Args:        decoded.Args,
	}, nil
}

// ParseLogs decodes a batch of node logs of one kind, skipping removed (reorged) logs
func ParseLogs(kind RawKind, logs []types.Log) ([]RawEvent, error) {
	out := make([]RawEvent, 0, len(logs))
	for i := range logs {
		if logs[i].Removed {
			continue
		}
		raw, err := ParseLog(kind, logs[i])
		if err != nil {
			return nil, fmt.Errorf("log %d of %s in tx %s: %w", i, kind, logs[i].TxHash.Hex(), err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// Normalize flattens per-kind batches into activity items.
// Output follows RawKinds order, then input order within a batch. It neither
// sorts nor deduplicates.
func Normalize(batches Batches) ([]activitytypes.ActivityItem, error) {
	total := 0
	for _, batch := range batches {
		total += len(batch)
	}

	items := make([]activitytypes.ActivityItem, 0, total)
	for _, kind := range RawKinds() {
		for _, raw := range batches[kind] {
			item, err := ToActivity(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// ToActivity maps a single raw event to the unified activity shape
func ToActivity(raw RawEvent) (activitytypes.ActivityItem, error) {
	item := activitytypes.ActivityItem{
		BlockNumber:     raw.BlockNumber,
		TransactionHash: raw.TxHash,
		Data:            &activitytypes.ActivityData{},
	}
	a := args{kind: raw.Kind, values: raw.Args}

	switch raw.Kind {
	case RawEthDeposit:
		item.Kind = activitytypes.EthDeposit
		item.Data.From = a.address("sender")
		item.Data.Amount = a.amount("amount")
	case RawEthWithdrawal:
		item.Kind = activitytypes.EthWithdrawal
		item.Data.To = a.address("recipient")
		item.Data.Amount = a.amount("amount")
	case RawTokenDeposit:
		item.Kind = activitytypes.TokenDeposit
		item.Data.From = a.address("sender")
		item.Data.Token = a.address("token")
		item.Data.Amount = a.amount("amount")
	case RawTokenWithdrawal:
		item.Kind = activitytypes.TokenWithdrawal
		item.Data.To = a.address("recipient")
		item.Data.Token = a.address("token")
		item.Data.Amount = a.amount("amount")
	case RawContractPaused:
		item.Kind = activitytypes.ContractPaused
		item.Data.From = a.address("owner")
	case RawContractUnpaused:
		item.Kind = activitytypes.ContractUnpaused
		item.Data.From = a.address("owner")
	case RawTokenBlockStatusChanged:
		blocked := a.boolean("isBlocked")
		item.Kind = activitytypes.TokenUnblocked
		if blocked != nil && *blocked {
			item.Kind = activitytypes.TokenBlocked
		}
		item.Data.Token = a.address("token")
		item.Data.IsBlocked = blocked
	default:
		return activitytypes.ActivityItem{}, fmt.Errorf("unknown raw event kind %d", uint8(raw.Kind))
	}

	if a.err != nil {
		return activitytypes.ActivityItem{}, a.err
	}
	return item, nil
}

// args reads typed values out of a decoded argument map, keeping the first error
type args struct {
	kind   RawKind
	values map[string]interface{}
	err    error
}

func (a *args) lookup(name string) (interface{}, bool) {
	if a.err != nil {
		return nil, false
	}
	v, ok := a.values[name]
	if !ok {
		a.err = fmt.Errorf("%s: missing argument %q", a.kind, name)
	}
	return v, ok
}

func (a *args) address(name string) *common.Address {
	v, ok := a.lookup(name)
	if !ok {
		return nil
	}
	addr, ok := v.(common.Address)
	if !ok {
		a.err = fmt.Errorf("%s: argument %q is %T, want address", a.kind, name, v)
		return nil
	}
	return &addr
}

func (a *args) amount(name string) *big.Int {
	v, ok := a.lookup(name)
	if !ok {
		return nil
	}
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		a.err = fmt.Errorf("%s: argument %q is %T, want uint256", a.kind, name, v)
		return nil
	}
	return new(big.Int).Set(n)
}

func (a *args) boolean(name string) *bool {
	v, ok := a.lookup(name)
	if !ok {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		a.err = fmt.Errorf("%s: argument %q is %T, want bool", a.kind, name, v)
		return nil
	}
	return &b
}

package types

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EventKind tags an activity item with the wallet contract occurrence it records
type EventKind uint8

const (
	EthDeposit EventKind = iota
	EthWithdrawal
	TokenDeposit
	TokenWithdrawal
	ContractPaused
	ContractUnpaused
	TokenBlocked
	TokenUnblocked
)

var eventKindNames = [...]string{
	EthDeposit:       "EthDeposit",
	EthWithdrawal:    "EthWithdrawal",
	TokenDeposit:     "TokenDeposit",
	TokenWithdrawal:  "TokenWithdrawal",
	ContractPaused:   "ContractPaused",
	ContractUnpaused: "ContractUnpaused",
	TokenBlocked:     "TokenBlocked",
	TokenUnblocked:   "TokenUnblocked",
}

// AllEventKinds lists every activity tag in declaration order
func AllEventKinds() []EventKind {
	kinds := make([]EventKind, len(eventKindNames))
	for i := range eventKindNames {
		kinds[i] = EventKind(i)
	}
	return kinds
}

// String returns the tag name
func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Valid reports whether k is one of the declared tags
func (k EventKind) Valid() bool {
	return int(k) < len(eventKindNames)
}

// ParseEventKind resolves a tag name
func ParseEventKind(name string) (EventKind, error) {
	for i, n := range eventKindNames {
		if n == name {
			return EventKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// MarshalText encodes the kind as its tag name
func (k EventKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid event kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a tag name
func (k *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ActivityData carries the event-specific arguments of an activity item.
// Fields not emitted by the underlying event are nil.
type ActivityData struct {
	Amount    *big.Int
	Token     *common.Address
	IsBlocked *bool
	From      *common.Address
	To        *common.Address
}

// ActivityItem is one entry of a wallet's activity history.
// Items are treated as immutable once constructed.
type ActivityItem struct {
	Kind            EventKind
	BlockNumber     uint64
	TransactionHash common.Hash
	Timestamp       *uint64
	Data            *ActivityData
}

// ItemKey identifies an activity item for deduplication
type ItemKey struct {
	TxHash common.Hash
	Kind   EventKind
}

// Key returns the deduplication key of the item
func (a ActivityItem) Key() ItemKey {
	return ItemKey{TxHash: a.TransactionHash, Kind: a.Kind}
}

// activityDataJSON is the wire form of ActivityData.
// Amounts travel as hex strings so values above 2^53 survive JSON consumers.
type activityDataJSON struct {
	Amount    *hexutil.Big    `json:"amount,omitempty"`
	Token     *common.Address `json:"token,omitempty"`
	IsBlocked *bool           `json:"isBlocked,omitempty"`
	From      *common.Address `json:"from,omitempty"`
	To        *common.Address `json:"to,omitempty"`
}

type activityItemJSON struct {
	Kind            EventKind         `json:"event"`
	BlockNumber     hexutil.Uint64    `json:"blockNumber"`
	TransactionHash common.Hash       `json:"transactionHash"`
	Timestamp       *hexutil.Uint64   `json:"timestamp,omitempty"`
	Data            *activityDataJSON `json:"data,omitempty"`
}

// MarshalJSON encodes the item with hex-encoded integers
func (a ActivityItem) MarshalJSON() ([]byte, error) {
	enc := activityItemJSON{
		Kind:            a.Kind,
		BlockNumber:     hexutil.Uint64(a.BlockNumber),
		TransactionHash: a.TransactionHash,
		Timestamp:       (*hexutil.Uint64)(a.Timestamp),
	}
	if a.Data != nil {
		enc.Data = &activityDataJSON{
			Amount:    (*hexutil.Big)(a.Data.Amount),
			Token:     a.Data.Token,
			IsBlocked: a.Data.IsBlocked,
			From:      a.Data.From,
			To:        a.Data.To,
		}
	}
	return json.Marshal(enc)
}

// UnmarshalJSON decodes an item produced by MarshalJSON
func (a *ActivityItem) UnmarshalJSON(input []byte) error {
	var dec activityItemJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	item := ActivityItem{
		Kind:            dec.Kind,
		BlockNumber:     uint64(dec.BlockNumber),
		TransactionHash: dec.TransactionHash,
		Timestamp:       (*uint64)(dec.Timestamp),
	}
	if dec.Data != nil {
		item.Data = &ActivityData{
			Amount:    (*big.Int)(dec.Data.Amount),
			Token:     dec.Data.Token,
			IsBlocked: dec.Data.IsBlocked,
			From:      dec.Data.From,
			To:        dec.Data.To,
		}
	}
	*a = item
	return nil
}

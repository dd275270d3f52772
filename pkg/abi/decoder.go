package abi

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrNoTopics is returned for logs without a signature topic
	ErrNoTopics = errors.New("log has no topics")

	// ErrEventMismatch is returned when topic0 is not the expected event's signature
	ErrEventMismatch = errors.New("log does not match event signature")
)

// DecodedLog is a log whose arguments have been unpacked against an event ABI.
// Args keep their go-ethereum types: common.Address, *big.Int, bool.
type DecodedLog struct {
	EventName   string
	Address     common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Removed     bool
	Args        map[string]interface{}
}

// DecodeEventLog unpacks log against event.
// Indexed arguments are read from Topics[1:], the rest from Data.
func DecodeEventLog(event abi.Event, log types.Log) (*DecodedLog, error) {
	if len(log.Topics) == 0 {
		return nil, ErrNoTopics
	}
	if log.Topics[0] != event.ID {
		return nil, fmt.Errorf("%w: %s expected %s, got %s",
			ErrEventMismatch, event.RawName, event.ID.Hex(), log.Topics[0].Hex())
	}

	args := make(map[string]interface{}, len(event.Inputs))

	var indexed, nonIndexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		} else {
			nonIndexed = append(nonIndexed, input)
		}
	}

	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse indexed parameters of %s: %w", event.RawName, err)
		}
	}
	if len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
			return nil, fmt.Errorf("failed to parse non-indexed parameters of %s: %w", event.RawName, err)
		}
	}

	return &DecodedLog{
		EventName:   event.RawName,
		Address:     log.Address,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Removed:     log.Removed,
		Args:        args,
	}, nil
}

// EncodeEventLog builds a log for event from named argument values.
// It is the inverse of DecodeEventLog and is used to fabricate node responses.
func EncodeEventLog(event abi.Event, address common.Address, values map[string]interface{}) (types.Log, error) {
	topics := []common.Hash{event.ID}
	var dataArgs abi.Arguments
	var dataValues []interface{}

	for _, input := range event.Inputs {
		value, ok := values[input.Name]
		if !ok {
			return types.Log{}, fmt.Errorf("missing value for %s.%s", event.RawName, input.Name)
		}
		if input.Indexed {
			rule, err := abi.MakeTopics([]interface{}{value})
			if err != nil {
				return types.Log{}, fmt.Errorf("failed to encode topic %s: %w", input.Name, err)
			}
			topics = append(topics, rule[0][0])
			continue
		}
		dataArgs = append(dataArgs, input)
		dataValues = append(dataValues, value)
	}

	data, err := dataArgs.Pack(dataValues...)
	if err != nil {
		return types.Log{}, fmt.Errorf("failed to pack data of %s: %w", event.RawName, err)
	}

	return types.Log{Address: address, Topics: topics, Data: data}, nil
}

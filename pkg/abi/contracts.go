package abi

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CustodialABI holds the events emitted by the per-user custodial wallet contract
const CustodialABI = `[
	{
		"type": "event",
		"name": "EthDeposit",
		"inputs": [
			{"name": "sender", "type": "address", "indexed": true, "internalType": "address"},
			{"name": "amount", "type": "uint256", "indexed": false, "internalType": "uint256"}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "EthWithdrawal",
		"inputs": [
			{"name": "recipient", "type": "address", "indexed": true, "internalType": "address"},
			{"name": "amount", "type": "uint256", "indexed": false, "internalType": "uint256"}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "TokenDeposit",
		"inputs": [
			{"name": "sender", "type": "address", "indexed": true, "internalType": "address"},
			{"name": "token", "type": "address", "indexed": true, "internalType": "address"},
			{"name": "amount", "type": "uint256", "indexed": false, "internalType": "uint256"}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "TokenWithdrawal",
		"inputs": [
			{"name": "recipient", "type": "address", "indexed": true, "internalType": "address"},
			{"name": "token", "type": "address", "indexed": true, "internalType": "address"},
			{"name": "amount", "type": "uint256", "indexed": false, "internalType": "uint256"}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "ContractPaused",
		"inputs": [
			{"name": "owner", "type": "address", "indexed": true, "internalType": "address"}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "ContractUnpaused",
		"inputs": [
			{"name": "owner", "type": "address", "indexed": true, "internalType": "address"}
		],
		"anonymous": false
	},
	{
		"type": "event",
		"name": "TokenBlockStatusChanged",
		"inputs": [
			{"name": "token", "type": "address", "indexed": true, "internalType": "address"},
			{"name": "isBlocked", "type": "bool", "indexed": false, "internalType": "bool"}
		],
		"anonymous": false
	}
]`

// ERC20MetadataABI covers the two ERC-20 views needed for display metadata
const ERC20MetadataABI = `[
	{
		"inputs": [],
		"name": "name",
		"outputs": [{"internalType": "string", "name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	custodialOnce sync.Once
	custodialABI  abi.ABI
	custodialErr  error

	erc20Once sync.Once
	erc20ABI  abi.ABI
	erc20Err  error
)

// Custodial returns the parsed custodial wallet ABI
func Custodial() (abi.ABI, error) {
	custodialOnce.Do(func() {
		custodialABI, custodialErr = abi.JSON(strings.NewReader(CustodialABI))
	})
	return custodialABI, custodialErr
}

// ERC20Metadata returns the parsed ERC-20 metadata ABI
func ERC20Metadata() (abi.ABI, error) {
	erc20Once.Do(func() {
		erc20ABI, erc20Err = abi.JSON(strings.NewReader(ERC20MetadataABI))
	})
	return erc20ABI, erc20Err
}

// CustodialEvent looks up one event of the custodial wallet ABI by name
func CustodialEvent(name string) (abi.Event, error) {
	parsed, err := Custodial()
	if err != nil {
		return abi.Event{}, fmt.Errorf("failed to parse custodial ABI: %w", err)
	}
	event, ok := parsed.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("event %s not found in ABI", name)
	}
	return event, nil
}

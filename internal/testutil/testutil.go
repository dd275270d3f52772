package testutil

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	walletabi "github.com/0xmhha/wallet-activity/pkg/abi"
)

// NewTestLogger creates a development logger for tests
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// TxHash returns a deterministic transaction hash for n
func TxHash(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n))
}

// Address returns a deterministic address for n
func Address(n uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(n))
}

// Wei returns amount as *big.Int, parsing decimal strings of any size
func Wei(amount string) *big.Int {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		panic(fmt.Sprintf("testutil: invalid amount %q", amount))
	}
	return v
}

// CustodialLog builds a node log for the named custodial wallet event
func CustodialLog(t *testing.T, wallet common.Address, event string, block uint64, tx common.Hash, values map[string]interface{}) types.Log {
	t.Helper()
	abiEvent, err := walletabi.CustodialEvent(event)
	if err != nil {
		t.Fatalf("unknown event %s: %v", event, err)
	}
	log, err := walletabi.EncodeEventLog(abiEvent, wallet, values)
	if err != nil {
		t.Fatalf("failed to encode %s log: %v", event, err)
	}
	log.BlockNumber = block
	log.TxHash = tx
	return log
}

// EthDepositLog builds an EthDeposit log
func EthDepositLog(t *testing.T, wallet common.Address, block uint64, tx common.Hash, sender common.Address, amount *big.Int) types.Log {
	t.Helper()
	return CustodialLog(t, wallet, "EthDeposit", block, tx, map[string]interface{}{
		"sender": sender,
		"amount": amount,
	})
}

// EthWithdrawalLog builds an EthWithdrawal log
func EthWithdrawalLog(t *testing.T, wallet common.Address, block uint64, tx common.Hash, recipient common.Address, amount *big.Int) types.Log {
	t.Helper()
	return CustodialLog(t, wallet, "EthWithdrawal", block, tx, map[string]interface{}{
		"recipient": recipient,
		"amount":    amount,
	})
}

// TokenDepositLog builds a TokenDeposit log
func TokenDepositLog(t *testing.T, wallet common.Address, block uint64, tx common.Hash, sender, token common.Address, amount *big.Int) types.Log {
	t.Helper()
	return CustodialLog(t, wallet, "TokenDeposit", block, tx, map[string]interface{}{
		"sender": sender,
		"token":  token,
		"amount": amount,
	})
}

// TokenWithdrawalLog builds a TokenWithdrawal log
func TokenWithdrawalLog(t *testing.T, wallet common.Address, block uint64, tx common.Hash, recipient, token common.Address, amount *big.Int) types.Log {
	t.Helper()
	return CustodialLog(t, wallet, "TokenWithdrawal", block, tx, map[string]interface{}{
		"recipient": recipient,
		"token":     token,
		"amount":    amount,
	})
}

// PauseLog builds a ContractPaused or ContractUnpaused log
func PauseLog(t *testing.T, wallet common.Address, block uint64, tx common.Hash, owner common.Address, paused bool) types.Log {
	t.Helper()
	event := "ContractUnpaused"
	if paused {
		event = "ContractPaused"
	}
	return CustodialLog(t, wallet, event, block, tx, map[string]interface{}{"owner": owner})
}

// TokenBlockStatusLog builds a TokenBlockStatusChanged log
func TokenBlockStatusLog(t *testing.T, wallet common.Address, block uint64, tx common.Hash, token common.Address, blocked bool) types.Log {
	t.Helper()
	return CustodialLog(t, wallet, "TokenBlockStatusChanged", block, tx, map[string]interface{}{
		"token":     token,
		"isBlocked": blocked,
	})
}

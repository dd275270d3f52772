package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKindNames(t *testing.T) {
	kinds := AllEventKinds()
	require.Len(t, kinds, 8)

	for _, k := range kinds {
		parsed, err := ParseEventKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseEventKind("TokenBlockStatusChanged")
	assert.Error(t, err)
	assert.False(t, EventKind(8).Valid())
	assert.Equal(t, "EventKind(9)", EventKind(9).String())
}

func TestEventKindMarshalInvalid(t *testing.T) {
	_, err := EventKind(42).MarshalText()
	assert.Error(t, err)
}

func TestActivityItemJSONPreservesLargeIntegers(t *testing.T) {
	amount, ok := new(big.Int).SetString("1000000000000000000", 10)
	require.True(t, ok)
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	ts := uint64(1738000000)

	item := ActivityItem{
		Kind:            EthDeposit,
		BlockNumber:     21713963,
		TransactionHash: common.HexToHash("0xaa"),
		Timestamp:       &ts,
		Data:            &ActivityData{Amount: amount, From: &from},
	}

	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"EthDeposit"`)
	assert.Contains(t, string(data), `"blockNumber":"0x14b542b"`)
	assert.Contains(t, string(data), `"amount":"0xde0b6b3a7640000"`)

	var decoded ActivityItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, uint64(21713963), decoded.BlockNumber)
	require.NotNil(t, decoded.Data)
	assert.Equal(t, 0, amount.Cmp(decoded.Data.Amount))
	assert.Equal(t, from, *decoded.Data.From)
	assert.Nil(t, decoded.Data.To)
	require.NotNil(t, decoded.Timestamp)
	assert.Equal(t, ts, *decoded.Timestamp)
}

func TestActivityItemJSONWithoutData(t *testing.T) {
	item := ActivityItem{Kind: ContractPaused, BlockNumber: 7, TransactionHash: common.HexToHash("0x01")}

	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"data"`)

	var decoded ActivityItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, item, decoded)
}

func TestActivityItemKey(t *testing.T) {
	hash := common.HexToHash("0xbeef")
	a := ActivityItem{Kind: TokenDeposit, TransactionHash: hash, BlockNumber: 1}
	b := ActivityItem{Kind: TokenDeposit, TransactionHash: hash, BlockNumber: 2}
	c := ActivityItem{Kind: TokenWithdrawal, TransactionHash: hash, BlockNumber: 1}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

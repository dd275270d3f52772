package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/wallet-activity/internal/testutil"
	activitytypes "github.com/0xmhha/wallet-activity/pkg/types"
)

var wallet = testutil.Address(0xca11)

func mustParse(t *testing.T, kind RawKind, logs ...types.Log) []RawEvent {
	t.Helper()
	raws, err := ParseLogs(kind, logs)
	require.NoError(t, err)
	return raws
}

func TestNormalize_AllKinds(t *testing.T) {
	user := testutil.Address(1)
	token := testutil.Address(2)
	owner := testutil.Address(3)
	amount := testutil.Wei("123456789012345678901234567890")

	batches := Batches{
		RawEthDeposit:       mustParse(t, RawEthDeposit, testutil.EthDepositLog(t, wallet, 10, testutil.TxHash(1), user, amount)),
		RawEthWithdrawal:    mustParse(t, RawEthWithdrawal, testutil.EthWithdrawalLog(t, wallet, 11, testutil.TxHash(2), user, amount)),
		RawTokenDeposit:     mustParse(t, RawTokenDeposit, testutil.TokenDepositLog(t, wallet, 12, testutil.TxHash(3), user, token, amount)),
		RawTokenWithdrawal:  mustParse(t, RawTokenWithdrawal, testutil.TokenWithdrawalLog(t, wallet, 13, testutil.TxHash(4), user, token, amount)),
		RawContractPaused:   mustParse(t, RawContractPaused, testutil.PauseLog(t, wallet, 14, testutil.TxHash(5), owner, true)),
		RawContractUnpaused: mustParse(t, RawContractUnpaused, testutil.PauseLog(t, wallet, 15, testutil.TxHash(6), owner, false)),
		RawTokenBlockStatusChanged: mustParse(t, RawTokenBlockStatusChanged,
			testutil.TokenBlockStatusLog(t, wallet, 16, testutil.TxHash(7), token, true),
			testutil.TokenBlockStatusLog(t, wallet, 17, testutil.TxHash(8), token, false),
		),
	}

	items, err := Normalize(batches)
	require.NoError(t, err)
	require.Len(t, items, 8)

	kinds := make([]activitytypes.EventKind, len(items))
	for i, item := range items {
		kinds[i] = item.Kind
	}
	assert.Equal(t, activitytypes.AllEventKinds(), kinds)

	deposit := items[0]
	assert.Equal(t, uint64(10), deposit.BlockNumber)
	assert.Equal(t, testutil.TxHash(1), deposit.TransactionHash)
	assert.Nil(t, deposit.Timestamp)
	require.NotNil(t, deposit.Data.From)
	assert.Equal(t, user, *deposit.Data.From)
	assert.Nil(t, deposit.Data.To)
	assert.Nil(t, deposit.Data.Token)
	assert.Equal(t, 0, amount.Cmp(deposit.Data.Amount))

	withdrawal := items[1]
	require.NotNil(t, withdrawal.Data.To)
	assert.Equal(t, user, *withdrawal.Data.To)
	assert.Nil(t, withdrawal.Data.From)

	tokenDeposit := items[2]
	require.NotNil(t, tokenDeposit.Data.Token)
	assert.Equal(t, token, *tokenDeposit.Data.Token)
	assert.Equal(t, user, *tokenDeposit.Data.From)

	tokenWithdrawal := items[3]
	assert.Equal(t, token, *tokenWithdrawal.Data.Token)
	assert.Equal(t, user, *tokenWithdrawal.Data.To)

	paused := items[4]
	assert.Equal(t, owner, *paused.Data.From)
	assert.Nil(t, paused.Data.Amount)

	blocked := items[6]
	require.NotNil(t, blocked.Data.IsBlocked)
	assert.True(t, *blocked.Data.IsBlocked)
	assert.Equal(t, token, *blocked.Data.Token)

	unblocked := items[7]
	require.NotNil(t, unblocked.Data.IsBlocked)
	assert.False(t, *unblocked.Data.IsBlocked)
}

func TestNormalize_PreservesInputOrderWithoutDedup(t *testing.T) {
	user := testutil.Address(1)
	tx := testutil.TxHash(42)

	// Same tx twice and ascending blocks: the normalizer must keep both as given
	batches := Batches{
		RawEthDeposit: mustParse(t, RawEthDeposit,
			testutil.EthDepositLog(t, wallet, 100, tx, user, testutil.Wei("1")),
			testutil.EthDepositLog(t, wallet, 110, tx, user, testutil.Wei("2")),
		),
	}

	items, err := Normalize(batches)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, uint64(100), items[0].BlockNumber)
	assert.Equal(t, uint64(110), items[1].BlockNumber)
}

func TestNormalize_Empty(t *testing.T) {
	items, err := Normalize(Batches{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseLogs_SkipsRemoved(t *testing.T) {
	log := testutil.EthDepositLog(t, wallet, 5, testutil.TxHash(1), testutil.Address(1), testutil.Wei("1"))
	removed := log
	removed.Removed = true

	raws, err := ParseLogs(RawEthDeposit, []types.Log{removed, log})
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

func TestParseLogs_WrongKind(t *testing.T) {
	log := testutil.EthDepositLog(t, wallet, 5, testutil.TxHash(1), testutil.Address(1), testutil.Wei("1"))

	_, err := ParseLogs(RawTokenDeposit, []types.Log{log})
	assert.Error(t, err)
}

func TestToActivity_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  RawEvent
	}{
		{
			name: "missing amount",
			raw:  RawEvent{Kind: RawEthDeposit, Args: map[string]interface{}{"sender": testutil.Address(1)}},
		},
		{
			name: "wrong address type",
			raw:  RawEvent{Kind: RawContractPaused, Args: map[string]interface{}{"owner": "0x01"}},
		},
		{
			name: "wrong bool type",
			raw: RawEvent{Kind: RawTokenBlockStatusChanged, Args: map[string]interface{}{
				"token":     testutil.Address(1),
				"isBlocked": 1,
			}},
		},
		{
			name: "unknown kind",
			raw:  RawEvent{Kind: RawKind(99)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToActivity(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestRawKindNames(t *testing.T) {
	assert.Len(t, RawKinds(), 7)
	assert.Equal(t, "TokenBlockStatusChanged", RawTokenBlockStatusChanged.String())
	assert.Equal(t, "RawKind(9)", RawKind(9).String())
}

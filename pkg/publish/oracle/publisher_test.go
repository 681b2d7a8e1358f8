package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/logging"
)

// Throwaway key, funded nowhere.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeBackend struct {
	chainID       *big.Int
	gasPrice      *big.Int
	nonce         uint64
	sent          []*types.Transaction
	sendErr       error
	receiptStatus uint64
	receiptErr    error
	onchainPrice  *big.Int
	registered    bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:       big.NewInt(11155111),
		gasPrice:      big.NewInt(3_000_000_000), // 3 gwei
		nonce:         7,
		receiptStatus: types.ReceiptStatusSuccessful,
		registered:    true,
	}
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) { return b.chainID, nil }

func (b *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(1_000_000_000_000_000_000), nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return b.gasPrice, nil
}

func (b *fakeBackend) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if b.receiptErr != nil {
		return nil, b.receiptErr
	}
	return &types.Receipt{
		Status:      b.receiptStatus,
		BlockNumber: big.NewInt(123456),
		GasUsed:     91234,
	}, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	method, err := oracleABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "getPrice":
		price := b.onchainPrice
		if price == nil {
			price = big.NewInt(0)
		}
		return method.Outputs.Pack(price)
	case "isAssetRegistered":
		return method.Outputs.Pack(b.registered)
	}
	return nil, errors.New("unexpected call")
}

func testOracleConfig() config.OracleConfig {
	return config.OracleConfig{
		Enabled:         true,
		RPCURL:          "http://localhost:8545",
		ChainID:         11155111,
		ContractAddress: "0xB44d652354d12Ac56b83112c6ece1fa2ccEfc683",
		Decimals:        18,
		ConfirmTimeout:  config.Duration(200 * time.Millisecond),
	}
}

func newTestPublisher(t *testing.T, backend *fakeBackend) *Publisher {
	t.Helper()
	p, err := newWithBackend(context.Background(), backend, testOracleConfig(), testKeyHex, logging.NewNoopLogger())
	require.NoError(t, err)
	return p
}

func TestScalePrice(t *testing.T) {
	scaled := ScalePrice(decimal.RequireFromString("3.51"), 18)
	assert.Equal(t, "3510000000000000000", scaled.String())

	// Truncation, not rounding.
	scaled = ScalePrice(decimal.New(1, -19), 18) // 1e-19
	assert.Equal(t, "0", scaled.String())
}

func TestDeriveAssetID(t *testing.T) {
	id := DeriveAssetID("H200_HOURLY")
	assert.Equal(t,
		"0x4d8595569ab5d2563e4c149c5de961d0e0732cd0560020b3474d281189c2571e",
		id.Hex())
}

func TestMaxFeePerGas(t *testing.T) {
	// High base fee dominates.
	fee := maxFeePerGas(big.NewInt(30_000_000_000), priorityFeeWei)
	assert.Equal(t, "60000000000", fee.String())

	// On a quiet chain the priority floor dominates.
	fee = maxFeePerGas(big.NewInt(7), priorityFeeWei)
	assert.Equal(t, "2000000000", fee.String())
}

func TestBatchGasLimit(t *testing.T) {
	assert.Equal(t, uint64(80_000), batchGasLimit(1))
	assert.Equal(t, uint64(200_000), batchGasLimit(5))
}

func TestBuildCall_SingleUpdate(t *testing.T) {
	updates := []PriceUpdate{{AssetID: DeriveAssetID("H200_HOURLY"), Price: decimal.RequireFromString("3.51")}}

	method, data, gas, err := buildCall(updates, 18)
	require.NoError(t, err)
	assert.Equal(t, "updatePrice", method)
	assert.Equal(t, uint64(singleUpdateGas), gas)

	decoded, err := oracleABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "updatePrice", decoded.Name)
}

func TestBuildCall_BatchUpdate(t *testing.T) {
	updates := []PriceUpdate{
		{AssetID: DeriveAssetID("H200_HOURLY"), Price: decimal.RequireFromString("3.51")},
		{AssetID: DeriveAssetID("GCP_H200"), Price: decimal.RequireFromString("4.55")},
		{AssetID: DeriveAssetID("AWS_H200"), Price: decimal.RequireFromString("2.65")},
	}

	method, data, gas, err := buildCall(updates, 18)
	require.NoError(t, err)
	assert.Equal(t, "batchUpdatePrices", method)
	assert.Equal(t, uint64(50_000+3*30_000), gas)

	decoded, err := oracleABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "batchUpdatePrices", decoded.Name)
}

func TestPublish_ConfirmedTransaction(t *testing.T) {
	backend := newFakeBackend()
	backend.onchainPrice = ScalePrice(decimal.RequireFromString("3.51"), 18)
	p := newTestPublisher(t, backend)

	receipt, err := p.Publish(context.Background(), []PriceUpdate{
		{AssetID: DeriveAssetID("H200_HOURLY"), Price: decimal.RequireFromString("3.51")},
	})
	require.NoError(t, err)

	assert.Equal(t, "oracle", receipt.Sink)
	assert.Equal(t, uint64(123456), receipt.Block)
	assert.Equal(t, uint64(91234), receipt.GasUsed)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(singleUpdateGas), tx.Gas())
	assert.Equal(t, types.DynamicFeeTxType, int(tx.Type()))
	assert.Equal(t, priorityFeeWei.String(), tx.GasTipCap().String())
	// max(2*base, 2*priority) with a 3 gwei base.
	assert.Equal(t, "6000000000", tx.GasFeeCap().String())
	assert.Equal(t, receipt.Ref, tx.Hash().Hex())
}

func TestPublish_EmptyUpdates(t *testing.T) {
	p := newTestPublisher(t, newFakeBackend())

	_, err := p.Publish(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoUpdates)
}

func TestPublish_RevertedTransaction(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	p := newTestPublisher(t, backend)

	_, err := p.Publish(context.Background(), []PriceUpdate{
		{AssetID: DeriveAssetID("H200_HOURLY"), Price: decimal.RequireFromString("3.51")},
	})
	assert.ErrorIs(t, err, ErrTxReverted)
}

func TestPublish_ConfirmationTimeout(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptErr = errors.New("not found")
	p := newTestPublisher(t, backend)

	_, err := p.Publish(context.Background(), []PriceUpdate{
		{AssetID: DeriveAssetID("H200_HOURLY"), Price: decimal.RequireFromString("3.51")},
	})
	assert.ErrorIs(t, err, ErrConfirmTimeout)
	assert.Len(t, backend.sent, 1, "timeout must not trigger a resubmission")
}

func TestPublish_ReadBackMismatchDoesNotFail(t *testing.T) {
	backend := newFakeBackend()
	backend.onchainPrice = ScalePrice(decimal.RequireFromString("9.99"), 18)
	p := newTestPublisher(t, backend)

	// The on-chain value disagrees with what was submitted; detection is a
	// warning, never an error and never a second transaction.
	_, err := p.Publish(context.Background(), []PriceUpdate{
		{AssetID: DeriveAssetID("H200_HOURLY"), Price: decimal.RequireFromString("3.51")},
	})
	require.NoError(t, err)
	assert.Len(t, backend.sent, 1)
}

func TestPriceMatches_EpsilonBoundary(t *testing.T) {
	submitted := decimal.RequireFromString("3.51")

	assert.True(t, priceMatches(submitted, submitted))
	assert.True(t, priceMatches(submitted, submitted.Add(decimal.New(9, -7))), "just under epsilon")

	// A difference of exactly 1e-6 is already a mismatch.
	assert.False(t, priceMatches(submitted, submitted.Add(decimal.New(1, -6))))
	assert.False(t, priceMatches(submitted, submitted.Sub(decimal.New(1, -6))))
}

func TestVerifyRegistered(t *testing.T) {
	backend := newFakeBackend()
	p := newTestPublisher(t, backend)

	err := p.VerifyRegistered(context.Background(), []common.Hash{DeriveAssetID("H200_HOURLY")})
	assert.NoError(t, err)

	backend.registered = false
	err = p.VerifyRegistered(context.Background(), []common.Hash{DeriveAssetID("H200_HOURLY")})
	assert.ErrorIs(t, err, ErrAssetNotRegistered)
}

func TestReadPrice_Descales(t *testing.T) {
	backend := newFakeBackend()
	backend.onchainPrice, _ = new(big.Int).SetString("3510000000000000000", 10)
	p := newTestPublisher(t, backend)

	price, err := p.ReadPrice(context.Background(), DeriveAssetID("H200_HOURLY"))
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("3.51")))
}

func TestNewWithBackend_ChainIDMismatch(t *testing.T) {
	backend := newFakeBackend()
	backend.chainID = big.NewInt(1)

	_, err := newWithBackend(context.Background(), backend, testOracleConfig(), testKeyHex, logging.NewNoopLogger())
	assert.Error(t, err)
}

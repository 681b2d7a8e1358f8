// Package oracle publishes validated prices to the on-chain multi-asset
// price registry.
package oracle

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/metrics"
	"github.com/0x0shephard/h200/pkg/publish"
)

// State is the stage an individual publish attempt has reached. There is no
// automatic retry past Failed; a caller who retries must start a fresh
// attempt with a fresh nonce and fee computation.
type State string

const (
	StateBuilding  State = "building"
	StateSigned    State = "signed"
	StateSubmitted State = "submitted"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Gas budgets, matching the oracle contract's measured costs: a fixed base
// plus a linear per-asset term for the batched call.
const (
	singleUpdateGas  = 100_000
	batchBaseGas     = 50_000
	batchPerAssetGas = 30_000
)

// priorityFeeWei is the fixed priority fee floor: 1 gwei.
var priorityFeeWei = big.NewInt(1_000_000_000)

// receiptPollInterval paces the confirmation poll loop.
const receiptPollInterval = 2 * time.Second

// readBackEpsilon bounds the acceptable difference between the submitted
// price and the post-confirmation read-back, in USD. The difference must
// stay strictly below it.
var readBackEpsilon = decimal.New(1, -6)

// PriceUpdate is one assetId/price pair to write on-chain.
type PriceUpdate struct {
	AssetID common.Hash
	Price   decimal.Decimal
}

// backend is the chain client surface the publisher needs; *ethclient.Client
// satisfies it and tests substitute fakes.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Publisher builds, signs, submits and confirms price update transactions.
type Publisher struct {
	client         backend
	contract       common.Address
	key            *ecdsa.PrivateKey
	address        common.Address
	chainID        *big.Int
	decimals       int32
	confirmTimeout time.Duration
	logger         *logging.Logger
}

// New connects to the RPC endpoint and prepares the signing account. The
// private key comes from the configured environment variable, never from the
// config file itself.
func New(ctx context.Context, cfg config.OracleConfig, logger *logging.Logger) (*Publisher, error) {
	keyHex := os.Getenv(cfg.PrivateKeyEnv)
	if keyHex == "" {
		return nil, fmt.Errorf("%w: %s", ErrPrivateKeyNotSet, cfg.PrivateKeyEnv)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	return newWithBackend(ctx, client, cfg, keyHex, logger)
}

func newWithBackend(ctx context.Context, client backend, cfg config.OracleConfig, keyHex string, logger *logging.Logger) (*Publisher, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		return nil, fmt.Errorf("connected chain id %d does not match configured %d", chainID.Int64(), cfg.ChainID)
	}

	p := &Publisher{
		client:         client,
		contract:       common.HexToAddress(cfg.ContractAddress),
		key:            key,
		address:        address,
		chainID:        chainID,
		decimals:       cfg.Decimals,
		confirmTimeout: cfg.ConfirmTimeout.ToDuration(),
		logger:         logger,
	}

	if balance, err := client.BalanceAt(ctx, address, nil); err == nil {
		eth := decimal.NewFromBigInt(balance, -18)
		logger.Info("Oracle updater account ready",
			"address", address.Hex(),
			"balance_eth", eth.StringFixed(4),
			"contract", p.contract.Hex(),
			"chain_id", chainID.Int64())
	}

	return p, nil
}

// Address returns the updater account address.
func (p *Publisher) Address() common.Address { return p.address }

// DeriveAssetID returns the conventional asset id for an identifier:
// keccak256 of its raw bytes.
func DeriveAssetID(identifier string) common.Hash {
	return crypto.Keccak256Hash([]byte(identifier))
}

// ScalePrice converts a USD price to the contract's fixed-point integer
// representation: price * 10^decimals truncated toward zero.
func ScalePrice(price decimal.Decimal, decimals int32) *big.Int {
	return price.Shift(decimals).Truncate(0).BigInt()
}

// VerifyRegistered checks that every asset id is registered in the contract.
// An unregistered asset is a configuration failure, fatal before scraping.
func (p *Publisher) VerifyRegistered(ctx context.Context, assetIDs []common.Hash) error {
	for _, id := range assetIDs {
		data, err := oracleABI.Pack("isAssetRegistered", [32]byte(id))
		if err != nil {
			return fmt.Errorf("failed to pack isAssetRegistered: %w", err)
		}
		out, err := p.callContract(ctx, data)
		if err != nil {
			return fmt.Errorf("isAssetRegistered call failed for %s: %w", id.Hex(), err)
		}
		results, err := oracleABI.Unpack("isAssetRegistered", out)
		if err != nil {
			return fmt.Errorf("failed to unpack isAssetRegistered: %w", err)
		}
		registered, _ := results[0].(bool)
		if !registered {
			return fmt.Errorf("%w: %s", ErrAssetNotRegistered, id.Hex())
		}
	}
	return nil
}

// Publish writes the given asset/price pairs on-chain. A single pair uses
// updatePrice; two or more use one batched batchUpdatePrices call, which
// amortizes the fixed per-transaction overhead.
//
// The call blocks until the transaction is confirmed or the confirmation
// window elapses; a timeout or a reverted status is a hard failure. A
// post-confirmation read-back mismatch is logged as a warning only, since a
// confirmed transaction cannot be reversed.
func (p *Publisher) Publish(ctx context.Context, updates []PriceUpdate) (publish.Receipt, error) {
	if len(updates) == 0 {
		return publish.Receipt{}, ErrNoUpdates
	}

	start := time.Now()
	receipt, err := p.publish(ctx, updates)
	metrics.ObservePublication("oracle", start, err)
	return receipt, err
}

func (p *Publisher) publish(ctx context.Context, updates []PriceUpdate) (publish.Receipt, error) {
	state := StateBuilding
	defer func() {
		p.logger.Info("Publish attempt finished", "state", string(state))
	}()

	method, data, gasLimit, err := buildCall(updates, p.decimals)
	if err != nil {
		state = StateFailed
		return publish.Receipt{}, err
	}

	// Nonce comes from the latest confirmed count, read immediately before
	// building. Concurrent runs against the same account are unsafe and are
	// serialized externally.
	nonce, err := p.client.NonceAt(ctx, p.address, nil)
	if err != nil {
		state = StateFailed
		return publish.Receipt{}, fmt.Errorf("failed to read account nonce: %w", err)
	}

	baseFee, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		state = StateFailed
		return publish.Receipt{}, fmt.Errorf("failed to read gas price: %w", err)
	}
	maxFee := maxFeePerGas(baseFee, priorityFeeWei)

	p.logger.Info("Building price update transaction",
		"method", method,
		"assets", len(updates),
		"nonce", nonce,
		"gas_limit", gasLimit,
		"base_fee_wei", baseFee.String(),
		"max_fee_wei", maxFee.String())

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   p.chainID,
		Nonce:     nonce,
		GasTipCap: priorityFeeWei,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        &p.contract,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(p.chainID), p.key)
	if err != nil {
		state = StateFailed
		return publish.Receipt{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	state = StateSigned

	if err := p.client.SendTransaction(ctx, signed); err != nil {
		state = StateFailed
		return publish.Receipt{}, fmt.Errorf("failed to submit transaction: %w", err)
	}
	state = StateSubmitted

	txHash := signed.Hash()
	p.logger.Info("Transaction submitted, waiting for confirmation",
		"tx_hash", txHash.Hex(), "timeout", p.confirmTimeout.String())

	mined, err := p.waitMined(ctx, txHash)
	if err != nil {
		state = StateFailed
		return publish.Receipt{}, err
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		state = StateFailed
		return publish.Receipt{}, fmt.Errorf("%w: tx %s", ErrTxReverted, txHash.Hex())
	}
	state = StateConfirmed

	p.logger.Info("Transaction confirmed",
		"tx_hash", txHash.Hex(),
		"block", mined.BlockNumber.Uint64(),
		"gas_used", mined.GasUsed)

	p.verifyReadBack(ctx, updates)

	return publish.Receipt{
		Sink:      "oracle",
		Ref:       txHash.Hex(),
		Block:     mined.BlockNumber.Uint64(),
		GasUsed:   mined.GasUsed,
		Timestamp: time.Now().UTC(),
	}, nil
}

// buildCall selects the contract method and packs its arguments.
func buildCall(updates []PriceUpdate, decimals int32) (string, []byte, uint64, error) {
	if len(updates) == 1 {
		data, err := oracleABI.Pack("updatePrice",
			[32]byte(updates[0].AssetID), ScalePrice(updates[0].Price, decimals))
		if err != nil {
			return "", nil, 0, fmt.Errorf("failed to pack updatePrice: %w", err)
		}
		return "updatePrice", data, singleUpdateGas, nil
	}

	assetIDs := make([][32]byte, len(updates))
	prices := make([]*big.Int, len(updates))
	for i, u := range updates {
		assetIDs[i] = [32]byte(u.AssetID)
		prices[i] = ScalePrice(u.Price, decimals)
	}

	data, err := oracleABI.Pack("batchUpdatePrices", assetIDs, prices)
	if err != nil {
		return "", nil, 0, fmt.Errorf("failed to pack batchUpdatePrices: %w", err)
	}
	return "batchUpdatePrices", data, batchGasLimit(len(updates)), nil
}

// batchGasLimit scales linearly with asset count plus a fixed base.
func batchGasLimit(assets int) uint64 {
	return batchBaseGas + uint64(assets)*batchPerAssetGas
}

// maxFeePerGas applies the fee safety margin: twice the greater of the
// network base fee and the priority floor. A blunt multiplicative margin,
// not a predictive estimator.
func maxFeePerGas(baseFee, priorityFee *big.Int) *big.Int {
	higher := baseFee
	if priorityFee.Cmp(baseFee) > 0 {
		higher = priorityFee
	}
	return new(big.Int).Mul(higher, big.NewInt(2))
}

// waitMined polls for the transaction receipt until confirmation or the
// publisher's confirmation window elapses.
func (p *Publisher) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: tx %s after %s", ErrConfirmTimeout, txHash.Hex(), p.confirmTimeout)
		case <-ticker.C:
		}
	}
}

// verifyReadBack re-reads each published price and compares it to the
// submitted value. Detection only: a mismatch on a confirmed transaction is
// warned about, never resubmitted here.
func (p *Publisher) verifyReadBack(ctx context.Context, updates []PriceUpdate) {
	for _, u := range updates {
		onchain, err := p.ReadPrice(ctx, u.AssetID)
		if err != nil {
			p.logger.Warn("Post-confirmation read-back failed",
				"asset_id", u.AssetID.Hex(), "error", err)
			continue
		}

		if !priceMatches(u.Price, onchain) {
			p.logger.Warn("On-chain price mismatch after confirmation",
				"asset_id", u.AssetID.Hex(),
				"submitted", u.Price.String(),
				"onchain", onchain.String())
			continue
		}

		p.logger.Info("On-chain price verified",
			"asset_id", u.AssetID.Hex(), "price", onchain.StringFixed(6))
	}
}

// priceMatches reports whether the on-chain value agrees with the submitted
// one. A match requires the difference to be strictly below the epsilon; a
// difference of exactly one epsilon is a mismatch.
func priceMatches(submitted, onchain decimal.Decimal) bool {
	return onchain.Sub(submitted).Abs().LessThan(readBackEpsilon)
}

// ReadPrice returns the current on-chain price for an asset, descaled to USD.
func (p *Publisher) ReadPrice(ctx context.Context, assetID common.Hash) (decimal.Decimal, error) {
	data, err := oracleABI.Pack("getPrice", [32]byte(assetID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to pack getPrice: %w", err)
	}
	out, err := p.callContract(ctx, data)
	if err != nil {
		return decimal.Zero, fmt.Errorf("getPrice call failed: %w", err)
	}
	results, err := oracleABI.Unpack("getPrice", out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to unpack getPrice: %w", err)
	}
	raw, ok := results[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected getPrice result type %T", results[0])
	}
	return decimal.NewFromBigInt(raw, -p.decimals), nil
}

// ReadPriceData returns the current on-chain price and its update timestamp.
func (p *Publisher) ReadPriceData(ctx context.Context, assetID common.Hash) (decimal.Decimal, time.Time, error) {
	data, err := oracleABI.Pack("getPriceData", [32]byte(assetID))
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to pack getPriceData: %w", err)
	}
	out, err := p.callContract(ctx, data)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("getPriceData call failed: %w", err)
	}
	results, err := oracleABI.Unpack("getPriceData", out)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to unpack getPriceData: %w", err)
	}
	raw, _ := results[0].(*big.Int)
	updatedAt, _ := results[1].(*big.Int)

	price := decimal.NewFromBigInt(raw, -p.decimals)
	return price, time.Unix(updatedAt.Int64(), 0).UTC(), nil
}

func (p *Publisher) callContract(ctx context.Context, data []byte) ([]byte, error) {
	return p.client.CallContract(ctx, ethereum.CallMsg{
		To:   &p.contract,
		Data: data,
	}, nil)
}

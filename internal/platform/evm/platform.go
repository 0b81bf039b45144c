package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/verify"
)

// DefaultDeployGasLimit is used when gas estimation fails.
const DefaultDeployGasLimit uint64 = 6_000_000

var (
	// ErrReverted is returned when a deployment transaction is mined but fails.
	ErrReverted = errors.New("evm: transaction reverted")

	// ErrNoContractAddress is returned when a receipt carries no created contract.
	ErrNoContractAddress = errors.New("evm: receipt has no contract address")
)

// Backend is the subset of ethclient.Client used by the platform.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config configures a Platform.
type Config struct {
	Logger *slog.Logger

	// GasPriceBoostPercent scales the suggested gas price. 100 keeps it unchanged.
	GasPriceBoostPercent int64

	// MinGasPrice is the floor applied after boosting, in wei.
	MinGasPrice *big.Int

	// GasLimitBufferPercent is added on top of the estimated gas.
	GasLimitBufferPercent uint64
}

// Platform deploys components as contract-creation transactions and reads
// their state through eth_call.
type Platform struct {
	backend   Backend
	signer    TransactionSigner
	artifacts *Artifacts
	logger    *slog.Logger
	config    Config
}

// New creates a Platform.
func New(backend Backend, signer TransactionSigner, artifacts *Artifacts, cfg Config) *Platform {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.GasPriceBoostPercent == 0 {
		cfg.GasPriceBoostPercent = 100
	}
	if cfg.GasLimitBufferPercent == 0 {
		cfg.GasLimitBufferPercent = 20
	}
	return &Platform{
		backend:   backend,
		signer:    signer,
		artifacts: artifacts,
		logger:    cfg.Logger,
		config:    cfg,
	}
}

// Deployer returns the deploying account.
func (p *Platform) Deployer() common.Address {
	return p.signer.Address()
}

// DeployInstance creates component with the given constructor arguments and
// waits for the transaction to be mined.
func (p *Platform) DeployInstance(ctx context.Context, component string, args []any) (deploy.Receipt, error) {
	contract, err := p.artifacts.Get(component)
	if err != nil {
		return deploy.Receipt{}, err
	}

	ctorArgs, err := contract.ABI.Pack("", args...)
	if err != nil {
		return deploy.Receipt{}, fmt.Errorf("encode %s constructor: %w", component, err)
	}
	data := append(contract.Artifact.Code(), ctorArgs...)

	from := p.signer.Address()
	nonce, err := p.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return deploy.Receipt{}, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := p.gasPrice(ctx)
	if err != nil {
		return deploy.Receipt{}, fmt.Errorf("get gas price: %w", err)
	}

	gasLimit, err := p.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     data,
	})
	if err != nil {
		gasLimit = DefaultDeployGasLimit
		p.logger.Warn("gas estimation failed, using default",
			slog.String("component", component),
			slog.Uint64("gas_limit", gasLimit),
			slog.String("error", err.Error()),
		)
	}
	gasLimit = gasLimit * (100 + p.config.GasLimitBufferPercent) / 100

	tx := types.NewContractCreation(nonce, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := p.signer.SignTransaction(ctx, tx)
	if err != nil {
		return deploy.Receipt{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := p.backend.SendTransaction(ctx, signedTx); err != nil {
		return deploy.Receipt{}, fmt.Errorf("send transaction: %w", err)
	}

	p.logger.Info("deployment transaction submitted",
		slog.String("component", component),
		slog.String("tx_hash", signedTx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
	)

	receipt, err := bind.WaitMined(ctx, p.backend, signedTx)
	if err != nil {
		return deploy.Receipt{}, fmt.Errorf("wait for receipt: %w", err)
	}

	result := deploy.Receipt{TxHash: signedTx.Hash()}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, fmt.Errorf("%w: %s", ErrReverted, signedTx.Hash().Hex())
	}
	if receipt.ContractAddress == (common.Address{}) {
		return result, ErrNoContractAddress
	}
	result.Address = receipt.ContractAddress

	p.logger.Info("deployment transaction confirmed",
		slog.String("component", component),
		slog.String("address", result.Address.Hex()),
		slog.Uint64("block_number", result.BlockNumber),
	)
	return result, nil
}

// ReadAccessor calls a no-argument view function on the deployed instance.
// Single return values are unwrapped.
func (p *Platform) ReadAccessor(ctx context.Context, handle verify.Handle, accessor string) (any, error) {
	contract, err := p.artifacts.Get(handle.Name)
	if err != nil {
		return nil, err
	}

	input, err := contract.ABI.Pack(accessor)
	if err != nil {
		return nil, fmt.Errorf("encode %s call: %w", accessor, err)
	}

	to := handle.Address
	output, err := p.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", accessor, err)
	}

	values, err := contract.ABI.Unpack(accessor, output)
	if err != nil {
		return nil, fmt.Errorf("decode %s result: %w", accessor, err)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

// gasPrice returns the suggested gas price, boosted and floored.
func (p *Platform) gasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	boosted := new(big.Int).Mul(gasPrice, big.NewInt(p.config.GasPriceBoostPercent))
	boosted = boosted.Div(boosted, big.NewInt(100))

	if p.config.MinGasPrice != nil && boosted.Cmp(p.config.MinGasPrice) < 0 {
		boosted = new(big.Int).Set(p.config.MinGasPrice)
	}
	return boosted, nil
}

package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	xerrors "StackSave/internal/errors"
	"StackSave/internal/web3"
	"StackSave/internal/web3/custody"
	"StackSave/pkg/logger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// StakingABI is the subset of the staking contract used by the bot.
const StakingABI = `[
 {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
 {"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"stake","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"unstake","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"stakedBalanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const (
	defaultConfirmTimeout = 2 * time.Minute
	defaultPollInterval   = 2 * time.Second
)

// Config describes how to reach the staking contract.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	ConfirmTimeout  time.Duration
}

// stakingContract is the part of bind.BoundContract the gateway relies on.
type stakingContract interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*coretypes.Transaction, error)
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
}

// receiptReader mirrors ethclient's receipt lookup.
type receiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Option customises a StakingGateway.
type Option func(*StakingGateway)

// WithPollInterval sets how often receipts are polled while waiting for
// confirmation.
func WithPollInterval(d time.Duration) Option {
	return func(g *StakingGateway) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// WithConfirmTimeout bounds the wait for a receipt.
func WithConfirmTimeout(d time.Duration) Option {
	return func(g *StakingGateway) {
		if d > 0 {
			g.confirmTimeout = d
		}
	}
}

// WithCustodian replaces the operator key custodian.
func WithCustodian(c custody.Custodian) Option {
	return func(g *StakingGateway) {
		if c != nil {
			g.custodian = c
		}
	}
}

// StakingGateway executes deposit, withdraw, stake, unstake and balance calls
// against the staking contract. A gateway that could not be set up reports
// Configured() == false and is never called by the dispatcher.
type StakingGateway struct {
	contract       stakingContract
	receipts       receiptReader
	custodian      custody.Custodian
	confirmTimeout time.Duration
	pollInterval   time.Duration
	closer         func()
	log            *slog.Logger
}

// NewStakingGateway dials the RPC endpoint and binds the contract. Missing or
// invalid settings produce an unconfigured gateway instead of an error.
func NewStakingGateway(ctx context.Context, cfg Config, opts ...Option) *StakingGateway {
	g := &StakingGateway{
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
		log:            logger.Named("web3"),
	}
	if cfg.ConfirmTimeout > 0 {
		g.confirmTimeout = cfg.ConfirmTimeout
	}
	for _, opt := range opts {
		opt(g)
	}

	address := strings.TrimSpace(cfg.ContractAddress)
	if address == "" || !common.IsHexAddress(address) {
		g.log.Warn("staking contract address missing or invalid, DeFi features disabled")
		return g
	}
	if g.custodian == nil && custody.IsPlaceholderKey(cfg.PrivateKey) {
		g.log.Warn("signing key missing, DeFi features disabled")
		return g
	}

	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		g.log.Warn("rpc url missing, DeFi features disabled")
		return g
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		g.log.Warn("dial rpc failed, DeFi features disabled", slog.Any("error", err))
		return g
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID <= 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			g.log.Warn("fetch chain id failed, DeFi features disabled", slog.Any("error", err))
			return g
		}
	}

	if g.custodian == nil {
		operator, err := custody.NewOperatorCustodian(cfg.PrivateKey, chainID)
		if err != nil {
			eth.Close()
			g.log.Warn("load signing key failed, DeFi features disabled", slog.Any("error", err))
			return g
		}
		g.custodian = operator
	}

	parsed, err := abi.JSON(strings.NewReader(StakingABI))
	if err != nil {
		eth.Close()
		g.log.Error("parse staking abi failed", slog.Any("error", err))
		return g
	}

	g.contract = bind.NewBoundContract(common.HexToAddress(address), parsed, eth, eth, eth)
	g.receipts = eth
	g.closer = eth.Close
	g.log.Info("staking gateway ready",
		slog.String("contract", common.HexToAddress(address).Hex()),
		slog.String("chain_id", chainID.String()))
	return g
}

// newGateway wires pre-built collaborators.
func newGateway(contract stakingContract, receipts receiptReader, custodian custody.Custodian, opts ...Option) *StakingGateway {
	g := &StakingGateway{
		contract:       contract,
		receipts:       receipts,
		custodian:      custodian,
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
		log:            logger.Named("web3"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configured reports whether the gateway can talk to the contract.
func (g *StakingGateway) Configured() bool {
	return g != nil && g.contract != nil && g.receipts != nil && g.custodian != nil
}

// Close releases the RPC connection.
func (g *StakingGateway) Close() {
	if g != nil && g.closer != nil {
		g.closer()
		g.closer = nil
	}
}

// Deposit sends amount as value to the payable deposit method.
func (g *StakingGateway) Deposit(ctx context.Context, identity string, amount float64) web3.Outcome {
	return g.mutate(ctx, web3.OpDeposit, identity, amount)
}

// Withdraw calls withdraw(amount).
func (g *StakingGateway) Withdraw(ctx context.Context, identity string, amount float64) web3.Outcome {
	return g.mutate(ctx, web3.OpWithdraw, identity, amount)
}

// Stake calls stake(amount).
func (g *StakingGateway) Stake(ctx context.Context, identity string, amount float64) web3.Outcome {
	return g.mutate(ctx, web3.OpStake, identity, amount)
}

// Unstake calls unstake(amount).
func (g *StakingGateway) Unstake(ctx context.Context, identity string, amount float64) web3.Outcome {
	return g.mutate(ctx, web3.OpUnstake, identity, amount)
}

func (g *StakingGateway) mutate(ctx context.Context, op web3.Operation, identity string, amount float64) web3.Outcome {
	display := web3.FormatAmount(amount)
	if !g.Configured() {
		return web3.Failed(display, xerrors.New(xerrors.CodeServiceUnavailable, "链上网关未配置"))
	}

	units, err := web3.ToBaseUnits(amount, web3.EtherDecimals)
	if err != nil {
		return web3.Failed(display, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "金额无效"))
	}

	opts, err := g.custodian.Transactor(ctx, identity)
	if err != nil {
		return web3.Failed(display, xerrors.Wrap(xerrors.CodeChainFailure, err, "获取签名器失败"))
	}

	var tx *coretypes.Transaction
	if op == web3.OpDeposit {
		opts.Value = units
		tx, err = g.contract.Transact(opts, string(op))
	} else {
		tx, err = g.contract.Transact(opts, string(op), units)
	}
	if err != nil {
		g.log.Warn("send transaction failed", slog.String("operation", string(op)), slog.Any("error", err))
		return web3.Failed(display, xerrors.Wrap(xerrors.CodeChainFailure, err, "发送交易失败",
			xerrors.WithMetadata("operation", string(op))))
	}

	hash := tx.Hash().Hex()
	logger.Audit().Info("transaction submitted",
		slog.String("operation", string(op)),
		slog.String("identity", identity),
		slog.String("amount", display),
		slog.String("tx_hash", hash))

	receipt, err := g.waitForReceipt(ctx, tx.Hash())
	if err != nil {
		code := xerrors.CodeChainFailure
		if errors.Is(err, context.DeadlineExceeded) {
			code = xerrors.CodeTimeout
		}
		g.log.Warn("wait for receipt failed", slog.String("tx_hash", hash), slog.Any("error", err))
		return web3.Failed(display, xerrors.Wrap(code, err, "等待交易确认失败", xerrors.WithMetadata("tx_hash", hash)))
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		g.log.Warn("transaction reverted", slog.String("tx_hash", hash))
		return web3.Failed(display, xerrors.New(xerrors.CodeChainFailure, "交易被回滚", xerrors.WithMetadata("tx_hash", hash)))
	}

	block := ""
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.String()
	}
	logger.Audit().Info("transaction confirmed",
		slog.String("operation", string(op)),
		slog.String("tx_hash", hash),
		slog.String("block", block))
	return web3.Succeeded(display, hash)
}

func (g *StakingGateway) waitForReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.receipts.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Balance reads the available and staked balances of the identity's account.
func (g *StakingGateway) Balance(ctx context.Context, identity string) (web3.BalanceSnapshot, error) {
	if !g.Configured() {
		return web3.BalanceSnapshot{}, xerrors.New(xerrors.CodeServiceUnavailable, "链上网关未配置")
	}

	account, err := g.custodian.Account(ctx, identity)
	if err != nil {
		return web3.BalanceSnapshot{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "解析账户失败")
	}

	available, err := g.readUint(ctx, "balanceOf", account)
	if err != nil {
		return web3.BalanceSnapshot{}, err
	}
	staked, err := g.readUint(ctx, "stakedBalanceOf", account)
	if err != nil {
		return web3.BalanceSnapshot{}, err
	}

	return web3.BalanceSnapshot{
		PhoneNumber:   identity,
		WalletAddress: account.Hex(),
		Balance:       web3.FormatUnits(available, web3.EtherDecimals),
		StakedAmount:  web3.FormatUnits(staked, web3.EtherDecimals),
	}, nil
}

func (g *StakingGateway) readUint(ctx context.Context, method string, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := g.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, account); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, fmt.Sprintf("调用 %s 失败", method))
	}
	if len(out) == 0 {
		return nil, xerrors.New(xerrors.CodeChainFailure, fmt.Sprintf("%s 未返回结果", method))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, xerrors.New(xerrors.CodeChainFailure, fmt.Sprintf("%s 返回类型异常", method))
	}
	return value, nil
}

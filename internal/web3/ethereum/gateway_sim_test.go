package ethereum

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"StackSave/internal/web3/custody"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// stubStakingBin deploys a contract that accepts any call and value and
// always returns 1.5 ether as a uint256 word.
const stubStakingBin = "0x6011600c60003960116000f36714d1120d7b16000060005260206000f3"

// minedReceipts seals a block before every lookup so receipts appear on the
// first poll.
type minedReceipts struct {
	backend *backends.SimulatedBackend
}

func (m minedReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	m.backend.Commit()
	return m.backend.TransactionReceipt(ctx, hash)
}

func TestGatewayAgainstSimulatedChain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	operator, err := custody.NewOperatorCustodianFromKey(key, big.NewInt(1337))
	if err != nil {
		t.Fatalf("custodian: %v", err)
	}
	from, _ := operator.Account(ctx, "")

	alloc := coretypes.GenesisAlloc{
		from: {Balance: ether("10000000000000000000")},
	}
	backend := backends.NewSimulatedBackend(alloc, 8_000_000)
	t.Cleanup(func() { _ = backend.Close() })

	parsed, err := abi.JSON(strings.NewReader(StakingABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	auth, err := operator.Transactor(ctx, "")
	if err != nil {
		t.Fatalf("transactor: %v", err)
	}
	address, _, _, err := bind.DeployContract(auth, parsed, common.FromHex(stubStakingBin), backend)
	if err != nil {
		t.Fatalf("deploy contract: %v", err)
	}
	backend.Commit()

	contract := bind.NewBoundContract(address, parsed, backend, backend, backend)
	gw := newGateway(contract, minedReceipts{backend: backend}, operator, WithPollInterval(10*time.Millisecond))

	out := gw.Deposit(ctx, "628123456789", 2)
	if !out.Success {
		t.Fatalf("deposit failed: %+v", out)
	}
	tx, _, err := backend.TransactionByHash(ctx, common.HexToHash(out.TxHash))
	if err != nil {
		t.Fatalf("lookup deposit: %v", err)
	}
	if tx.Value().Cmp(ether("2000000000000000000")) != 0 {
		t.Fatalf("deposit must carry the amount as value, got %s", tx.Value())
	}
	if method, err := parsed.MethodById(tx.Data()); err != nil || method.Name != "deposit" {
		t.Fatalf("unexpected deposit calldata: %v %v", method, err)
	}
	held, err := backend.BalanceAt(ctx, address, nil)
	if err != nil || held.Cmp(ether("2000000000000000000")) != 0 {
		t.Fatalf("contract balance %v (%v)", held, err)
	}

	out = gw.Stake(ctx, "628123456789", 0.5)
	if !out.Success {
		t.Fatalf("stake failed: %+v", out)
	}
	tx, _, err = backend.TransactionByHash(ctx, common.HexToHash(out.TxHash))
	if err != nil {
		t.Fatalf("lookup stake: %v", err)
	}
	method, err := parsed.MethodById(tx.Data())
	if err != nil || method.Name != "stake" {
		t.Fatalf("unexpected stake calldata: %v %v", method, err)
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil || len(args) != 1 {
		t.Fatalf("unpack stake args: %v %v", args, err)
	}
	if args[0].(*big.Int).Cmp(ether("500000000000000000")) != 0 {
		t.Fatalf("unexpected stake amount %v", args[0])
	}
	if tx.Value().Sign() != 0 {
		t.Fatalf("stake must not carry value, got %s", tx.Value())
	}

	snap, err := gw.Balance(ctx, "628123456789")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if snap.Balance != "1.5" || snap.StakedAmount != "1.5" || snap.WalletAddress != from.Hex() {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

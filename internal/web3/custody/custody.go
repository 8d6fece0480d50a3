// Package custody resolves which account acts for a chat identity and hands
// out signers for it. The gateway never derives keys from user identifiers.
package custody

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// placeholderKey is the sample value shipped in example env files.
const placeholderKey = "your_private_key_here"

// Custodian maps a chat identity to an on-chain account.
type Custodian interface {
	Account(ctx context.Context, identity string) (common.Address, error)
	Transactor(ctx context.Context, identity string) (*bind.TransactOpts, error)
}

// OperatorCustodian signs every request with a single operator key.
type OperatorCustodian struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// IsPlaceholderKey reports whether the configured key is empty or a sample value.
func IsPlaceholderKey(hexKey string) bool {
	trimmed := strings.TrimSpace(hexKey)
	return trimmed == "" || trimmed == placeholderKey
}

// NewOperatorCustodian parses a hex encoded private key.
func NewOperatorCustodian(hexKey string, chainID *big.Int) (*OperatorCustodian, error) {
	if IsPlaceholderKey(hexKey) {
		return nil, errors.New("未配置签名私钥")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析签名私钥失败: %w", err)
	}
	return NewOperatorCustodianFromKey(key, chainID)
}

// NewOperatorCustodianFromKey wraps an already loaded key.
func NewOperatorCustodianFromKey(key *ecdsa.PrivateKey, chainID *big.Int) (*OperatorCustodian, error) {
	if key == nil {
		return nil, errors.New("签名私钥为空")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("链 ID 无效")
	}
	return &OperatorCustodian{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}, nil
}

// Account returns the operator address regardless of identity.
func (o *OperatorCustodian) Account(_ context.Context, _ string) (common.Address, error) {
	return o.address, nil
}

// Transactor builds fresh transact options bound to ctx.
func (o *OperatorCustodian) Transactor(ctx context.Context, _ string) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(o.key, o.chainID)
	if err != nil {
		return nil, fmt.Errorf("创建交易签名器失败: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

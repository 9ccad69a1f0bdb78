// Package polygon bridges Arweave NFTs to an ERC-721 contract on Polygon.
package polygon

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// erc721ABI covers the subset of the bridge contract the service calls.
const erc721ABI = `[
	{"type":"function","name":"mint","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Transfer","anonymous":false,
	 "inputs":[{"name":"from","type":"address","indexed":true},
	           {"name":"to","type":"address","indexed":true},
	           {"name":"tokenId","type":"uint256","indexed":true}]}
]`

const defaultReceiptTimeout = 3 * time.Minute

var (
	ErrNotConfigured = errors.New("polygon bridge is not configured")
	ErrReverted      = errors.New("polygon transaction reverted")
	ErrNoTransfer    = errors.New("no mint transfer event in receipt")

	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

type Config struct {
	RPCURL         string
	ChainID        int64
	PrivateKey     string
	Contract       string
	OpenSeaBaseURL string
	ReceiptTimeout time.Duration
}

func (c Config) enabled() bool {
	return c.RPCURL != "" && c.PrivateKey != "" && c.Contract != ""
}

type MintResult struct {
	TxHash     string `json:"tx_hash"`
	TokenID    string `json:"token_id"`
	OpenSeaURL string `json:"opensea_url"`
	Block      uint64 `json:"block"`
}

type Minter interface {
	Mint(ctx context.Context, to, tokenURI string) (MintResult, error)
	Enabled() bool
}

// Backend is what a bound contract and WaitMined need; *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type contractMinter struct {
	mu       sync.Mutex
	backend  Backend
	contract *bind.BoundContract
	address  common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	openSea  string
	timeout  time.Duration
	log      *zap.Logger
}

// Dial connects to the RPC endpoint. An incomplete config yields a minter
// that reports Enabled() == false and fails every call with ErrNotConfigured.
func Dial(ctx context.Context, cfg Config, log *zap.Logger) (Minter, error) {
	if !cfg.enabled() {
		return disabledMinter{}, nil
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial polygon rpc: %w", err)
	}
	return NewMinter(client, cfg, log)
}

func NewMinter(backend Backend, cfg Config, log *zap.Logger) (Minter, error) {
	parsed, err := abi.JSON(strings.NewReader(erc721ABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("polygon contract: %w", ErrInvalidAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("polygon private key: %w", err)
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}

	address := common.HexToAddress(cfg.Contract)
	log.Info("polygon bridge enabled",
		zap.String("contract", address.Hex()),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("minter", crypto.PubkeyToAddress(key.PublicKey).Hex()))

	return &contractMinter{
		backend:  backend,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		address:  address,
		key:      key,
		chainID:  big.NewInt(cfg.ChainID),
		openSea:  strings.TrimRight(cfg.OpenSeaBaseURL, "/"),
		timeout:  cfg.ReceiptTimeout,
		log:      log,
	}, nil
}

func (m *contractMinter) Enabled() bool { return true }

// Mint calls mint(to, tokenURI) and waits for the receipt. Calls are
// serialised so the platform key never races itself on nonces.
func (m *contractMinter) Mint(ctx context.Context, to, tokenURI string) (MintResult, error) {
	if !common.IsHexAddress(to) {
		return MintResult{}, ErrInvalidAddress
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(m.key, m.chainID)
	if err != nil {
		return MintResult{}, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := m.contract.Transact(opts, "mint", common.HexToAddress(to), tokenURI)
	if err != nil {
		return MintResult{}, fmt.Errorf("send mint: %w", err)
	}
	m.log.Info("polygon mint sent", zap.String("tx_hash", tx.Hash().Hex()), zap.String("to", to))

	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, m.backend, tx)
	if err != nil {
		return MintResult{TxHash: tx.Hash().Hex()}, fmt.Errorf("wait for mint receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return MintResult{TxHash: tx.Hash().Hex()}, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}

	tokenID, err := TokenIDFromReceipt(receipt, m.address)
	if err != nil {
		return MintResult{TxHash: tx.Hash().Hex()}, err
	}
	res := MintResult{
		TxHash:  tx.Hash().Hex(),
		TokenID: tokenID.String(),
		Block:   receipt.BlockNumber.Uint64(),
	}
	if m.openSea != "" {
		res.OpenSeaURL = fmt.Sprintf("%s/%s/%s", m.openSea, m.address.Hex(), res.TokenID)
	}
	return res, nil
}

// TokenIDFromReceipt finds the Transfer from the zero address emitted by contract.
func TokenIDFromReceipt(receipt *types.Receipt, contract common.Address) (*big.Int, error) {
	for _, l := range receipt.Logs {
		if l.Address != contract || len(l.Topics) != 4 || l.Topics[0] != transferTopic {
			continue
		}
		if l.Topics[1] != (common.Hash{}) {
			continue
		}
		return l.Topics[3].Big(), nil
	}
	return nil, ErrNoTransfer
}

type disabledMinter struct{}

func (disabledMinter) Mint(context.Context, string, string) (MintResult, error) {
	return MintResult{}, ErrNotConfigured
}

func (disabledMinter) Enabled() bool { return false }

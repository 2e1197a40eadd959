package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/skatehive-leaderboard/internal/circuitbreaker"
	"github.com/skatehive-leaderboard/internal/config"
	apperrors "github.com/skatehive-leaderboard/internal/errors"
	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/models"
	"github.com/skatehive-leaderboard/internal/retry"
)

// erc721VotesABI covers ERC721 balanceOf and the ERC721Votes getVotes extension
const erc721VotesABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"getVotes","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ContractSource supplies a contract caller for one network and rotates it on rate limits.
// RPCPool implements it.
type ContractSource interface {
	Name() string
	Caller() ethereum.ContractCaller
	OnRateLimited(ctx context.Context) error
}

// EVMReaderConfig holds configuration for the EVM holdings reader
type EVMReaderConfig struct {
	// Enabled is false when no API key is configured; every read then returns zero.
	Enabled bool
	// Mainnet serves the Skatehive NFT contract
	Mainnet ContractSource
	// Base serves the Gnars contract
	Base          ContractSource
	GnarsContract string
	SkatehiveNFT  string
	Timeout       time.Duration
	Retry         *retry.RetryConfig
	Breakers      *circuitbreaker.CircuitBreakerManager
	Logger        *logging.Logger
}

// EVMReader reads token and NFT holdings for linked wallets
type EVMReader struct {
	enabled  bool
	mainnet  ContractSource
	base     ContractSource
	gnars    common.Address
	nft      common.Address
	abi      abi.ABI
	timeout  time.Duration
	retry    *retry.RetryConfig
	breakers *circuitbreaker.CircuitBreakerManager
	logger   *logging.Logger
}

// NewEVMReader creates a new holdings reader
func NewEVMReader(cfg *EVMReaderConfig) (*EVMReader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc721VotesABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract ABI: %w", err)
	}

	r := &EVMReader{
		enabled:  cfg.Enabled,
		mainnet:  cfg.Mainnet,
		base:     cfg.Base,
		abi:      parsedABI,
		timeout:  cfg.Timeout,
		retry:    cfg.Retry,
		breakers: cfg.Breakers,
		logger:   cfg.Logger,
	}
	if r.timeout == 0 {
		r.timeout = 10 * time.Second
	}
	if r.retry == nil {
		r.retry = retry.DefaultRetryConfig()
	}
	if r.breakers == nil {
		r.breakers = circuitbreaker.NewCircuitBreakerManager()
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}

	if !r.enabled {
		return r, nil
	}

	if cfg.Mainnet == nil || cfg.Base == nil {
		return nil, apperrors.NewConfigurationError("EVM", "both mainnet and base RPC sources are required")
	}
	for name, addr := range map[string]string{"GNARS_CONTRACT": cfg.GnarsContract, "SKATEHIVE_NFT_CONTRACT": cfg.SkatehiveNFT} {
		if !common.IsHexAddress(addr) {
			return nil, apperrors.NewConfigurationError(name, fmt.Sprintf("not a hex address: %q", addr))
		}
	}
	r.gnars = common.HexToAddress(cfg.GnarsContract)
	r.nft = common.HexToAddress(cfg.SkatehiveNFT)

	return r, nil
}

// NewEVMReaderFromConfig builds the RPC pools from the EVM settings.
// Without an API key no connection is made and the reader is disabled.
func NewEVMReaderFromConfig(cfg config.EVMConfig, breakers *circuitbreaker.CircuitBreakerManager, logger *logging.Logger) (*EVMReader, func(), error) {
	readerCfg := &EVMReaderConfig{
		Enabled:       cfg.Enabled(),
		Breakers:      breakers,
		GnarsContract: cfg.GnarsContract,
		SkatehiveNFT:  cfg.SkatehiveNFT,
		Timeout:       cfg.Timeout,
		Logger:        logger,
	}
	closeFn := func() {}

	if cfg.Enabled() {
		mainnet, err := NewRPCPool(&RPCPoolConfig{
			Name:         "ethereum",
			Endpoints:    expandEndpoints(cfg.EthereumRPC, cfg.APIKey),
			CooldownTime: cfg.RateLimitCooldown,
			Logger:       logger,
		})
		if err != nil {
			return nil, closeFn, err
		}
		base, err := NewRPCPool(&RPCPoolConfig{
			Name:         "base",
			Endpoints:    expandEndpoints(cfg.BaseRPC, cfg.APIKey),
			CooldownTime: cfg.RateLimitCooldown,
			Logger:       logger,
		})
		if err != nil {
			mainnet.Close()
			return nil, closeFn, err
		}
		readerCfg.Mainnet = mainnet
		readerCfg.Base = base
		closeFn = func() {
			mainnet.Close()
			base.Close()
		}
	}

	reader, err := NewEVMReader(readerCfg)
	if err != nil {
		closeFn()
		return nil, func() {}, err
	}
	return reader, closeFn, nil
}

// expandEndpoints splits a comma-separated template list and substitutes the
// API key into each "%s" placeholder.
func expandEndpoints(templates, apiKey string) []string {
	var out []string
	for _, t := range strings.Split(templates, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.Contains(t, "%s") {
			t = fmt.Sprintf(t, apiKey)
		}
		out = append(out, t)
	}
	return out
}

// Enabled reports whether holdings are actually read
func (r *EVMReader) Enabled() bool {
	return r.enabled
}

// GetHoldings returns the Gnars and Skatehive NFT holdings of ethAddress.
// Returns zero holdings and no error when the reader is disabled or the
// address is not linked.
func (r *EVMReader) GetHoldings(ctx context.Context, ethAddress string) (models.EVMHoldings, error) {
	var h models.EVMHoldings
	if !r.enabled || !models.IsLinkedAddress(ethAddress) {
		return h, nil
	}
	if !common.IsHexAddress(ethAddress) {
		return h, NewAdapterError("evm", "GetHoldings", fmt.Errorf("invalid address %q", ethAddress), nil)
	}
	owner := common.HexToAddress(ethAddress)

	var err error
	if h.GnarsBalance, err = r.readUint(ctx, r.base, r.gnars, "balanceOf", owner); err != nil {
		return models.EVMHoldings{}, err
	}
	if h.GnarsVotes, err = r.readUint(ctx, r.base, r.gnars, "getVotes", owner); err != nil {
		return models.EVMHoldings{}, err
	}
	if h.SkatehiveNFTBalance, err = r.readUint(ctx, r.mainnet, r.nft, "balanceOf", owner); err != nil {
		return models.EVMHoldings{}, err
	}
	return h, nil
}

// readUint calls a single-uint256 view method, failing over on rate limits.
func (r *EVMReader) readUint(ctx context.Context, src ContractSource, contract common.Address, method string, owner common.Address) (float64, error) {
	data, err := r.abi.Pack(method, owner)
	if err != nil {
		return 0, fmt.Errorf("pack %s: %w", method, err)
	}

	var out []byte
	breaker := r.breakers.GetOrCreate("evm:"+src.Name(), nil)

	err = retry.Do(ctx, r.retry, func(ctx context.Context, attempt int) error {
		return breaker.Execute(ctx, func() error {
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			var callErr error
			out, callErr = src.Caller().CallContract(callCtx, ethereum.CallMsg{To: &contract, Data: data}, nil)
			if callErr == nil {
				return nil
			}
			if IsRateLimitError(callErr) {
				if failErr := src.OnRateLimited(ctx); failErr != nil {
					r.logger.WithError(failErr).Warn("No EVM endpoint left to fail over to")
				}
				return apperrors.NewRateLimitError(src.Name())
			}
			if shouldFailover(callErr) {
				return apperrors.NewTransientError(src.Name(), callErr)
			}
			return callErr
		})
	})
	if err != nil {
		return 0, NewAdapterError(src.Name(), method, err, map[string]interface{}{
			"contract": contract.Hex(),
			"owner":    owner.Hex(),
		})
	}

	values, err := r.abi.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return 0, NewAdapterError(src.Name(), method, fmt.Errorf("unpack result: %v", err), nil)
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return 0, NewAdapterError(src.Name(), method, fmt.Errorf("unexpected result type %T", values[0]), nil)
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f, nil
}

package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/skatehive-leaderboard/internal/circuitbreaker"
	apperrors "github.com/skatehive-leaderboard/internal/errors"
	"github.com/skatehive-leaderboard/internal/logging"
	"github.com/skatehive-leaderboard/internal/models"
	"github.com/skatehive-leaderboard/internal/ratelimit"
	"github.com/skatehive-leaderboard/internal/retry"
)

// subscriberPageSize is the maximum page size accepted by bridge.list_subscribers.
const subscriberPageSize = 100

// HiveClientConfig holds configuration for the Hive JSON-RPC client
type HiveClientConfig struct {
	// Nodes are tried in order; a failing node hands over to the next.
	Nodes []string
	// Timeout bounds each individual HTTP call.
	Timeout time.Duration
	// PageDelay is the pause between subscriber pages.
	PageDelay time.Duration
	// Limiter throttles outbound calls. Optional.
	Limiter *ratelimit.Limiter
	// Breakers holds one breaker per node. Optional.
	Breakers *circuitbreaker.CircuitBreakerManager
	// Retry is the per-call retry policy. Default: retry.DefaultRetryConfig().
	Retry *retry.RetryConfig
	// HTTPClient overrides the transport (tests). Optional.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// HiveClient reads community, account and chain facts from Hive API nodes
type HiveClient struct {
	nodes      []string
	httpClient *http.Client
	timeout    time.Duration
	pageDelay  time.Duration
	limiter    *ratelimit.Limiter
	breakers   *circuitbreaker.CircuitBreakerManager
	retry      *retry.RetryConfig
	logger     *logging.Logger
	current    atomic.Uint32
	requestID  atomic.Uint64
}

// NewHiveClient creates a new Hive API client
func NewHiveClient(cfg *HiveClientConfig) (*HiveClient, error) {
	if cfg == nil || len(cfg.Nodes) == 0 {
		return nil, apperrors.NewConfigurationError("HIVE_NODES", "at least one node is required")
	}

	c := &HiveClient{
		nodes:      cfg.Nodes,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		pageDelay:  cfg.PageDelay,
		limiter:    cfg.Limiter,
		breakers:   cfg.Breakers,
		retry:      cfg.Retry,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout == 0 {
		c.timeout = 10 * time.Second
	}
	if c.breakers == nil {
		c.breakers = circuitbreaker.NewCircuitBreakerManager()
	}
	if c.retry == nil {
		c.retry = retry.DefaultRetryConfig()
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call invokes method on the current node, moving to the next node when a
// node fails with a retryable error.
func (c *HiveClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	var raw json.RawMessage

	err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		idx := int(c.current.Load()) % len(c.nodes)
		node := c.nodes[idx]

		err := c.breakers.GetOrCreate(node, nil).Execute(ctx, func() error {
			var callErr error
			raw, callErr = c.post(ctx, node, method, params)
			return callErr
		})
		if err != nil && (apperrors.IsRetryable(err) || shouldFailover(err)) {
			c.current.CompareAndSwap(uint32(idx), uint32((idx+1)%len(c.nodes)))
			c.logger.WithFields(map[string]interface{}{
				"node":    node,
				"method":  method,
				"attempt": attempt,
			}).WithError(err).Debug("Hive node failed, rotating")
		}
		return err
	})
	if err != nil {
		return NewAdapterError("hive", method, err, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewAdapterError("hive", method, fmt.Errorf("decode result: %w", err), nil)
	}
	return nil
}

// post performs one JSON-RPC round trip against node.
func (c *HiveClient) post(ctx context.Context, node, method string, params interface{}) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, node, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransientError(node, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransientError(node, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewRateLimitError(node)
	case resp.StatusCode >= 500:
		return nil, apperrors.NewTransientError(node, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("hive node %s returned status %d", node, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// ListSubscribers returns every subscriber of community, following pagination
// until a short page is returned.
func (c *HiveClient) ListSubscribers(ctx context.Context, community string) ([]string, error) {
	var subscribers []string
	last := ""

	for page := 0; ; page++ {
		params := map[string]interface{}{
			"community": community,
			"limit":     subscriberPageSize,
		}
		if last != "" {
			params["last"] = last
		}

		// Each row is [name, role, title, subscribed_at]
		var rows [][]interface{}
		if err := c.call(ctx, "bridge.list_subscribers", params, &rows); err != nil {
			return nil, err
		}

		for _, row := range rows {
			if len(row) == 0 {
				continue
			}
			if name, ok := row[0].(string); ok && name != "" {
				subscribers = append(subscribers, name)
				last = name
			}
		}

		if len(rows) < subscriberPageSize {
			break
		}

		if c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"community":   community,
		"subscribers": len(subscribers),
	}).Debug("Fetched community roster")

	return subscribers, nil
}

// hiveAccount is the subset of condenser_api.get_accounts used here
type hiveAccount struct {
	Name                   string   `json:"name"`
	Balance                string   `json:"balance"`
	HBDBalance             string   `json:"hbd_balance"`
	SavingsHBDBalance      string   `json:"savings_hbd_balance"`
	VestingShares          string   `json:"vesting_shares"`
	DelegatedVestingShares string   `json:"delegated_vesting_shares"`
	ReceivedVestingShares  string   `json:"received_vesting_shares"`
	WitnessVotes           []string `json:"witness_votes"`
	JSONMetadata           string   `json:"json_metadata"`
	PostingJSONMetadata    string   `json:"posting_json_metadata"`
	LastPost               string   `json:"last_post"`
}

// GetAccountInfo returns the account facts for username.
// Returns an error wrapping ErrAccountNotFound when the account does not exist.
func (c *HiveClient) GetAccountInfo(ctx context.Context, username string) (*models.AccountFacts, error) {
	var accounts []hiveAccount
	if err := c.call(ctx, "condenser_api.get_accounts", []interface{}{[]string{username}}, &accounts); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, accountNotFound(username)
	}

	facts, err := accounts[0].toFacts()
	if err != nil {
		return nil, NewAdapterError("hive", "GetAccountInfo", err, map[string]interface{}{"username": username})
	}
	return facts, nil
}

func (a *hiveAccount) toFacts() (*models.AccountFacts, error) {
	facts := &models.AccountFacts{
		Username:     a.Name,
		WitnessVotes: a.WitnessVotes,
		EthAddress:   models.ZeroAddress,
	}

	fields := []struct {
		raw string
		dst *float64
	}{
		{a.Balance, &facts.HiveBalance},
		{a.HBDBalance, &facts.HBDBalance},
		{a.SavingsHBDBalance, &facts.HBDSavingsBalance},
		{a.VestingShares, &facts.VestingShares},
		{a.DelegatedVestingShares, &facts.DelegatedVestingShares},
		{a.ReceivedVestingShares, &facts.ReceivedVestingShares},
	}
	for _, f := range fields {
		v, err := parseAsset(f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	lastPost, err := parseHiveTime(a.LastPost)
	if err != nil {
		return nil, err
	}
	facts.LastPost = lastPost

	if addr := ethAddressFromMetadata(a.JSONMetadata, a.PostingJSONMetadata); addr != "" && common.IsHexAddress(addr) {
		facts.EthAddress = strings.ToLower(addr)
	}

	return facts, nil
}

type vestingDelegation struct {
	Delegator     string `json:"delegator"`
	Delegatee     string `json:"delegatee"`
	VestingShares string `json:"vesting_shares"`
}

// GetCuratorDelegation returns the vests delegator currently delegates to curator.
func (c *HiveClient) GetCuratorDelegation(ctx context.Context, delegator, curator string) (float64, error) {
	var delegations []vestingDelegation
	if err := c.call(ctx, "condenser_api.get_vesting_delegations", []interface{}{delegator, "", 1000}, &delegations); err != nil {
		return 0, err
	}

	for _, d := range delegations {
		if strings.EqualFold(d.Delegatee, curator) {
			return parseAsset(d.VestingShares)
		}
	}
	return 0, nil
}

type dynamicGlobalProperties struct {
	TotalVestingFundHive string `json:"total_vesting_fund_hive"`
	TotalVestingShares   string `json:"total_vesting_shares"`
}

type rewardFund struct {
	RewardBalance string `json:"reward_balance"`
	RecentClaims  string `json:"recent_claims"`
}

type priceFeed struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// GetChainProps fetches the global values used to convert vests and
// estimate vote value. Called once per cycle.
func (c *HiveClient) GetChainProps(ctx context.Context) (models.ChainProps, error) {
	var props models.ChainProps

	var dgp dynamicGlobalProperties
	if err := c.call(ctx, "condenser_api.get_dynamic_global_properties", []interface{}{}, &dgp); err != nil {
		return props, err
	}
	var fund rewardFund
	if err := c.call(ctx, "condenser_api.get_reward_fund", []interface{}{"post"}, &fund); err != nil {
		return props, err
	}
	var feed priceFeed
	if err := c.call(ctx, "condenser_api.get_current_median_history_price", []interface{}{}, &feed); err != nil {
		return props, err
	}

	var errs []error
	parse := func(s string, dst *float64, number bool) {
		var v float64
		var err error
		if number {
			v, err = parseNumber(s)
		} else {
			v, err = parseAsset(s)
		}
		*dst = v
		errs = append(errs, err)
	}

	var base, quote float64
	parse(dgp.TotalVestingFundHive, &props.TotalVestingFundHive, false)
	parse(dgp.TotalVestingShares, &props.TotalVestingShares, false)
	parse(fund.RewardBalance, &props.RewardBalance, false)
	parse(fund.RecentClaims, &props.RecentClaims, true)
	parse(feed.Base, &base, false)
	parse(feed.Quote, &quote, false)

	if err := errors.Join(errs...); err != nil {
		return models.ChainProps{}, NewAdapterError("hive", "GetChainProps", err, nil)
	}
	if quote > 0 {
		props.MedianPrice = base / quote
	}
	return props, nil
}

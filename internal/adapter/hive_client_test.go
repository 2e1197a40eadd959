package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skatehive-leaderboard/internal/errors"
	"github.com/skatehive-leaderboard/internal/models"
	"github.com/skatehive-leaderboard/internal/retry"
)

type rpcHandler func(method string, params json.RawMessage) (interface{}, *rpcError)

func newHiveServer(t *testing.T, handler rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     uint64          `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func newTestHiveClient(t *testing.T, nodes ...string) *HiveClient {
	t.Helper()
	c, err := NewHiveClient(&HiveClientConfig{
		Nodes:     nodes,
		Timeout:   time.Second,
		PageDelay: time.Millisecond,
		Retry:     fastRetry(),
	})
	require.NoError(t, err)
	return c
}

func TestNewHiveClient_RequiresNodes(t *testing.T) {
	_, err := NewHiveClient(&HiveClientConfig{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryConfiguration, apperrors.CategoryOf(err))
}

func TestHiveClient_ListSubscribersPaginates(t *testing.T) {
	var pages [][]string
	for p := 0; p < 2; p++ {
		var page []string
		for i := 0; i < subscriberPageSize; i++ {
			page = append(page, fmt.Sprintf("user%d-%d", p, i))
		}
		pages = append(pages, page)
	}
	pages = append(pages, []string{"last-user"})

	var calls atomic.Int32
	srv := newHiveServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "bridge.list_subscribers", method)

		var p struct {
			Community string `json:"community"`
			Last      string `json:"last"`
			Limit     int    `json:"limit"`
		}
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "hive-173115", p.Community)
		assert.Equal(t, subscriberPageSize, p.Limit)

		n := int(calls.Add(1)) - 1
		if n > 0 {
			prev := pages[n-1]
			assert.Equal(t, prev[len(prev)-1], p.Last)
		} else {
			assert.Empty(t, p.Last)
		}

		var rows [][]interface{}
		for _, name := range pages[n] {
			rows = append(rows, []interface{}{name, "guest", nil, "2024-01-01 00:00:00"})
		}
		return rows, nil
	})

	c := newTestHiveClient(t, srv.URL)
	subs, err := c.ListSubscribers(context.Background(), "hive-173115")

	require.NoError(t, err)
	assert.Len(t, subs, 2*subscriberPageSize+1)
	assert.Equal(t, "last-user", subs[len(subs)-1])
	assert.Equal(t, int32(3), calls.Load())
}

func TestHiveClient_GetAccountInfo(t *testing.T) {
	srv := newHiveServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		assert.Equal(t, "condenser_api.get_accounts", method)
		return []map[string]interface{}{{
			"name":                     "gnarly",
			"balance":                  "12.500 HIVE",
			"hbd_balance":              "3.000 HBD",
			"savings_hbd_balance":      "100.000 HBD",
			"vesting_shares":           "2000000.000000 VESTS",
			"delegated_vesting_shares": "500000.000000 VESTS",
			"received_vesting_shares":  "100000.000000 VESTS",
			"witness_votes":            []string{"good-karma", "skatehive"},
			"json_metadata":            `{"profile":{"name":"G"}}`,
			"posting_json_metadata":    `{"extensions":{"eth_address":"0xABCDEF0123456789ABCDEF0123456789ABCDEF01"}}`,
			"last_post":                "2026-05-01T10:20:30",
		}}, nil
	})

	c := newTestHiveClient(t, srv.URL)
	facts, err := c.GetAccountInfo(context.Background(), "gnarly")
	require.NoError(t, err)

	assert.Equal(t, 12.5, facts.HiveBalance)
	assert.Equal(t, 3.0, facts.HBDBalance)
	assert.Equal(t, 100.0, facts.HBDSavingsBalance)
	assert.Equal(t, 1600000.0, facts.EffectiveVests())
	assert.True(t, facts.VotedForWitness("SkateHive"))
	assert.False(t, facts.VotedForWitness("someone-else"))
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", facts.EthAddress)
	require.NotNil(t, facts.LastPost)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 20, 30, 0, time.UTC), *facts.LastPost)
}

func TestHiveClient_GetAccountInfoDefaults(t *testing.T) {
	srv := newHiveServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return []map[string]interface{}{{
			"name":          "fresh",
			"balance":       "0.000 HIVE",
			"json_metadata": "not json",
			"last_post":     "1970-01-01T00:00:00",
		}}, nil
	})

	c := newTestHiveClient(t, srv.URL)
	facts, err := c.GetAccountInfo(context.Background(), "fresh")
	require.NoError(t, err)

	assert.Equal(t, models.ZeroAddress, facts.EthAddress)
	assert.Nil(t, facts.LastPost)
	assert.Empty(t, facts.WitnessVotes)
}

func TestHiveClient_GetAccountInfoNotFound(t *testing.T) {
	srv := newHiveServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return []interface{}{}, nil
	})

	c := newTestHiveClient(t, srv.URL)
	_, err := c.GetAccountInfo(context.Background(), "ghost")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestHiveClient_FailsOverToNextNode(t *testing.T) {
	var downCalls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downCalls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(down.Close)

	up := newHiveServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		return []vestingDelegation{
			{Delegator: "gnarly", Delegatee: "someone", VestingShares: "10.000000 VESTS"},
			{Delegator: "gnarly", Delegatee: "SteemSkate", VestingShares: "2500.500000 VESTS"},
		}, nil
	})

	c := newTestHiveClient(t, down.URL, up.URL)
	vests, err := c.GetCuratorDelegation(context.Background(), "gnarly", "steemskate")

	require.NoError(t, err)
	assert.Equal(t, 2500.5, vests)
	assert.Equal(t, int32(1), downCalls.Load())
}

func TestHiveClient_RPCErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newHiveServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		calls.Add(1)
		return nil, &rpcError{Code: -32602, Message: "invalid parameters"}
	})

	c := newTestHiveClient(t, srv.URL)
	_, err := c.GetCuratorDelegation(context.Background(), "gnarly", "steemskate")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid parameters")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHiveClient_GetChainProps(t *testing.T) {
	srv := newHiveServer(t, func(method string, params json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "condenser_api.get_dynamic_global_properties":
			return map[string]string{
				"total_vesting_fund_hive": "1000.000 HIVE",
				"total_vesting_shares":    "2000000.000000 VESTS",
			}, nil
		case "condenser_api.get_reward_fund":
			return map[string]string{
				"reward_balance": "800000.000 HIVE",
				"recent_claims":  "400000000000000000",
			}, nil
		case "condenser_api.get_current_median_history_price":
			return map[string]string{"base": "0.250 HBD", "quote": "1.000 HIVE"}, nil
		}
		return nil, &rpcError{Code: -32601, Message: "unknown method " + method}
	})

	c := newTestHiveClient(t, srv.URL)
	props, err := c.GetChainProps(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.25, props.MedianPrice)
	assert.Equal(t, 500.0, props.VestsToHP(1000000))
	assert.InDelta(t, 0.01, props.VotingPowerUSD(1000000), 1e-12)
}

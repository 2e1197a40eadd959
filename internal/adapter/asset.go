package adapter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// hiveTimeLayout is the timestamp format used by the Hive API (UTC, no zone).
const hiveTimeLayout = "2006-01-02T15:04:05"

// neverTimestamp is returned for accounts that never posted.
const neverTimestamp = "1970-01-01T00:00:00"

// parseAsset parses a Hive asset string such as "12.345 HIVE" or "1.000000 VESTS".
// Empty input is zero.
func parseAsset(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	amount, _, _ := strings.Cut(s, " ")
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAsset, s)
	}
	f, _ := d.Float64()
	return f, nil
}

// parseNumber parses a bare numeric string such as recent_claims, which can
// exceed int64.
func parseNumber(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// parseHiveTime parses a Hive timestamp. The epoch sentinel and empty input map to nil.
func parseHiveTime(s string) (*time.Time, error) {
	if s == "" || s == neverTimestamp {
		return nil, nil
	}
	t, err := time.ParseInLocation(hiveTimeLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid hive timestamp %q: %w", s, err)
	}
	if t.Year() <= 1970 {
		return nil, nil
	}
	return &t, nil
}

// profileMetadata is the subset of account metadata carrying a linked wallet.
type profileMetadata struct {
	Extensions struct {
		EthAddress string `json:"eth_address"`
	} `json:"extensions"`
}

// ethAddressFromMetadata returns the first wallet found in the given metadata
// blobs, or "" when none is linked. Malformed blobs are ignored.
func ethAddressFromMetadata(blobs ...string) string {
	for _, blob := range blobs {
		if strings.TrimSpace(blob) == "" {
			continue
		}
		var meta profileMetadata
		if err := json.Unmarshal([]byte(blob), &meta); err != nil {
			continue
		}
		if addr := strings.TrimSpace(meta.Extensions.EthAddress); addr != "" {
			return addr
		}
	}
	return ""
}

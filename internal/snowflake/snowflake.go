package snowflake

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Epoch is the gateway epoch: the first millisecond IDs can encode
// (2015-01-01T00:00:00Z), in milliseconds since the Unix epoch.
const Epoch = 1420070400000

// ID is a 64-bit entity identifier with an embedded timestamp.
// The wire format sends IDs either as JSON numbers or as decimal
// strings; both are accepted.
type ID uint64

// Time returns the creation time embedded in the ID.
func (id ID) Time() time.Time {
	ms := int64(id>>22) + Epoch
	return time.UnixMilli(ms)
}

// String returns the decimal representation.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// MarshalJSON encodes the ID as a decimal string to avoid precision
// loss in consumers that parse JSON numbers as float64.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts both `123` and `"123"`.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse snowflake %q: %w", s, err)
	}
	*id = ID(v)
	return nil
}

// ShardIndex returns the index of the shard that handles the entity,
// by the protocol's partitioning rule: (id >> 22) % shardCount.
func ShardIndex(id ID, shardCount int) int {
	if shardCount <= 0 {
		return 0
	}
	return int((uint64(id) >> 22) % uint64(shardCount))
}

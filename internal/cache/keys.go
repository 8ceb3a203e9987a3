package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
)

// QueryKey identifies one prospect query. Equivalent parameter sets
// produce the same key.
type QueryKey struct {
	ResourceID string
	Mode       string
	MinDemand  float64
	Limit      int
	Offset     int
	Descending bool
	Scored     bool
}

func (k QueryKey) String() string {
	order := "asc"
	if k.Descending {
		order = "desc"
	}
	return makeKey(
		"query",
		strings.TrimSpace(k.ResourceID),
		strings.ToLower(strings.TrimSpace(k.Mode)),
		strconv.FormatFloat(k.MinDemand, 'f', -1, 64),
		strconv.Itoa(k.Limit),
		strconv.Itoa(k.Offset),
		order,
		strconv.FormatBool(k.Scored),
	)
}

// SchemaKey identifies the probed column mapping of one resource.
func SchemaKey(resourceID string) string {
	return makeKey("schema", strings.TrimSpace(resourceID))
}

func makeKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	h := sha1.Sum([]byte(joined))
	return hex.EncodeToString(h[:])
}

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// Cache namespaces.
const (
	NamespaceMarket   = "market"
	NamespaceAnalysis = "analysis"
)

// Key returns the hex SHA-256 of the canonical JSON encoding of
// {"ns": ns, "params": params}. Map keys are sorted by encoding/json, so
// maps with the same contents always produce the same key.
func Key(ns string, params any) (string, error) {
	b, err := json.Marshal(struct {
		NS     string `json:"ns"`
		Params any    `json:"params"`
	}{ns, params})
	if err != nil {
		return "", eris.Wrapf(err, "cache: encode key for %s", ns)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// NormalizeAddress trims an address and converts it to Unicode NFC so
// canonically equal strings share a cache key.
func NormalizeAddress(address string) string {
	return norm.NFC.String(strings.TrimSpace(address))
}

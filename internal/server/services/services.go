// Package services implements the identity core: account lookup, MFA
// enrollment and challenges, the refresh-credential ledger, the OAuth2
// authorization broker, the token-endpoint grant dispatcher and the scope
// gate. Multi-step flows run inside one dbx.WithTx transaction.
package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/idkeeper/internal/common"
)

// dedupe drops repeated and empty names, keeping first-seen order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// notFoundAs maps a repository miss onto a domain error and wraps anything
// else as an internal failure of op.
func notFoundAs(err error, domain error, op string) error {
	if errors.Is(err, common.ErrorNotFound) {
		return domain
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Package scopes declares the grant-counting queries behind scope
// enforcement. Callers pass de-duplicated names and compare the returned
// count with the number of names they asked for.
package scopes

import "context"

type Repository interface {
	// CountClientScopes counts names among the client-kind scopes configured
	// for the client with public id clientID.
	CountClientScopes(ctx context.Context, clientID string, names []string) (int, error)
	// CountConnectionScopes counts names among the scopes granted to the
	// account's connection with that client.
	CountConnectionScopes(ctx context.Context, accountID string, clientID string, names []string) (int, error)
}

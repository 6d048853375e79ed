package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/idkeeper/internal/dbx"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/authcodes"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/clients"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/connections"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/mfa"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/idkeeper/internal/server/repositories/scopes"
)

// RepositoryManager vends repositories bound to a DBTX, so a service can
// use the same factories with the pool or with an open transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	MFA(db dbx.DBTX) mfa.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Clients(db dbx.DBTX) clients.Repository
	Scopes(db dbx.DBTX) scopes.Repository
	AuthCodes(db dbx.DBTX) authcodes.Repository
	Connections(db dbx.DBTX) connections.Repository
}

package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/postfacto/internal/dbx"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/actionitems"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/archives"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/items"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/retros"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction, so services can compose several of them inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Retros(db dbx.DBTX) retros.Repository
	Items(db dbx.DBTX) items.Repository
	ActionItems(db dbx.DBTX) actionitems.Repository
	Archives(db dbx.DBTX) archives.Repository
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}

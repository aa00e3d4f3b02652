package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/scanvault/internal/dbx"
	"github.com/dmitrijs2005/scanvault/internal/server/repositories/budgets"
	"github.com/dmitrijs2005/scanvault/internal/server/repositories/files"
)

// RepositoryManager vends repositories bound to a DBTX so services can run
// them inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Budgets(db dbx.DBTX) budgets.Repository
}

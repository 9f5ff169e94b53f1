package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/catalogsync_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionGuardPlugin scopes queries/updates/deletes to the connection in the
// request context when the model has a connection_id column, so one catalog
// connection never reads or rewrites another connection's correlation rows or
// run history.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include connection_id manually.
// - Admin bypass is explicit via context flags.
type ConnectionGuardPlugin struct{}

func NewConnectionGuardPlugin() *ConnectionGuardPlugin { return &ConnectionGuardPlugin{} }

func (p *ConnectionGuardPlugin) Name() string { return "connection_guard" }

func (p *ConnectionGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("connection_guard:query", connectionGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("connection_guard:row", connectionGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("connection_guard:update", connectionGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("connection_guard:delete", connectionGuardCallback); err != nil {
		return err
	}
	return nil
}

func connectionGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassConnectionScope(ctx) {
		return
	}
	connectionID := connectionIdFromContext(ctx)
	if connectionID == 0 {
		return
	}

	if db.Statement.Schema == nil {
		return
	}
	hasConnectionID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "connection_id") {
			hasConnectionID = true
			break
		}
	}
	if !hasConnectionID {
		return
	}

	// Don't duplicate an explicit filter.
	if whereHasConnectionID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "connection_id"},
				Value:  connectionID,
			},
		},
	})
}

func connectionIdFromContext(ctx context.Context) uint {
	if v, ok := appctx.GetUint(ctx, appctx.ContextKeyConnectionId); ok {
		return v
	}
	return 0
}

func shouldBypassConnectionScope(ctx context.Context) bool {
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); ok && v {
		return true
	}
	return false
}

func whereHasConnectionID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasConnectionID(e) {
			return true
		}
	}
	return false
}

func exprHasConnectionID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsConnectionID(v.Column)
	case clause.Neq:
		return colIsConnectionID(v.Column)
	case clause.IN:
		return colIsConnectionID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasConnectionID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasConnectionID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "connection_id")
	default:
		return false
	}
}

func colIsConnectionID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "connection_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "connection_id")
	default:
		return false
	}
}

package repository

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// pick returns exec when a transaction is supplied, otherwise the pooled handle.
func pick(db *sqlx.DB, exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return db
}

// whereBuilder accumulates positional conditions.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) add(format string, value interface{}) {
	w.args = append(w.args, value)
	w.conditions = append(w.conditions, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) raw(condition string) {
	w.conditions = append(w.conditions, condition)
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

func sortOrder(raw, fallback string) string {
	order := strings.ToUpper(raw)
	if order != "ASC" && order != "DESC" {
		return fallback
	}
	return order
}

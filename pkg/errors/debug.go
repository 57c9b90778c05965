package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxChainDepth bounds the unwrap walk for log output.
const maxChainDepth = 16

// ErrorDump is the log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string        `json:"top_message"`
	Code       Code          `json:"code,omitempty"`
	Details    any           `json:"details,omitempty"`
	Chain      []string      `json:"chain,omitempty"`
	Postgres   *PostgresDump `json:"postgres,omitempty"`
}

// PostgresDump carries the server-side fields of the first Postgres error in the chain,
// whichever driver raised it.
type PostgresDump struct {
	SQLState   string `json:"sqlstate"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error(), Postgres: postgresDump(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Details = te.Details()
	}
	for e, depth := err, 0; e != nil && depth < maxChainDepth; e, depth = errors.Unwrap(e), depth+1 {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

func postgresDump(err error) *PostgresDump {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &PostgresDump{
			SQLState:   pgErr.Code,
			Message:    pgErr.Message,
			Detail:     pgErr.Detail,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Constraint: pgErr.ConstraintName,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PostgresDump{
			SQLState:   string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Constraint: pqErr.Constraint,
		}
	}
	return nil
}

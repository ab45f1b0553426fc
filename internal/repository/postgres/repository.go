// Package postgres implements the domain repositories over database/sql
// with the lib/pq driver. Statements run through postgres.Client.Querier so
// they join the caller's transaction when one is open.
package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
	ierr "github.com/meterline/meterline/internal/errors"
)

// uniqueViolation is the postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// nullableUint adapts an optional uint64 to a nullable bigint parameter.
func nullableUint(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func uintFromNull(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}

// requireRowAffected turns a zero-row write into a not-found error.
func requireRowAffected(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return ierr.NewError(entity + " not found").
			WithHint("The record does not exist").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

package sqlite

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// mapConstraintErr turns a SQLite UNIQUE-constraint violation into a
// domain.ConflictError naming kind/key; any other error passes through.
func mapConstraintErr(err error, kind, key string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return &domain.ConflictError{Message: kind + " " + strconv.Quote(key) + " already exists"}
	}
	return err
}

// checkAffected converts a zero-rows-affected Exec result into a
// domain.NotFoundError for kind/id.
func checkAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: kind, Key: idKey(id)}
	}
	return nil
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

package identity

import (
	"context"
	"database/sql"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
)

type User struct {
	ID     uuid.UUID `db:"id"`
	Login  string    `db:"login"`
	Avatar *string   `db:"avatar"`
}

// Directory looks up display metadata for known users.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db}
}

func (d *Directory) GetUser(ctx context.Context, userID uuid.UUID) (User, error) {
	const query = `
		SELECT
			id, login, avatar
		FROM
			users
		WHERE
			id = $1;`
	return tql.QuerySingle[User](ctx, d.db, query, userID)
}

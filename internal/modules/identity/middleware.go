package identity

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/modules/core"

	"github.com/eskrenkovic/tql"
	"github.com/google/uuid"
)

const sessionCookie = "duel-session"

type connectionSession struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Login     string    `db:"login"`
	ExpiresAt time.Time `db:"expires_at"`
}

// AuthenticationMiddleware resolves the connection's session cookie into a
// ContextIdentity. The orchestrator trusts the resolved identity for the
// lifetime of the connection.
func AuthenticationMiddleware(db *sql.DB) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookie)
			if err != nil {
				core.WriteUnauthorized(w, r, nil)
				return
			}

			sessionID, err := uuid.Parse(cookie.Value)
			if err != nil {
				core.WriteUnauthorized(w, r, nil)
				return
			}

			const query = `
				SELECT
					s.id, s.user_id, s.expires_at, u.login
				FROM
					user_sessions s
					JOIN users u ON u.id = s.user_id
				WHERE
					s.id = $1;`

			session, err := tql.QuerySingle[connectionSession](r.Context(), db, query, sessionID)
			switch {
			case err != nil && errors.Is(err, sql.ErrNoRows):
				core.WriteUnauthorized(w, r, nil)
				return
			case err != nil:
				core.WriteInternalServerError(w, r, nil)
				return
			}

			if time.Now().After(session.ExpiresAt) {
				core.WriteUnauthorized(w, r, nil)
				return
			}

			identity := core.ContextIdentity{
				UserID:      session.UserID,
				DisplayName: session.Login,
			}

			ctx := context.WithValue(r.Context(), core.IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
	}
}

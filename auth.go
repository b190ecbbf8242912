package medinventory

import (
	"context"
	"time"

	"github.com/medkit/medinventory/pkg/connection"
	"github.com/medkit/medinventory/pkg/constants"
)

const authTable = "auth"

// SignIn signs in with email and password on connections backed by an auth
// service, and caches the new session.
func (db *DB) SignIn(ctx context.Context, email, password string) (SessionStatus, error) {
	auth, ok := db.conn.(connection.Authenticator)
	if !ok {
		return SessionStatus{}, db.observe("signin", authTable, time.Now(), constants.ErrMethodNotAvailable)
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	sess, err := auth.SignInWithPassword(ctx, email, password)
	if err == nil && sess == nil {
		err = constants.ErrNoSession
	}
	if err = db.observe("signin", authTable, began, err); err != nil {
		return SessionStatus{}, err
	}

	st := SessionStatus{Authenticated: true, Identity: sess.Identity, Email: sess.Email}
	db.session.store(st)
	return st, nil
}

// SignOut ends the session and clears the cache. The cache is cleared even
// when the remote call fails.
func (db *DB) SignOut(ctx context.Context) error {
	auth, ok := db.conn.(connection.Authenticator)
	if !ok {
		return db.observe("signout", authTable, time.Now(), constants.ErrMethodNotAvailable)
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	began := time.Now()
	err := auth.SignOut(ctx)
	db.session.store(SessionStatus{})
	return db.observe("signout", authTable, began, err)
}

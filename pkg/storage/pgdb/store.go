// Package pgdb provides a trust.ListStore & channel.AliasStore that keeps data in a postgres database.
package pgdb

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"code.vaulink.org/golang/pkg/channel"
	"code.vaulink.org/golang/pkg/trust"
)

// PGDB is implemented by pgx.Tx, pgx.Conn & pgxpool.Pool
// accessing a postgres database through this common interface simplifies testing
type PGDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

//go:embed vau_store_schema.sql
var schemaScriptTpl string

// Migrate creates the dbschema schema & its tables if they do not exist.
func Migrate(ctx context.Context, conn *pgx.Conn, dbschema string) error {
	schemaName := pgx.Identifier{dbschema}.Sanitize()
	schemaScript := strings.ReplaceAll(schemaScriptTpl, "${schema_name}", schemaName)

	_, err := conn.Exec(ctx, schemaScript)

	return wrapError(err, "Failed db schema initialization") // nil if err is nil...
}

// Store persists the trust lists & the channel alias of the ClientName client.
type Store struct {
	DB         PGDB
	ClientName string
}

// New returns a Store connected to dsn through a connection pool.
func New(ctx context.Context, dsn string, clientName string) (*Store, error) {
	if "" == clientName {
		return nil, newError("missing clientName")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if nil != err {
		return nil, wrapError(err, "failed connection pool creation")
	}

	return &Store{DB: pool, ClientName: clientName}, nil
}

// Close releases the connection pool created by New.
// It does nothing if DB is not a *pgxpool.Pool, transactions & connections are closed by their owner.
func (self *Store) Close() {
	pool, ok := self.DB.(*pgxpool.Pool)
	if ok {
		pool.Close()
	}
}

type listsRow struct {
	Certs   []byte    `db:"cert_list"`
	OCSP    []byte    `db:"ocsp_list"`
	SavedAt time.Time `db:"saved_at"`
}

// LoadLists returns the persisted trust.Lists. The bool flag is false if no Lists were persisted.
func (self *Store) LoadLists(ctx context.Context) (trust.Lists, bool, error) {
	rows, err := self.DB.Query(
		ctx,
		`SELECT cert_list, ocsp_list, saved_at
		 FROM trust_lists
		 WHERE client_name = $1
		`,
		self.ClientName,
	)
	if nil != err {
		return trust.Lists{}, false, wrapError(trust.ErrStorage, "failed DB.Query, got error %v", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[listsRow])
	if nil != err {
		if errors.Is(err, pgx.ErrNoRows) {
			return trust.Lists{}, false, nil
		}
		return trust.Lists{}, false, wrapError(trust.ErrStorage, "failed loading lists, got error %v", err)
	}

	return trust.Lists{Certs: row.Certs, OCSP: row.OCSP, SavedAt: row.SavedAt}, true, nil
}

// SaveLists persists lists, replacing previously persisted Lists.
func (self *Store) SaveLists(ctx context.Context, lists trust.Lists) error {
	err := lists.Check()
	if nil != err {
		return wrapError(trust.ErrStorage, "invalid lists, got error %v", err)
	}
	_, err = self.DB.Exec(
		ctx,
		`INSERT INTO trust_lists(client_name, cert_list, ocsp_list, saved_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (client_name) DO UPDATE SET
		   cert_list = EXCLUDED.cert_list,
		   ocsp_list = EXCLUDED.ocsp_list,
		   saved_at = EXCLUDED.saved_at
		`,
		self.ClientName, lists.Certs, lists.OCSP, lists.SavedAt,
	)
	if nil != err {
		return wrapError(trust.ErrStorage, "failed saving lists, got error %v", err)
	}
	return nil
}

// InvalidateLists removes the persisted Lists.
func (self *Store) InvalidateLists(ctx context.Context) error {
	_, err := self.DB.Exec(ctx, `DELETE FROM trust_lists WHERE client_name = $1`, self.ClientName)
	if nil != err {
		return wrapError(trust.ErrStorage, "failed invalidating lists, got error %v", err)
	}
	return nil
}

var _ trust.ListStore = &Store{}

// LoadAlias returns the persisted alias, or "" if none was persisted.
func (self *Store) LoadAlias(ctx context.Context) (string, error) {
	var alias string
	err := self.DB.QueryRow(
		ctx,
		`SELECT alias FROM channel_alias WHERE client_name = $1`,
		self.ClientName,
	).Scan(&alias)
	if nil != err {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", wrapError(err, "failed loading alias")
	}
	return alias, nil
}

// SaveAlias persists alias.
func (self *Store) SaveAlias(ctx context.Context, alias string) error {
	_, err := self.DB.Exec(
		ctx,
		`INSERT INTO channel_alias(client_name, alias)
		 VALUES ($1, $2)
		 ON CONFLICT (client_name) DO UPDATE SET
		   alias = EXCLUDED.alias,
		   updated_at = now()
		`,
		self.ClientName, alias,
	)
	return wrapError(err, "failed saving alias") // nil if err is nil
}

var _ channel.AliasStore = &Store{}

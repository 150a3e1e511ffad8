package pgdb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"code.vaulink.org/golang/pkg/channel"
	"code.vaulink.org/golang/pkg/trust"
)

// testDSN is read from VAULINK_TEST_DSN, tests are skipped when it is not set.
// ex: host=localhost port=25432 database=vaudb user=postgres password=notasecret sslmode=disable search_path=vaulink_test,public
var testDSN = os.Getenv("VAULINK_TEST_DSN")

func TestPing(t *testing.T) {
	ctx := context.Background()
	conn := newConn(ctx, t)
	err := conn.Ping(ctx)
	if nil != err {
		t.Fatalf("failed connection test, got error %v", err)
	}
}

func TestStore_Lists(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(ctx, t, "client-1")

	_, found, err := store.LoadLists(ctx)
	if nil != err || found {
		t.Fatalf("failed empty store control, got found %v error %v", found, err)
	}

	lists := trust.Lists{Certs: []byte(`{"add_roots":[]}`), OCSP: []byte(`{"OCSP Responses":[]}`), SavedAt: time.Now().Truncate(time.Second)}
	for range 2 {
		err = store.SaveLists(ctx, lists)
		if nil != err {
			t.Fatalf("failed SaveLists, got error %v", err)
		}
	}
	loaded, found, err := store.LoadLists(ctx)
	if nil != err || !found {
		t.Fatalf("failed LoadLists, got found %v error %v", found, err)
	}
	if !lists.Equal(loaded) || !lists.SavedAt.Equal(loaded.SavedAt) {
		t.Errorf("failed lists control, got %+v", loaded)
	}

	// lists are kept per client
	other := &Store{DB: store.DB, ClientName: "client-2"}
	if _, found, _ = other.LoadLists(ctx); found {
		t.Error("lists shared between clients")
	}

	err = store.InvalidateLists(ctx)
	if nil != err {
		t.Fatalf("failed InvalidateLists, got error %v", err)
	}
	if _, found, _ = store.LoadLists(ctx); found {
		t.Error("lists still present after InvalidateLists")
	}

	err = store.SaveLists(ctx, trust.Lists{})
	if !errors.Is(err, trust.ErrStorage) {
		t.Errorf("empty lists saved, got error %v", err)
	}
}

func TestStore_Alias(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(ctx, t, "client-1")

	session := channel.NewSession(store)
	alias, err := session.Alias(ctx)
	if nil != err || channel.DefaultAlias != alias {
		t.Fatalf("failed default alias control, got %q error %v", alias, err)
	}
	err = session.Update(ctx, "pseudo-7")
	if nil != err {
		t.Fatalf("failed Update, got error %v", err)
	}
	alias, err = store.LoadAlias(ctx)
	if nil != err || "pseudo-7" != alias {
		t.Errorf("failed alias control, got %q error %v", alias, err)
	}
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()

	// pgxpool.New does not connect, the pool is usable offline up to its first query
	store, err := New(ctx, "postgres://vaulink@127.0.0.1:1/vaudb?connect_timeout=1", "client-1")
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	store.Close()
	_, _, err = store.LoadLists(ctx)
	if !errors.Is(err, trust.ErrStorage) {
		t.Errorf("closed Store answered, got error %v", err)
	}

	// Close leaves DB it does not own untouched
	(&Store{ClientName: "client-1"}).Close()

	_, err = New(ctx, "postgres://vaulink@127.0.0.1:1/vaudb", "")
	if nil == err {
		t.Error("New accepted an empty clientName")
	}
}

func newConn(ctx context.Context, t *testing.T) *pgx.Conn {
	if "" == testDSN {
		t.Skip("VAULINK_TEST_DSN not set")
	}
	conn, err := pgx.Connect(ctx, testDSN)
	if nil != err {
		t.Fatalf("failed pgx.Connect, got error %v", err)
	}
	t.Cleanup(func() { conn.Close(ctx) })

	err = Migrate(ctx, conn, "vaulink_test")
	if nil != err {
		t.Fatalf("failed Migrate, got error %v", err)
	}

	return conn
}

// newTestStore returns a Store running inside a transaction rolled back at test end.
func newTestStore(ctx context.Context, t *testing.T, clientName string) *Store {
	conn := newConn(ctx, t)
	tx, err := conn.Begin(ctx)
	if nil != err {
		t.Fatalf("failed starting transaction, got error %v", err)
	}

	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM trust_lists")
	batch.Queue("DELETE FROM channel_alias")
	br := tx.SendBatch(ctx, batch)
	for qnum := range 2 {
		_, err = br.Exec()
		if nil != err {
			t.Fatalf("failed tx initialization step #%d, got error %v", qnum, err)
		}
	}
	br.Close()

	t.Cleanup(func() {
		err := tx.Rollback(ctx)
		if nil != err {
			t.Logf("failed rolling back test transaction, got error %v", err)
		} else {
			t.Log("rolled back test transaction")
		}
	})

	return &Store{DB: tx, ClientName: clientName}
}

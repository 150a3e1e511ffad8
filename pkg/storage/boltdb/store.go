// Package boltdb provides a persistent trust.ListStore & channel.AliasStore that keeps data in a file.
package boltdb

import (
	"context"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"code.vaulink.org/golang/internal/transport"
	"code.vaulink.org/golang/pkg/channel"
	"code.vaulink.org/golang/pkg/trust"
)

const (
	connectTimeout = 5 * time.Second

	listsBucket = "trustLists"
	aliasBucket = "channelAlias"
)

var currentKey = []byte("current")

// aliasRecord is the persisted form of the channel alias.
type aliasRecord struct {
	Alias   string    `cbor:"1,keyasint"`
	SavedAt time.Time `cbor:"2,keyasint"`
}

// Store persists the trust lists & the channel alias of a single client in a bbolt database.
//
// The database file is opened for the duration of each call, it can be shared by separate processes.
type Store struct {
	dbpath     string
	serializer transport.Serializer
}

// New returns a Store that persists data in the dbpath file.
// It errors if the database buckets can not be created.
func New(dbpath string) (*Store, error) {
	store := &Store{
		dbpath:     dbpath,
		serializer: transport.WrapInSafeSerializer(transport.CBORSerializer{}),
	}

	db, err := store.open()
	if nil != err {
		return nil, err
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		for _, bucketname := range []string{listsBucket, aliasBucket} {
			_, err = tx.CreateBucketIfNotExists([]byte(bucketname))
			if nil != err {
				return wrapError(err, "failed %s bucket creation", bucketname)
			}
		}

		return nil
	})
	if nil != err {
		return nil, wrapError(err, "failed db initialization")
	}

	return store, nil
}

// LoadLists returns the persisted trust.Lists. The bool flag is false if no Lists were persisted.
func (self *Store) LoadLists(ctx context.Context) (trust.Lists, bool, error) {
	var lists trust.Lists
	err := self.load(ctx, listsBucket, &lists)
	switch {
	case nil == err:
		return lists, true, nil
	case errors.Is(err, ErrNotFound):
		return trust.Lists{}, false, nil
	default:
		return trust.Lists{}, false, wrapError(trust.ErrStorage, "failed loading lists, got error %v", err)
	}
}

// SaveLists persists lists, replacing previously persisted Lists.
func (self *Store) SaveLists(ctx context.Context, lists trust.Lists) error {
	err := self.save(ctx, listsBucket, lists)
	if nil != err {
		return wrapError(trust.ErrStorage, "failed saving lists, got error %v", err)
	}
	return nil
}

// InvalidateLists removes the persisted Lists.
func (self *Store) InvalidateLists(ctx context.Context) error {
	err := self.remove(ctx, listsBucket)
	if nil != err {
		return wrapError(trust.ErrStorage, "failed invalidating lists, got error %v", err)
	}
	return nil
}

var _ trust.ListStore = &Store{}

// LoadAlias returns the persisted alias, or "" if none was persisted.
func (self *Store) LoadAlias(ctx context.Context) (string, error) {
	var rec aliasRecord
	err := self.load(ctx, aliasBucket, &rec)
	switch {
	case nil == err:
		return rec.Alias, nil
	case errors.Is(err, ErrNotFound):
		return "", nil
	default:
		return "", wrapError(err, "failed loading alias")
	}
}

// SaveAlias persists alias.
func (self *Store) SaveAlias(ctx context.Context, alias string) error {
	err := self.save(ctx, aliasBucket, aliasRecord{Alias: alias, SavedAt: time.Now()})
	return wrapError(err, "failed saving alias") // nil if err is nil
}

var _ channel.AliasStore = &Store{}

func (self *Store) open() (*bolt.DB, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, wrapError(err, "failed connecting to database")
	}
	return db, nil
}

// load unmarshals the current record of bucketname into dst.
// It errors with ErrNotFound if the bucket is empty.
func (self *Store) load(ctx context.Context, bucketname string, dst any) error {
	err := ctx.Err()
	if nil != err {
		return wrapError(err, "context done")
	}
	db, err := self.open()
	if nil != err {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketname))
		if nil == bucket {
			return newError("missing %s bucket", bucketname)
		}
		srz := bucket.Get(currentKey)
		if nil == srz {
			return wrapError(ErrNotFound, "empty %s bucket", bucketname)
		}
		// srz is only valid inside the transaction
		err := self.serializer.Unmarshal(srz, dst)
		return wrapError(err, "failed unmarshaling %s record", bucketname) // nil if err is nil
	})
}

// save replaces the current record of bucketname with the serialized form of v.
func (self *Store) save(ctx context.Context, bucketname string, v any) error {
	err := ctx.Err()
	if nil != err {
		return wrapError(err, "context done")
	}
	srz, err := self.serializer.Marshal(v)
	if nil != err {
		return wrapError(err, "failed marshaling %s record", bucketname)
	}
	db, err := self.open()
	if nil != err {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketname))
		if nil == bucket {
			return newError("missing %s bucket", bucketname)
		}
		return bucket.Put(currentKey, srz)
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

func (self *Store) remove(ctx context.Context, bucketname string) error {
	err := ctx.Err()
	if nil != err {
		return wrapError(err, "context done")
	}
	db, err := self.open()
	if nil != err {
		return err
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketname))
		if nil == bucket {
			return newError("missing %s bucket", bucketname)
		}
		return bucket.Delete(currentKey)
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

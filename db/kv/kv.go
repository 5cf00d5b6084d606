// Package kv persists the agent's operational state: indexing rules, POI
// disputes, the operator-management action queue and allocation summaries.
// Everything lives in a single bbolt file under the data directory; schema
// changes ship as named idempotent migrations executed at open.
package kv

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombolt "github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/graphops/indexer-agent/shared/errs"
)

var log = logrus.WithField("prefix", "db")

// DatabaseFileName is the bbolt file created under the data directory.
const DatabaseFileName = "indexer-agent.db"

var (
	rulesBucket      = []byte("indexing-rules")
	disputesBucket   = []byte("poi-disputes")
	actionsBucket    = []byte("actions")
	summariesBucket  = []byte("allocation-summaries")
	migrationsBucket = []byte("migrations")
)

var migrationCompleted = []byte("done")

// Config options for the agent store.
type Config struct {
	// DefaultNetwork scopes rows written before the store was
	// network-aware; the rules re-keying migration files them under it.
	DefaultNetwork string
}

// Store is the bbolt-backed database of the agent.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore opens (creating if needed) the store under dirPath, creates
// the bucket schema and runs any pending migrations.
func NewKVStore(dirPath string, cfg *Config) (*Store, error) {
	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return nil, err
	}
	datafile := filepath.Join(dirPath, DatabaseFileName)
	boltDB, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}
	s := &Store{db: boltDB, databasePath: datafile}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(
			tx,
			rulesBucket,
			disputesBucket,
			actionsBucket,
			summariesBucket,
			migrationsBucket,
		)
	}); err != nil {
		return nil, err
	}

	if cfg == nil {
		cfg = &Config{}
	}
	if err := s.runMigrations(cfg); err != nil {
		if closeErr := boltDB.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Could not close database after failed migration")
		}
		return nil, errs.Wrap(err, errs.IE001)
	}

	if err := prometheus.Register(createBoltCollector(s.db)); err != nil {
		log.WithError(err).Debug("Could not register boltdb prometheus collector")
	}
	return s, nil
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

func createBoltCollector(db *bolt.DB) prometheus.Collector {
	return prombolt.New("indexer_agent_db", db)
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DatabasePath at which this database writes its file.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// ClearDB removes any previously stored data at the database path. The
// store must not be in use.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(s.databasePath)
}

// Size returns the db size in bytes.
func (s *Store) Size() (int64, error) {
	var size int64
	err := s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}

// networkBucket returns the nested per-network bucket inside parent,
// creating it when the transaction is writable.
func networkBucket(tx *bolt.Tx, parent []byte, network string, create bool) (*bolt.Bucket, error) {
	top := tx.Bucket(parent)
	if create {
		return top.CreateBucketIfNotExists([]byte(network))
	}
	return top.Bucket([]byte(network)), nil
}

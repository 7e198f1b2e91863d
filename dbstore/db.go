package dbstore

import (
	"database/sql"
	"encoding/hex"
	"math/big"

	commonerrors "github.com/crosspool/resolver-lib/common/errors"
	"github.com/crosspool/resolver-lib/common/types"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DBStore is the Postgres-backed persistence layer for swap requests, the
// resolver operation audit log and the pool liquidity ledger.
//
// Balance and amount columns are NUMERIC(78,0): exact base-unit integers,
// never floating point. They cross the wire as decimal strings and are parsed
// into big.Int.
type DBStore struct {
	db *sql.DB
}

// NewDBStore opens a connection pool against the given Postgres connection
// string and verifies connectivity.
func NewDBStore(connStr string) (*DBStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, commonerrors.ErrDatabaseConnect
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(commonerrors.ErrDatabaseConnect, err.Error())
	}

	return &DBStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *DBStore) Close() error {
	return s.db.Close()
}

// parseAmount parses a decimal column value into a big.Int.
func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, errors.Errorf("invalid amount value %q", value)
	}
	return amount, nil
}

// parseHashLock parses a hex hash lock column value into a fixed-size digest.
func parseHashLock(value string) ([types.HashLockSize]byte, error) {
	var hashLock [types.HashLockSize]byte

	raw, err := hex.DecodeString(value)
	if err != nil {
		return hashLock, errors.Wrap(err, "invalid hash lock hex")
	}
	if len(raw) != types.HashLockSize {
		return hashLock, errors.Errorf("invalid hash lock length %d", len(raw))
	}

	copy(hashLock[:], raw)
	return hashLock, nil
}

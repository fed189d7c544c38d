package crdbstate

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	conf "github.com/yob/home-energy/core/config"
	"github.com/yob/home-energy/core/homestate"
	"github.com/yob/home-energy/core/logging"
)

const (
	createTableSQL = "CREATE TABLE IF NOT EXISTS home_state (id INT PRIMARY KEY DEFAULT unique_rowid(), key TEXT NOT NULL UNIQUE, value TEXT NOT NULL)"
	selectSQL      = "SELECT value FROM home_state WHERE key = $1"
	upsertSQL      = "INSERT INTO home_state (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = excluded.value"
	deleteSQL      = "DELETE FROM home_state WHERE key = $1"
	timeoutSQL     = "SET statement_timeout = 3000"
)

// State persists entity values in CockroachDB so cumulative costs survive a
// restart.
type State struct {
	db     *sql.DB
	logger *logging.Logger
}

func New(config *conf.ConfigSection, logger *logging.Logger) (*State, error) {
	connectString, err := config.GetString("connect")
	if err != nil {
		return nil, fmt.Errorf("crdbstate: connect not set in config - %v", err)
	}
	db, err := sql.Open("postgres", connectString)
	if err != nil {
		return nil, fmt.Errorf("crdbstate: error connecting to the database: %w", err)
	}
	return NewFromDB(db, logger)
}

// NewFromDB creates the state table if needed. logger may be nil.
func NewFromDB(db *sql.DB, logger *logging.Logger) (*State, error) {
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("crdbstate: error creating db table: %w", err)
	}
	return &State{
		db:     db,
		logger: logger,
	}, nil
}

func (state *State) Read(key string) (string, bool) {
	var result string
	err := state.db.QueryRow(selectSQL, key).Scan(&result)

	if err == sql.ErrNoRows {
		return "", false
	} else if err != nil {
		state.logError(fmt.Sprintf("crdbstate: select error: %v", err))
		return "", false
	}
	return result, true
}

func (state *State) ReadFloat64(key string) (float64, bool) {
	if value, ok := state.Read(key); ok {
		return homestate.ParseFloat64(value)
	}
	return 0, false
}

func (state *State) ReadDecimal(key string) (decimal.Decimal, bool) {
	if value, ok := state.Read(key); ok {
		return homestate.ParseDecimal(value)
	}
	return decimal.Zero, false
}

func (state *State) ReadTime(key string) (time.Time, bool) {
	if value, ok := state.Read(key); ok {
		return homestate.ParseTime(value)
	}
	return time.Time{}, false
}

func (state *State) ReadOnly() homestate.StateReader {
	return homestate.NewReadOnly(state)
}

func (state *State) Store(key string, value string) error {
	if _, err := state.db.Exec(upsertSQL, key, value); err != nil {
		state.logError(fmt.Sprintf("crdbstate: store %s: %v", key, err))
		return err
	}
	return nil
}

func (state *State) StoreMulti(updates map[string]string) error {
	tx, err := state.db.Begin()
	if err != nil {
		return err
	}

	defer tx.Rollback()

	if _, err = tx.Exec(timeoutSQL); err != nil {
		return err
	}

	for key, value := range updates {
		if _, err := tx.Exec(upsertSQL, key, value); err != nil {
			state.logError(fmt.Sprintf("crdbstate: store %s: %v", key, err))
			return err
		}
	}

	return tx.Commit()
}

func (state *State) Remove(key string) error {
	_, err := state.db.Exec(deleteSQL, key)
	return err
}

func (state *State) logError(message string) {
	if state.logger != nil {
		state.logger.Error(message)
	}
}

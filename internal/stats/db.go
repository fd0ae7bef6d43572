// Package stats records per-player level statistics in a local SQLite
// database: which secrets were found and every completed level.
package stats

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("qcvm.stats")

//go:embed init.sql
var initQuery string

const timestampLayout = "2006-01-02 15:04:05"

// ErrMapNotFound is returned when a map has never been recorded.
var ErrMapNotFound = errors.New("map not found")

// MapContext identifies a map within a game.
type MapContext struct {
	MapName        string
	Game           string
	MapDisplayName string
	SecretCount    uint32
}

// Completion is one finished run of a map.
type Completion struct {
	MapContext
	Timestamp              time.Time
	GameType               string
	Skill                  uint16
	MaxSimultaneousPlayers uint32
	CheatsUsed             bool
	CompletedTime          uint32
	SecretsFound           []uint16
	MonstersKilled         uint32
	MonstersTotal          uint32
}

// DB is the player stats store.
type DB struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(initQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	log.Debugf("opened stats database %s", path)
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// GetOrInsertMapWithContext returns the id of the map, inserting it on
// first sight. An existing row keeps its display name and secret count.
func (d *DB) GetOrInsertMapWithContext(mc MapContext) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapID(mc)
}

func (d *DB) mapID(mc MapContext) (int64, error) {
	const query = "SELECT id FROM maps_with_context WHERE map_name = ? AND game = ?"
	var id int64
	err := d.db.QueryRow(query, mc.MapName, mc.Game).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("querying map: %w", err)
	}
	_, err = d.db.Exec(
		"INSERT OR IGNORE INTO maps_with_context (map_name, game, map_display_name, secret_count) VALUES (?, ?, ?, ?)",
		mc.MapName, mc.Game, mc.MapDisplayName, mc.SecretCount,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting map: %w", err)
	}
	if err := d.db.QueryRow(query, mc.MapName, mc.Game).Scan(&id); err != nil {
		return 0, fmt.Errorf("querying map: %w", err)
	}
	return id, nil
}

// InsertSecretFound records that secret was found now. Recording the same
// secret again keeps the first timestamp.
func (d *DB) InsertSecretFound(mc MapContext, secret uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.mapID(mc)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		"INSERT OR IGNORE INTO secrets_found (map_context_id, idx, first_found_timestamp) VALUES (?, ?, CURRENT_TIMESTAMP)",
		id, secret,
	)
	if err != nil {
		return fmt.Errorf("inserting secret: %w", err)
	}
	return nil
}

// SecretsFound lists the secrets ever found on a map, ascending.
func (d *DB) SecretsFound(mapName, game string) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`SELECT s.idx FROM secrets_found s
		JOIN maps_with_context m ON m.id = s.map_context_id
		WHERE m.map_name = ? AND m.game = ?
		ORDER BY s.idx`, mapName, game)
	if err != nil {
		return nil, fmt.Errorf("querying secrets: %w", err)
	}
	defer rows.Close()

	var out []uint16
	for rows.Next() {
		var idx uint16
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scanning secret: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// InsertMapCompletion records a finished level. Timestamp is assigned by
// the database.
func (d *DB) InsertMapCompletion(c Completion) error {
	secrets := c.SecretsFound
	if secrets == nil {
		secrets = []uint16{}
	}
	secretsJSON, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("encoding secrets: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.mapID(c.MapContext)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		`INSERT INTO map_completions (map_context_id, timestamp, gametype, skill, max_simultaneous_players,
			cheats_used, completed_time, secrets_found_json, monsters_killed, monsters_total)
		VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.GameType, c.Skill, c.MaxSimultaneousPlayers, c.CheatsUsed, c.CompletedTime,
		string(secretsJSON), c.MonstersKilled, c.MonstersTotal,
	)
	if err != nil {
		return fmt.Errorf("inserting completion: %w", err)
	}
	return nil
}

// Completions lists the recorded completions of a map, oldest first.
func (d *DB) Completions(mapName, game string) ([]Completion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`SELECT m.map_name, m.game, m.map_display_name, m.secret_count,
			c.timestamp, c.gametype, c.skill, c.max_simultaneous_players, c.cheats_used,
			c.completed_time, c.secrets_found_json, c.monsters_killed, c.monsters_total
		FROM map_completions c
		JOIN maps_with_context m ON m.id = c.map_context_id
		WHERE m.map_name = ? AND m.game = ?
		ORDER BY c.id`, mapName, game)
	if err != nil {
		return nil, fmt.Errorf("querying completions: %w", err)
	}
	defer rows.Close()

	var out []Completion
	for rows.Next() {
		var (
			c           Completion
			stamp       string
			secretsJSON string
		)
		err := rows.Scan(&c.MapName, &c.Game, &c.MapDisplayName, &c.SecretCount,
			&stamp, &c.GameType, &c.Skill, &c.MaxSimultaneousPlayers, &c.CheatsUsed,
			&c.CompletedTime, &secretsJSON, &c.MonstersKilled, &c.MonstersTotal)
		if err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		if c.Timestamp, err = time.Parse(timestampLayout, stamp); err != nil {
			return nil, fmt.Errorf("parsing completion timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(secretsJSON), &c.SecretsFound); err != nil {
			return nil, fmt.Errorf("parsing secrets: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const scanPageSize = 500

// sqliteStore is the single concrete Store implementation. It encodes the
// abstract key-partitioned keyspace as one table, following Design Note 2:
// a conditional put/update is expressed as a transaction that reads the
// current row, evaluates the condition, and writes the new row, rather
// than as a single UPDATE ... RETURNING statement — SQLite's write-lock
// scope inside a transaction gives the same atomicity guarantee.
type sqliteStore struct {
	db *sql.DB
}

// Open creates (or attaches to) a SQLite-backed Store at path. Use
// ":memory:" for an ephemeral in-process store (tests).
func Open(path string) (Store, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapErr("open", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, wrapErr("ping", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, wrapErr("migrate", err)
	}
	return &sqliteStore{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	partition TEXT NOT NULL,
	sort      TEXT NOT NULL,
	attrs     TEXT NOT NULL,
	ttl       INTEGER,
	PRIMARY KEY (partition, sort)
);
CREATE INDEX IF NOT EXISTS idx_items_ttl ON items(ttl) WHERE ttl IS NOT NULL;
`

func (s *sqliteStore) Close() error { return s.db.Close() }

func nowUnix() int64 { return time.Now().Unix() }

func decodeItem(attrsJSON string, ttl sql.NullInt64) (Item, error) {
	var item Item
	if err := json.Unmarshal([]byte(attrsJSON), &item); err != nil {
		return nil, err
	}
	if item == nil {
		item = Item{}
	}
	if ttl.Valid {
		item["ttl"] = ttl.Int64
	}
	return item, nil
}

func encodeItem(item Item) (string, sql.NullInt64, error) {
	ttl := sql.NullInt64{}
	if v, ok := item["ttl"]; ok && v != nil {
		ttl = sql.NullInt64{Int64: toInt64(v), Valid: true}
	}
	b, err := json.Marshal(item)
	if err != nil {
		return "", ttl, err
	}
	return string(b), ttl, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func isLive(ttl sql.NullInt64, at int64) bool {
	return !ttl.Valid || ttl.Int64 >= at
}

func (s *sqliteStore) Get(key Key) (Item, error) {
	var attrsJSON string
	var ttl sql.NullInt64
	err := s.db.QueryRow(`SELECT attrs, ttl FROM items WHERE partition = ? AND sort = ?`, key.Partition, key.Sort).
		Scan(&attrsJSON, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get", err)
	}
	if !isLive(ttl, nowUnix()) {
		return nil, ErrNotFound
	}
	item, err := decodeItem(attrsJSON, ttl)
	if err != nil {
		return nil, wrapErr("get: decode", err)
	}
	return item, nil
}

func (s *sqliteStore) Put(key Key, item Item) error {
	attrsJSON, ttl, err := encodeItem(item)
	if err != nil {
		return wrapErr("put: encode", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO items (partition, sort, attrs, ttl) VALUES (?, ?, ?, ?)
		 ON CONFLICT(partition, sort) DO UPDATE SET attrs = excluded.attrs, ttl = excluded.ttl`,
		key.Partition, key.Sort, attrsJSON, ttl,
	)
	if err != nil {
		return wrapErr("put", err)
	}
	return nil
}

func (s *sqliteStore) PutIfAbsent(key Key, item Item) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return wrapErr("put_if_absent: begin", err)
	}
	defer tx.Rollback()

	var existingTTL sql.NullInt64
	err = tx.QueryRow(`SELECT ttl FROM items WHERE partition = ? AND sort = ?`, key.Partition, key.Sort).Scan(&existingTTL)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// absent, proceed
	case err != nil:
		return wrapErr("put_if_absent: select", err)
	case isLive(existingTTL, nowUnix()):
		return ErrConditionFailed
	}

	attrsJSON, ttl, err := encodeItem(item)
	if err != nil {
		return wrapErr("put_if_absent: encode", err)
	}
	_, err = tx.Exec(
		`INSERT INTO items (partition, sort, attrs, ttl) VALUES (?, ?, ?, ?)
		 ON CONFLICT(partition, sort) DO UPDATE SET attrs = excluded.attrs, ttl = excluded.ttl`,
		key.Partition, key.Sort, attrsJSON, ttl,
	)
	if err != nil {
		return wrapErr("put_if_absent: insert", err)
	}
	return wrapErr("put_if_absent: commit", tx.Commit())
}

func (s *sqliteStore) Delete(key Key) error {
	_, err := s.db.Exec(`DELETE FROM items WHERE partition = ? AND sort = ?`, key.Partition, key.Sort)
	if err != nil {
		return wrapErr("delete", err)
	}
	return nil
}

func (s *sqliteStore) Query(in QueryInput) ([]Item, error) {
	rows, err := s.db.Query(`SELECT attrs, ttl FROM items WHERE partition = ? ORDER BY sort`, in.Partition)
	if err != nil {
		return nil, wrapErr("query", err)
	}
	defer rows.Close()

	now := nowUnix()
	var out []Item
	for rows.Next() {
		var attrsJSON string
		var ttl sql.NullInt64
		if err := rows.Scan(&attrsJSON, &ttl); err != nil {
			return nil, wrapErr("query: scan", err)
		}
		if !isLive(ttl, now) {
			continue
		}
		item, err := decodeItem(attrsJSON, ttl)
		if err != nil {
			return nil, wrapErr("query: decode", err)
		}
		if in.Filter == nil || in.Filter(item) {
			out = append(out, item)
		}
	}
	return out, wrapErr("query: rows", rows.Err())
}

// Scan walks the full keyspace page by page, following keyset pagination
// (partition, sort) > last-seen, assembling every page before returning —
// callers never observe a partial result.
func (s *sqliteStore) Scan(in ScanInput) ([]Item, error) {
	now := nowUnix()
	var out []Item
	var lastPartition, lastSort string
	first := true

	for {
		var rows *sql.Rows
		var err error
		if first {
			rows, err = s.db.Query(
				`SELECT partition, sort, attrs, ttl FROM items
				 ORDER BY partition, sort LIMIT ?`, scanPageSize)
		} else {
			rows, err = s.db.Query(
				`SELECT partition, sort, attrs, ttl FROM items
				 WHERE (partition, sort) > (?, ?)
				 ORDER BY partition, sort LIMIT ?`, lastPartition, lastSort, scanPageSize)
		}
		if err != nil {
			return nil, wrapErr("scan", err)
		}

		n := 0
		for rows.Next() {
			var partition, sort, attrsJSON string
			var ttl sql.NullInt64
			if err := rows.Scan(&partition, &sort, &attrsJSON, &ttl); err != nil {
				rows.Close()
				return nil, wrapErr("scan: scan", err)
			}
			lastPartition, lastSort = partition, sort
			n++
			if !isLive(ttl, now) {
				continue
			}
			item, err := decodeItem(attrsJSON, ttl)
			if err != nil {
				rows.Close()
				return nil, wrapErr("scan: decode", err)
			}
			if in.Filter == nil || in.Filter(item) {
				out = append(out, item)
			}
		}
		rerr := rows.Err()
		rows.Close()
		if rerr != nil {
			return nil, wrapErr("scan: rows", rerr)
		}
		if n < scanPageSize {
			break
		}
	}
	return out, nil
}

func cloneItem(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (s *sqliteStore) Update(in UpdateInput) (Item, error) {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, wrapErr("update: begin", err)
	}
	defer tx.Rollback()

	now := nowUnix()
	var current Item
	var attrsJSON string
	var ttl sql.NullInt64
	err = tx.QueryRow(`SELECT attrs, ttl FROM items WHERE partition = ? AND sort = ?`, in.Key.Partition, in.Key.Sort).
		Scan(&attrsJSON, &ttl)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = Item{}
	case err != nil:
		return nil, wrapErr("update: select", err)
	case !isLive(ttl, now):
		current = Item{}
	default:
		current, err = decodeItem(attrsJSON, ttl)
		if err != nil {
			return nil, wrapErr("update: decode", err)
		}
	}

	if in.Condition.AttrNotExists != "" {
		if v, ok := current[in.Condition.AttrNotExists]; ok && v != nil {
			return nil, ErrConditionFailed
		}
	}

	merged := cloneItem(current)
	for k, v := range in.Set {
		merged[k] = v
	}
	for k, delta := range in.Add {
		var base int64
		if v, ok := current[k]; ok && v != nil {
			base = toInt64(v)
		}
		merged[k] = base + delta
	}

	newAttrs, newTTL, err := encodeItem(merged)
	if err != nil {
		return nil, wrapErr("update: encode", err)
	}
	_, err = tx.Exec(
		`INSERT INTO items (partition, sort, attrs, ttl) VALUES (?, ?, ?, ?)
		 ON CONFLICT(partition, sort) DO UPDATE SET attrs = excluded.attrs, ttl = excluded.ttl`,
		in.Key.Partition, in.Key.Sort, newAttrs, newTTL,
	)
	if err != nil {
		return nil, wrapErr("update: write", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapErr("update: commit", err)
	}

	switch in.Return {
	case ReturnAllNew:
		return merged, nil
	case ReturnUpdatedNew:
		out := Item{}
		for k := range in.Set {
			out[k] = merged[k]
		}
		for k := range in.Add {
			out[k] = merged[k]
		}
		return out, nil
	default:
		return nil, nil
	}
}

// ReapExpired deletes every item whose ttl has already passed. It is meant
// to be invoked periodically from a background goroutine in main — TTL
// filtering on read already hides expired items, this just reclaims space.
func ReapExpired(s Store) (int64, error) {
	ss, ok := s.(*sqliteStore)
	if !ok {
		return 0, fmt.Errorf("storage: ReapExpired requires the sqlite implementation")
	}
	res, err := ss.db.Exec(`DELETE FROM items WHERE ttl IS NOT NULL AND ttl < ?`, nowUnix())
	if err != nil {
		return 0, wrapErr("reap", err)
	}
	return res.RowsAffected()
}

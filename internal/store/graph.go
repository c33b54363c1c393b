package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/petal/internal/ir"
)

// Link is a typed, directed relationship between two nodes.
type Link struct {
	FromUUID string `json:"from_uuid"`
	ToUUID   string `json:"to_uuid"`
	Type     string `json:"type"`
}

// Relation describes a bidirectional link request between a node of
// FromLabel and a node of ToLabel, matched by uuid.
type Relation struct {
	FromLabel string
	FromUUID  string
	ToLabel   string
	ToUUID    string
	Forward   string // from -> to
	Backward  string // to -> from
}

// MergeNode upserts the entity uuid with the given label and data.
// The data document is stored as canonical JSON. An existing node keeps its
// seq so paging cursors stay valid.
func (s *Store) MergeNode(ctx context.Context, label, uuid string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	doc, err := ir.MarshalCanonical(data)
	if err != nil {
		return fmt.Errorf("merge node %s: %w", uuid, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (uuid, label, data)
		VALUES (?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			label = excluded.label,
			data  = excluded.data
	`, uuid, label, string(doc))
	if err != nil {
		return fmt.Errorf("merge node %s: %w", uuid, err)
	}
	return nil
}

// MergeRelation upserts both directions of rel in one transaction.
// Endpoints are matched by label and uuid; if either endpoint does not
// exist nothing is written. Returns the number of links created.
func (s *Store) MergeRelation(ctx context.Context, rel Relation) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("merge relation: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var created int64
	pairs := []struct {
		fromLabel, fromUUID, toLabel, toUUID, typ string
	}{
		{rel.FromLabel, rel.FromUUID, rel.ToLabel, rel.ToUUID, rel.Forward},
		{rel.ToLabel, rel.ToUUID, rel.FromLabel, rel.FromUUID, rel.Backward},
	}
	for _, p := range pairs {
		// The WHERE clause on the SELECT is required by SQLite's upsert parser.
		result, err := tx.ExecContext(ctx, `
			INSERT INTO links (from_uuid, to_uuid, type)
			SELECT f.uuid, t.uuid, ?
			FROM nodes f, nodes t
			WHERE f.uuid = ? AND f.label = ? AND t.uuid = ? AND t.label = ?
			ON CONFLICT(from_uuid, to_uuid, type) DO NOTHING
		`, p.typ, p.fromUUID, p.fromLabel, p.toUUID, p.toLabel)
		if err != nil {
			return 0, fmt.Errorf("merge relation %s: %w", p.typ, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("merge relation: rows affected: %w", err)
		}
		created += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("merge relation: commit: %w", err)
	}
	return created, nil
}

// Get returns the entity with the given uuid.
// Returns an error wrapping ErrNotFound if no entity matches.
func (s *Store) Get(ctx context.Context, uuid string) (ir.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, uuid, label, data FROM nodes WHERE uuid = ?
	`, uuid)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("uuid %s: %w", uuid, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", uuid, err)
	}
	return rec, nil
}

// Count returns the number of entities with the given label.
func (s *Store) Count(ctx context.Context, label string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM nodes WHERE label = ?
	`, label).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", label, err)
	}
	return count, nil
}

// Page returns up to limit entities of label with seq greater than after,
// ordered by seq. A limit of zero or less returns every remaining entity.
//
// Returns an empty slice (not nil) when nothing is left.
func (s *Store) Page(ctx context.Context, label string, after int64, limit int) ([]ir.Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, uuid, label, data FROM nodes
		WHERE label = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, label, after, limit)
	if err != nil {
		return nil, fmt.Errorf("page %s: %w", label, err)
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", label, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", label, err)
	}
	return records, nil
}

// Links returns every link touching uuid, ordered by creation.
func (s *Store) Links(ctx context.Context, uuid string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_uuid, to_uuid, type FROM links
		WHERE from_uuid = ? OR to_uuid = ?
		ORDER BY seq ASC
	`, uuid, uuid)
	if err != nil {
		return nil, fmt.Errorf("links %s: %w", uuid, err)
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.FromUUID, &l.ToUUID, &l.Type); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

// CountLinks returns the total number of links.
func (s *Store) CountLinks(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ir.Record, error) {
	var rec ir.Record
	var doc string
	if err := row.Scan(&rec.Seq, &rec.UUID, &rec.Label, &doc); err != nil {
		return ir.Record{}, err
	}
	data, err := ir.UnmarshalData([]byte(doc))
	if err != nil {
		return ir.Record{}, err
	}
	rec.Data = data
	return rec, nil
}

package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ticketbot/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS ticket_classifications (
		ticket_id      TEXT PRIMARY KEY,
		classification TEXT NOT NULL,
		summary        TEXT DEFAULT '',
		classified_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS ticket_fields (
		field_id     TEXT PRIMARY KEY,
		field_values TEXT NOT NULL,
		fetched_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return db, nil
}

// UpsertClassification stores the classification for a ticket,
// replacing any earlier one. A ticket classified twice keeps only the
// most recent result. The stored timestamp is the record's own
// ClassifiedAt so readers see the same instant the classifier reported.
func UpsertClassification(db *sql.DB, c domain.Classification) error {
	classifiedAt := c.ClassifiedAt
	if classifiedAt.IsZero() {
		classifiedAt = time.Now()
	}
	_, err := db.Exec(
		`INSERT OR REPLACE INTO ticket_classifications (ticket_id, classification, summary, classified_at)
		 VALUES (?, ?, ?, ?)`,
		c.TicketID, c.Category, c.Summary, classifiedAt.UTC(),
	)
	return err
}

// GetClassification returns sql.ErrNoRows for never-classified tickets.
func GetClassification(db *sql.DB, ticketID string) (domain.Classification, error) {
	var c domain.Classification
	err := db.QueryRow(
		`SELECT ticket_id, classification, summary, classified_at
		 FROM ticket_classifications WHERE ticket_id = ?`,
		ticketID,
	).Scan(&c.TicketID, &c.Category, &c.Summary, &c.ClassifiedAt)
	return c, err
}

// UpsertFieldOptions mirrors a fetched category vocabulary into the
// ticket_fields row for the field, serialized as a JSON array.
func UpsertFieldOptions(db *sql.DB, set domain.CategorySet) error {
	serialized, err := json.Marshal(set.Values)
	if err != nil {
		return fmt.Errorf("serializing field values: %w", err)
	}
	_, err = db.Exec(
		`INSERT OR REPLACE INTO ticket_fields (field_id, field_values, fetched_at)
		 VALUES (?, ?, ?)`,
		set.FieldID, string(serialized), set.FetchedAt.UTC(),
	)
	return err
}

func GetFieldOptions(db *sql.DB, fieldID string) (domain.CategorySet, error) {
	var (
		set        domain.CategorySet
		serialized string
	)
	err := db.QueryRow(
		`SELECT field_id, field_values, fetched_at FROM ticket_fields WHERE field_id = ?`,
		fieldID,
	).Scan(&set.FieldID, &serialized, &set.FetchedAt)
	if err != nil {
		return domain.CategorySet{}, err
	}
	if err := json.Unmarshal([]byte(serialized), &set.Values); err != nil {
		return domain.CategorySet{}, fmt.Errorf("parsing field values for %s: %w", fieldID, err)
	}
	return set, nil
}

// ClassificationStats returns per-category ticket counts, most common
// first.
func ClassificationStats(db *sql.DB) ([]domain.CategoryCount, error) {
	rows, err := db.Query(
		`SELECT classification, COUNT(*) as cnt
		 FROM ticket_classifications
		 GROUP BY classification
		 ORDER BY cnt DESC, classification`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CategoryCount
	for rows.Next() {
		var c domain.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package utboks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"saksflyt/internal/bus"
	"saksflyt/internal/hendelse"
)

// Skriver appends outbound messages to the utboks table inside the same
// transaction as the state change that caused them, and flushes unpublished
// rows to the bus after commit. A crash between commit and flush means a
// message is delivered late, never lost.
type Skriver struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s Skriver) Append(ctx context.Context, tx *sql.Tx, ut hendelse.Utgaaende) error {
	naa := time.Now
	if s.Now != nil {
		naa = s.Now
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO utboks(noekkel,melding,opprettet) VALUES (?,?,?)`,
		ut.Noekkel, string(ut.Melding), naa().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append utboks: %w", err)
	}
	return nil
}

// Rad is an utboks row as stored.
type Rad struct {
	Id        int64
	Noekkel   string
	Melding   string
	Opprettet string
	Publisert bool
}

func (s Skriver) HentUpubliserte(ctx context.Context) ([]Rad, error) {
	return s.hent(ctx, `SELECT id,noekkel,melding,opprettet,publisert FROM utboks WHERE publisert=0 ORDER BY id`)
}

func (s Skriver) HentAlle(ctx context.Context) ([]Rad, error) {
	return s.hent(ctx, `SELECT id,noekkel,melding,opprettet,publisert FROM utboks ORDER BY id`)
}

func (s Skriver) hent(ctx context.Context, query string) ([]Rad, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Rad
	for rows.Next() {
		var r Rad
		if err := rows.Scan(&r.Id, &r.Noekkel, &r.Melding, &r.Opprettet, &r.Publisert); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s Skriver) MerkPublisert(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE utboks SET publisert=1 WHERE id=?`, id)
	return err
}

// Toem publishes every unpublished row in insertion order and marks each
// one published on success. Stops at the first publish failure so order is
// preserved on retry.
func (s Skriver) Toem(ctx context.Context, pub bus.Publisher) error {
	rader, err := s.HentUpubliserte(ctx)
	if err != nil {
		return err
	}
	for _, r := range rader {
		if err := pub.Publiser(ctx, r.Noekkel, []byte(r.Melding)); err != nil {
			return fmt.Errorf("publiser utboks rad %d: %w", r.Id, err)
		}
		if err := s.MerkPublisert(ctx, r.Id); err != nil {
			return err
		}
	}
	return nil
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"saksflyt/internal/opplysning"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Person rows track who we know; persons are created on first event and
// never deleted.
type Person struct {
	Ident     string `json:"ident"`
	Opprettet string `json:"opprettet" format:"date-time"`
}

func (r Repo) EnsurePersonTx(ctx context.Context, tx *sql.Tx, ident string, naa time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO personer(ident,opprettet) VALUES (?,?) ON CONFLICT(ident) DO NOTHING`,
		ident, naa.UTC().Format(time.RFC3339))
	return err
}

func (r Repo) HentPerson(ctx context.Context, ident string) (Person, error) {
	var p Person
	err := r.DB.QueryRowContext(ctx, `SELECT ident,opprettet FROM personer WHERE ident=?`, ident).
		Scan(&p.Ident, &p.Opprettet)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// RegistrerMeldingTx records an inbound meldingsreferanse. Returns false
// when the reference is already known, which the mediator treats as a
// duplicate delivery.
func (r Repo) RegistrerMeldingTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, naa time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO meldingsreferanser(id,mottatt) VALUES (?,?) ON CONFLICT(id) DO NOTHING`,
		id.String(), naa.UTC().Format(time.RFC3339))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// --- verdi-koding ---

// kodVerdi serializes a typed value to JSON. Datoer lagres som RFC3339.
func kodVerdi(vt opplysning.Verditype, verdi any) (string, error) {
	if vt == opplysning.Dato {
		d, ok := verdi.(time.Time)
		if !ok {
			return "", fmt.Errorf("verdi er ikke en dato")
		}
		verdi = d.UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(verdi)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func dekodVerdi(vt opplysning.Verditype, raw string) (any, error) {
	switch vt {
	case opplysning.Boolsk:
		var v bool
		err := json.Unmarshal([]byte(raw), &v)
		return v, err
	case opplysning.Heltall:
		var v int
		err := json.Unmarshal([]byte(raw), &v)
		return v, err
	case opplysning.Desimal:
		var v float64
		err := json.Unmarshal([]byte(raw), &v)
		return v, err
	case opplysning.Dato:
		var s string
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339, s)
	case opplysning.Tekst:
		var v string
		err := json.Unmarshal([]byte(raw), &v)
		return v, err
	}
	return nil, fmt.Errorf("ukjent verditype %s", vt)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTid(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func nullableStreng(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

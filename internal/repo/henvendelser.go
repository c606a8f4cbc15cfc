package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Henvendelse is a free-text inquiry from a person, handled outside the
// behandling flow. Lifecycle: MOTTATT -> UNDER_ARBEID -> FERDIG.
type Henvendelse struct {
	Id            uuid.UUID `json:"id"`
	Ident         string    `json:"ident"`
	Tekst         string    `json:"tekst"`
	Tilstand      string    `json:"tilstand"`
	Saksbehandler *string   `json:"saksbehandler,omitempty"`
	Mottatt       time.Time `json:"mottatt"`
}

const (
	HenvendelseMottatt     = "MOTTATT"
	HenvendelseUnderArbeid = "UNDER_ARBEID"
	HenvendelseFerdig      = "FERDIG"
)

func (r Repo) LagreHenvendelseTx(ctx context.Context, tx *sql.Tx, h Henvendelse) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO henvendelser(id,ident,tekst,tilstand,saksbehandler,mottatt)
VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET tilstand=excluded.tilstand, saksbehandler=excluded.saksbehandler`,
		h.Id.String(), h.Ident, h.Tekst, h.Tilstand, nullableStreng(h.Saksbehandler),
		h.Mottatt.UTC().Format(time.RFC3339))
	return err
}

func (r Repo) HentHenvendelse(ctx context.Context, id uuid.UUID) (Henvendelse, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id,ident,tekst,tilstand,saksbehandler,mottatt FROM henvendelser WHERE id=?`, id.String())
	return skannHenvendelse(row.Scan)
}

func skannHenvendelse(scan func(...any) error) (Henvendelse, error) {
	var (
		h             Henvendelse
		id            string
		saksbehandler sql.NullString
		mottatt       string
	)
	err := scan(&id, &h.Ident, &h.Tekst, &h.Tilstand, &saksbehandler, &mottatt)
	if err == sql.ErrNoRows {
		return h, ErrNotFound
	}
	if err != nil {
		return h, err
	}
	h.Id, err = uuid.Parse(id)
	if err != nil {
		return h, err
	}
	if saksbehandler.Valid {
		s := saksbehandler.String
		h.Saksbehandler = &s
	}
	h.Mottatt, err = time.Parse(time.RFC3339, mottatt)
	return h, err
}

// ListHenvendelser returns every henvendelse, oldest first; pass tilstand
// to narrow, empty string for all.
func (r Repo) ListHenvendelser(ctx context.Context, tilstand string) ([]Henvendelse, error) {
	query := `SELECT id,ident,tekst,tilstand,saksbehandler,mottatt FROM henvendelser`
	var args []any
	if tilstand != "" {
		query += ` WHERE tilstand=?`
		args = append(args, tilstand)
	}
	query += ` ORDER BY mottatt`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Henvendelse
	for rows.Next() {
		h, err := skannHenvendelse(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// TildelHenvendelse moves a mottatt henvendelse to under arbeid for the
// given saksbehandler.
func (r Repo) TildelHenvendelse(ctx context.Context, id uuid.UUID, navIdent string) (Henvendelse, error) {
	h, err := r.HentHenvendelse(ctx, id)
	if err != nil {
		return h, err
	}
	if h.Tilstand != HenvendelseMottatt {
		return h, fmt.Errorf("henvendelse %s er %s, kan ikke tildeles", id, h.Tilstand)
	}
	_, err = r.DB.ExecContext(ctx,
		`UPDATE henvendelser SET tilstand=?, saksbehandler=? WHERE id=? AND tilstand=?`,
		HenvendelseUnderArbeid, navIdent, id.String(), HenvendelseMottatt)
	if err != nil {
		return h, err
	}
	h.Tilstand = HenvendelseUnderArbeid
	h.Saksbehandler = &navIdent
	return h, nil
}

// FerdigstillHenvendelse closes a henvendelse under arbeid.
func (r Repo) FerdigstillHenvendelse(ctx context.Context, id uuid.UUID) (Henvendelse, error) {
	h, err := r.HentHenvendelse(ctx, id)
	if err != nil {
		return h, err
	}
	if h.Tilstand != HenvendelseUnderArbeid {
		return h, fmt.Errorf("henvendelse %s er %s, kan ikke ferdigstilles", id, h.Tilstand)
	}
	_, err = r.DB.ExecContext(ctx,
		`UPDATE henvendelser SET tilstand=? WHERE id=? AND tilstand=?`,
		HenvendelseFerdig, id.String(), HenvendelseUnderArbeid)
	if err != nil {
		return h, err
	}
	h.Tilstand = HenvendelseFerdig
	return h, nil
}

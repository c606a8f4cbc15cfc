package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"saksflyt/internal/oppgave"
)

// LagreOppgaveTx upserts the oppgave row and appends any new notater.
func (r Repo) LagreOppgaveTx(ctx context.Context, tx *sql.Tx, o *oppgave.Oppgave) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO oppgaver(id,behandling_id,ident,tilstand,saksbehandler,opprettet,endret,utsatt_til)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET tilstand=excluded.tilstand, saksbehandler=excluded.saksbehandler,
endret=excluded.endret, utsatt_til=excluded.utsatt_til`,
		o.Id.String(), o.BehandlingId.String(), o.Ident, string(o.Tilstand), nullableStreng(o.Saksbehandler),
		o.Opprettet.UTC().Format(time.RFC3339), o.Endret.UTC().Format(time.RFC3339), nullableTid(o.UtsattTil))
	if err != nil {
		return err
	}
	for _, n := range o.Notater {
		if _, err := tx.ExecContext(ctx, `INSERT INTO notater(id,oppgave_id,tekst,skrevet_av,opprettet) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO NOTHING`,
			n.Id.String(), o.Id.String(), n.Tekst, n.SkrevetAv, n.Opprettet.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func skannOppgave(row *sql.Row) (*oppgave.Oppgave, error) {
	var (
		id            string
		behandlingId  string
		ident         string
		tilstand      string
		saksbehandler sql.NullString
		opprettet     string
		endret        string
		utsattTil     sql.NullString
	)
	err := row.Scan(&id, &behandlingId, &ident, &tilstand, &saksbehandler, &opprettet, &endret, &utsattTil)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return byggOppgave(id, behandlingId, ident, tilstand, saksbehandler, opprettet, endret, utsattTil)
}

func byggOppgave(id, behandlingId, ident, tilstand string, saksbehandler sql.NullString, opprettet, endret string, utsattTil sql.NullString) (*oppgave.Oppgave, error) {
	oppgaveId, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	bId, err := uuid.Parse(behandlingId)
	if err != nil {
		return nil, err
	}
	opprettetTid, err := time.Parse(time.RFC3339, opprettet)
	if err != nil {
		return nil, err
	}
	endretTid, err := time.Parse(time.RFC3339, endret)
	if err != nil {
		return nil, err
	}
	o := &oppgave.Oppgave{
		Id:           oppgaveId,
		BehandlingId: bId,
		Ident:        ident,
		Tilstand:     oppgave.Tilstand(tilstand),
		Opprettet:    opprettetTid,
		Endret:       endretTid,
	}
	if saksbehandler.Valid {
		s := saksbehandler.String
		o.Saksbehandler = &s
	}
	if utsattTil.Valid {
		t, err := time.Parse(time.RFC3339, utsattTil.String)
		if err != nil {
			return nil, err
		}
		o.UtsattTil = &t
	}
	return o, nil
}

const oppgaveKolonner = `id,behandling_id,ident,tilstand,saksbehandler,opprettet,endret,utsatt_til`

func (r Repo) HentOppgave(ctx context.Context, id uuid.UUID) (*oppgave.Oppgave, error) {
	o, err := skannOppgave(r.DB.QueryRowContext(ctx,
		`SELECT `+oppgaveKolonner+` FROM oppgaver WHERE id=?`, id.String()))
	if err != nil {
		return nil, err
	}
	if err := r.lastNotater(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// HentAktivOppgaveForBehandling finds the single non-archived oppgave.
func (r Repo) HentAktivOppgaveForBehandling(ctx context.Context, behandlingId uuid.UUID) (*oppgave.Oppgave, error) {
	o, err := skannOppgave(r.DB.QueryRowContext(ctx,
		`SELECT `+oppgaveKolonner+` FROM oppgaver WHERE behandling_id=? AND tilstand != 'SENDT'`, behandlingId.String()))
	if err != nil {
		return nil, err
	}
	if err := r.lastNotater(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r Repo) lastNotater(ctx context.Context, o *oppgave.Oppgave) error {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,tekst,skrevet_av,opprettet FROM notater WHERE oppgave_id=? ORDER BY opprettet`, o.Id.String())
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id        string
			tekst     string
			skrevetAv string
			opprettet string
		)
		if err := rows.Scan(&id, &tekst, &skrevetAv, &opprettet); err != nil {
			return err
		}
		notatId, err := uuid.Parse(id)
		if err != nil {
			return err
		}
		tid, err := time.Parse(time.RFC3339, opprettet)
		if err != nil {
			return err
		}
		o.Notater = append(o.Notater, oppgave.Notat{Id: notatId, Tekst: tekst, SkrevetAv: skrevetAv, Opprettet: tid})
	}
	return rows.Err()
}

// OppgaveFilter narrows ListOppgaver; zero values mean no filtering.
type OppgaveFilter struct {
	Tilstander []oppgave.Tilstand
	Ident      string
}

func (r Repo) ListOppgaver(ctx context.Context, filter OppgaveFilter) ([]*oppgave.Oppgave, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Tilstander) > 0 {
		plasser := make([]string, len(filter.Tilstander))
		for i, t := range filter.Tilstander {
			plasser[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, "tilstand IN ("+strings.Join(plasser, ",")+")")
	}
	if filter.Ident != "" {
		clauses = append(clauses, "ident=?")
		args = append(args, filter.Ident)
	}
	query := `SELECT ` + oppgaveKolonner + ` FROM oppgaver`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY opprettet"
	return r.listOppgaver(ctx, query, args...)
}

// FinnOppgaverPaaVentMedUtgaattFrist feeds the scheduled frist sweep.
// A frist on the reference date itself has not yet expired.
func (r Repo) FinnOppgaverPaaVentMedUtgaattFrist(ctx context.Context, dato time.Time) ([]*oppgave.Oppgave, error) {
	grense := time.Date(dato.Year(), dato.Month(), dato.Day(), 0, 0, 0, 0, time.UTC)
	return r.listOppgaver(ctx,
		`SELECT `+oppgaveKolonner+` FROM oppgaver WHERE tilstand='PAA_VENT' AND utsatt_til < ? ORDER BY utsatt_til`,
		grense.Format(time.RFC3339))
}

// FinnGamleOppgaver lists unfinished oppgaver created before the cutoff,
// for the stuck-task alert job.
func (r Repo) FinnGamleOppgaver(ctx context.Context, eldreEnn time.Time) ([]*oppgave.Oppgave, error) {
	return r.listOppgaver(ctx,
		`SELECT `+oppgaveKolonner+` FROM oppgaver WHERE tilstand NOT IN ('SENDT','GODKJENT','AVBRUTT') AND opprettet < ? ORDER BY opprettet`,
		eldreEnn.UTC().Format(time.RFC3339))
}

func (r Repo) listOppgaver(ctx context.Context, query string, args ...any) ([]*oppgave.Oppgave, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*oppgave.Oppgave
	for rows.Next() {
		var (
			id            string
			behandlingId  string
			ident         string
			tilstand      string
			saksbehandler sql.NullString
			opprettet     string
			endret        string
			utsattTil     sql.NullString
		)
		if err := rows.Scan(&id, &behandlingId, &ident, &tilstand, &saksbehandler, &opprettet, &endret, &utsattTil); err != nil {
			return nil, err
		}
		o, err := byggOppgave(id, behandlingId, ident, tilstand, saksbehandler, opprettet, endret, utsattTil)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

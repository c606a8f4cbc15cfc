package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"saksflyt/internal/opplysning"
	"saksflyt/internal/sak"
)

// BehandlingInfo is the list-view projection of a behandling.
type BehandlingInfo struct {
	Id        string `json:"id"`
	Ident     string `json:"ident"`
	Opprettet string `json:"opprettet" format:"date-time"`
}

// LagreBehandlingTx rewrites the full behandling aggregate: the behandling
// row, every steg with dependencies and answers, and the opplysninger.
// Callers own the transaction; the aggregate is never partially visible.
func (r Repo) LagreBehandlingTx(ctx context.Context, tx *sql.Tx, b *sak.Behandling) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO behandlinger(id,ident,opprettet) VALUES (?,?,?)
ON CONFLICT(id) DO NOTHING`, b.Id.String(), b.Ident, b.Opprettet.UTC().Format(time.RFC3339))
	if err != nil {
		return err
	}
	for _, tabell := range []string{"steg", "steg_avhengigheter", "opplysninger"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+tabell+` WHERE behandling_id=?`, b.Id.String()); err != nil {
			return err
		}
	}
	for i, s := range b.Steg() {
		var svar any
		if s.Besvart() {
			kodet, err := kodVerdi(s.Verditype(), s.Svar())
			if err != nil {
				return err
			}
			svar = kodet
		}
		_, vilkaar := s.(*sak.Vilkaar)
		if _, err := tx.ExecContext(ctx, `INSERT INTO steg(behandling_id,id,uuid,vilkaar,verditype,besvart,svar_json,rekkefoelge)
VALUES (?,?,?,?,?,?,?,?)`,
			b.Id.String(), s.Id(), s.UUID().String(), vilkaar, string(s.Verditype()), s.Besvart(), svar, i); err != nil {
			return err
		}
		for _, avh := range s.AvhengerAv() {
			if _, err := tx.ExecContext(ctx, `INSERT INTO steg_avhengigheter(behandling_id,steg_id,avhenger_av) VALUES (?,?,?)`,
				b.Id.String(), s.Id(), avh.Id()); err != nil {
				return err
			}
		}
	}
	for _, op := range b.Opplysninger.Alle() {
		verdi, err := kodVerdi(op.Type.Type, op.Verdi)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO opplysninger(id,behandling_id,navn,verditype,verdi_json,kilde,gyldig)
VALUES (?,?,?,?,?,?,?)`,
			op.Id.String(), b.Id.String(), op.Type.Navn, string(op.Type.Type), verdi, nullable(op.Kilde),
			op.Gyldig.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

// HentBehandling rebuilds the aggregate: graph from steg rows, answers
// replayed, facts loaded into a store without a rule engine (every derived
// fact is already persisted).
func (r Repo) HentBehandling(ctx context.Context, id uuid.UUID) (*sak.Behandling, error) {
	var (
		ident     string
		opprettet string
	)
	err := r.DB.QueryRowContext(ctx, `SELECT ident,opprettet FROM behandlinger WHERE id=?`, id.String()).
		Scan(&ident, &opprettet)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	opprettetTid, err := time.Parse(time.RFC3339, opprettet)
	if err != nil {
		return nil, err
	}

	avhengigheter, err := r.hentAvhengigheter(ctx, id)
	if err != nil {
		return nil, err
	}

	type svar struct {
		stegId string
		verdi  any
	}
	bygger := sak.NyBygger()
	var svarene []svar
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,uuid,vilkaar,verditype,besvart,svar_json FROM steg WHERE behandling_id=? ORDER BY rekkefoelge`,
		id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			stegId   string
			stegUUID string
			vilkaar  bool
			vt       string
			besvart  bool
			svarJSON sql.NullString
		)
		if err := rows.Scan(&stegId, &stegUUID, &vilkaar, &vt, &besvart, &svarJSON); err != nil {
			return nil, err
		}
		u, err := uuid.Parse(stegUUID)
		if err != nil {
			return nil, err
		}
		bygger.Spec(sak.StegSpec{
			Id:         stegId,
			UUID:       u,
			Vilkaar:    vilkaar,
			Verditype:  opplysning.Verditype(vt),
			AvhengerAv: avhengigheter[stegId],
		})
		if besvart && svarJSON.Valid {
			verdi, err := dekodVerdi(opplysning.Verditype(vt), svarJSON.String)
			if err != nil {
				return nil, err
			}
			svarene = append(svarene, svar{stegId: stegId, verdi: verdi})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	b, err := sak.NyBehandling(id, ident, opprettetTid, bygger, opplysning.NyOpplysninger(nil))
	if err != nil {
		return nil, err
	}
	for _, s := range svarene {
		if err := b.Besvar(s.stegId, s.verdi); err != nil {
			return nil, err
		}
	}
	if err := r.lastOpplysninger(ctx, b); err != nil {
		return nil, err
	}
	b.Opplysninger.SettMotor(sak.Soeknadsregelmotor())
	return b, nil
}

func (r Repo) hentAvhengigheter(ctx context.Context, id uuid.UUID) (map[string][]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT steg_id,avhenger_av FROM steg_avhengigheter WHERE behandling_id=?`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	avhengigheter := map[string][]string{}
	for rows.Next() {
		var stegId, avhengerAv string
		if err := rows.Scan(&stegId, &avhengerAv); err != nil {
			return nil, err
		}
		avhengigheter[stegId] = append(avhengigheter[stegId], avhengerAv)
	}
	return avhengigheter, rows.Err()
}

func (r Repo) lastOpplysninger(ctx context.Context, b *sak.Behandling) error {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,navn,verditype,verdi_json,COALESCE(kilde,''),gyldig FROM opplysninger WHERE behandling_id=? ORDER BY rowid`,
		b.Id.String())
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			opId   string
			navn   string
			vt     string
			verdi  string
			kilde  string
			gyldig string
		)
		if err := rows.Scan(&opId, &navn, &vt, &verdi, &kilde, &gyldig); err != nil {
			return err
		}
		u, err := uuid.Parse(opId)
		if err != nil {
			return err
		}
		dekodet, err := dekodVerdi(opplysning.Verditype(vt), verdi)
		if err != nil {
			return err
		}
		gyldigTid, err := time.Parse(time.RFC3339, gyldig)
		if err != nil {
			return err
		}
		t, finnes := sak.FinnOpplysningstype(navn)
		if !finnes {
			t = opplysning.NyType(navn, opplysning.Verditype(vt))
		}
		if err := b.Opplysninger.LeggTil(&opplysning.Opplysning{
			Id:     u,
			Type:   t,
			Verdi:  dekodet,
			Kilde:  kilde,
			Gyldig: gyldigTid,
		}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r Repo) HentBehandlinger(ctx context.Context) ([]BehandlingInfo, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ident,opprettet FROM behandlinger ORDER BY opprettet DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []BehandlingInfo
	for rows.Next() {
		var b BehandlingInfo
		if err := rows.Scan(&b.Id, &b.Ident, &b.Opprettet); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) HentBehandlingerFor(ctx context.Context, ident string) ([]*sak.Behandling, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM behandlinger WHERE ident=? ORDER BY opprettet`, ident)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var res []*sak.Behandling
	for _, id := range ids {
		b, err := r.HentBehandling(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

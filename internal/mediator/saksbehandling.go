package mediator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"saksflyt/internal/hendelse"
	"saksflyt/internal/oppgave"
	"saksflyt/internal/sak"
)

// Caseworker operations. Each is one aggregate mutation in one transaction,
// with derived events through the utboks like the bus-driven handlers.

func (m *Mediator) TildelOppgave(ctx context.Context, oppgaveId uuid.UUID, sb oppgave.Saksbehandler) (*oppgave.Oppgave, error) {
	return m.utfoer(ctx, oppgaveId, func(o *oppgave.Oppgave, naa time.Time) error {
		return o.Tildel(sb.NavIdent, naa)
	})
}

func (m *Mediator) LeggTilbakeOppgave(ctx context.Context, oppgaveId uuid.UUID, sb oppgave.Saksbehandler) (*oppgave.Oppgave, error) {
	return m.utfoer(ctx, oppgaveId, func(o *oppgave.Oppgave, naa time.Time) error {
		if o.Saksbehandler != nil && *o.Saksbehandler != sb.NavIdent {
			return oppgave.ErrIkkeEier
		}
		return o.LeggTilbake(naa)
	})
}

func (m *Mediator) SettOppgavePaaVent(ctx context.Context, oppgaveId uuid.UUID, sb oppgave.Saksbehandler, utsattTil time.Time) (*oppgave.Oppgave, error) {
	return m.utfoer(ctx, oppgaveId, func(o *oppgave.Oppgave, naa time.Time) error {
		if o.Saksbehandler == nil || *o.Saksbehandler != sb.NavIdent {
			return oppgave.ErrIkkeEier
		}
		return o.SettPaaVent(utsattTil, naa)
	})
}

func (m *Mediator) LeggTilNotat(ctx context.Context, oppgaveId uuid.UUID, sb oppgave.Saksbehandler, tekst string) (*oppgave.Oppgave, error) {
	return m.utfoer(ctx, oppgaveId, func(o *oppgave.Oppgave, naa time.Time) error {
		return o.LeggTilNotat(tekst, sb.NavIdent, naa)
	})
}

// BesvarSteg records a caseworker answer on the behandling behind the
// oppgave. Only the owner may answer, and only while the oppgave is under
// behandling.
func (m *Mediator) BesvarSteg(ctx context.Context, oppgaveId uuid.UUID, sb oppgave.Saksbehandler, stegId string, verdi any) (*sak.Behandling, error) {
	o, unlock, err := m.laasOppgave(ctx, oppgaveId)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if o.Tilstand != oppgave.UnderBehandling {
		return nil, oppgave.UlovligTilstandsendring{Fra: o.Tilstand, Til: o.Tilstand}
	}
	if o.Saksbehandler == nil || *o.Saksbehandler != sb.NavIdent {
		return nil, oppgave.ErrIkkeEier
	}
	b, err := m.Repo.HentBehandling(ctx, o.BehandlingId)
	if err != nil {
		return nil, err
	}
	s, finnes := b.FinnSteg(stegId)
	if !finnes {
		return nil, sak.UkjentSteg{StegId: stegId}
	}
	if err := b.Besvar(stegId, tilpassVerdi(s.Verditype(), verdi)); err != nil {
		return nil, err
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := m.Repo.LagreBehandlingTx(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return b, nil
}

// GodkjennOppgave finalizes downstream first; only a confirmed beslutter
// call lets the oppgave leave UnderBehandling. The behandling must be
// ferdig, otherwise ErrUfullstendig.
func (m *Mediator) GodkjennOppgave(ctx context.Context, oppgaveId uuid.UUID, sb oppgave.Saksbehandler) (*oppgave.Oppgave, error) {
	o, unlock, err := m.laasOppgave(ctx, oppgaveId)
	if err != nil {
		return nil, err
	}
	defer unlock()
	naa := m.naa()

	if o.Tilstand != oppgave.UnderBehandling {
		return nil, oppgave.UlovligTilstandsendring{Fra: o.Tilstand, Til: oppgave.Godkjent}
	}
	if o.Saksbehandler == nil || *o.Saksbehandler != sb.NavIdent {
		return nil, oppgave.ErrIkkeEier
	}
	b, err := m.Repo.HentBehandling(ctx, o.BehandlingId)
	if err != nil {
		return nil, err
	}
	utfall, err := b.Utfall()
	if err != nil {
		return nil, err
	}

	if err := m.Beslutter.Ferdigstill(ctx, b.Id.String(), utfall); err != nil {
		return nil, err
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := o.Godkjenn(sb.NavIdent, naa); err != nil {
		return nil, err
	}
	if err := m.Utboks.Append(ctx, tx, hendelse.NyVedtakFattet(o.Ident, b.Id, utfall, naa)); err != nil {
		return nil, err
	}
	if err := o.Send(naa); err != nil {
		return nil, err
	}
	if err := m.Repo.LagreOppgaveTx(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	m.logg().Info("oppgave godkjent", "oppgaveId", o.Id, "behandlingId", b.Id, "utfall", utfall)
	return o, m.Utboks.Toem(ctx, m.Bus)
}

// AvslaaOppgave rejects the behandling. The rejection is finalized
// downstream like an approval, with utfall false, and the oppgave is
// archived; nedstrøms failure leaves the oppgave under behandling.
func (m *Mediator) AvslaaOppgave(ctx context.Context, oppgaveId uuid.UUID, sb oppgave.Saksbehandler) (*oppgave.Oppgave, error) {
	o, unlock, err := m.laasOppgave(ctx, oppgaveId)
	if err != nil {
		return nil, err
	}
	defer unlock()
	naa := m.naa()

	if o.Tilstand != oppgave.UnderBehandling {
		return nil, oppgave.UlovligTilstandsendring{Fra: o.Tilstand, Til: oppgave.Avbrutt}
	}
	if o.Saksbehandler == nil || *o.Saksbehandler != sb.NavIdent {
		return nil, oppgave.ErrIkkeEier
	}

	if err := m.Beslutter.Ferdigstill(ctx, o.BehandlingId.String(), false); err != nil {
		return nil, err
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := o.Avslaa(sb.NavIdent, naa); err != nil {
		return nil, err
	}
	if err := m.Utboks.Append(ctx, tx, hendelse.NyBehandlingAvbrutt(o.Ident, o.BehandlingId, naa)); err != nil {
		return nil, err
	}
	if err := o.Send(naa); err != nil {
		return nil, err
	}
	if err := m.Repo.LagreOppgaveTx(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	m.logg().Info("oppgave avslått", "oppgaveId", o.Id, "behandlingId", o.BehandlingId)
	return o, m.Utboks.Toem(ctx, m.Bus)
}

// utfoer is the load-mutate-save path for direct caseworker calls; these
// carry no meldingsreferanse, the HTTP layer is the sole entry.
func (m *Mediator) utfoer(ctx context.Context, oppgaveId uuid.UUID, endre func(*oppgave.Oppgave, time.Time) error) (*oppgave.Oppgave, error) {
	o, unlock, err := m.laasOppgave(ctx, oppgaveId)
	if err != nil {
		return nil, err
	}
	defer unlock()
	naa := m.naa()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := endre(o, naa); err != nil {
		return nil, err
	}
	if err := m.Repo.LagreOppgaveTx(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

// HaandterPaaVentFrister is the sweep entry used by the scheduled job.
func (m *Mediator) HaandterPaaVentFrister(ctx context.Context, dato time.Time) error {
	return m.Behandle(ctx, hendelse.NyPaaVentFristUtgaatt(dato))
}

// VarsleGamleOppgaver publishes an alert for every unfinished oppgave older
// than the cutoff.
func (m *Mediator) VarsleGamleOppgaver(ctx context.Context, eldreEnn time.Time) error {
	gamle, err := m.Repo.FinnGamleOppgaver(ctx, eldreEnn)
	if err != nil {
		return err
	}
	if len(gamle) == 0 {
		return nil
	}
	naa := m.naa()
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, o := range gamle {
		melding := "oppgave " + o.Id.String() + " har stått uferdig siden " + o.Opprettet.Format("2006-01-02")
		if err := m.Utboks.Append(ctx, tx, hendelse.NyAlert("gammel_oppgave", melding, naa)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return m.Utboks.Toem(ctx, m.Bus)
}

// HentOppgave is a read-through for the HTTP layer.
func (m *Mediator) HentOppgave(ctx context.Context, oppgaveId uuid.UUID) (*oppgave.Oppgave, error) {
	return m.Repo.HentOppgave(ctx, oppgaveId)
}

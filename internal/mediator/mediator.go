// Package mediator routes every inbound hendelse and caseworker operation
// through one place: dedup on meldingsreferanse, a single transaction per
// aggregate change, derived events via the utboks, publish after commit.
package mediator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"saksflyt/internal/bus"
	"saksflyt/internal/hendelse"
	"saksflyt/internal/klient"
	"saksflyt/internal/oppgave"
	"saksflyt/internal/opplysning"
	"saksflyt/internal/repo"
	"saksflyt/internal/sak"
	"saksflyt/internal/utboks"
)

type Mediator struct {
	DB        *sql.DB
	Repo      repo.Repo
	Utboks    utboks.Skriver
	Bus       bus.Publisher
	Beslutter klient.Beslutter
	Logger    *slog.Logger
	Now       func() time.Time

	mu     sync.Mutex
	laaser map[string]*sync.Mutex
}

func (m *Mediator) naa() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Mediator) logg() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// laas serializes work per aggregate key, so two deliveries for the same
// person never interleave inside the process.
func (m *Mediator) laas(noekkel string) func() {
	m.mu.Lock()
	if m.laaser == nil {
		m.laaser = map[string]*sync.Mutex{}
	}
	l, finnes := m.laaser[noekkel]
	if !finnes {
		l = &sync.Mutex{}
		m.laaser[noekkel] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// laasOppgave resolves the aggregate key (ident) behind an oppgave, takes
// that lock, and reloads under it. Every mutation of a person's aggregates
// serializes on the ident, whichever entry point it came through.
func (m *Mediator) laasOppgave(ctx context.Context, oppgaveId uuid.UUID) (*oppgave.Oppgave, func(), error) {
	o, err := m.Repo.HentOppgave(ctx, oppgaveId)
	if err != nil {
		return nil, nil, err
	}
	unlock := m.laas(o.Ident)
	o, err = m.Repo.HentOppgave(ctx, oppgaveId)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return o, unlock, nil
}

// BehandleRaa parses a raw bus message and routes it. Messages no listener
// claims are dropped without error.
func (m *Mediator) BehandleRaa(ctx context.Context, data []byte) error {
	h, err := hendelse.Tolk(data)
	if errors.Is(err, hendelse.ErrIgnorert) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.Behandle(ctx, h)
}

// Behandle dispatches a typed hendelse. The set is closed; an unknown type
// is a programming error.
func (m *Mediator) Behandle(ctx context.Context, h hendelse.Hendelse) error {
	logg := m.logg().With("hendelse", h.Hendelsesnavn(), "meldingsreferanse", h.Meldingsreferanse())
	var err error
	switch e := h.(type) {
	case hendelse.SoeknadInnsendt:
		err = m.soeknadInnsendt(ctx, e, logg)
	case hendelse.BehandlingOpprettet:
		err = m.behandlingOpprettet(ctx, e.Ident, e.BehandlingId, e, logg)
	case hendelse.SoeknadsbehandlingOpprettet:
		err = m.behandlingOpprettet(ctx, e.Ident, e.BehandlingId, e, logg)
	case hendelse.OpplysningSvar:
		err = m.opplysningSvar(ctx, e, logg)
	case hendelse.Notat:
		err = m.notat(ctx, e, logg)
	case hendelse.Tildel:
		err = m.tildel(ctx, e, logg)
	case hendelse.PaaVentFristUtgaatt:
		err = m.paaVentFristUtgaatt(ctx, e, logg)
	case hendelse.HenvendelseMottatt:
		err = m.henvendelseMottatt(ctx, e, logg)
	default:
		err = fmt.Errorf("ubehandlet hendelse %T", h)
	}
	if err != nil {
		logg.Error("behandling av hendelse feilet", "feil", err)
		return err
	}
	return m.Utboks.Toem(ctx, m.Bus)
}

// soeknadInnsendt creates the behandling, its oppgave, and the behov for
// the facts the ruleset needs.
func (m *Mediator) soeknadInnsendt(ctx context.Context, e hendelse.SoeknadInnsendt, logg *slog.Logger) error {
	defer m.laas(e.Ident)()
	naa := m.naa()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ny, err := m.Repo.RegistrerMeldingTx(ctx, tx, e.Meldingsreferanse(), naa)
	if err != nil {
		return err
	}
	if !ny {
		logg.Info("duplikat melding, hopper over")
		return nil
	}
	if err := m.Repo.EnsurePersonTx(ctx, tx, e.Ident, naa); err != nil {
		return err
	}

	b, err := sak.NySoeknadsbehandling(uuid.New(), e.Ident, naa)
	if err != nil {
		return err
	}
	if err := m.Repo.LagreBehandlingTx(ctx, tx, b); err != nil {
		return err
	}

	o := oppgave.Ny(b.Id, e.Ident, naa)
	if err := m.Repo.LagreOppgaveTx(ctx, tx, o); err != nil {
		return err
	}

	if err := m.Utboks.Append(ctx, tx, hendelse.NyOppgaveOpprettet(e.Ident, o.Id, b.Id, naa)); err != nil {
		return err
	}
	if behov := manglendeBehov(b); len(behov) > 0 {
		if err := m.Utboks.Append(ctx, tx, hendelse.NyBehov(e.Ident, b.Id, behov, naa)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logg.Info("søknadsbehandling opprettet", "behandlingId", b.Id, "oppgaveId", o.Id)
	return nil
}

// behandlingOpprettet handles a behandling announced by a collaborator:
// make sure we track it and give it an oppgave.
func (m *Mediator) behandlingOpprettet(ctx context.Context, ident string, behandlingId uuid.UUID, h hendelse.Hendelse, logg *slog.Logger) error {
	defer m.laas(ident)()
	naa := m.naa()

	_, err := m.Repo.HentBehandling(ctx, behandlingId)
	kjent := err == nil
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ny, err := m.Repo.RegistrerMeldingTx(ctx, tx, h.Meldingsreferanse(), naa)
	if err != nil {
		return err
	}
	if !ny {
		logg.Info("duplikat melding, hopper over")
		return nil
	}
	if kjent {
		return tx.Commit()
	}
	if err := m.Repo.EnsurePersonTx(ctx, tx, ident, naa); err != nil {
		return err
	}
	b, err := sak.NySoeknadsbehandling(behandlingId, ident, naa)
	if err != nil {
		return err
	}
	if err := m.Repo.LagreBehandlingTx(ctx, tx, b); err != nil {
		return err
	}
	o := oppgave.Ny(b.Id, ident, naa)
	if err := m.Repo.LagreOppgaveTx(ctx, tx, o); err != nil {
		return err
	}
	if err := m.Utboks.Append(ctx, tx, hendelse.NyOppgaveOpprettet(ident, o.Id, b.Id, naa)); err != nil {
		return err
	}
	return tx.Commit()
}

// opplysningSvar records an answered behov on the behandling, answers any
// steps the derived facts settle, and moves the oppgave into the queue when
// the behandling is ready for a caseworker.
func (m *Mediator) opplysningSvar(ctx context.Context, e hendelse.OpplysningSvar, logg *slog.Logger) error {
	b, err := m.Repo.HentBehandling(ctx, e.BehandlingId)
	if err != nil {
		return err
	}
	defer m.laas(b.Ident)()
	naa := m.naa()

	// Reload under the lock; the first read only resolved the lock key.
	b, err = m.Repo.HentBehandling(ctx, e.BehandlingId)
	if err != nil {
		return err
	}

	t, finnes := sak.FinnOpplysningstype(e.Navn)
	if !finnes {
		logg.Info("ukjent opplysningstype, ignorerer", "navn", e.Navn)
		return nil
	}
	verdi := tilpassVerdi(t.Type, e.Verdi)

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ny, err := m.Repo.RegistrerMeldingTx(ctx, tx, e.Meldingsreferanse(), naa)
	if err != nil {
		return err
	}
	if !ny {
		logg.Info("duplikat melding, hopper over")
		return nil
	}

	if err := b.Opplysninger.LeggTil(opplysning.Ny(t, verdi, naa)); err != nil {
		return err
	}
	besvarte := b.OppdaterStegFraOpplysninger()
	if err := m.Repo.LagreBehandlingTx(ctx, tx, b); err != nil {
		return err
	}

	o, err := m.Repo.HentAktivOppgaveForBehandling(ctx, e.BehandlingId)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err == nil && o.Tilstand == oppgave.Opprettet && klarForSaksbehandler(b) {
		if err := o.GjoerKlar(naa); err != nil {
			return err
		}
		if err := m.Repo.LagreOppgaveTx(ctx, tx, o); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logg.Info("opplysning registrert", "behandlingId", e.BehandlingId, "navn", e.Navn, "besvarteSteg", besvarte)
	return nil
}

func (m *Mediator) notat(ctx context.Context, e hendelse.Notat, logg *slog.Logger) error {
	return m.endreOppgave(ctx, e.OppgaveId, e.Meldingsreferanse(), logg, func(o *oppgave.Oppgave, naa time.Time) error {
		return o.LeggTilNotat(e.Tekst, e.UtfoertAv, naa)
	})
}

func (m *Mediator) tildel(ctx context.Context, e hendelse.Tildel, logg *slog.Logger) error {
	return m.endreOppgave(ctx, e.OppgaveId, e.Meldingsreferanse(), logg, func(o *oppgave.Oppgave, naa time.Time) error {
		return o.Tildel(e.NavIdent, naa)
	})
}

// endreOppgave is the shared load-mutate-save path for oppgave events.
func (m *Mediator) endreOppgave(ctx context.Context, oppgaveId, meldingsreferanse uuid.UUID, logg *slog.Logger, endre func(*oppgave.Oppgave, time.Time) error) error {
	o, unlock, err := m.laasOppgave(ctx, oppgaveId)
	if err != nil {
		return err
	}
	defer unlock()
	naa := m.naa()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ny, err := m.Repo.RegistrerMeldingTx(ctx, tx, meldingsreferanse, naa)
	if err != nil {
		return err
	}
	if !ny {
		logg.Info("duplikat melding, hopper over")
		return nil
	}
	if err := endre(o, naa); err != nil {
		return err
	}
	if err := m.Repo.LagreOppgaveTx(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

// paaVentFristUtgaatt sweeps every parked oppgave whose frist has passed.
func (m *Mediator) paaVentFristUtgaatt(ctx context.Context, e hendelse.PaaVentFristUtgaatt, logg *slog.Logger) error {
	oppgaver, err := m.Repo.FinnOppgaverPaaVentMedUtgaattFrist(ctx, e.Dato)
	if err != nil {
		return err
	}
	for _, kandidat := range oppgaver {
		o, unlock, err := m.laasOppgave(ctx, kandidat.Id)
		if err != nil {
			return err
		}
		err = func() error {
			defer unlock()
			if !o.HaandterPaaVentFristUtgaatt(e.Dato) {
				return nil
			}
			tx, err := m.DB.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer tx.Rollback()
			if err := m.Repo.LagreOppgaveTx(ctx, tx, o); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			logg.Info("frist utgått, oppgave gjenåpnet", "oppgaveId", o.Id, "tilstand", o.Tilstand)
			return nil
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Mediator) henvendelseMottatt(ctx context.Context, e hendelse.HenvendelseMottatt, logg *slog.Logger) error {
	defer m.laas(e.Ident)()
	naa := m.naa()

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ny, err := m.Repo.RegistrerMeldingTx(ctx, tx, e.Meldingsreferanse(), naa)
	if err != nil {
		return err
	}
	if !ny {
		logg.Info("duplikat melding, hopper over")
		return nil
	}
	if err := m.Repo.EnsurePersonTx(ctx, tx, e.Ident, naa); err != nil {
		return err
	}
	h := repo.Henvendelse{
		Id:       uuid.New(),
		Ident:    e.Ident,
		Tekst:    e.Tekst,
		Tilstand: repo.HenvendelseMottatt,
		Mottatt:  e.Mottatt,
	}
	if err := m.Repo.LagreHenvendelseTx(ctx, tx, h); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logg.Info("henvendelse registrert", "henvendelseId", h.Id)
	return nil
}

// manglendeBehov lists the leaf fact names the ruleset still needs.
func manglendeBehov(b *sak.Behandling) []string {
	sett := map[string]bool{}
	var behov []string
	for _, t := range []*opplysning.Opplysningstype{sak.OppfyllerAlder, sak.OppfyllerMinsteinntekt} {
		for _, mangler := range b.Opplysninger.Trenger(t) {
			if len(mangler.BestaarAv()) > 0 || sett[mangler.Navn] {
				continue
			}
			sett[mangler.Navn] = true
			behov = append(behov, mangler.Navn)
		}
	}
	return behov
}

// klarForSaksbehandler is true once the automated part is done: every
// vilkår answered from facts, or the behandling short-circuited on an
// unmet vilkår. What remains is caseworker work.
func klarForSaksbehandler(b *sak.Behandling) bool {
	if b.ErFerdig() {
		return true
	}
	for _, s := range b.Steg() {
		if _, ok := s.(*sak.Vilkaar); ok && !s.Besvart() {
			return false
		}
	}
	return true
}

// tilpassVerdi coerces JSON-decoded numbers to the target value kind.
func tilpassVerdi(vt opplysning.Verditype, verdi any) any {
	switch vt {
	case opplysning.Heltall:
		if f, ok := verdi.(float64); ok {
			return int(f)
		}
	case opplysning.Desimal:
		if i, ok := verdi.(int); ok {
			return float64(i)
		}
	case opplysning.Dato:
		if s, ok := verdi.(string); ok {
			if d, err := time.Parse("2006-01-02", s); err == nil {
				return d
			}
			if d, err := time.Parse(time.RFC3339, s); err == nil {
				return d
			}
		}
	}
	return verdi
}

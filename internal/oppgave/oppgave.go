package oppgave

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tilstand is the lifecycle state of an oppgave.
type Tilstand string

const (
	Opprettet         Tilstand = "OPPRETTET"
	KlarTilBehandling Tilstand = "KLAR_TIL_BEHANDLING"
	UnderBehandling   Tilstand = "UNDER_BEHANDLING"
	PaaVent           Tilstand = "PAA_VENT"
	Godkjent          Tilstand = "GODKJENT"
	Avbrutt           Tilstand = "AVBRUTT"
	Sendt             Tilstand = "SENDT"
)

// Terminal reports whether the state ends the caseworker lifecycle. Sendt
// is the archived end state; Godkjent/Avbrutt await dispatch.
func (t Tilstand) Terminal() bool {
	return t == Sendt
}

// UlovligTilstandsendring signals a transition the state machine forbids.
type UlovligTilstandsendring struct {
	Fra Tilstand
	Til Tilstand
}

func (e UlovligTilstandsendring) Error() string {
	return fmt.Sprintf("ulovlig tilstandsendring %s -> %s", e.Fra, e.Til)
}

// AlleredeTildelt signals an assignment attempt on a claimed oppgave.
type AlleredeTildelt struct {
	Av string
}

func (e AlleredeTildelt) Error() string {
	return fmt.Sprintf("oppgaven er allerede tildelt %s", e.Av)
}

// UgyldigFrist signals an utsettelse date before the reference date.
type UgyldigFrist struct {
	Frist time.Time
}

func (e UgyldigFrist) Error() string {
	return fmt.Sprintf("utsatt til %s er før dagens dato", e.Frist.Format("2006-01-02"))
}

// ErrTomtNotat rejects empty note text at the boundary.
var ErrTomtNotat = errors.New("notat kan ikke være tomt")

// ErrIkkeEier rejects decisions from a saksbehandler other than the owner.
var ErrIkkeEier = errors.New("oppgaven er tildelt en annen saksbehandler")

// Saksbehandler is the caseworker principal. Token is request-scoped and
// never persisted.
type Saksbehandler struct {
	NavIdent string
	Grupper  []string
	Token    string `json:"-"`
}

type Notat struct {
	Id        uuid.UUID
	Tekst     string
	SkrevetAv string
	Opprettet time.Time
}

// Oppgave wraps exactly one behandling with a caseworker-facing lifecycle.
type Oppgave struct {
	Id            uuid.UUID
	BehandlingId  uuid.UUID
	Ident         string
	Tilstand      Tilstand
	Saksbehandler *string
	Opprettet     time.Time
	Endret        time.Time
	UtsattTil     *time.Time
	Notater       []Notat
}

// Ny creates an oppgave in Opprettet for the given behandling.
func Ny(behandlingId uuid.UUID, ident string, opprettet time.Time) *Oppgave {
	return &Oppgave{
		Id:           uuid.New(),
		BehandlingId: behandlingId,
		Ident:        ident,
		Tilstand:     Opprettet,
		Opprettet:    opprettet,
		Endret:       opprettet,
	}
}

// GjoerKlar moves a newly created oppgave into the caseworker queue.
func (o *Oppgave) GjoerKlar(naa time.Time) error {
	if o.Tilstand != Opprettet {
		return UlovligTilstandsendring{Fra: o.Tilstand, Til: KlarTilBehandling}
	}
	o.skift(KlarTilBehandling, naa)
	return nil
}

// Tildel claims the oppgave for a saksbehandler. Allowed from
// KlarTilBehandling, and from PaaVent once the frist has passed. A claim
// held by someone else is never silently overridden.
func (o *Oppgave) Tildel(navIdent string, naa time.Time) error {
	if o.Saksbehandler != nil && *o.Saksbehandler != navIdent {
		return AlleredeTildelt{Av: *o.Saksbehandler}
	}
	switch o.Tilstand {
	case KlarTilBehandling:
	case PaaVent:
		if o.UtsattTil == nil || !o.UtsattTil.Before(dag(naa)) {
			return UlovligTilstandsendring{Fra: o.Tilstand, Til: UnderBehandling}
		}
		o.UtsattTil = nil
	default:
		return UlovligTilstandsendring{Fra: o.Tilstand, Til: UnderBehandling}
	}
	o.Saksbehandler = &navIdent
	o.skift(UnderBehandling, naa)
	return nil
}

// LeggTilbake releases the claim and returns the oppgave to the queue.
func (o *Oppgave) LeggTilbake(naa time.Time) error {
	if o.Tilstand != UnderBehandling {
		return UlovligTilstandsendring{Fra: o.Tilstand, Til: KlarTilBehandling}
	}
	o.Saksbehandler = nil
	o.skift(KlarTilBehandling, naa)
	return nil
}

// SettPaaVent parks the oppgave until utsattTil, which must not be in the
// past relative to naa.
func (o *Oppgave) SettPaaVent(utsattTil time.Time, naa time.Time) error {
	if o.Tilstand != UnderBehandling {
		return UlovligTilstandsendring{Fra: o.Tilstand, Til: PaaVent}
	}
	if utsattTil.Before(dag(naa)) {
		return UgyldigFrist{Frist: utsattTil}
	}
	frist := dag(utsattTil)
	o.UtsattTil = &frist
	o.skift(PaaVent, naa)
	return nil
}

// HaandterPaaVentFristUtgaatt moves an oppgave out of PaaVent when its
// frist has passed the reference date. The next state depends on whether
// the oppgave is still assigned. Pure function of (state, assignment, dato);
// returns true when a transition happened.
func (o *Oppgave) HaandterPaaVentFristUtgaatt(dato time.Time) bool {
	if o.Tilstand != PaaVent || o.UtsattTil == nil {
		return false
	}
	if !o.UtsattTil.Before(dag(dato)) {
		return false
	}
	o.UtsattTil = nil
	if o.Saksbehandler != nil {
		o.skift(UnderBehandling, dato)
	} else {
		o.skift(KlarTilBehandling, dato)
	}
	return true
}

// Godkjenn records an approving decision by the owning saksbehandler.
// Callers must have completed the downstream finalization first; the
// transition itself never talks to collaborators.
func (o *Oppgave) Godkjenn(navIdent string, naa time.Time) error {
	return o.beslutt(Godkjent, navIdent, naa)
}

// Avslaa records a rejecting decision by the owning saksbehandler.
func (o *Oppgave) Avslaa(navIdent string, naa time.Time) error {
	return o.beslutt(Avbrutt, navIdent, naa)
}

func (o *Oppgave) beslutt(til Tilstand, navIdent string, naa time.Time) error {
	if o.Tilstand != UnderBehandling {
		return UlovligTilstandsendring{Fra: o.Tilstand, Til: til}
	}
	if o.Saksbehandler == nil || *o.Saksbehandler != navIdent {
		return ErrIkkeEier
	}
	o.skift(til, naa)
	return nil
}

// Send archives a decided oppgave after the derived event is dispatched.
func (o *Oppgave) Send(naa time.Time) error {
	if o.Tilstand != Godkjent && o.Tilstand != Avbrutt {
		return UlovligTilstandsendring{Fra: o.Tilstand, Til: Sendt}
	}
	o.skift(Sendt, naa)
	return nil
}

// LeggTilNotat appends a caseworker note.
func (o *Oppgave) LeggTilNotat(tekst, skrevetAv string, naa time.Time) error {
	if strings.TrimSpace(tekst) == "" {
		return ErrTomtNotat
	}
	o.Notater = append(o.Notater, Notat{
		Id:        uuid.New(),
		Tekst:     tekst,
		SkrevetAv: skrevetAv,
		Opprettet: naa,
	})
	o.Endret = naa
	return nil
}

func (o *Oppgave) skift(til Tilstand, naa time.Time) {
	o.Tilstand = til
	o.Endret = naa
}

// dag truncates to date precision; frister sammenlignes på dagsnivå.
func dag(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

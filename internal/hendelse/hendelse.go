package hendelse

import (
	"time"

	"github.com/google/uuid"
)

// Hendelse is the closed set of domain events the mediator routes. The
// meldingsreferanse carries the at-least-once dedup key.
type Hendelse interface {
	Meldingsreferanse() uuid.UUID
	Hendelsesnavn() string
}

type basishendelse struct {
	meldingsreferanse uuid.UUID
	navn              string
}

func (b basishendelse) Meldingsreferanse() uuid.UUID { return b.meldingsreferanse }
func (b basishendelse) Hendelsesnavn() string        { return b.navn }

type SoeknadInnsendt struct {
	basishendelse
	Ident         string
	SoeknadId     uuid.UUID
	JournalpostId string
	InnsendtDato  time.Time
}

type BehandlingOpprettet struct {
	basishendelse
	Ident        string
	BehandlingId uuid.UUID
}

type SoeknadsbehandlingOpprettet struct {
	basishendelse
	Ident        string
	BehandlingId uuid.UUID
	SoeknadId    uuid.UUID
}

type Notat struct {
	basishendelse
	OppgaveId uuid.UUID
	Tekst     string
	UtfoertAv string
}

type Tildel struct {
	basishendelse
	OppgaveId uuid.UUID
	NavIdent  string
}

type PaaVentFristUtgaatt struct {
	basishendelse
	Dato time.Time
}

type HenvendelseMottatt struct {
	basishendelse
	Ident   string
	Tekst   string
	Mottatt time.Time
}

type OpplysningSvar struct {
	basishendelse
	BehandlingId uuid.UUID
	Navn         string
	Verdi        any
}

// Event names on the bus.
const (
	NavnSoeknadInnsendt             = "søknad_innsendt"
	NavnBehandlingOpprettet         = "behandling_opprettet"
	NavnSoeknadsbehandlingOpprettet = "søknadsbehandling_opprettet"
	NavnNotat                       = "notat"
	NavnTildel                      = "tildel_oppgave"
	NavnPaaVentFristUtgaatt         = "påvent_frist_utgått"
	NavnHenvendelseMottatt          = "henvendelse_mottatt"
	NavnOpplysningSvar              = "opplysning_svar"
)

type tolker func(m Melding) (Hendelse, error)

var tolkere = map[string]tolker{
	NavnSoeknadInnsendt:             tolkSoeknadInnsendt,
	NavnBehandlingOpprettet:         tolkBehandlingOpprettet,
	NavnSoeknadsbehandlingOpprettet: tolkSoeknadsbehandlingOpprettet,
	NavnNotat:                       tolkNotat,
	NavnTildel:                      tolkTildel,
	NavnPaaVentFristUtgaatt:         tolkPaaVentFristUtgaatt,
	NavnHenvendelseMottatt:          tolkHenvendelseMottatt,
	NavnOpplysningSvar:              tolkOpplysningSvar,
}

// Tolk parses a raw bus message into a typed hendelse. Messages without a
// matching listener, or failing a listener's validation, return ErrIgnorert.
func Tolk(data []byte) (Hendelse, error) {
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	navn := m.Streng("@event_name")
	t, finnes := tolkere[navn]
	if !finnes {
		return nil, ErrIgnorert
	}
	return t(m)
}

func basis(m Melding, navn string) (basishendelse, error) {
	if err := m.Forventer(navn); err != nil {
		return basishendelse{}, err
	}
	if err := m.Krever("@id"); err != nil {
		return basishendelse{}, err
	}
	id, err := m.UUID("@id")
	if err != nil {
		return basishendelse{}, err
	}
	return basishendelse{meldingsreferanse: id, navn: navn}, nil
}

func tolkSoeknadInnsendt(m Melding) (Hendelse, error) {
	b, err := basis(m, NavnSoeknadInnsendt)
	if err != nil {
		return nil, err
	}
	if err := m.Krever("ident", "søknadId", "journalpostId", "innsendtDato"); err != nil {
		return nil, err
	}
	if err := m.Forbyr("@løsning"); err != nil {
		return nil, err
	}
	soeknadId, err := m.UUID("søknadId")
	if err != nil {
		return nil, err
	}
	innsendt, err := m.Dato("innsendtDato")
	if err != nil {
		return nil, err
	}
	return SoeknadInnsendt{
		basishendelse: b,
		Ident:         m.Streng("ident"),
		SoeknadId:     soeknadId,
		JournalpostId: m.Streng("journalpostId"),
		InnsendtDato:  innsendt,
	}, nil
}

func tolkBehandlingOpprettet(m Melding) (Hendelse, error) {
	b, err := basis(m, NavnBehandlingOpprettet)
	if err != nil {
		return nil, err
	}
	if err := m.Krever("ident", "behandlingId"); err != nil {
		return nil, err
	}
	behandlingId, err := m.UUID("behandlingId")
	if err != nil {
		return nil, err
	}
	return BehandlingOpprettet{basishendelse: b, Ident: m.Streng("ident"), BehandlingId: behandlingId}, nil
}

func tolkSoeknadsbehandlingOpprettet(m Melding) (Hendelse, error) {
	b, err := basis(m, NavnSoeknadsbehandlingOpprettet)
	if err != nil {
		return nil, err
	}
	if err := m.Krever("ident", "behandlingId", "søknadId"); err != nil {
		return nil, err
	}
	behandlingId, err := m.UUID("behandlingId")
	if err != nil {
		return nil, err
	}
	soeknadId, err := m.UUID("søknadId")
	if err != nil {
		return nil, err
	}
	return SoeknadsbehandlingOpprettet{
		basishendelse: b,
		Ident:         m.Streng("ident"),
		BehandlingId:  behandlingId,
		SoeknadId:     soeknadId,
	}, nil
}

func tolkNotat(m Melding) (Hendelse, error) {
	b, err := basis(m, NavnNotat)
	if err != nil {
		return nil, err
	}
	if err := m.Krever("oppgaveId", "tekst", "utførtAv"); err != nil {
		return nil, err
	}
	oppgaveId, err := m.UUID("oppgaveId")
	if err != nil {
		return nil, err
	}
	return Notat{basishendelse: b, OppgaveId: oppgaveId, Tekst: m.Streng("tekst"), UtfoertAv: m.Streng("utførtAv")}, nil
}

func tolkTildel(m Melding) (Hendelse, error) {
	b, err := basis(m, NavnTildel)
	if err != nil {
		return nil, err
	}
	if err := m.Krever("oppgaveId", "navIdent"); err != nil {
		return nil, err
	}
	oppgaveId, err := m.UUID("oppgaveId")
	if err != nil {
		return nil, err
	}
	return Tildel{basishendelse: b, OppgaveId: oppgaveId, NavIdent: m.Streng("navIdent")}, nil
}

func tolkPaaVentFristUtgaatt(m Melding) (Hendelse, error) {
	b, err := basis(m, NavnPaaVentFristUtgaatt)
	if err != nil {
		return nil, err
	}
	if err := m.Krever("dato"); err != nil {
		return nil, err
	}
	dato, err := m.Dato("dato")
	if err != nil {
		return nil, err
	}
	return PaaVentFristUtgaatt{basishendelse: b, Dato: dato}, nil
}

func tolkHenvendelseMottatt(m Melding) (Hendelse, error) {
	b, err := basis(m, NavnHenvendelseMottatt)
	if err != nil {
		return nil, err
	}
	if err := m.Krever("ident", "tekst", "mottatt"); err != nil {
		return nil, err
	}
	mottatt, err := m.Dato("mottatt")
	if err != nil {
		return nil, err
	}
	return HenvendelseMottatt{basishendelse: b, Ident: m.Streng("ident"), Tekst: m.Streng("tekst"), Mottatt: mottatt}, nil
}

func tolkOpplysningSvar(m Melding) (Hendelse, error) {
	b, err := basis(m, NavnOpplysningSvar)
	if err != nil {
		return nil, err
	}
	if err := m.Krever("behandlingId", "navn", "verdi"); err != nil {
		return nil, err
	}
	behandlingId, err := m.UUID("behandlingId")
	if err != nil {
		return nil, err
	}
	return OpplysningSvar{
		basishendelse: b,
		BehandlingId:  behandlingId,
		Navn:          m.Streng("navn"),
		Verdi:         m["verdi"],
	}, nil
}

// NyHendelsereferanse constructs an event programmatically, used by jobs and
// the HTTP layer where no bus envelope exists.
func NyHendelsereferanse() uuid.UUID {
	return uuid.New()
}

// NyPaaVentFristUtgaatt builds the sweep event for the scheduled job.
func NyPaaVentFristUtgaatt(dato time.Time) PaaVentFristUtgaatt {
	return PaaVentFristUtgaatt{
		basishendelse: basishendelse{meldingsreferanse: uuid.New(), navn: NavnPaaVentFristUtgaatt},
		Dato:          dato,
	}
}

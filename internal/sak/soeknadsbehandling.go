package sak

import (
	"time"

	"github.com/google/uuid"

	"saksflyt/internal/opplysning"
)

// Opplysningstyper for søknadsbehandlingen. Navnene på de sammensatte
// typene speiler steg-idene slik at OppdaterStegFraOpplysninger kan
// besvare steg direkte fra avledede opplysninger.
var (
	InntektSiste12Mnd     = opplysning.NyType("inntektSiste12Mnd", opplysning.Desimal)
	Minsteinntektsterskel = opplysning.NyType("minsteinntektsterskel", opplysning.Desimal)
	OppfyllerMinsteinntekt = opplysning.NyType("minsteinntekt", opplysning.Boolsk,
		InntektSiste12Mnd, Minsteinntektsterskel)

	AlderVedSoeknad = opplysning.NyType("alderVedSøknadstidspunkt", opplysning.Heltall)
	Aldersgrense    = opplysning.NyType("aldersgrense", opplysning.Heltall)
	OppfyllerAlder  = opplysning.NyType("alder", opplysning.Boolsk,
		AlderVedSoeknad, Aldersgrense)
)

var opplysningstyper = []*opplysning.Opplysningstype{
	InntektSiste12Mnd,
	Minsteinntektsterskel,
	OppfyllerMinsteinntekt,
	AlderVedSoeknad,
	Aldersgrense,
	OppfyllerAlder,
}

// FinnOpplysningstype looks up a registered type by navn.
func FinnOpplysningstype(navn string) (*opplysning.Opplysningstype, bool) {
	for _, t := range opplysningstyper {
		if t.Navn == navn {
			return t, true
		}
	}
	return nil, false
}

// Terskler per gjeldende sats. Beløp i kroner, grense i år.
const (
	minsteinntektGrense = 186042.0
	aldersgrenseAar     = 67
)

// Soeknadsregelmotor returns a fresh rule engine for the standard
// søknadsbehandling; repositories attach it when rebuilding aggregates.
func Soeknadsregelmotor() *opplysning.Regelmotor {
	return opplysning.NyRegelmotor(
		opplysning.NyKonstant("fastsattMinsteinntektsterskel", Minsteinntektsterskel, minsteinntektGrense),
		opplysning.NyKonstant("fastsattAldersgrense", Aldersgrense, aldersgrenseAar),
		opplysning.NyStoerreEnn("vurdertMinsteinntekt", OppfyllerMinsteinntekt, InntektSiste12Mnd, Minsteinntektsterskel),
		opplysning.NyStoerreEnn("vurdertAlder", OppfyllerAlder, Aldersgrense, AlderVedSoeknad),
	)
}

// NySoeknadsbehandling builds the standard step graph for an unemployment
// benefit claim: two vilkår and the determinations that depend on them.
func NySoeknadsbehandling(id uuid.UUID, ident string, opprettet time.Time) (*Behandling, error) {
	bygger := NyBygger()
	bygger.Vilkaar("alder")
	bygger.Vilkaar("minsteinntekt")
	bygger.Fastsettelse("dagsats", opplysning.Desimal, "alder", "minsteinntekt")
	bygger.Fastsettelse("periode", opplysning.Heltall, "minsteinntekt")
	b, err := NyBehandling(id, ident, opprettet, bygger, opplysning.NyOpplysninger(Soeknadsregelmotor()))
	if err != nil {
		return nil, err
	}
	// Seed tersklene så behovene bare lister eksterne opplysninger.
	if err := b.Opplysninger.Evaluer(); err != nil {
		return nil, err
	}
	return b, nil
}

// OppdaterStegFraOpplysninger answers any unanswered step that has a fact
// of the same name and a value of the step's type. Returns the ids that
// were answered.
func (b *Behandling) OppdaterStegFraOpplysninger() []string {
	var besvarte []string
	for _, s := range b.steg {
		if s.Besvart() {
			continue
		}
		t, finnes := FinnOpplysningstype(s.Id())
		if !finnes {
			continue
		}
		op, finnes := b.Opplysninger.Finn(t)
		if !finnes {
			continue
		}
		if err := b.Besvar(s.Id(), op.Verdi); err != nil {
			continue
		}
		besvarte = append(besvarte, s.Id())
	}
	return besvarte
}

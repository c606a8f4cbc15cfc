package sak

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"saksflyt/internal/opplysning"
)

// ErrUfullstendig is returned by Utfall before the behandling is ferdig.
var ErrUfullstendig = errors.New("behandlingen er ikke ferdig")

// UkjentSteg refers to a step id that is not part of the graph.
type UkjentSteg struct {
	StegId string
}

func (e UkjentSteg) Error() string {
	return fmt.Sprintf("ukjent steg %s", e.StegId)
}

// AlleredeBesvart signals a second answer on the same step.
type AlleredeBesvart struct {
	StegId string
}

func (e AlleredeBesvart) Error() string {
	return fmt.Sprintf("steg %s er allerede besvart", e.StegId)
}

// TypeFeil signals an answer value that does not match the step's type.
type TypeFeil struct {
	StegId    string
	Forventet opplysning.Verditype
}

func (e TypeFeil) Error() string {
	return fmt.Sprintf("svar på steg %s må være %s", e.StegId, e.Forventet)
}

// Behandling is one case under processing: a sealed step graph plus the
// facts gathered for it. Mutations go through Besvar and Opplysninger.
type Behandling struct {
	Id           uuid.UUID
	Ident        string
	Opprettet    time.Time
	Opplysninger *opplysning.Opplysninger

	steg   []Steg
	indeks map[string]Steg
}

// NyBehandling seals the builder's graph into a behandling.
func NyBehandling(id uuid.UUID, ident string, opprettet time.Time, bygger *Bygger, opplysninger *opplysning.Opplysninger) (*Behandling, error) {
	steg, err := bygger.Bygg()
	if err != nil {
		return nil, err
	}
	indeks := make(map[string]Steg, len(steg))
	for _, s := range steg {
		indeks[s.Id()] = s
	}
	if opplysninger == nil {
		opplysninger = opplysning.NyOpplysninger(nil)
	}
	return &Behandling{
		Id:           id,
		Ident:        ident,
		Opprettet:    opprettet,
		Opplysninger: opplysninger,
		steg:         steg,
		indeks:       indeks,
	}, nil
}

// Besvar records an answer on the named step.
func (b *Behandling) Besvar(stegId string, verdi any) error {
	s, finnes := b.indeks[stegId]
	if !finnes {
		return UkjentSteg{StegId: stegId}
	}
	if s.Besvart() {
		return AlleredeBesvart{StegId: stegId}
	}
	return s.besvar(verdi)
}

// NesteSteg returns the actionable steps: unanswered, with every dependency
// answered, in declaration order.
func (b *Behandling) NesteSteg() []Steg {
	if b.harAvslaattVilkaar() {
		return nil
	}
	var neste []Steg
	for _, s := range b.steg {
		if s.Besvart() {
			continue
		}
		klar := true
		for _, avh := range s.AvhengerAv() {
			if !avh.Besvart() {
				klar = false
				break
			}
		}
		if klar {
			neste = append(neste, s)
		}
	}
	return neste
}

// ErFerdig is true when every step is answered, or immediately when any
// vilkår is answered false.
func (b *Behandling) ErFerdig() bool {
	if b.harAvslaattVilkaar() {
		return true
	}
	for _, s := range b.steg {
		if !s.Besvart() {
			return false
		}
	}
	return true
}

// Utfall is the boolean outcome: the conjunction of all answered vilkår.
// Defined only once ErFerdig.
func (b *Behandling) Utfall() (bool, error) {
	if !b.ErFerdig() {
		return false, ErrUfullstendig
	}
	for _, s := range b.steg {
		if v, ok := s.(*Vilkaar); ok && s.Besvart() && !v.Oppfylt() {
			return false, nil
		}
	}
	return true, nil
}

func (b *Behandling) harAvslaattVilkaar() bool {
	for _, s := range b.steg {
		if v, ok := s.(*Vilkaar); ok && s.Besvart() && !v.Oppfylt() {
			return true
		}
	}
	return false
}

// Steg returns the graph in declaration order.
func (b *Behandling) Steg() []Steg {
	return b.steg
}

// FinnSteg looks up a step by id.
func (b *Behandling) FinnSteg(stegId string) (Steg, bool) {
	s, finnes := b.indeks[stegId]
	return s, finnes
}

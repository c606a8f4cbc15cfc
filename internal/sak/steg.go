package sak

import (
	"fmt"

	"github.com/google/uuid"

	"saksflyt/internal/opplysning"
)

// Steg is one unit of determination in a behandling. The two variants are
// *Vilkaar (boolean eligibility condition) and *Fastsettelse (typed value
// determination); callers switch on the concrete type.
type Steg interface {
	Id() string
	UUID() uuid.UUID
	Verditype() opplysning.Verditype
	AvhengerAv() []Steg
	Besvart() bool
	Svar() any

	besvar(verdi any) error
}

type stegBase struct {
	id         string
	uuid       uuid.UUID
	avhengerAv []Steg
	besvart    bool
}

func (s *stegBase) Id() string         { return s.id }
func (s *stegBase) UUID() uuid.UUID    { return s.uuid }
func (s *stegBase) AvhengerAv() []Steg { return s.avhengerAv }
func (s *stegBase) Besvart() bool      { return s.besvart }

// Vilkaar is a boolean condition. A vilkår answered false short-circuits
// the owning behandling to ferdig with utfall false.
type Vilkaar struct {
	stegBase
	oppfylt bool
}

func (v *Vilkaar) Verditype() opplysning.Verditype { return opplysning.Boolsk }

func (v *Vilkaar) Svar() any {
	if !v.besvart {
		return nil
	}
	return v.oppfylt
}

func (v *Vilkaar) Oppfylt() bool { return v.besvart && v.oppfylt }

func (v *Vilkaar) besvar(verdi any) error {
	svar, ok := verdi.(bool)
	if !ok {
		return TypeFeil{StegId: v.id, Forventet: opplysning.Boolsk}
	}
	v.oppfylt = svar
	v.besvart = true
	return nil
}

// Fastsettelse determines a value of the declared Verditype.
type Fastsettelse struct {
	stegBase
	verditype opplysning.Verditype
	verdi     any
}

func (f *Fastsettelse) Verditype() opplysning.Verditype { return f.verditype }

func (f *Fastsettelse) Svar() any {
	if !f.besvart {
		return nil
	}
	return f.verdi
}

func (f *Fastsettelse) besvar(verdi any) error {
	if !f.verditype.Godtar(verdi) {
		return TypeFeil{StegId: f.id, Forventet: f.verditype}
	}
	f.verdi = verdi
	f.besvart = true
	return nil
}

// StegSpec declares one step for the builder. Dependencies reference other
// step ids in the same graph and are fixed once Bygg has run.
type StegSpec struct {
	Id         string
	UUID       uuid.UUID
	Vilkaar    bool
	Verditype  opplysning.Verditype
	AvhengerAv []string
}

// Bygger accumulates step declarations and seals them into an immutable,
// cycle-checked graph.
type Bygger struct {
	spesifikasjoner []StegSpec
}

func NyBygger() *Bygger {
	return &Bygger{}
}

func (b *Bygger) Vilkaar(id string, avhengerAv ...string) *Bygger {
	b.spesifikasjoner = append(b.spesifikasjoner, StegSpec{
		Id:         id,
		Vilkaar:    true,
		Verditype:  opplysning.Boolsk,
		AvhengerAv: avhengerAv,
	})
	return b
}

func (b *Bygger) Fastsettelse(id string, vt opplysning.Verditype, avhengerAv ...string) *Bygger {
	b.spesifikasjoner = append(b.spesifikasjoner, StegSpec{
		Id:         id,
		Verditype:  vt,
		AvhengerAv: avhengerAv,
	})
	return b
}

// Spec adds a fully specified step, used when rebuilding a persisted graph.
func (b *Bygger) Spec(spec StegSpec) *Bygger {
	b.spesifikasjoner = append(b.spesifikasjoner, spec)
	return b
}

// Bygg validates the declarations (unique ids, known dependency references,
// no cycles) and returns the sealed step graph in declaration order.
func (b *Bygger) Bygg() ([]Steg, error) {
	indeks := map[string]Steg{}
	steg := make([]Steg, 0, len(b.spesifikasjoner))
	for _, spec := range b.spesifikasjoner {
		if spec.Id == "" {
			return nil, fmt.Errorf("steg mangler id")
		}
		if _, finnes := indeks[spec.Id]; finnes {
			return nil, fmt.Errorf("steg %s er deklarert to ganger", spec.Id)
		}
		id := spec.UUID
		if id == uuid.Nil {
			id = uuid.New()
		}
		base := stegBase{id: spec.Id, uuid: id}
		var s Steg
		if spec.Vilkaar {
			s = &Vilkaar{stegBase: base}
		} else {
			s = &Fastsettelse{stegBase: base, verditype: spec.Verditype}
		}
		indeks[spec.Id] = s
		steg = append(steg, s)
	}
	for i, spec := range b.spesifikasjoner {
		for _, avh := range spec.AvhengerAv {
			mot, finnes := indeks[avh]
			if !finnes {
				return nil, fmt.Errorf("steg %s avhenger av ukjent steg %s", spec.Id, avh)
			}
			switch s := steg[i].(type) {
			case *Vilkaar:
				s.avhengerAv = append(s.avhengerAv, mot)
			case *Fastsettelse:
				s.avhengerAv = append(s.avhengerAv, mot)
			}
		}
	}
	if err := sjekkSykler(steg); err != nil {
		return nil, err
	}
	return steg, nil
}

// sjekkSykler walks the dependency edges depth-first with three-color
// marking and rejects any back edge.
func sjekkSykler(steg []Steg) error {
	const (
		hvit = iota
		graa
		svart
	)
	farge := map[string]int{}
	var besoek func(s Steg) error
	besoek = func(s Steg) error {
		switch farge[s.Id()] {
		case graa:
			return fmt.Errorf("avhengighetssykel via steg %s", s.Id())
		case svart:
			return nil
		}
		farge[s.Id()] = graa
		for _, avh := range s.AvhengerAv() {
			if err := besoek(avh); err != nil {
				return err
			}
		}
		farge[s.Id()] = svart
		return nil
	}
	for _, s := range steg {
		if err := besoek(s); err != nil {
			return err
		}
	}
	return nil
}

package opplysning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxDerivasjoner bounds the derivation closure. The fired-set below makes
// termination structural; the bound is a backstop against misregistered rules.
const maxDerivasjoner = 1000

// Regel derives one output fact from a fixed set of input facts. Rules must
// be pure functions of their declared inputs.
type Regel interface {
	Navn() string
	Inngaar() []*Opplysningstype
	Produserer() *Opplysningstype
	LagProdukt(verdier map[string]any) (any, error)
}

// Regelmotor evaluates registered rules against a fact store. A rule fires
// at most once, and never for a product the store already holds.
type Regelmotor struct {
	regler []Regel
	fyrt   map[string]bool
}

func NyRegelmotor(regler ...Regel) *Regelmotor {
	return &Regelmotor{regler: regler, fyrt: map[string]bool{}}
}

func (m *Regelmotor) Registrer(r Regel) {
	m.regler = append(m.regler, r)
}

// Evaluer runs the derivation closure: any rule whose inputs are all present
// and whose product is still missing computes and appends its product, which
// may in turn satisfy downstream rules.
func (m *Regelmotor) Evaluer(o *Opplysninger) error {
	for steg := 0; steg < maxDerivasjoner; steg++ {
		fyrte := false
		for _, regel := range m.regler {
			if m.fyrt[regel.Navn()] {
				continue
			}
			produkt := regel.Produserer()
			if o.harNavn(produkt.Navn) {
				m.fyrt[regel.Navn()] = true
				continue
			}
			verdier, klar := hentInngangsverdier(o, regel)
			if !klar {
				continue
			}
			verdi, err := regel.LagProdukt(verdier)
			if err != nil {
				return fmt.Errorf("regel %s: %w", regel.Navn(), err)
			}
			if !produkt.Type.Godtar(verdi) {
				return TypeFeil{Navn: produkt.Navn, Forventet: produkt.Type}
			}
			o.leggTilAvledet(&Opplysning{
				Id:     uuid.New(),
				Type:   produkt,
				Verdi:  verdi,
				Kilde:  "regel:" + regel.Navn(),
				Gyldig: time.Now(),
			})
			m.fyrt[regel.Navn()] = true
			fyrte = true
		}
		if !fyrte {
			return nil
		}
	}
	return fmt.Errorf("regelmotor stoppet etter %d derivasjoner", maxDerivasjoner)
}

func hentInngangsverdier(o *Opplysninger, regel Regel) (map[string]any, bool) {
	verdier := map[string]any{}
	for _, inn := range regel.Inngaar() {
		op, ok := o.Finn(inn)
		if !ok {
			return nil, false
		}
		verdier[inn.Navn] = op.Verdi
	}
	return verdier, true
}

// StoerreEnn produserer sann når a er strengt større enn b.
type StoerreEnn struct {
	navn    string
	produkt *Opplysningstype
	a, b    *Opplysningstype
}

func NyStoerreEnn(navn string, produkt, a, b *Opplysningstype) *StoerreEnn {
	return &StoerreEnn{navn: navn, produkt: produkt, a: a, b: b}
}

func (r *StoerreEnn) Navn() string { return r.navn }
func (r *StoerreEnn) Inngaar() []*Opplysningstype { return []*Opplysningstype{r.a, r.b} }
func (r *StoerreEnn) Produserer() *Opplysningstype { return r.produkt }

func (r *StoerreEnn) LagProdukt(verdier map[string]any) (any, error) {
	a, ok := TilFlyt(verdier[r.a.Navn])
	if !ok {
		return nil, TypeFeil{Navn: r.a.Navn, Forventet: Desimal}
	}
	b, ok := TilFlyt(verdier[r.b.Navn])
	if !ok {
		return nil, TypeFeil{Navn: r.b.Navn, Forventet: Desimal}
	}
	return a > b, nil
}

// Alle produserer sann når alle boolske inngangsverdier er sanne.
type Alle struct {
	navn    string
	produkt *Opplysningstype
	inn     []*Opplysningstype
}

func NyAlle(navn string, produkt *Opplysningstype, inn ...*Opplysningstype) *Alle {
	return &Alle{navn: navn, produkt: produkt, inn: inn}
}

func (r *Alle) Navn() string { return r.navn }
func (r *Alle) Inngaar() []*Opplysningstype { return r.inn }
func (r *Alle) Produserer() *Opplysningstype { return r.produkt }

func (r *Alle) LagProdukt(verdier map[string]any) (any, error) {
	for _, inn := range r.inn {
		v, ok := verdier[inn.Navn].(bool)
		if !ok {
			return nil, TypeFeil{Navn: inn.Navn, Forventet: Boolsk}
		}
		if !v {
			return false, nil
		}
	}
	return true, nil
}

// MinstEn produserer sann når minst én boolsk inngangsverdi er sann.
type MinstEn struct {
	navn    string
	produkt *Opplysningstype
	inn     []*Opplysningstype
}

func NyMinstEn(navn string, produkt *Opplysningstype, inn ...*Opplysningstype) *MinstEn {
	return &MinstEn{navn: navn, produkt: produkt, inn: inn}
}

func (r *MinstEn) Navn() string { return r.navn }
func (r *MinstEn) Inngaar() []*Opplysningstype { return r.inn }
func (r *MinstEn) Produserer() *Opplysningstype { return r.produkt }

func (r *MinstEn) LagProdukt(verdier map[string]any) (any, error) {
	for _, inn := range r.inn {
		v, ok := verdier[inn.Navn].(bool)
		if !ok {
			return nil, TypeFeil{Navn: inn.Navn, Forventet: Boolsk}
		}
		if v {
			return true, nil
		}
	}
	return false, nil
}

// Konstant produserer en fast verdi uten inngangsverdier, typisk terskler.
type Konstant struct {
	navn    string
	produkt *Opplysningstype
	verdi   any
}

func NyKonstant(navn string, produkt *Opplysningstype, verdi any) *Konstant {
	return &Konstant{navn: navn, produkt: produkt, verdi: verdi}
}

func (r *Konstant) Navn() string { return r.navn }
func (r *Konstant) Inngaar() []*Opplysningstype { return nil }
func (r *Konstant) Produserer() *Opplysningstype { return r.produkt }

func (r *Konstant) LagProdukt(map[string]any) (any, error) {
	return r.verdi, nil
}

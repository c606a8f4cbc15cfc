package opplysning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Verditype tags the value kind an opplysning or steg may carry.
type Verditype string

const (
	Boolsk  Verditype = "boolsk"
	Heltall Verditype = "heltall"
	Desimal Verditype = "desimal"
	Dato    Verditype = "dato"
	Tekst   Verditype = "tekst"
)

// Godtar reports whether verdi matches the declared value kind.
func (vt Verditype) Godtar(verdi any) bool {
	switch vt {
	case Boolsk:
		_, ok := verdi.(bool)
		return ok
	case Heltall:
		switch verdi.(type) {
		case int, int64:
			return true
		}
		return false
	case Desimal:
		switch verdi.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case Dato:
		_, ok := verdi.(time.Time)
		return ok
	case Tekst:
		_, ok := verdi.(string)
		return ok
	}
	return false
}

// TilFlyt konverterer tallverdier til float64 for sammenligning.
func TilFlyt(verdi any) (float64, bool) {
	switch v := verdi.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Opplysningstype is the typed key identifying a fact. A composite type
// lists the sub-types it is determined from via BestaarAv.
type Opplysningstype struct {
	Navn      string
	Type      Verditype
	bestaarAv []*Opplysningstype
}

func NyType(navn string, vt Verditype, bestaarAv ...*Opplysningstype) *Opplysningstype {
	return &Opplysningstype{Navn: navn, Type: vt, bestaarAv: bestaarAv}
}

func (t *Opplysningstype) BestaarAv() []*Opplysningstype {
	return t.bestaarAv
}

// Opplysning is a typed, timestamped fact about a behandling.
type Opplysning struct {
	Id     uuid.UUID
	Type   *Opplysningstype
	Verdi  any
	Kilde  string
	Gyldig time.Time
}

func Ny(t *Opplysningstype, verdi any, gyldig time.Time) *Opplysning {
	return &Opplysning{Id: uuid.New(), Type: t, Verdi: verdi, Gyldig: gyldig}
}

// TypeFeil signals a value that does not match the declared Verditype.
type TypeFeil struct {
	Navn      string
	Forventet Verditype
}

func (e TypeFeil) Error() string {
	return fmt.Sprintf("verdi for %s er ikke %s", e.Navn, e.Forventet)
}

// Opplysninger holds the facts of one behandling. Inserts trigger the
// attached Regelmotor so derived facts appear in the same store.
type Opplysninger struct {
	alle  []*Opplysning
	motor *Regelmotor
}

func NyOpplysninger(motor *Regelmotor) *Opplysninger {
	return &Opplysninger{motor: motor}
}

// SettMotor attaches a rule engine to a store rebuilt from persistence.
// Already-derived products are skipped by the engine on the next insert.
func (o *Opplysninger) SettMotor(motor *Regelmotor) {
	o.motor = motor
}

// Evaluer runs the rule engine against the current store. Used at
// construction to seed products that need no inputs.
func (o *Opplysninger) Evaluer() error {
	if o.motor == nil {
		return nil
	}
	return o.motor.Evaluer(o)
}

// LeggTil appends a fact and evaluates the rule engine against the new
// state of the store.
func (o *Opplysninger) LeggTil(op *Opplysning) error {
	if op.Type == nil {
		return fmt.Errorf("opplysning mangler type")
	}
	if !op.Type.Type.Godtar(op.Verdi) {
		return TypeFeil{Navn: op.Type.Navn, Forventet: op.Type.Type}
	}
	o.alle = append(o.alle, op)
	if o.motor != nil {
		return o.motor.Evaluer(o)
	}
	return nil
}

// leggTilAvledet appends a rule product without re-entering the engine;
// the engine's own loop picks up the new fact.
func (o *Opplysninger) leggTilAvledet(op *Opplysning) {
	o.alle = append(o.alle, op)
}

func (o *Opplysninger) Har(t *Opplysningstype) bool {
	for _, op := range o.alle {
		if op.Type.Navn == t.Navn {
			return true
		}
	}
	return false
}

func (o *Opplysninger) harNavn(navn string) bool {
	for _, op := range o.alle {
		if op.Type.Navn == navn {
			return true
		}
	}
	return false
}

// Finn returns the newest fact of the given type.
func (o *Opplysninger) Finn(t *Opplysningstype) (*Opplysning, bool) {
	for i := len(o.alle) - 1; i >= 0; i-- {
		if o.alle[i].Type.Navn == t.Navn {
			return o.alle[i], true
		}
	}
	return nil, false
}

// Trenger lists the unmet leaf types a composite type still needs. A type
// without composition is its own leaf.
func (o *Opplysninger) Trenger(t *Opplysningstype) []*Opplysningstype {
	if o.Har(t) {
		return nil
	}
	deler := t.BestaarAv()
	if len(deler) == 0 {
		return []*Opplysningstype{t}
	}
	var mangler []*Opplysningstype
	for _, del := range deler {
		mangler = append(mangler, o.Trenger(del)...)
	}
	return mangler
}

// Alle returns the facts in insertion order.
func (o *Opplysninger) Alle() []*Opplysning {
	return o.alle
}

package hendelse

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrIgnorert marks a message that does not satisfy a listener's
// requirements. Listeners drop such messages silently; another listener
// may still match.
var ErrIgnorert = errors.New("meldingen matcher ikke")

// Melding is a parsed inbound envelope. Validation follows the
// demand/require/forbid style of the bus contract.
type Melding map[string]any

func Parse(data []byte) (Melding, error) {
	var m Melding
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIgnorert, err)
	}
	return m, nil
}

// Forventer checks that @event_name matches.
func (m Melding) Forventer(eventName string) error {
	if navn, _ := m["@event_name"].(string); navn != eventName {
		return fmt.Errorf("%w: @event_name er ikke %s", ErrIgnorert, eventName)
	}
	return nil
}

// Krever checks that every field is present and non-null.
func (m Melding) Krever(felter ...string) error {
	for _, felt := range felter {
		verdi, finnes := m[felt]
		if !finnes || verdi == nil {
			return fmt.Errorf("%w: mangler %s", ErrIgnorert, felt)
		}
	}
	return nil
}

// Forbyr checks that none of the fields are present.
func (m Melding) Forbyr(felter ...string) error {
	for _, felt := range felter {
		if verdi, finnes := m[felt]; finnes && verdi != nil {
			return fmt.Errorf("%w: har forbudt felt %s", ErrIgnorert, felt)
		}
	}
	return nil
}

func (m Melding) Streng(felt string) string {
	s, _ := m[felt].(string)
	return s
}

func (m Melding) UUID(felt string) (uuid.UUID, error) {
	id, err := uuid.Parse(m.Streng(felt))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s er ikke en uuid", ErrIgnorert, felt)
	}
	return id, nil
}

func (m Melding) Dato(felt string) (time.Time, error) {
	s := m.Streng(felt)
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d, nil
	}
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s er ikke en dato", ErrIgnorert, felt)
	}
	return d, nil
}

package hendelse

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Utgaaende is a derived event bound for the bus. Noekkel is the partition
// key (ident for person-scoped events).
type Utgaaende struct {
	Noekkel string
	Melding []byte
}

func konvolutt(eventName string, opprettet time.Time, felter map[string]any) []byte {
	m := map[string]any{
		"@event_name": eventName,
		"@id":         uuid.New().String(),
		"@opprettet":  opprettet.UTC().Format(time.RFC3339),
	}
	for k, v := range felter {
		m[k] = v
	}
	data, _ := json.Marshal(m)
	return data
}

// NyOppgaveOpprettet announces a new caseworker task.
func NyOppgaveOpprettet(ident string, oppgaveId, behandlingId uuid.UUID, opprettet time.Time) Utgaaende {
	return Utgaaende{
		Noekkel: ident,
		Melding: konvolutt("oppgave_opprettet", opprettet, map[string]any{
			"ident":        ident,
			"oppgaveId":    oppgaveId.String(),
			"behandlingId": behandlingId.String(),
		}),
	}
}

// NyVedtakFattet announces the decision on a finished behandling.
func NyVedtakFattet(ident string, behandlingId uuid.UUID, utfall bool, opprettet time.Time) Utgaaende {
	return Utgaaende{
		Noekkel: ident,
		Melding: konvolutt("vedtak_fattet", opprettet, map[string]any{
			"ident":        ident,
			"behandlingId": behandlingId.String(),
			"utfall":       utfall,
		}),
	}
}

// NyBehandlingAvbrutt announces a rejected behandling.
func NyBehandlingAvbrutt(ident string, behandlingId uuid.UUID, opprettet time.Time) Utgaaende {
	return Utgaaende{
		Noekkel: ident,
		Melding: konvolutt("behandling_avbrutt", opprettet, map[string]any{
			"ident":        ident,
			"behandlingId": behandlingId.String(),
		}),
	}
}

// NyBehov requests facts from collaborators; the answer arrives as an
// opplysning_svar with the matching behov key in @løsning.
func NyBehov(ident string, behandlingId uuid.UUID, behov []string, opprettet time.Time) Utgaaende {
	return Utgaaende{
		Noekkel: ident,
		Melding: konvolutt("behov", opprettet, map[string]any{
			"@behov":       behov,
			"ident":        ident,
			"behandlingId": behandlingId.String(),
		}),
	}
}

// NyLoesning answers a behov.
func NyLoesning(ident string, behovKey string, verdi any, opprettet time.Time) Utgaaende {
	return Utgaaende{
		Noekkel: ident,
		Melding: konvolutt("behov", opprettet, map[string]any{
			"ident":    ident,
			"@løsning": map[string]any{behovKey: verdi},
		}),
	}
}

// NyAlert emits a saksbehandling_alert for operations monitoring.
func NyAlert(alertType, melding string, opprettet time.Time) Utgaaende {
	return Utgaaende{
		Noekkel: alertType,
		Melding: konvolutt("saksbehandling_alert", opprettet, map[string]any{
			"alertType": alertType,
			"melding":   melding,
		}),
	}
}

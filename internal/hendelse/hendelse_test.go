package hendelse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func melding(t *testing.T, felter map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(felter)
	require.NoError(t, err)
	return data
}

func TestTolkSoeknadInnsendt(t *testing.T) {
	id := uuid.New()
	soeknadId := uuid.New()
	h, err := Tolk(melding(t, map[string]any{
		"@event_name":   NavnSoeknadInnsendt,
		"@id":           id.String(),
		"ident":         "12345678901",
		"søknadId":      soeknadId.String(),
		"journalpostId": "j-42",
		"innsendtDato":  "2026-08-30",
	}))
	require.NoError(t, err)

	innsendt, ok := h.(SoeknadInnsendt)
	require.True(t, ok)
	assert.Equal(t, id, innsendt.Meldingsreferanse())
	assert.Equal(t, NavnSoeknadInnsendt, innsendt.Hendelsesnavn())
	assert.Equal(t, "12345678901", innsendt.Ident)
	assert.Equal(t, soeknadId, innsendt.SoeknadId)
	assert.Equal(t, "j-42", innsendt.JournalpostId)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), innsendt.InnsendtDato)
}

func TestTolkIgnorerer(t *testing.T) {
	tester := []struct {
		navn string
		raa  map[string]any
	}{
		{"ukjent event", map[string]any{"@event_name": "noe_annet", "@id": uuid.NewString()}},
		{"manglende påkrevd felt", map[string]any{
			"@event_name": NavnSoeknadInnsendt,
			"@id":         uuid.NewString(),
			"ident":       "12345678901",
		}},
		{"null i påkrevd felt", map[string]any{
			"@event_name":   NavnSoeknadInnsendt,
			"@id":           uuid.NewString(),
			"ident":         nil,
			"søknadId":      uuid.NewString(),
			"journalpostId": "j-1",
			"innsendtDato":  "2026-08-30",
		}},
		{"forbudt felt til stede", map[string]any{
			"@event_name":   NavnSoeknadInnsendt,
			"@id":           uuid.NewString(),
			"ident":         "12345678901",
			"søknadId":      uuid.NewString(),
			"journalpostId": "j-1",
			"innsendtDato":  "2026-08-30",
			"@løsning":      map[string]any{"x": 1},
		}},
		{"ugyldig uuid", map[string]any{
			"@event_name":   NavnSoeknadInnsendt,
			"@id":           "ikke-en-uuid",
			"ident":         "12345678901",
			"søknadId":      uuid.NewString(),
			"journalpostId": "j-1",
			"innsendtDato":  "2026-08-30",
		}},
		{"manglende @id", map[string]any{
			"@event_name": NavnTildel,
			"oppgaveId":   uuid.NewString(),
			"navIdent":    "Z111111",
		}},
	}
	for _, tt := range tester {
		t.Run(tt.navn, func(t *testing.T) {
			_, err := Tolk(melding(t, tt.raa))
			assert.ErrorIs(t, err, ErrIgnorert)
		})
	}
}

func TestTolkUgyldigJSON(t *testing.T) {
	_, err := Tolk([]byte("ikke json"))
	assert.ErrorIs(t, err, ErrIgnorert)
}

func TestTolkOpplysningSvar(t *testing.T) {
	behandlingId := uuid.New()
	h, err := Tolk(melding(t, map[string]any{
		"@event_name":  NavnOpplysningSvar,
		"@id":          uuid.NewString(),
		"behandlingId": behandlingId.String(),
		"navn":         "inntektSiste12Mnd",
		"verdi":        250000.0,
	}))
	require.NoError(t, err)

	svar, ok := h.(OpplysningSvar)
	require.True(t, ok)
	assert.Equal(t, behandlingId, svar.BehandlingId)
	assert.Equal(t, "inntektSiste12Mnd", svar.Navn)
	assert.Equal(t, 250000.0, svar.Verdi)
}

func TestTolkDatoVarianter(t *testing.T) {
	for _, dato := range []string{"2026-08-30", "2026-08-30T10:15:00Z"} {
		h, err := Tolk(melding(t, map[string]any{
			"@event_name": NavnPaaVentFristUtgaatt,
			"@id":         uuid.NewString(),
			"dato":        dato,
		}))
		require.NoError(t, err, dato)
		utgaatt, ok := h.(PaaVentFristUtgaatt)
		require.True(t, ok)
		assert.Equal(t, 2026, utgaatt.Dato.Year())
		assert.Equal(t, time.August, utgaatt.Dato.Month())
	}
}

func TestUtgaaendeKonvolutt(t *testing.T) {
	oppgaveId := uuid.New()
	behandlingId := uuid.New()
	opprettet := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	ut := NyOppgaveOpprettet("12345678901", oppgaveId, behandlingId, opprettet)
	assert.Equal(t, "12345678901", ut.Noekkel)

	var m map[string]any
	require.NoError(t, json.Unmarshal(ut.Melding, &m))
	assert.Equal(t, "oppgave_opprettet", m["@event_name"])
	assert.Equal(t, "2026-08-31T09:00:00Z", m["@opprettet"])
	_, err := uuid.Parse(m["@id"].(string))
	assert.NoError(t, err, "konvolutten skal bære en gyldig meldingsreferanse")
	assert.Equal(t, oppgaveId.String(), m["oppgaveId"])
	assert.Equal(t, behandlingId.String(), m["behandlingId"])
}

func TestBehovOgLoesning(t *testing.T) {
	behandlingId := uuid.New()
	behov := NyBehov("12345678901", behandlingId, []string{"inntektSiste12Mnd", "alderVedSøknadstidspunkt"}, time.Now())

	var m map[string]any
	require.NoError(t, json.Unmarshal(behov.Melding, &m))
	assert.Equal(t, "behov", m["@event_name"])
	assert.Equal(t, []any{"inntektSiste12Mnd", "alderVedSøknadstidspunkt"}, m["@behov"])

	loesning := NyLoesning("12345678901", "inntektSiste12Mnd", 250000.0, time.Now())
	require.NoError(t, json.Unmarshal(loesning.Melding, &m))
	inner, ok := m["@løsning"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 250000.0, inner["inntektSiste12Mnd"])
}

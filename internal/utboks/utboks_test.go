package utboks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saksflyt/internal/db"
	"saksflyt/internal/hendelse"
	"saksflyt/internal/migrate"
)

type vinglePublisher struct {
	feilEtter int
	meldinger [][]byte
}

func (p *vinglePublisher) Publiser(ctx context.Context, noekkel string, melding []byte) error {
	if p.feilEtter > 0 && len(p.meldinger) >= p.feilEtter {
		return errors.New("bussen er nede")
	}
	p.meldinger = append(p.meldinger, melding)
	return nil
}

func nySkriver(t *testing.T) Skriver {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Skriver{DB: conn}
}

func leggTilTre(t *testing.T, s Skriver) {
	t.Helper()
	naa := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	tx, err := s.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()
	for range 3 {
		ut := hendelse.NyOppgaveOpprettet("12345678901", uuid.New(), uuid.New(), naa)
		require.NoError(t, s.Append(context.Background(), tx, ut))
	}
	require.NoError(t, tx.Commit())
}

func TestToemPubliserer(t *testing.T) {
	s := nySkriver(t)
	leggTilTre(t, s)

	pub := &vinglePublisher{}
	require.NoError(t, s.Toem(context.Background(), pub))
	assert.Len(t, pub.meldinger, 3)

	rest, err := s.HentUpubliserte(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rest)

	// En ny tømming har ingenting å gjøre.
	require.NoError(t, s.Toem(context.Background(), pub))
	assert.Len(t, pub.meldinger, 3)
}

func TestToemStopperVedFoersteFeil(t *testing.T) {
	s := nySkriver(t)
	leggTilTre(t, s)

	pub := &vinglePublisher{feilEtter: 1}
	err := s.Toem(context.Background(), pub)
	require.Error(t, err)
	assert.Len(t, pub.meldinger, 1)

	rest, err := s.HentUpubliserte(context.Background())
	require.NoError(t, err)
	assert.Len(t, rest, 2, "raden som feilet og alt etter den blir liggende")

	// Når bussen er tilbake publiseres resten i samme rekkefølge.
	pub.feilEtter = 0
	require.NoError(t, s.Toem(context.Background(), pub))
	assert.Len(t, pub.meldinger, 3)
}

func TestAppendKreverTransaksjon(t *testing.T) {
	s := nySkriver(t)
	naa := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tx, err := s.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), tx, hendelse.NyOppgaveOpprettet("12345678901", uuid.New(), uuid.New(), naa)))
	require.NoError(t, tx.Rollback())

	rader, err := s.HentAlle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rader, "en rullet tilbake append etterlater ingenting")

	var antall int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM utboks`).Scan(&antall))
	assert.Zero(t, antall)
}

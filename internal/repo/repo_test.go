package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saksflyt/internal/db"
	"saksflyt/internal/migrate"
	"saksflyt/internal/oppgave"
	"saksflyt/internal/opplysning"
	"saksflyt/internal/sak"
)

var naa = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func nyTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Repo{DB: conn}
}

func iTransaksjon(t *testing.T, r Repo, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := r.DB.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, fn(tx))
	require.NoError(t, tx.Commit())
}

func lagreBehandling(t *testing.T, r Repo, b *sak.Behandling) {
	t.Helper()
	iTransaksjon(t, r, func(tx *sql.Tx) error {
		if err := r.EnsurePersonTx(context.Background(), tx, b.Ident, naa); err != nil {
			return err
		}
		return r.LagreBehandlingTx(context.Background(), tx, b)
	})
}

func TestBehandlingRundtur(t *testing.T) {
	r := nyTestRepo(t)
	ctx := context.Background()

	b, err := sak.NySoeknadsbehandling(uuid.New(), "12345678901", naa)
	require.NoError(t, err)
	require.NoError(t, b.Opplysninger.LeggTil(opplysning.Ny(sak.AlderVedSoeknad, 44, naa)))
	require.NoError(t, b.Opplysninger.LeggTil(opplysning.Ny(sak.InntektSiste12Mnd, 250000.0, naa)))
	b.OppdaterStegFraOpplysninger()
	require.NoError(t, b.Besvar("dagsats", 812.4))

	lagreBehandling(t, r, b)

	lest, err := r.HentBehandling(ctx, b.Id)
	require.NoError(t, err)
	assert.Equal(t, b.Id, lest.Id)
	assert.Equal(t, b.Ident, lest.Ident)
	assert.True(t, lest.Opprettet.Equal(b.Opprettet))

	require.Len(t, lest.Steg(), len(b.Steg()))
	for i, s := range b.Steg() {
		lestSteg := lest.Steg()[i]
		assert.Equal(t, s.Id(), lestSteg.Id())
		assert.Equal(t, s.UUID(), lestSteg.UUID())
		assert.Equal(t, s.Besvart(), lestSteg.Besvart())
		assert.Equal(t, s.Svar(), lestSteg.Svar())
	}

	assert.Len(t, lest.Opplysninger.Alle(), len(b.Opplysninger.Alle()),
		"avledede opplysninger leses tilbake, ikke re-deriveres")
	assert.Equal(t, []string{"periode"}, stegIderAv(lest.NesteSteg()))

	// Fullfør og lagre på nytt; aggregatet skrives om.
	require.NoError(t, lest.Besvar("periode", 52))
	lagreBehandling(t, r, lest)
	ferdig, err := r.HentBehandling(ctx, b.Id)
	require.NoError(t, err)
	assert.True(t, ferdig.ErFerdig())
	utfall, err := ferdig.Utfall()
	require.NoError(t, err)
	assert.True(t, utfall)
}

func stegIderAv(steg []sak.Steg) []string {
	ider := make([]string, 0, len(steg))
	for _, s := range steg {
		ider = append(ider, s.Id())
	}
	return ider
}

func TestHentBehandlingNotFound(t *testing.T) {
	r := nyTestRepo(t)
	_, err := r.HentBehandling(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHentBehandlingerFor(t *testing.T) {
	r := nyTestRepo(t)
	ctx := context.Background()

	for _, ident := range []string{"11111111111", "11111111111", "22222222222"} {
		b, err := sak.NySoeknadsbehandling(uuid.New(), ident, naa)
		require.NoError(t, err)
		lagreBehandling(t, r, b)
	}

	alle, err := r.HentBehandlinger(ctx)
	require.NoError(t, err)
	assert.Len(t, alle, 3)

	mine, err := r.HentBehandlingerFor(ctx, "11111111111")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func lagretOppgave(t *testing.T, r Repo) *oppgave.Oppgave {
	t.Helper()
	b, err := sak.NySoeknadsbehandling(uuid.New(), "12345678901", naa)
	require.NoError(t, err)
	lagreBehandling(t, r, b)
	o := oppgave.Ny(b.Id, b.Ident, naa)
	iTransaksjon(t, r, func(tx *sql.Tx) error {
		return r.LagreOppgaveTx(context.Background(), tx, o)
	})
	return o
}

func TestOppgaveRundtur(t *testing.T) {
	r := nyTestRepo(t)
	ctx := context.Background()

	o := lagretOppgave(t, r)
	require.NoError(t, o.GjoerKlar(naa))
	require.NoError(t, o.Tildel("Z111111", naa))
	require.NoError(t, o.LeggTilNotat("ringte søker", "Z111111", naa))
	require.NoError(t, o.SettPaaVent(naa.AddDate(0, 0, 7), naa))
	iTransaksjon(t, r, func(tx *sql.Tx) error {
		return r.LagreOppgaveTx(ctx, tx, o)
	})

	lest, err := r.HentOppgave(ctx, o.Id)
	require.NoError(t, err)
	assert.Equal(t, oppgave.PaaVent, lest.Tilstand)
	require.NotNil(t, lest.Saksbehandler)
	assert.Equal(t, "Z111111", *lest.Saksbehandler)
	require.NotNil(t, lest.UtsattTil)
	assert.True(t, lest.UtsattTil.Equal(*o.UtsattTil))
	require.Len(t, lest.Notater, 1)
	assert.Equal(t, "ringte søker", lest.Notater[0].Tekst)

	aktiv, err := r.HentAktivOppgaveForBehandling(ctx, o.BehandlingId)
	require.NoError(t, err)
	assert.Equal(t, o.Id, aktiv.Id)
}

func TestListOppgaverFilter(t *testing.T) {
	r := nyTestRepo(t)
	ctx := context.Background()

	o1 := lagretOppgave(t, r)
	o2 := lagretOppgave(t, r)
	require.NoError(t, o2.GjoerKlar(naa))
	iTransaksjon(t, r, func(tx *sql.Tx) error {
		return r.LagreOppgaveTx(ctx, tx, o2)
	})

	klare, err := r.ListOppgaver(ctx, OppgaveFilter{Tilstander: []oppgave.Tilstand{oppgave.KlarTilBehandling}})
	require.NoError(t, err)
	require.Len(t, klare, 1)
	assert.Equal(t, o2.Id, klare[0].Id)

	alle, err := r.ListOppgaver(ctx, OppgaveFilter{})
	require.NoError(t, err)
	assert.Len(t, alle, 2)
	_ = o1
}

func TestFinnOppgaverPaaVentMedUtgaattFrist(t *testing.T) {
	r := nyTestRepo(t)
	ctx := context.Background()

	o := lagretOppgave(t, r)
	require.NoError(t, o.GjoerKlar(naa))
	require.NoError(t, o.Tildel("Z111111", naa))
	require.NoError(t, o.SettPaaVent(naa.AddDate(0, 0, 3), naa))
	iTransaksjon(t, r, func(tx *sql.Tx) error {
		return r.LagreOppgaveTx(ctx, tx, o)
	})

	paaFristdagen, err := r.FinnOppgaverPaaVentMedUtgaattFrist(ctx, naa.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Empty(t, paaFristdagen, "fristdagen er ikke utgått")

	dagenEtter, err := r.FinnOppgaverPaaVentMedUtgaattFrist(ctx, naa.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, dagenEtter, 1)
	assert.Equal(t, o.Id, dagenEtter[0].Id)
}

func TestFinnGamleOppgaver(t *testing.T) {
	r := nyTestRepo(t)
	ctx := context.Background()

	o := lagretOppgave(t, r)

	gamle, err := r.FinnGamleOppgaver(ctx, naa.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, gamle)

	gamle, err = r.FinnGamleOppgaver(ctx, naa.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, gamle, 1)
	assert.Equal(t, o.Id, gamle[0].Id)
}

func TestRegistrerMeldingDedup(t *testing.T) {
	r := nyTestRepo(t)
	ctx := context.Background()
	id := uuid.New()

	var foerste, andre bool
	iTransaksjon(t, r, func(tx *sql.Tx) error {
		var err error
		foerste, err = r.RegistrerMeldingTx(ctx, tx, id, naa)
		return err
	})
	iTransaksjon(t, r, func(tx *sql.Tx) error {
		var err error
		andre, err = r.RegistrerMeldingTx(ctx, tx, id, naa)
		return err
	})
	assert.True(t, foerste)
	assert.False(t, andre, "samme meldingsreferanse skal meldes som duplikat")
}

func TestHenvendelseLivsloep(t *testing.T) {
	r := nyTestRepo(t)
	ctx := context.Background()

	h := Henvendelse{
		Id:       uuid.New(),
		Ident:    "12345678901",
		Tekst:    "når kommer pengene?",
		Tilstand: HenvendelseMottatt,
		Mottatt:  naa,
	}
	iTransaksjon(t, r, func(tx *sql.Tx) error {
		if err := r.EnsurePersonTx(ctx, tx, h.Ident, naa); err != nil {
			return err
		}
		return r.LagreHenvendelseTx(ctx, tx, h)
	})

	mottatte, err := r.ListHenvendelser(ctx, HenvendelseMottatt)
	require.NoError(t, err)
	require.Len(t, mottatte, 1)

	tildelt, err := r.TildelHenvendelse(ctx, h.Id, "Z111111")
	require.NoError(t, err)
	assert.Equal(t, HenvendelseUnderArbeid, tildelt.Tilstand)

	_, err = r.TildelHenvendelse(ctx, h.Id, "Z222222")
	assert.Error(t, err, "en henvendelse under arbeid kan ikke tildeles på nytt")

	ferdig, err := r.FerdigstillHenvendelse(ctx, h.Id)
	require.NoError(t, err)
	assert.Equal(t, HenvendelseFerdig, ferdig.Tilstand)

	_, err = r.HentHenvendelse(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

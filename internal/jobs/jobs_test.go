package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type telleJobb struct {
	antall atomic.Int64
	feil   error
	panikk bool
}

func (j *telleJobb) Navn() string { return "telle" }

func (j *telleJobb) Utfoer(context.Context) error {
	j.antall.Add(1)
	if j.panikk {
		panic("au")
	}
	return j.feil
}

type fastLeder struct {
	leder bool
	feil  error
}

func (l fastLeder) ErLeder(context.Context) (bool, error) { return l.leder, l.feil }

func kjoerPlanlegger(t *testing.T, p *Planlegger, varighet time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), varighet)
	defer cancel()
	p.Start(ctx)
	p.Vent()
}

func TestPlanleggerKjoererSomLeder(t *testing.T) {
	jobb := &telleJobb{}
	p := &Planlegger{Valg: AlltidLeder{}}
	p.Registrer(jobb, 20*time.Millisecond)

	kjoerPlanlegger(t, p, 300*time.Millisecond)
	assert.Greater(t, jobb.antall.Load(), int64(1))
}

func TestPlanleggerHopperOverSomIkkeLeder(t *testing.T) {
	jobb := &telleJobb{}
	p := &Planlegger{Valg: fastLeder{leder: false}}
	p.Registrer(jobb, 20*time.Millisecond)

	kjoerPlanlegger(t, p, 200*time.Millisecond)
	assert.Zero(t, jobb.antall.Load())
}

func TestPlanleggerHopperOverVedProbefeil(t *testing.T) {
	jobb := &telleJobb{}
	p := &Planlegger{Valg: fastLeder{feil: errors.New("nede")}}
	p.Registrer(jobb, 20*time.Millisecond)

	kjoerPlanlegger(t, p, 200*time.Millisecond)
	assert.Zero(t, jobb.antall.Load())
}

func TestPlanleggerOverleverJobbfeilOgPanikk(t *testing.T) {
	feilende := &telleJobb{feil: errors.New("databasen er borte")}
	panikkende := &telleJobb{panikk: true}
	p := &Planlegger{Valg: AlltidLeder{}}
	p.Registrer(feilende, 20*time.Millisecond)
	p.Registrer(panikkende, 20*time.Millisecond)

	kjoerPlanlegger(t, p, 300*time.Millisecond)
	assert.Greater(t, feilende.antall.Load(), int64(1), "en feil stopper ikke tickeren")
	assert.Greater(t, panikkende.antall.Load(), int64(1), "en panikk stopper ikke tickeren")
}

func TestHTTPLederValg(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"pod-a"}`))
	}))
	t.Cleanup(srv.Close)

	valg := HTTPLederValg{URL: srv.URL, Hostname: func() (string, error) { return "pod-a", nil }}
	leder, err := valg.ErLeder(context.Background())
	require.NoError(t, err)
	assert.True(t, leder)

	valg.Hostname = func() (string, error) { return "pod-b", nil }
	leder, err = valg.ErLeder(context.Background())
	require.NoError(t, err)
	assert.False(t, leder)
}

func TestHTTPLederValgFeil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	valg := HTTPLederValg{URL: srv.URL}
	_, err := valg.ErLeder(context.Background())
	assert.Error(t, err)
}

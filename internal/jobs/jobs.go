// Package jobs runs periodic maintenance work on the instance currently
// elected leader.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// Jobb is one unit of scheduled work.
type Jobb interface {
	Navn() string
	Utfoer(ctx context.Context) error
}

// LederValg answers whether this instance should run scheduled work.
type LederValg interface {
	ErLeder(ctx context.Context) (bool, error)
}

// HTTPLederValg asks an external elector. The response body is
// {"name": "<hostname>"}; we are leader when it names us.
type HTTPLederValg struct {
	URL        string
	HTTPClient *http.Client
	Hostname   func() (string, error)
}

func (l HTTPLederValg) ErLeder(ctx context.Context) (bool, error) {
	klient := l.HTTPClient
	if klient == nil {
		klient = &http.Client{Timeout: 5 * time.Second}
	}
	hostname := os.Hostname
	if l.Hostname != nil {
		hostname = l.Hostname
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return false, err
	}
	resp, err := klient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ledervalg svarte %d", resp.StatusCode)
	}
	var svar struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&svar); err != nil {
		return false, err
	}
	vert, err := hostname()
	if err != nil {
		return false, err
	}
	return svar.Name == vert, nil
}

// AlltidLeder is the single-instance election used in tests and local runs.
type AlltidLeder struct{}

func (AlltidLeder) ErLeder(context.Context) (bool, error) { return true, nil }

type planlagtJobb struct {
	jobb    Jobb
	periode time.Duration
	kjoerer sync.Mutex
}

// Planlegger runs each registered job on its own ticker. A probe failure or
// a non-leader answer skips the cycle; a run still in flight when the ticker
// fires again is skipped rather than stacked.
type Planlegger struct {
	Valg   LederValg
	Logger *slog.Logger

	jobber []*planlagtJobb
	wg     sync.WaitGroup
}

func (p *Planlegger) Registrer(jobb Jobb, periode time.Duration) {
	p.jobber = append(p.jobber, &planlagtJobb{jobb: jobb, periode: periode})
}

// Start launches one goroutine per job; they stop when ctx is cancelled.
func (p *Planlegger) Start(ctx context.Context) {
	for _, j := range p.jobber {
		p.wg.Add(1)
		go p.kjoer(ctx, j)
	}
}

// Vent blocks until every job goroutine has stopped.
func (p *Planlegger) Vent() {
	p.wg.Wait()
}

func (p *Planlegger) kjoer(ctx context.Context, j *planlagtJobb) {
	defer p.wg.Done()
	ticker := time.NewTicker(j.periode)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.kanskjeUtfoer(ctx, j)
		}
	}
}

func (p *Planlegger) kanskjeUtfoer(ctx context.Context, j *planlagtJobb) {
	logg := p.logg().With("jobb", j.jobb.Navn())
	leder, err := p.erLeder(ctx)
	if err != nil {
		logg.Error("ledervalg feilet, hopper over kjøring", "feil", err)
		return
	}
	if !leder {
		return
	}
	if !j.kjoerer.TryLock() {
		logg.Warn("forrige kjøring pågår fortsatt, hopper over")
		return
	}
	defer j.kjoerer.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logg.Error("jobb panikket", "panikk", r)
		}
	}()
	if err := j.jobb.Utfoer(ctx); err != nil {
		logg.Error("jobb feilet", "feil", err)
	}
}

func (p *Planlegger) erLeder(ctx context.Context) (bool, error) {
	if p.Valg == nil {
		return true, nil
	}
	return p.Valg.ErLeder(ctx)
}

func (p *Planlegger) logg() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

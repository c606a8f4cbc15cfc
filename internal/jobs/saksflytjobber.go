package jobs

import (
	"context"
	"time"

	"saksflyt/internal/mediator"
)

// FristUtgaattJobb reopens oppgaver whose på-vent frist has passed.
type FristUtgaattJobb struct {
	Mediator *mediator.Mediator
	Now      func() time.Time
}

func (j FristUtgaattJobb) Navn() string { return "påvent-frist-utgått" }

func (j FristUtgaattJobb) Utfoer(ctx context.Context) error {
	naa := time.Now
	if j.Now != nil {
		naa = j.Now
	}
	return j.Mediator.HaandterPaaVentFrister(ctx, naa())
}

// VaktmesterJobb alerts on oppgaver that have sat unfinished too long.
type VaktmesterJobb struct {
	Mediator  *mediator.Mediator
	MaksAlder time.Duration
	Now       func() time.Time
}

func (j VaktmesterJobb) Navn() string { return "vaktmester" }

func (j VaktmesterJobb) Utfoer(ctx context.Context) error {
	naa := time.Now
	if j.Now != nil {
		naa = j.Now
	}
	maksAlder := j.MaksAlder
	if maksAlder == 0 {
		maksAlder = 30 * 24 * time.Hour
	}
	return j.Mediator.VarsleGamleOppgaver(ctx, naa().Add(-maksAlder))
}

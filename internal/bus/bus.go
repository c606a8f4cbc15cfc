package bus

import (
	"context"
	"sync"
)

// Publisher is the outbound side of the message bus. The real transport
// lives outside this repository; the mediator only depends on this
// contract.
type Publisher interface {
	Publiser(ctx context.Context, noekkel string, melding []byte) error
}

// Abonnent receives raw bus messages.
type Abonnent func(ctx context.Context, melding []byte)

// Kanal is an in-process bus used by the single-binary setup and by tests.
// Publiser delivers synchronously to every subscriber.
type Kanal struct {
	mu         sync.RWMutex
	abonnenter []Abonnent
	publiserte [][]byte
	taOpp      bool
}

func NyKanal() *Kanal {
	return &Kanal{}
}

func (k *Kanal) Abonner(a Abonnent) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.abonnenter = append(k.abonnenter, a)
}

func (k *Kanal) Publiser(ctx context.Context, noekkel string, melding []byte) error {
	k.mu.RLock()
	abonnenter := k.abonnenter
	k.mu.RUnlock()
	for _, a := range abonnenter {
		a(ctx, melding)
	}
	k.mu.Lock()
	if k.taOpp {
		k.publiserte = append(k.publiserte, melding)
	}
	k.mu.Unlock()
	return nil
}

// TaOpp starts recording published messages, for tests.
func (k *Kanal) TaOpp() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.taOpp = true
}

// Publiserte returns the recorded messages.
func (k *Kanal) Publiserte() [][]byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ut := make([][]byte, len(k.publiserte))
	copy(ut, k.publiserte)
	return ut
}

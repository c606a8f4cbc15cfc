package server

import (
	"time"

	"saksflyt/internal/oppgave"
	"saksflyt/internal/repo"
	"saksflyt/internal/sak"
)

// Request payloads

type UtsettRequest struct {
	UtsattTil string `json:"utsattTil" format:"date"`
}

type NotatRequest struct {
	Tekst string `json:"tekst"`
}

type BesvarStegRequest struct {
	Verdi any `json:"verdi"`
}

// Responses

type NotatResponse struct {
	Id        string `json:"id"`
	Tekst     string `json:"tekst"`
	SkrevetAv string `json:"skrevetAv"`
	Opprettet string `json:"opprettet" format:"date-time"`
}

type OppgaveResponse struct {
	Id            string          `json:"id"`
	BehandlingId  string          `json:"behandlingId"`
	Ident         string          `json:"ident"`
	Tilstand      string          `json:"tilstand"`
	Saksbehandler *string         `json:"saksbehandler,omitempty"`
	Opprettet     string          `json:"opprettet" format:"date-time"`
	Endret        string          `json:"endret" format:"date-time"`
	UtsattTil     *string         `json:"utsattTil,omitempty" format:"date"`
	Notater       []NotatResponse `json:"notater,omitempty"`
}

type StegResponse struct {
	Id         string   `json:"id"`
	Vilkaar    bool     `json:"vilkår"`
	Verditype  string   `json:"verditype"`
	Besvart    bool     `json:"besvart"`
	Svar       any      `json:"svar,omitempty"`
	AvhengerAv []string `json:"avhengerAv,omitempty"`
}

type BehandlingResponse struct {
	Id        string         `json:"id"`
	Ident     string         `json:"ident"`
	Opprettet string         `json:"opprettet" format:"date-time"`
	Ferdig    bool           `json:"ferdig"`
	Utfall    *bool          `json:"utfall,omitempty"`
	Steg      []StegResponse `json:"steg"`
	NesteSteg []string       `json:"nesteSteg,omitempty"`
}

type HenvendelseResponse struct {
	Id            string  `json:"id"`
	Ident         string  `json:"ident"`
	Tekst         string  `json:"tekst"`
	Tilstand      string  `json:"tilstand"`
	Saksbehandler *string `json:"saksbehandler,omitempty"`
	Mottatt       string  `json:"mottatt" format:"date-time"`
}

func oppgaveResponse(o *oppgave.Oppgave) OppgaveResponse {
	resp := OppgaveResponse{
		Id:            o.Id.String(),
		BehandlingId:  o.BehandlingId.String(),
		Ident:         o.Ident,
		Tilstand:      string(o.Tilstand),
		Saksbehandler: o.Saksbehandler,
		Opprettet:     o.Opprettet.UTC().Format(time.RFC3339),
		Endret:        o.Endret.UTC().Format(time.RFC3339),
	}
	if o.UtsattTil != nil {
		frist := o.UtsattTil.Format("2006-01-02")
		resp.UtsattTil = &frist
	}
	for _, n := range o.Notater {
		resp.Notater = append(resp.Notater, NotatResponse{
			Id:        n.Id.String(),
			Tekst:     n.Tekst,
			SkrevetAv: n.SkrevetAv,
			Opprettet: n.Opprettet.UTC().Format(time.RFC3339),
		})
	}
	return resp
}

func mapOppgaver(oppgaver []*oppgave.Oppgave) []OppgaveResponse {
	res := make([]OppgaveResponse, 0, len(oppgaver))
	for _, o := range oppgaver {
		res = append(res, oppgaveResponse(o))
	}
	return res
}

func behandlingResponse(b *sak.Behandling) BehandlingResponse {
	resp := BehandlingResponse{
		Id:        b.Id.String(),
		Ident:     b.Ident,
		Opprettet: b.Opprettet.UTC().Format(time.RFC3339),
		Ferdig:    b.ErFerdig(),
	}
	if utfall, err := b.Utfall(); err == nil {
		resp.Utfall = &utfall
	}
	for _, s := range b.Steg() {
		_, vilkaar := s.(*sak.Vilkaar)
		steg := StegResponse{
			Id:        s.Id(),
			Vilkaar:   vilkaar,
			Verditype: string(s.Verditype()),
			Besvart:   s.Besvart(),
		}
		if s.Besvart() {
			steg.Svar = s.Svar()
		}
		for _, avh := range s.AvhengerAv() {
			steg.AvhengerAv = append(steg.AvhengerAv, avh.Id())
		}
		resp.Steg = append(resp.Steg, steg)
	}
	for _, s := range b.NesteSteg() {
		resp.NesteSteg = append(resp.NesteSteg, s.Id())
	}
	return resp
}

func henvendelseResponse(h repo.Henvendelse) HenvendelseResponse {
	return HenvendelseResponse{
		Id:            h.Id.String(),
		Ident:         h.Ident,
		Tekst:         h.Tekst,
		Tilstand:      h.Tilstand,
		Saksbehandler: h.Saksbehandler,
		Mottatt:       h.Mottatt.UTC().Format(time.RFC3339),
	}
}

func mapHenvendelser(henvendelser []repo.Henvendelse) []HenvendelseResponse {
	res := make([]HenvendelseResponse, 0, len(henvendelser))
	for _, h := range henvendelser {
		res = append(res, henvendelseResponse(h))
	}
	return res
}

// Package server exposes the saksbehandler-facing HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"saksflyt/internal/klient"
	"saksflyt/internal/mediator"
	"saksflyt/internal/oppgave"
	"saksflyt/internal/repo"
	"saksflyt/internal/sak"
)

// Config for the HTTP API handler.
type Config struct {
	Mediator *mediator.Mediator
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"conflict"`
	Message string         `json:"message" example:"oppgaven er allerede tildelt Z999999"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the saksflyt API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Saksflyt API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerOppgaver(group, cfg.Mediator)
	registerBehandlinger(group, cfg.Mediator)
	registerHenvendelser(group, cfg.Mediator)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ulovlig oppgave.UlovligTilstandsendring
	if errors.As(err, &ulovlig) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{
			"fra": string(ulovlig.Fra), "til": string(ulovlig.Til),
		})
	}
	var tildelt oppgave.AlleredeTildelt
	if errors.As(err, &tildelt) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"tildelt": tildelt.Av})
	}
	var besvart sak.AlleredeBesvart
	if errors.As(err, &besvart) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"stegId": besvart.StegId})
	}
	if errors.Is(err, oppgave.ErrIkkeEier) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	if errors.Is(err, sak.ErrUfullstendig) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	var nedstroems *klient.NedstroemsFeil
	if errors.As(err, &nedstroems) {
		return newAPIError(http.StatusBadGateway, "downstream_error", err.Error(), map[string]any{"tjeneste": nedstroems.Tjeneste})
	}
	var frist oppgave.UgyldigFrist
	var typefeil sak.TypeFeil
	var ukjent sak.UkjentSteg
	switch {
	case errors.As(err, &frist), errors.As(err, &typefeil),
		errors.Is(err, oppgave.ErrTomtNotat), errors.As(err, &ukjent):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadGateway:
		return "downstream_error"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func parseId(raw string) (uuid.UUID, huma.StatusError) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid id", nil)
	}
	return id, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type OppgavePath struct {
	OppgaveID string `path:"oppgave_id"`
}

func registerOppgaver(api huma.API, m *mediator.Mediator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-oppgaver",
		Method:      http.MethodGet,
		Path:        "/oppgaver",
		Summary:     "List oppgaver",
	}, func(ctx context.Context, input *struct {
		Tilstand string `query:"tilstand" enum:",OPPRETTET,KLAR_TIL_BEHANDLING,UNDER_BEHANDLING,PAA_VENT,GODKJENT,AVBRUTT,SENDT" required:"false"`
		Ident    string `query:"ident" required:"false"`
	}) (*struct {
		Body []OppgaveResponse `json:"body"`
	}, error) {
		if _, authErr := saksbehandlerFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		filter := repo.OppgaveFilter{Ident: input.Ident}
		if input.Tilstand != "" {
			filter.Tilstander = []oppgave.Tilstand{oppgave.Tilstand(input.Tilstand)}
		}
		oppgaver, err := m.Repo.ListOppgaver(ctx, filter)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OppgaveResponse `json:"body"`
		}{Body: mapOppgaver(oppgaver)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-oppgave",
		Method:      http.MethodGet,
		Path:        "/oppgaver/{oppgave_id}",
		Summary:     "Get oppgave",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *OppgavePath) (*struct {
		Body OppgaveResponse `json:"body"`
	}, error) {
		if _, authErr := saksbehandlerFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		id, badId := parseId(input.OppgaveID)
		if badId != nil {
			return nil, badId
		}
		o, err := m.HentOppgave(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OppgaveResponse `json:"body"`
		}{Body: oppgaveResponse(o)}, nil
	})

	registerOppgaveHandling(api, m, "tildel-oppgave", "tildel", "Claim oppgave",
		func(ctx context.Context, id uuid.UUID, sb oppgave.Saksbehandler) (*oppgave.Oppgave, error) {
			return m.TildelOppgave(ctx, id, sb)
		})
	registerOppgaveHandling(api, m, "legg-tilbake-oppgave", "legg-tilbake", "Release oppgave",
		func(ctx context.Context, id uuid.UUID, sb oppgave.Saksbehandler) (*oppgave.Oppgave, error) {
			return m.LeggTilbakeOppgave(ctx, id, sb)
		})
	registerOppgaveHandling(api, m, "godkjenn-oppgave", "godkjenn", "Approve oppgave",
		func(ctx context.Context, id uuid.UUID, sb oppgave.Saksbehandler) (*oppgave.Oppgave, error) {
			return m.GodkjennOppgave(ctx, id, sb)
		})
	registerOppgaveHandling(api, m, "avslaa-oppgave", "avslaa", "Reject oppgave",
		func(ctx context.Context, id uuid.UUID, sb oppgave.Saksbehandler) (*oppgave.Oppgave, error) {
			return m.AvslaaOppgave(ctx, id, sb)
		})

	huma.Register(api, huma.Operation{
		OperationID: "utsett-oppgave",
		Method:      http.MethodPut,
		Path:        "/oppgaver/{oppgave_id}/utsett",
		Summary:     "Park oppgave until a date",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OppgavePath
		Body UtsettRequest `json:"body"`
	}) (*struct {
		Body OppgaveResponse `json:"body"`
	}, error) {
		sb, authErr := saksbehandlerFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, badId := parseId(input.OppgaveID)
		if badId != nil {
			return nil, badId
		}
		utsattTil, err := time.Parse("2006-01-02", input.Body.UtsattTil)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "utsattTil must be a date on the form YYYY-MM-DD", nil)
		}
		o, err := m.SettOppgavePaaVent(ctx, id, sb, utsattTil)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OppgaveResponse `json:"body"`
		}{Body: oppgaveResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "notat-oppgave",
		Method:        http.MethodPost,
		Path:          "/oppgaver/{oppgave_id}/notat",
		Summary:       "Add a note",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OppgavePath
		Body NotatRequest `json:"body"`
	}) (*struct {
		Body OppgaveResponse `json:"body"`
	}, error) {
		sb, authErr := saksbehandlerFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, badId := parseId(input.OppgaveID)
		if badId != nil {
			return nil, badId
		}
		o, err := m.LeggTilNotat(ctx, id, sb, input.Body.Tekst)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OppgaveResponse `json:"body"`
		}{Body: oppgaveResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "besvar-steg",
		Method:      http.MethodPut,
		Path:        "/oppgaver/{oppgave_id}/steg/{steg_id}",
		Summary:     "Answer a behandling step",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		OppgavePath
		StegID string            `path:"steg_id"`
		Body   BesvarStegRequest `json:"body"`
	}) (*struct {
		Body BehandlingResponse `json:"body"`
	}, error) {
		sb, authErr := saksbehandlerFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, badId := parseId(input.OppgaveID)
		if badId != nil {
			return nil, badId
		}
		b, err := m.BesvarSteg(ctx, id, sb, input.StegID, input.Body.Verdi)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BehandlingResponse `json:"body"`
		}{Body: behandlingResponse(b)}, nil
	})
}

// registerOppgaveHandling covers the bodyless lifecycle transitions; they
// share shape and error surface.
func registerOppgaveHandling(api huma.API, m *mediator.Mediator, opID, action, summary string, utfoer func(context.Context, uuid.UUID, oppgave.Saksbehandler) (*oppgave.Oppgave, error)) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPut,
		Path:        "/oppgaver/{oppgave_id}/" + action,
		Summary:     summary,
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *OppgavePath) (*struct {
		Body OppgaveResponse `json:"body"`
	}, error) {
		sb, authErr := saksbehandlerFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, badId := parseId(input.OppgaveID)
		if badId != nil {
			return nil, badId
		}
		o, err := utfoer(ctx, id, sb)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OppgaveResponse `json:"body"`
		}{Body: oppgaveResponse(o)}, nil
	})
}

func registerBehandlinger(api huma.API, m *mediator.Mediator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-behandlinger",
		Method:      http.MethodGet,
		Path:        "/behandlinger",
		Summary:     "List behandlinger",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []repo.BehandlingInfo `json:"body"`
	}, error) {
		if _, authErr := saksbehandlerFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := m.Repo.HentBehandlinger(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []repo.BehandlingInfo `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-behandling",
		Method:      http.MethodGet,
		Path:        "/behandlinger/{behandling_id}",
		Summary:     "Get behandling",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BehandlingID string `path:"behandling_id"`
	}) (*struct {
		Body BehandlingResponse `json:"body"`
	}, error) {
		if _, authErr := saksbehandlerFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		id, badId := parseId(input.BehandlingID)
		if badId != nil {
			return nil, badId
		}
		b, err := m.Repo.HentBehandling(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BehandlingResponse `json:"body"`
		}{Body: behandlingResponse(b)}, nil
	})
}

func registerHenvendelser(api huma.API, m *mediator.Mediator) {
	huma.Register(api, huma.Operation{
		OperationID: "list-henvendelser",
		Method:      http.MethodGet,
		Path:        "/henvendelser",
		Summary:     "List henvendelser",
	}, func(ctx context.Context, input *struct {
		Tilstand string `query:"tilstand" enum:",MOTTATT,UNDER_ARBEID,FERDIG" required:"false"`
	}) (*struct {
		Body []HenvendelseResponse `json:"body"`
	}, error) {
		if _, authErr := saksbehandlerFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := m.Repo.ListHenvendelser(ctx, input.Tilstand)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []HenvendelseResponse `json:"body"`
		}{Body: mapHenvendelser(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tildel-henvendelse",
		Method:      http.MethodPut,
		Path:        "/henvendelser/{henvendelse_id}/tildel",
		Summary:     "Claim henvendelse",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		HenvendelseID string `path:"henvendelse_id"`
	}) (*struct {
		Body HenvendelseResponse `json:"body"`
	}, error) {
		sb, authErr := saksbehandlerFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, badId := parseId(input.HenvendelseID)
		if badId != nil {
			return nil, badId
		}
		h, err := m.Repo.TildelHenvendelse(ctx, id, sb.NavIdent)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, handleError(err)
			}
			return nil, newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
		}
		return &struct {
			Body HenvendelseResponse `json:"body"`
		}{Body: henvendelseResponse(h)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ferdigstill-henvendelse",
		Method:      http.MethodPut,
		Path:        "/henvendelser/{henvendelse_id}/ferdigstill",
		Summary:     "Close henvendelse",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		HenvendelseID string `path:"henvendelse_id"`
	}) (*struct {
		Body HenvendelseResponse `json:"body"`
	}, error) {
		if _, authErr := saksbehandlerFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		id, badId := parseId(input.HenvendelseID)
		if badId != nil {
			return nil, badId
		}
		h, err := m.Repo.FerdigstillHenvendelse(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, handleError(err)
			}
			return nil, newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
		}
		return &struct {
			Body HenvendelseResponse `json:"body"`
		}{Body: henvendelseResponse(h)}, nil
	})
}

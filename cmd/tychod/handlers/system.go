package handlers

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/helxplatform/appstore/pkg/actions"
	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/buildtime"
	"github.com/labstack/echo/v4"
)

// Actions serves the system API. *actions.Resources is one.
type Actions interface {
	Start(ctx context.Context, body []byte) types.Envelope
	Status(ctx context.Context, body []byte) types.Envelope
	Delete(ctx context.Context, body []byte) types.Envelope
	Modify(ctx context.Context, body []byte) types.Envelope
}

var _ Actions = &actions.Resources{}

// Current is the Actions in service.
//
// Store replaces it, for example after the config file is updated.
// Requests in flight keep the Actions they started with.
type Current struct {
	p atomic.Pointer[Actions]
}

var _ Actions = &Current{}

func NewCurrent(a Actions) *Current {
	c := &Current{}
	c.Store(a)
	return c
}

func (c *Current) Store(a Actions) {
	c.p.Store(&a)
}

func (c *Current) Load() Actions {
	return *c.p.Load()
}

func (c *Current) Start(ctx context.Context, body []byte) types.Envelope {
	return c.Load().Start(ctx, body)
}

func (c *Current) Status(ctx context.Context, body []byte) types.Envelope {
	return c.Load().Status(ctx, body)
}

func (c *Current) Delete(ctx context.Context, body []byte) types.Envelope {
	return c.Load().Delete(ctx, body)
}

func (c *Current) Modify(ctx context.Context, body []byte) types.Envelope {
	return c.Load().Modify(ctx, body)
}

// SystemHandler serves POST /system/{verb}.
//
// Outcomes of actions are always envelopes with status 200,
// failed or not. Only unreadable requests are answered with 400.
func SystemHandler(a Actions, verb string) (echo.HandlerFunc, error) {
	var act func(context.Context, []byte) types.Envelope
	switch verb {
	case actions.VerbStart:
		act = a.Start
	case actions.VerbStatus:
		act = a.Status
	case actions.VerbDelete:
		act = a.Delete
	case actions.VerbModify:
		act = a.Modify
	default:
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "unknown verb: "+verb)
	}

	return func(c echo.Context) error {
		req := c.Request()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can not read request body").SetInternal(err)
		}
		return c.JSON(http.StatusOK, act(req.Context(), body))
	}, nil
}

// Register adds POST /system/{start,status,delete,modify} to e.
func Register(e *echo.Echo, prefix string, a Actions) error {
	for _, verb := range []string{
		actions.VerbStart, actions.VerbStatus, actions.VerbDelete, actions.VerbModify,
	} {
		h, err := SystemHandler(a, verb)
		if err != nil {
			return err
		}
		e.POST(prefix+"/"+verb, h)
	}
	return nil
}

// HealthHandler serves GET /healthz.
func HealthHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": buildtime.VersionString(),
		})
	}
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/helxplatform/appstore/pkg/actions"
	"github.com/helxplatform/appstore/pkg/api/types"
	xe "github.com/helxplatform/appstore/pkg/errors"
)

// Transport carries requests of verbs (start, status, delete, modify) to tycho,
// and returns the response envelope as JSON.
type Transport interface {
	Request(ctx context.Context, verb string, body []byte) ([]byte, error)
}

// Local calls actions in this process.
type Local struct {
	resources *actions.Resources
}

// type check
var _ Transport = &Local{}

func NewLocal(r *actions.Resources) *Local {
	return &Local{resources: r}
}

func (l *Local) Request(ctx context.Context, verb string, body []byte) ([]byte, error) {
	var env types.Envelope
	switch verb {
	case actions.VerbStart:
		env = l.resources.Start(ctx, body)
	case actions.VerbStatus:
		env = l.resources.Status(ctx, body)
	case actions.VerbDelete:
		env = l.resources.Delete(ctx, body)
	case actions.VerbModify:
		env = l.resources.Modify(ctx, body)
	default:
		return nil, fmt.Errorf("unknown verb: %s", verb)
	}
	return json.Marshal(env)
}

// HTTP posts requests to a tycho API server.
type HTTP struct {
	httpclient *http.Client
	url        string
}

// type check
var _ Transport = &HTTP{}

// NewHTTP creates a Transport for the API server at url (like "http://localhost:5000").
func NewHTTP(url string, hc *http.Client) *HTTP {
	if hc == nil {
		hc = new(http.Client)
	}
	return &HTTP{httpclient: hc, url: strings.TrimSuffix(url, "/")}
}

// URL is where requests go, like "http://localhost:5000/system".
func (h *HTTP) URL() string {
	return h.url + "/system"
}

func (h *HTTP) Request(ctx context.Context, verb string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL()+"/"+verb, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, xe.New(fmt.Sprintf("Error: HTTP status %d received from service: %s", resp.StatusCode, verb))
	}
	return io.ReadAll(resp.Body)
}

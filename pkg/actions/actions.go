// Package actions handles requests of the system API.
//
// Each action validates a JSON request against api-schema.yaml, dispatches it,
// and wraps the outcome into an Envelope. Failures never escape as errors:
// they become envelopes with status "error".
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helxplatform/appstore/pkg/api/types"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/metrics"
	"github.com/labstack/gommon/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tycho runs systems. *tycho.Tycho is one.
type Tycho interface {
	Start(ctx context.Context, req types.StartRequest) (*types.StartResult, error)
	Status(ctx context.Context, req types.StatusRequest) ([]types.ServiceStatus, error)
	Delete(ctx context.Context, req types.DeleteRequest) error
	Modify(ctx context.Context, req types.ModifyRequest) (*types.ModifyResult, error)
}

// verbs
const (
	VerbStart  = "start"
	VerbStatus = "status"
	VerbDelete = "delete"
	VerbModify = "modify"
)

type Resources struct {
	tycho   Tycho
	schemas map[string]*jsonschema.Schema
	metrics *metrics.Metrics
	log     *log.Logger
}

type Option func(*Resources) *Resources

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resources) *Resources {
		r.metrics = m
		return r
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Resources) *Resources {
		r.log = l
		return r
	}
}

func New(t Tycho, opts ...Option) (*Resources, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	r := &Resources{tycho: t, schemas: schemas, log: log.New("actions")}
	for _, o := range opts {
		r = o(r)
	}
	return r, nil
}

// decode validates body against the schema component, and unmarshals it into dest.
func (r *Resources) decode(component string, body []byte, dest any) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return err
	}
	if err := r.schemas[component].Validate(doc); err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

func (r *Resources) success(verb string, begin time.Time, message string, result any) types.Envelope {
	r.observe(verb, begin, nil)
	return types.Envelope{Status: types.StatusSuccess, Result: result, Message: message}
}

// failure makes an error envelope.
//
// The message of the envelope is fixed per action, and the result tells what happened.
// Details of err go to logs only.
func (r *Resources) failure(verb string, begin time.Time, message string, err error) types.Envelope {
	r.observe(verb, begin, err)

	reason := err.Error()
	if te, ok := xe.AsTycho(err); ok {
		reason = te.Message()
		r.log.Errorf("%s: %s (details: %s)", message, reason, te.Details())
	} else {
		r.log.Errorf("%s: %+v", message, err)
	}
	return types.Envelope{
		Status:  types.StatusError,
		Result:  types.ErrorResult{Error: reason},
		Message: message,
	}
}

func (r *Resources) observe(verb string, begin time.Time, err error) {
	if r.metrics != nil {
		r.metrics.Observe(verb, begin, err)
	}
}

// Start parses a system and launches it.
func (r *Resources) Start(ctx context.Context, body []byte) types.Envelope {
	begin := time.Now()
	req := types.StartRequest{}
	if err := r.decode(componentSystem, body, &req); err != nil {
		return r.failure(VerbStart, begin, "Failed to create system.", err)
	}
	r.log.Infof("start-system: %s", req.Name)

	result, err := r.tycho.Start(ctx, req)
	if err != nil {
		return r.failure(VerbStart, begin, "Failed to create system.", err)
	}
	return r.success(VerbStart, begin, fmt.Sprintf("Started system %s", result.Name), result)
}

// Status lists systems.
func (r *Resources) Status(ctx context.Context, body []byte) types.Envelope {
	begin := time.Now()
	req := types.StatusRequest{}
	if err := r.decode(componentStatusRequest, body, &req); err != nil {
		return r.failure(VerbStatus, begin, "Failed to get system status.", err)
	}

	rows, err := r.tycho.Status(ctx, req)
	if err != nil {
		return r.failure(VerbStatus, begin, "Failed to get system status.", err)
	}
	return r.success(VerbStatus, begin, fmt.Sprintf("Get status for system %s", req.Name), rows)
}

// Delete removes a system.
func (r *Resources) Delete(ctx context.Context, body []byte) types.Envelope {
	begin := time.Now()
	req := types.DeleteRequest{}
	if err := r.decode(componentDeleteRequest, body, &req); err != nil {
		return r.failure(VerbDelete, begin, fmt.Sprintf("Failed to delete system %s.", req.Name), err)
	}

	if err := r.tycho.Delete(ctx, req); err != nil {
		return r.failure(VerbDelete, begin, fmt.Sprintf("Failed to delete system %s.", req.Name), err)
	}
	return r.success(VerbDelete, begin, fmt.Sprintf("Deleted system %s", req.Name), map[string]any{})
}

// Modify patches labels and resources of a system.
func (r *Resources) Modify(ctx context.Context, body []byte) types.Envelope {
	begin := time.Now()
	req := types.ModifyRequest{}
	if err := r.decode(componentModifyRequest, body, &req); err != nil {
		return r.failure(VerbModify, begin, "Failed to modify system status.", err)
	}

	result, err := r.tycho.Modify(ctx, req)
	if err != nil {
		return r.failure(VerbModify, begin, "Failed to modify system status.", err)
	}
	return r.success(VerbModify, begin, "Modified the system", result)
}

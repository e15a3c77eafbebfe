// Package client talks to tycho, in this process or over HTTP.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/helxplatform/appstore/pkg/actions"
	"github.com/helxplatform/appstore/pkg/api/types"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"github.com/helxplatform/appstore/pkg/templates"
	"github.com/labstack/gommon/log"
)

// DefaultUsername is the principal of systems started from the command line.
const DefaultUsername = "renci"

type Client struct {
	transport Transport
	username  string
	log       *log.Logger
}

type Option func(*Client) *Client

func WithLogger(l *log.Logger) Option {
	return func(c *Client) *Client {
		c.log = l
		return c
	}
}

// WithUsername sets the principal of Up and List.
func WithUsername(username string) Option {
	return func(c *Client) *Client {
		c.username = username
		return c
	}
}

func New(t Transport, opts ...Option) *Client {
	c := &Client{transport: t, username: DefaultUsername, log: log.New("client")}
	for _, o := range opts {
		c = o(c)
	}
	return c
}

func (c *Client) request(ctx context.Context, verb string, req any) (envelope, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return envelope{}, err
	}
	c.log.Debugf("%s: %s", verb, body)

	raw, err := c.transport.Request(ctx, verb, body)
	if err != nil {
		return envelope{}, xe.WrapWithNote("requesting "+verb, err)
	}
	c.log.Debugf("%s: received %s", verb, raw)

	env := envelope{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, xe.NewTycho("malformed response of "+verb, err)
	}
	return env, nil
}

// Start starts a system.
//
// When tycho answers with an error envelope, it returns an error of ErrTycho.
func (c *Client) Start(ctx context.Context, req types.StartRequest) (*TychoSystem, error) {
	env, err := c.request(ctx, actions.VerbStart, req)
	if err != nil {
		return nil, err
	}
	if env.Status == types.StatusError {
		c.log.Errorf("start %s: %s", req.Name, env.reason())
	}
	return systemOf(env)
}

// Status lists running systems.
//
// Error envelopes are not errors; see TychoStatus.Status.
func (c *Client) Status(ctx context.Context, req types.StatusRequest) (*TychoStatus, error) {
	env, err := c.request(ctx, actions.VerbStatus, req)
	if err != nil {
		return nil, err
	}
	return statusOf(env)
}

// Delete deletes a system and everything of it.
func (c *Client) Delete(ctx context.Context, req types.DeleteRequest) error {
	env, err := c.request(ctx, actions.VerbDelete, req)
	if err != nil {
		return err
	}
	if env.Status == types.StatusError {
		return xe.NewDelete(env.Message, xe.New(env.reason()))
	}
	return nil
}

// Modify patches labels and resources of a running system.
func (c *Client) Modify(ctx context.Context, req types.ModifyRequest) (*types.ModifyResult, error) {
	env, err := c.request(ctx, actions.VerbModify, req)
	if err != nil {
		return nil, err
	}
	if env.Status == types.StatusError {
		return nil, xe.NewModify(env.Message, xe.New(env.reason()))
	}
	result := &types.ModifyResult{}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return nil, xe.NewTycho("malformed modify result", err)
	}
	return result, nil
}

// FormatName makes name usable as a DNS label, replacing path separators.
func FormatName(name string) string {
	return strings.ReplaceAll(name, string(os.PathSeparator), "-")
}

// ParseEnv reads .env text. See templates.ParseEnv.
func ParseEnv(text string) map[string]string {
	return templates.ParseEnv(text)
}

// ServicesOf declares a service for each compose service with ports.
//
// The last port of each compose service wins. "host:container" ports expose the container port.
func ServicesOf(system map[string]any) (map[string]types.ServiceRequest, error) {
	services := map[string]types.ServiceRequest{}
	composeServices, _ := system["services"].(map[string]any)
	for name, v := range composeServices {
		container, _ := v.(map[string]any)
		ports, _ := container["ports"].([]any)
		for _, p := range ports {
			port := fmt.Sprint(p)
			if _, after, ok := strings.Cut(port, ":"); ok {
				port = after
			}
			if _, err := strconv.Atoi(port); err != nil {
				return nil, fmt.Errorf("service %s: bad port %v", name, p)
			}
			services[name] = types.ServiceRequest{Port: port}
		}
	}
	return services, nil
}

// Up starts a system from a docker-compose structure, and prints where it runs.
func (c *Client) Up(ctx context.Context, w io.Writer, name string, system map[string]any, settings string) error {
	services, err := ServicesOf(system)
	if err != nil {
		return err
	}
	principal, err := json.Marshal(map[string]string{"username": c.username})
	if err != nil {
		return err
	}

	sys, err := c.Start(ctx, types.StartRequest{
		Name:           FormatName(name),
		Principal:      string(principal),
		ServiceAccount: "default",
		Env:            ParseEnv(settings),
		System:         system,
		Services:       services,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%-30s %-35s %-15s %-7s\n", "SERVICE", "GUID", "IP_ADDRESS", "PORT")
	if len(sys.Services) != 0 {
		s := sys.Services[0]
		fmt.Fprintf(
			w, "%-30s %-35s %-15s %-7s\n",
			templates.Trunc(s.Name, 28), templates.Trunc(sys.Identifier, 33), s.IPAddress, s.Port,
		)
	}
	return nil
}

// List prints running systems of the user.
//
// With terse, it prints identifiers only.
func (c *Client) List(ctx context.Context, w io.Writer, name string, terse bool) error {
	req := types.StatusRequest{Username: c.username}
	if name != "" {
		req.Name = FormatName(name)
	}
	status, err := c.Status(ctx, req)
	if err != nil {
		return err
	}
	if status.Status == types.StatusError {
		return xe.NewTycho(status.Message, nil)
	}

	services := status.Services
	sort.SliceStable(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	switch {
	case terse:
		for _, s := range services {
			fmt.Fprintln(w, s.Identifier)
		}
	case len(services) == 0:
		fmt.Fprintln(w, "None running")
	default:
		format := "%-30s %-35s %-15s %-7s %s\n"
		fmt.Fprintf(w, format, "SYSTEM", "GUID", "IP_ADDRESS", "PORT", "CREATION_TIME")
		for _, s := range services {
			fmt.Fprintf(
				w, format,
				templates.Trunc(s.Name, 28), templates.Trunc(s.Identifier, 33),
				s.IPAddress, s.Port, s.CreationTime,
			)
		}
	}
	return nil
}

// Down deletes systems, and prints the names of deleted ones.
//
// It goes on after a failure, and returns all errors joined.
func (c *Client) Down(ctx context.Context, w io.Writer, names []string) error {
	var errs []error
	for _, name := range names {
		if err := c.Delete(ctx, types.DeleteRequest{Name: FormatName(name)}); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintln(w, name)
	}
	return errors.Join(errs...)
}

// Patch modifies a running system, logging what is requested.
func (c *Client) Patch(ctx context.Context, req types.ModifyRequest) (*types.ModifyResult, error) {
	c.log.Infof("System specifications and metadata to be modified: %+v", req)
	result, err := c.Modify(ctx, req)
	if err != nil {
		c.log.Errorf("Error in modifying system. %s", err)
		return nil, err
	}
	return result, nil
}

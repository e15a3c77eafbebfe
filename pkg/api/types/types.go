// Package types defines the JSON wire format of the system API.
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Envelope wraps every response of the system API.
type Envelope struct {
	Status  Status `json:"status"`
	Result  any    `json:"result"`
	Message string `json:"message"`
}

// ErrorResult is Envelope.Result of failed requests.
type ErrorResult struct {
	Error string `json:"error"`
}

// ServiceRequest declares a network endpoint of a container.
type ServiceRequest struct {
	// port number. In JSON, both of numbers and strings are accepted.
	Port    string   `json:"port"`
	Clients []string `json:"clients,omitempty"`
}

func (s *ServiceRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		Port    any      `json:"port"`
		Clients []string `json:"clients"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch p := raw.Port.(type) {
	case nil:
		s.Port = ""
	case float64:
		s.Port = strconv.FormatFloat(p, 'f', -1, 64)
	case string:
		s.Port = p
	default:
		return fmt.Errorf("port should be a number or a string: %v", p)
	}
	s.Clients = raw.Clients
	return nil
}

type StartRequest struct {
	Name string `json:"name"`

	// JSON text of {username, access_token, refresh_token, host}
	Principal      string                    `json:"principal"`
	ServiceAccount string                    `json:"serviceaccount,omitempty"`
	Env            map[string]string         `json:"env,omitempty"`
	System         map[string]any            `json:"system"`
	Services       map[string]ServiceRequest `json:"services,omitempty"`
}

type StatusRequest struct {
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

type DeleteRequest struct {
	Name string `json:"name"`
}

type ModifyResources struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

type ModifyRequest struct {
	GUID      string            `json:"tycho-guid"`
	Labels    map[string]string `json:"labels,omitempty"`
	Resources *ModifyResources  `json:"resources,omitempty"`

	// legacy location of resources.
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// Endpoint is where a container is reachable.
//
// In JSON, it is {"ip_address": ..., <port name>: <port number>}.
type Endpoint struct {
	IPAddress *string
	Ports     map[string]int32
}

func (e Endpoint) MarshalJSON() ([]byte, error) {
	m := map[string]any{"ip_address": e.IPAddress}
	for k, v := range e.Ports {
		m[k] = v
	}
	return json.Marshal(m)
}

func (e *Endpoint) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	e.IPAddress = nil
	e.Ports = map[string]int32{}
	for k, v := range m {
		if k == "ip_address" {
			if s, ok := v.(string); ok {
				e.IPAddress = &s
			}
			continue
		}
		switch n := v.(type) {
		case float64:
			e.Ports[k] = int32(n)
		case string:
			p, err := strconv.ParseInt(n, 10, 32)
			if err != nil {
				return fmt.Errorf("port %s: %w", k, err)
			}
			e.Ports[k] = int32(p)
		}
	}
	return nil
}

// FirstPort returns the port with the least name.
func (e Endpoint) FirstPort() (string, int32, bool) {
	names := make([]string, 0, len(e.Ports))
	for k := range e.Ports {
		names = append(names, k)
	}
	if len(names) == 0 {
		return "", 0, false
	}
	sort.Strings(names)
	return names[0], e.Ports[names[0]], true
}

type StartResult struct {
	Name       string              `json:"name"`
	SID        string              `json:"sid"`
	Containers map[string]Endpoint `json:"containers"`
	ConnString string              `json:"conn_string"`
}

// ServiceStatus is a row of status result.
type ServiceStatus struct {
	Name         string `json:"name"`
	AppID        string `json:"app_id"`
	SID          string `json:"sid"`
	IPAddress    string `json:"ip_address"`
	Port         string `json:"port"`
	CreationTime string `json:"creation_time"`
	Username     string `json:"username"`

	// resource limits per container, as reported by the backplane.
	Utilization   map[string]map[string]string `json:"utilization"`
	WorkspaceName string                       `json:"workspace_name"`
	IsReady       bool                         `json:"is_ready"`
}

type ModifyResult struct {
	Patches []map[string]any `json:"patches"`
}

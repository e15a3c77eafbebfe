package model

import (
	"fmt"
	"strings"
)

type ProbeKind string

const (
	ProbeExec ProbeKind = "exec"
	ProbeHTTP ProbeKind = "http"
	ProbeTCP  ProbeKind = "tcp"
)

// Probe is a liveness or readiness check of a container.
type Probe struct {
	Kind ProbeKind

	// Spec is the probe in the shape of kubernetes' Probe.
	Spec map[string]any
}

// probeFrom reads `ext.kube.livenessProbe` (or readinessProbe).
//
// nil and "none" mean "no probe".
//
// Accepted keys are `cmd`, `delay`, `period`, `threshold` and
// either of `httpGet` (`path`, `port`, `httpHeaders`) or `tcpSocket` (`port`).
func probeFrom(v any) (*Probe, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(p) == "none" {
			return nil, nil
		}
		return nil, fmt.Errorf(`probe should be a mapping or "none": %s`, p)
	case map[string]any:
		spec := map[string]any{}
		for from, to := range map[string]string{
			"delay":     "initialDelaySeconds",
			"period":    "periodSeconds",
			"threshold": "failureThreshold",
		} {
			if n, ok := p[from]; ok && n != nil {
				spec[to] = n
			}
		}

		if h, ok := p["httpGet"].(map[string]any); ok {
			get := map[string]any{"path": "/", "port": 80}
			if path, ok := h["path"]; ok && path != nil {
				get["path"] = path
			}
			if port, ok := h["port"]; ok && port != nil {
				get["port"] = port
			}
			if headers, ok := h["httpHeaders"]; ok && headers != nil {
				get["httpHeaders"] = headers
			}
			spec["httpGet"] = get
			return &Probe{Kind: ProbeHTTP, Spec: spec}, nil
		}

		if t, ok := p["tcpSocket"].(map[string]any); ok {
			port, ok := t["port"]
			if !ok || port == nil {
				return nil, fmt.Errorf("tcpSocket probe requires port")
			}
			spec["tcpSocket"] = map[string]any{"port": port}
			return &Probe{Kind: ProbeTCP, Spec: spec}, nil
		}

		cmd, err := stringList(p["cmd"])
		if err != nil {
			return nil, fmt.Errorf("probe cmd: %w", err)
		}
		if len(cmd) == 0 {
			return nil, fmt.Errorf("probe requires one of cmd, httpGet or tcpSocket")
		}
		spec["exec"] = map[string]any{"command": cmd}
		return &Probe{Kind: ProbeExec, Spec: spec}, nil
	default:
		return nil, fmt.Errorf("probe should be a mapping: %v", v)
	}
}

// stringList reads a string (split by whitespace) or a list of scalars.
func stringList(v any) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Fields(l), nil
	case []any:
		ret := make([]string, 0, len(l))
		for _, item := range l {
			s, err := scalar(item)
			if err != nil {
				return nil, err
			}
			ret = append(ret, s)
		}
		return ret, nil
	case []string:
		return l, nil
	default:
		return nil, fmt.Errorf("should be a string or a list: %v", v)
	}
}

package model

import (
	"fmt"
	"strconv"
)

// Limits is an amount of resources for a container.
//
// Empty fields are "not specified".
type Limits struct {
	CPUs             string
	GPUs             string
	Memory           string
	EphemeralStorage string
}

func (l Limits) IsZero() bool {
	return l == Limits{}
}

// ResourceList returns l as kubernetes resource names.
//
// gpuResourceName is the resource name for GPUs, like "nvidia.com/gpu".
func (l Limits) ResourceList(gpuResourceName string) map[string]string {
	r := map[string]string{}
	if l.CPUs != "" {
		r["cpu"] = l.CPUs
	}
	if l.Memory != "" {
		r["memory"] = l.Memory
	}
	if l.GPUs != "" && gpuResourceName != "" {
		r[gpuResourceName] = l.GPUs
	}
	if l.EphemeralStorage != "" {
		r["ephemeral-storage"] = l.EphemeralStorage
	}
	return r
}

// limitsFrom reads `deploy.resources.limits` (or `.reservations`) of compose spec.
//
// The value may be a mapping, or a list of mappings (only the first counts).
func limitsFrom(v any) (Limits, error) {
	switch l := v.(type) {
	case nil:
		return Limits{}, nil
	case []any:
		if len(l) == 0 {
			return Limits{}, nil
		}
		return limitsFrom(l[0])
	case map[string]any:
		ret := Limits{}
		for k, dest := range map[string]*string{
			"cpus":             &ret.CPUs,
			"gpus":             &ret.GPUs,
			"memory":           &ret.Memory,
			"ephemeralStorage": &ret.EphemeralStorage,
		} {
			s, err := scalar(l[k])
			if err != nil {
				return Limits{}, fmt.Errorf("resources.%s: %w", k, err)
			}
			*dest = s
		}
		return ret, nil
	default:
		return Limits{}, fmt.Errorf("resources should be a mapping: %v", v)
	}
}

// scalar stringifies YAML scalars. nil becomes "".
func scalar(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case uint64:
		return strconv.FormatUint(s, 10), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	default:
		return "", fmt.Errorf("not a scalar: %v", v)
	}
}

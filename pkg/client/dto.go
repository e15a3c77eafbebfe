package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/helxplatform/appstore/pkg/api/types"
	xe "github.com/helxplatform/appstore/pkg/errors"
	"k8s.io/apimachinery/pkg/api/resource"
)

// TychoService is an endpoint of a running system.
type TychoService struct {
	Name         string
	AppID        string
	IPAddress    string
	Port         string
	Identifier   string
	CreationTime string
	Username     string

	// resource limits per container
	Utilization map[string]map[string]string

	// Utilization summed over containers
	Total Utilization

	ConnString    string
	WorkspaceName string
	IsReady       bool
}

// Utilization is the total of resource limits of a service.
type Utilization struct {
	// millicores
	CPU int64

	// GPUs times 1000, like CPU
	GPU int64

	// in GB (10^9 bytes), formatted as decimal.
	Memory           string
	EphemeralStorage string
}

// TotalOf sums resource limits per container up.
//
// Binary suffixes of memory are read as decimal ones ("2Gi" is 2GB).
// Unparsable values are ignored.
func TotalOf(utilization map[string]map[string]string) Utilization {
	var cpu, gpu int64
	var memory, ephemeral int64
	for _, limits := range utilization {
		if v, ok := limits["cpu"]; ok {
			if q, err := resource.ParseQuantity(v); err == nil {
				cpu += q.MilliValue()
			}
		}
		for k, v := range limits {
			if !strings.Contains(k, "nvidia") {
				continue
			}
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				gpu += n * 1000
			}
		}
		memory += decimalBytes(limits["memory"])
		ephemeral += decimalBytes(limits["ephemeral-storage"])
	}
	return Utilization{
		CPU:              cpu,
		GPU:              gpu,
		Memory:           gigabytes(memory),
		EphemeralStorage: gigabytes(ephemeral),
	}
}

func decimalBytes(v string) int64 {
	if v == "" {
		return 0
	}
	q, err := resource.ParseQuantity(strings.ReplaceAll(v, "i", ""))
	if err != nil {
		return 0
	}
	return q.Value()
}

func gigabytes(b int64) string {
	return strconv.FormatFloat(float64(b)/1e9, 'f', -1, 64)
}

func serviceOf(s types.ServiceStatus) TychoService {
	return TychoService{
		Name:          s.Name,
		AppID:         s.AppID,
		IPAddress:     s.IPAddress,
		Port:          s.Port,
		Identifier:    s.SID,
		CreationTime:  s.CreationTime,
		Username:      s.Username,
		Utilization:   s.Utilization,
		Total:         TotalOf(s.Utilization),
		WorkspaceName: s.WorkspaceName,
		IsReady:       s.IsReady,
	}
}

// envelope is types.Envelope before its result is known.
type envelope struct {
	Status  types.Status    `json:"status"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

// reason tells what went wrong in an error envelope.
func (e envelope) reason() string {
	r := types.ErrorResult{}
	if err := json.Unmarshal(e.Result, &r); err == nil && r.Error != "" {
		return r.Error
	}
	return string(e.Result)
}

// TychoStatus is a response of status requests.
type TychoStatus struct {
	Status   types.Status
	Services []TychoService
	Message  string
}

func statusOf(e envelope) (*TychoStatus, error) {
	s := &TychoStatus{Status: e.Status, Message: e.Message}
	if e.Status != types.StatusSuccess {
		return s, nil
	}
	rows := []types.ServiceStatus{}
	if len(e.Result) != 0 && string(e.Result) != "null" {
		if err := json.Unmarshal(e.Result, &rows); err != nil {
			return nil, xe.NewTycho("malformed status result", err)
		}
	}
	for _, r := range rows {
		s.Services = append(s.Services, serviceOf(r))
	}
	return s, nil
}

// TychoSystem is a system which has been started.
type TychoSystem struct {
	Status     types.Status
	Name       string
	Identifier string

	// one per container, ordered by name
	Services   []TychoService
	ConnString string
	Message    string
}

// systemOf reads a response of start requests.
//
// An error envelope is an error of kind ErrTycho.
func systemOf(e envelope) (*TychoSystem, error) {
	if e.Status == types.StatusError {
		return nil, xe.NewTycho(
			fmt.Sprintf("status:%s result:%s message:%s", e.Status, e.reason(), e.Message),
			nil,
		)
	}
	result := types.StartResult{}
	if err := json.Unmarshal(e.Result, &result); err != nil {
		return nil, xe.NewTycho("malformed start result", err)
	}

	sys := &TychoSystem{
		Status:     e.Status,
		Name:       result.Name,
		Identifier: result.SID,
		ConnString: result.ConnString,
		Message:    e.Message,
	}
	names := make([]string, 0, len(result.Containers))
	for name := range result.Containers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ep := result.Containers[name]
		svc := TychoService{Name: name, AppID: result.Name, Identifier: result.SID}
		if ep.IPAddress != nil {
			svc.IPAddress = *ep.IPAddress
		}
		if _, port, ok := ep.FirstPort(); ok {
			svc.Port = strconv.Itoa(int(port))
		}
		sys.Services = append(sys.Services, svc)
	}
	return sys, nil
}

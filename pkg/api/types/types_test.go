package types_test

import (
	"encoding/json"
	"testing"

	"github.com/helxplatform/appstore/pkg/api/types"
	"github.com/helxplatform/appstore/pkg/cmp"
)

func TestEndpoint(t *testing.T) {
	t.Run("it is marshalled as ip_address and named ports side by side", func(t *testing.T) {
		ip := "10.0.0.8"
		e := types.Endpoint{IPAddress: &ip, Ports: map[string]int32{"port-1": 31337}}

		b, err := json.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		var actual map[string]any
		if err := json.Unmarshal(b, &actual); err != nil {
			t.Fatal(err)
		}
		if actual["ip_address"] != "10.0.0.8" || actual["port-1"] != float64(31337) {
			t.Errorf("unexpected json: %s", b)
		}
	})

	t.Run("it is unmarshalled with null ip address", func(t *testing.T) {
		var e types.Endpoint
		if err := json.Unmarshal([]byte(`{"ip_address": null, "port-1": 8080}`), &e); err != nil {
			t.Fatal(err)
		}
		if e.IPAddress != nil {
			t.Errorf("ip address should be nil: %v", *e.IPAddress)
		}
		name, port, ok := e.FirstPort()
		if !ok || name != "port-1" || port != 8080 {
			t.Errorf("first port: (%s, %d, %v)", name, port, ok)
		}
	})
}

func TestServiceRequest(t *testing.T) {
	for name, testcase := range map[string]struct {
		when string
		then types.ServiceRequest
	}{
		"port as number": {
			when: `{"port": 8888, "clients": ["10.0.0.0/8"]}`,
			then: types.ServiceRequest{Port: "8888", Clients: []string{"10.0.0.0/8"}},
		},
		"port as string": {
			when: `{"port": "8080"}`,
			then: types.ServiceRequest{Port: "8080"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			var actual types.ServiceRequest
			if err := json.Unmarshal([]byte(testcase.when), &actual); err != nil {
				t.Fatal(err)
			}
			if actual.Port != testcase.then.Port || !cmp.SliceEq(actual.Clients, testcase.then.Clients) {
				t.Errorf("(actual, expected) = (%+v, %+v)", actual, testcase.then)
			}
		})
	}

	t.Run("port as object is rejected", func(t *testing.T) {
		var actual types.ServiceRequest
		if err := json.Unmarshal([]byte(`{"port": {"n": 1}}`), &actual); err == nil {
			t.Error("expected error, but got nil")
		}
	})
}

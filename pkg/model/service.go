package model

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/helxplatform/appstore/pkg/api/types"
)

// Service is a network endpoint of a container.
type Service struct {
	// name of the service object: {container name}-{identifier}
	Name string

	// name of the container
	BaseName string

	// 1-65535
	Port int32

	// networks allowed to connect, in CIDR notation.
	Clients []string
}

func newService(baseName string, identifier string, req types.ServiceRequest) (Service, error) {
	svc := Service{
		Name:     fmt.Sprintf("%s-%s", baseName, identifier),
		BaseName: baseName,
		Clients:  []string{},
	}
	p := strings.TrimSpace(req.Port)
	if p == "" {
		return Service{}, fmt.Errorf("service %s: port is required", baseName)
	}
	n, err := strconv.ParseInt(p, 10, 32)
	if err != nil {
		return Service{}, fmt.Errorf("service %s: bad port %s: %w", baseName, req.Port, err)
	}
	if n < 1 || 65535 < n {
		return Service{}, fmt.Errorf("service %s: port %d is out of range", baseName, n)
	}
	svc.Port = int32(n)
	for _, c := range req.Clients {
		cidr, err := normalizeNetwork(c)
		if err != nil {
			return Service{}, fmt.Errorf("service %s: %w", baseName, err)
		}
		svc.Clients = append(svc.Clients, cidr)
	}
	return svc, nil
}

// normalizeNetwork makes network in CIDR notation.
//
// A bare address is a network of itself (/32 or /128).
// A prefix having host bits is an error.
func normalizeNetwork(network string) (string, error) {
	network = strings.TrimSpace(network)
	if !strings.Contains(network, "/") {
		addr, err := netip.ParseAddr(network)
		if err != nil {
			return "", fmt.Errorf("bad client network %s: %w", network, err)
		}
		return netip.PrefixFrom(addr, addr.BitLen()).String(), nil
	}
	prefix, err := netip.ParsePrefix(network)
	if err != nil {
		return "", fmt.Errorf("bad client network %s: %w", network, err)
	}
	if prefix.Masked() != prefix {
		return "", fmt.Errorf("client network %s has host bits set", network)
	}
	return prefix.String(), nil
}

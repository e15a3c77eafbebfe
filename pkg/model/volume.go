package model

import (
	"fmt"
	"strings"
)

// Volume is a mount of a persistent volume claim into a container.
type Volume struct {
	ContainerName string

	// claim name. It is set only for the first mount of the claim
	// in a system, so the claim is declared once.
	PVCName string

	// name of the claim, for every mount.
	VolumeName string

	// mount path in the container
	Path string

	// path in the volume to be mounted
	Subpath string
}

// ProcessVolumes reads volume declarations of containers.
//
// Each declaration should be in the form `pvc://<claim>/<subpath>:<path>`.
// When the claim is empty (`pvc:///<subpath>:<path>`), sharedClaim is used.
func ProcessVolumes(containers []Container, sharedClaim string) ([]Volume, error) {
	seen := map[string]struct{}{}
	volumes := []Volume{}
	for _, c := range containers {
		for _, decl := range c.Volumes {
			v, err := parseVolume(decl, sharedClaim)
			if err != nil {
				return nil, fmt.Errorf(
					"wrong volume definition in container:%s and volume:%s: %w",
					c.Name, decl, err,
				)
			}
			v.ContainerName = c.Name
			if _, ok := seen[v.VolumeName]; !ok {
				seen[v.VolumeName] = struct{}{}
				v.PVCName = v.VolumeName
			}
			volumes = append(volumes, v)
		}
	}
	return volumes, nil
}

func parseVolume(decl string, sharedClaim string) (Volume, error) {
	parts := strings.Split(decl, ":")
	if parts[0] != "pvc" {
		return Volume{}, fmt.Errorf("only pvc volumes are supported")
	}
	if len(parts) != 3 {
		return Volume{}, fmt.Errorf("should be pvc://<claim>/<subpath>:<path>")
	}
	segments := strings.Split(parts[1], "/")
	if len(segments) < 3 || segments[0] != "" || segments[1] != "" {
		return Volume{}, fmt.Errorf("should be pvc://<claim>/<subpath>:<path>")
	}
	if parts[2] == "" {
		return Volume{}, fmt.Errorf("mount path is empty")
	}

	claim := segments[2]
	if claim == "" {
		claim = sharedClaim
	}
	return Volume{
		VolumeName: claim,
		Path:       parts[2],
		Subpath:    strings.Join(segments[3:], "/"),
	}, nil
}

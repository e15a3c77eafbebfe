package model_test

import (
	"strings"
	"testing"

	"github.com/helxplatform/appstore/pkg/model"
)

func TestProcessVolumes(t *testing.T) {
	type then struct {
		volumes []model.Volume
		err     string
	}
	for name, testcase := range map[string]struct {
		when []model.Container
		then then
	}{
		"claim is declared only on its first mount": {
			when: []model.Container{
				{Name: "a", Volumes: []string{"pvc://stdnfs/home/jane:/home/jane", "pvc://stdnfs/shared:/shared"}},
				{Name: "b", Volumes: []string{"pvc://data/x/y/z:/data"}},
			},
			then: then{volumes: []model.Volume{
				{ContainerName: "a", PVCName: "stdnfs", VolumeName: "stdnfs", Path: "/home/jane", Subpath: "home/jane"},
				{ContainerName: "a", PVCName: "", VolumeName: "stdnfs", Path: "/shared", Subpath: "shared"},
				{ContainerName: "b", PVCName: "data", VolumeName: "data", Path: "/data", Subpath: "x/y/z"},
			}},
		},
		"empty claim is the shared one": {
			when: []model.Container{
				{Name: "a", Volumes: []string{"pvc:///work:/work"}},
			},
			then: then{volumes: []model.Volume{
				{ContainerName: "a", PVCName: "shared-claim", VolumeName: "shared-claim", Path: "/work", Subpath: "work"},
			}},
		},
		"whole claim can be mounted": {
			when: []model.Container{
				{Name: "a", Volumes: []string{"pvc://data:/data"}},
			},
			then: then{volumes: []model.Volume{
				{ContainerName: "a", PVCName: "data", VolumeName: "data", Path: "/data", Subpath: ""},
			}},
		},
		"bind mount is not supported": {
			when: []model.Container{{Name: "a", Volumes: []string{"/tmp:/tmp"}}},
			then: then{err: "container:a and volume:/tmp:/tmp"},
		},
		"mount path is required": {
			when: []model.Container{{Name: "a", Volumes: []string{"pvc://data/x"}}},
			then: then{err: "container:a and volume:pvc://data/x"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			actual, err := model.ProcessVolumes(testcase.when, "shared-claim")
			if testcase.then.err != "" {
				if err == nil || !strings.Contains(err.Error(), testcase.then.err) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(actual) != len(testcase.then.volumes) {
				t.Fatalf("(actual, expected) = (%+v, %+v)", actual, testcase.then.volumes)
			}
			for i := range actual {
				if actual[i] != testcase.then.volumes[i] {
					t.Errorf("#%d: (actual, expected) = (%+v, %+v)", i, actual[i], testcase.then.volumes[i])
				}
			}
		})
	}
}

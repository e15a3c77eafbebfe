package kube_test

import (
	"testing"

	"github.com/helxplatform/appstore/pkg/compute/kube"
)

func TestLabelSelector(t *testing.T) {
	t.Run("when empty LabelSelector is built, it makes empty", func(t *testing.T) {
		testee := kube.LabelSelector{}
		if testee.QueryString() != "" {
			t.Errorf(`not match: "%s" is not empty`, testee.QueryString())
		}
		if !testee.Matches(map[string]string{"a": "b"}) {
			t.Error("empty selector should match anything")
		}
	})

	t.Run("its QueryString is comma-separated requirements, ordered by label", func(t *testing.T) {
		testee := kube.LabelSelector{
			"username":   kube.Eq("jane"),
			"executor":   kube.Eq("tycho"),
			"tycho-guid": kube.NotEq("abc"),
		}
		expected := "executor=tycho,tycho-guid!=abc,username=jane"
		if actual := testee.QueryString(); actual != expected {
			t.Errorf("(actual, expected) = (%s, %s)", actual, expected)
		}
	})
}

func TestEqualityBased(t *testing.T) {
	for name, testcase := range map[string]struct {
		when kube.EqualityBased
		then string
	}{
		"bare value means equality": {when: "value1", then: "label=value1"},
		"= means equality":          {when: "=value1", then: "label=value1"},
		"== means equality":         {when: "==value1", then: "label=value1"},
		"!= means inequality":       {when: "!=value1", then: "label!=value1"},
		"Eq of != is equality":      {when: kube.Eq("!=value1"), then: "label=value1"},
		"NotEq of = is inequality":  {when: kube.NotEq("=value1"), then: "label!=value1"},
	} {
		t.Run(name, func(t *testing.T) {
			if actual := testcase.when.QueryString("label"); actual != testcase.then {
				t.Errorf("(actual, expected) = (%s, %s)", actual, testcase.then)
			}
		})
	}
}

func TestLabelSelector_Matches(t *testing.T) {
	selector := kube.LabelSelector{
		"tycho-guid": kube.Eq("abc"),
		"username":   kube.NotEq("root"),
	}
	for name, testcase := range map[string]struct {
		when map[string]string
		then bool
	}{
		"all requirements are met": {
			when: map[string]string{"tycho-guid": "abc", "username": "jane"},
			then: true,
		},
		"absent label meets inequality": {
			when: map[string]string{"tycho-guid": "abc"},
			then: true,
		},
		"absent label does not meet equality": {
			when: map[string]string{"username": "jane"},
			then: false,
		},
		"inequality is violated": {
			when: map[string]string{"tycho-guid": "abc", "username": "root"},
			then: false,
		},
	} {
		t.Run(name, func(t *testing.T) {
			if actual := selector.Matches(testcase.when); actual != testcase.then {
				t.Errorf("(actual, expected) = (%v, %v)", actual, testcase.then)
			}
		})
	}
}

package kube

import (
	"sort"
	"strings"
)

// label keys put on objects of systems.
const (
	LabelGUID        = "tycho-guid"
	LabelExecutor    = "executor"
	LabelUsername    = "username"
	LabelApp         = "tycho-app"
	LabelAppName     = "app-name"
	LabelOriginalApp = "original-app-name"
	LabelName        = "name"
	ExecutorTycho    = "tycho"
)

// k8s Label SelectorElement like EqualityBased
type SelectorElement interface {
	// convert to querystring expression for label
	QueryString(label string) string

	// Match reports whether a label value satisfies this.
	//
	// present is false when the object does not have the label.
	Match(value string, present bool) bool
}

type LabelSelector map[string]SelectorElement

// convert to string value in form of query string.
//
// Requirements are ordered by label.
func (ls LabelSelector) QueryString() string {
	keys := make([]string, 0, len(ls))
	for k := range ls {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	exprs := make([]string, 0, len(keys))
	for _, k := range keys {
		exprs = append(exprs, ls[k].QueryString(k))
	}
	return strings.Join(exprs, ",")
}

// Matches reports whether labels satisfy every requirement.
func (ls LabelSelector) Matches(labels map[string]string) bool {
	for k, req := range ls {
		v, ok := labels[k]
		if !req.Match(v, ok) {
			return false
		}
	}
	return true
}

// see: https://kubernetes.io/docs/concepts/overview/working-with-objects/labels/#equality-based-requirement
type EqualityBased string

var _ SelectorElement = EqualityBased("")

func NotEq(value string) EqualityBased {
	_, v := EqualityBased(value).destruct()
	return EqualityBased("!=" + v)
}

func Eq(value string) EqualityBased {
	_, v := EqualityBased(value).destruct()
	return EqualityBased("=" + v)
}

func (eqb EqualityBased) destruct() (operator string, value string) {
	exp := string(eqb)
	switch {
	case strings.HasPrefix(exp, "=="):
		return "=", exp[2:]
	case strings.HasPrefix(exp, "!="):
		return "!=", exp[2:]
	case strings.HasPrefix(exp, "="):
		return "=", exp[1:]
	default:
		return "=", exp
	}
}

func (eqb EqualityBased) QueryString(label string) string {
	op, v := eqb.destruct()
	return label + op + v
}

func (eqb EqualityBased) Match(value string, present bool) bool {
	op, v := eqb.destruct()
	if op == "!=" {
		return !present || value != v
	}
	return present && value == v
}

// LabelsToSelector makes a selector requiring each label to be equal.
func LabelsToSelector(ls map[string]string) LabelSelector {
	sel := LabelSelector{}
	for k, v := range ls {
		sel[k] = Eq(v)
	}
	return sel
}

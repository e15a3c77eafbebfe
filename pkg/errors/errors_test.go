package errors_test

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	xe "github.com/helxplatform/appstore/pkg/errors"
)

type rootCause struct{}

func (rootCause) Error() string {
	return "root cause for test"
}

func createError(message string) error {
	return xe.New(message)
}

func TestNew(t *testing.T) {
	t.Run("it knows location where it is created.", func(t *testing.T) {
		testee := createError("test error")
		message := testee.Error()

		_, thisFile, _, _ := runtime.Caller(0)

		if !strings.Contains(message, "createError") {
			t.Errorf("it does not know function name: %s", message)
		}
		if !strings.Contains(message, thisFile) {
			t.Errorf("it does not know file (%s): %s", thisFile, message)
		}
	})

	t.Run("it supports errors protocol", func(t *testing.T) {
		err := xe.Wrap(fmt.Errorf("%w", fmt.Errorf("%w", rootCause{})))
		if !errors.Is(err, rootCause{}) {
			t.Error("it does not support unwrapping.")
		}
	})

	t.Run("wrapping nil gives nil", func(t *testing.T) {
		if xe.Wrap(nil) != nil {
			t.Error("Wrap(nil) is not nil")
		}
		if xe.WrapWithNote("note", nil) != nil {
			t.Error("WrapWithNote(nil) is not nil")
		}
	})

	t.Run("note is shown in message", func(t *testing.T) {
		err := xe.WrapWithNote("while doing something", rootCause{})
		if !strings.Contains(err.Error(), "(while doing something)") {
			t.Errorf("note is missing: %s", err)
		}
	})
}

func TestTychoError(t *testing.T) {
	type when struct {
		err error
	}
	type then struct {
		is      []error
		isNot   []error
		message string
		details string
		text    string
	}

	for name, testcase := range map[string]struct {
		when when
		then then
	}{
		"start error matches ErrStart only": {
			when: when{err: xe.NewStart("Unable to start system: app-1", rootCause{})},
			then: then{
				is:      []error{xe.ErrStart, rootCause{}},
				isNot:   []error{xe.ErrDelete, xe.ErrModify, xe.ErrContext, xe.ErrTycho},
				message: "Unable to start system: app-1",
				details: "root cause for test",
				text:    "Unable to start system: app-1: root cause for test",
			},
		},
		"delete error wrapped with caller still matches ErrDelete": {
			when: when{err: xe.Wrap(xe.NewDelete("Failed to delete system: abc", nil))},
			then: then{
				is:      []error{xe.ErrDelete},
				isNot:   []error{xe.ErrStart},
				message: "Failed to delete system: abc",
				details: "",
				text:    "Failed to delete system: abc",
			},
		},
		"context error": {
			when: when{err: xe.NewContext("undefined product x not found in contexts.", nil)},
			then: then{
				is:      []error{xe.ErrContext},
				isNot:   []error{xe.ErrModify},
				message: "undefined product x not found in contexts.",
				text:    "undefined product x not found in contexts.",
			},
		},
	} {
		t.Run(name, func(t *testing.T) {
			for _, target := range testcase.then.is {
				if !errors.Is(testcase.when.err, target) {
					t.Errorf("errors.Is(%v, %v) is false", testcase.when.err, target)
				}
			}
			for _, target := range testcase.then.isNot {
				if errors.Is(testcase.when.err, target) {
					t.Errorf("errors.Is(%v, %v) is true", testcase.when.err, target)
				}
			}

			te, ok := xe.AsTycho(testcase.when.err)
			if !ok {
				t.Fatalf("not a TychoError: %v", testcase.when.err)
			}
			if te.Message() != testcase.then.message {
				t.Errorf("message: (actual, expected) = (%s, %s)", te.Message(), testcase.then.message)
			}
			if te.Details() != testcase.then.details {
				t.Errorf("details: (actual, expected) = (%s, %s)", te.Details(), testcase.then.details)
			}
			if te.Error() != testcase.then.text {
				t.Errorf("Error(): (actual, expected) = (%s, %s)", te.Error(), testcase.then.text)
			}
		})
	}
}

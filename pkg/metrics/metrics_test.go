package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/helxplatform/appstore/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	testee := metrics.New()

	testee.Observe("start", time.Now(), nil)
	testee.Observe("start", time.Now(), errors.New("fake error"))
	testee.Observe("start", time.Now(), nil)
	testee.Observe("delete", time.Now(), nil)

	for name, testcase := range map[string]struct {
		when []string
		then float64
	}{
		"start, success":  {when: []string{"start", metrics.OutcomeSuccess}, then: 2},
		"start, failure":  {when: []string{"start", metrics.OutcomeFailure}, then: 1},
		"delete, success": {when: []string{"delete", metrics.OutcomeSuccess}, then: 1},
		"modify, success": {when: []string{"modify", metrics.OutcomeSuccess}, then: 0},
	} {
		t.Run(name, func(t *testing.T) {
			actual := testutil.ToFloat64(testee.Requests.WithLabelValues(testcase.when...))
			if actual != testcase.then {
				t.Errorf("(actual, expected) = (%v, %v)", actual, testcase.then)
			}
		})
	}

	t.Run("durations are observed per verb", func(t *testing.T) {
		if n := testutil.CollectAndCount(testee.RequestDuration); n != 2 {
			t.Errorf("histograms: %d", n)
		}
	})
}

func TestHandler(t *testing.T) {
	testee := metrics.New()
	testee.Reloaded(nil)

	rec := httptest.NewRecorder()
	testee.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, expected := range []string{
		`tycho_config_reloads_total{outcome="success"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), expected) {
			t.Errorf("%s is not exposed:\n%s", expected, body)
		}
	}
}

// SPDX-FileCopyrightText: 2024 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/mock"

	"github.com/sapcc/weighbridge/internal/test"
	"github.com/sapcc/weighbridge/internal/weight/engine"
)

type testSetup struct {
	Handler   http.Handler
	Clock     *mock.Clock
	Engine    *engine.Engine
	IngestDir string
}

func setupTest(t *testing.T) testSetup {
	t.Helper()
	dbm := test.InitWeightDatabase(t, nil)
	clock := mock.NewClock()

	sessionCounter := 0
	eng := engine.NewEngine(dbm, 100000, clock.Now).OverrideGenerateSessionID(func() string {
		sessionCounter++
		return fmt.Sprintf("session-%d", sessionCounter)
	})

	ingestDir := t.TempDir()
	handler := httpapi.Compose(
		NewV1API(dbm, eng, engine.IngestConfig{Directory: ingestDir}, clock.Now),
		httpapi.WithoutLogging(),
	)
	return testSetup{Handler: handler, Clock: clock, Engine: eng, IngestDir: ingestDir}
}

func registerContainer(t *testing.T, s testSetup, containerID string, weightKilos int64) {
	t.Helper()
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/container",
		Body:         assert.JSONObject{"id": containerID, "weight": weightKilos, "unit": "kg"},
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
}

func TestWeighingSessionFlow(t *testing.T) {
	s := setupTest(t)
	registerContainer(t, s, "C1", 500)
	registerContainer(t, s, "C2", 600)

	// the IN weighing opens the session; net values are not computable yet
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/weight",
		Body: assert.JSONObject{
			"direction": "in", "truck": "T1", "containers": "C1,C2",
			"weight": 10000, "unit": "kg", "produce": "apples",
		},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": 1, "session_id": "session-1", "direction": "in",
			"truck": "T1", "bruto": 10000, "truck_tara": nil, "neto": "na",
		},
	}.Check(t, s.Handler)

	s.Clock.StepBy(1 * time.Hour)

	// the OUT weighing closes it: truck_tara = 4000 - 1100, neto = 10000 - 4000
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/weight",
		Body: assert.JSONObject{
			"direction": "out", "truck": "T1", "containers": "C2,C1",
			"weight": 4000, "unit": "kg",
		},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": 2, "session_id": "session-1", "direction": "out",
			"truck": "T1", "bruto": 4000, "truck_tara": 2900, "neto": 6000,
		},
	}.Check(t, s.Handler)

	// the IN row was back-filled with the same values
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/weight/1",
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": 1, "session_id": "session-1", "datetime": "19700101000000",
			"direction": "in", "truck": "T1", "containers": []string{"C1", "C2"},
			"bruto": 10000, "truck_tara": 2900, "neto": 6000, "produce": "apples",
		},
	}.Check(t, s.Handler)

	// the session detail reports both rows and completeness
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/session/session-1",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/session-complete.json"),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/session/no-such-session",
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestWeighingSequenceErrors(t *testing.T) {
	s := setupTest(t)
	registerContainer(t, s, "C1", 500)

	// an OUT without an open IN is rejected
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/weight",
		Body: assert.JSONObject{
			"direction": "out", "truck": "T1", "containers": "C1",
			"weight": 4000, "unit": "kg",
		},
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)

	// ...unless forced, in which case no net weight is computed
	assert.HTTPRequest{
		Method: "POST",
		Path:   "/weight",
		Body: assert.JSONObject{
			"direction": "out", "truck": "T1", "containers": "C1",
			"weight": 4000, "unit": "kg", "force": true,
		},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": 1, "session_id": "session-1", "direction": "out",
			"truck": "T1", "bruto": 4000, "truck_tara": nil, "neto": "na",
		},
	}.Check(t, s.Handler)

	// a duplicate IN for the same truck and containers is rejected
	inRequest := assert.JSONObject{
		"direction": "in", "truck": "T2", "containers": "C1",
		"weight": 9000, "unit": "kg",
	}
	assert.HTTPRequest{
		Method: "POST", Path: "/weight", Body: inRequest,
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": 2, "session_id": "session-2", "direction": "in",
			"truck": "T2", "bruto": 9000, "truck_tara": nil, "neto": "na",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method: "POST", Path: "/weight", Body: inRequest,
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)

	// ...unless forced, which opens a second session
	assert.HTTPRequest{
		Method: "POST", Path: "/weight",
		Body: assert.JSONObject{
			"direction": "in", "truck": "T2", "containers": "C1",
			"weight": 9000, "unit": "kg", "force": true,
		},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": 3, "session_id": "session-3", "direction": "in",
			"truck": "T2", "bruto": 9000, "truck_tara": nil, "neto": "na",
		},
	}.Check(t, s.Handler)
}

func TestWeighingValidationErrors(t *testing.T) {
	s := setupTest(t)

	requests := []assert.JSONObject{
		{"direction": "sideways", "containers": "C1", "weight": 100, "unit": "kg"},
		{"direction": "none", "containers": "C1", "weight": 100, "unit": "stone"},
		{"direction": "none", "containers": "C1", "weight": 0, "unit": "kg"},
		{"direction": "none", "containers": "C1", "weight": 100001, "unit": "kg"},
		{"direction": "none", "containers": "", "weight": 100, "unit": "kg"},
		{"direction": "none", "containers": "way-too-long-container-id", "weight": 100, "unit": "kg"},
		{"direction": "none", "truck": "WAY-TOO-LONG-LICENSE", "containers": "C1", "weight": 100, "unit": "kg"},
	}
	for _, body := range requests {
		assert.HTTPRequest{
			Method: "POST", Path: "/weight", Body: body,
			ExpectStatus: http.StatusBadRequest,
		}.Check(t, s.Handler)
	}
}

func TestOutWithUnknownContainer(t *testing.T) {
	s := setupTest(t)
	registerContainer(t, s, "C1", 500)

	assert.HTTPRequest{
		Method: "POST", Path: "/weight",
		Body: assert.JSONObject{
			"direction": "in", "truck": "T1", "containers": "C1,X9",
			"weight": 10000, "unit": "kg", "produce": "oranges",
		},
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)

	// X9 has no registered tare, so the OUT is rejected and no row persists
	outRequest := assert.JSONObject{
		"direction": "out", "truck": "T1", "containers": "C1,X9",
		"weight": 4000, "unit": "kg",
	}
	assert.HTTPRequest{
		Method: "POST", Path: "/weight", Body: outRequest,
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/weight/2",
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)

	// with force, the session closes but the net weight stays unknown
	assert.HTTPRequest{
		Method: "POST", Path: "/weight",
		Body: assert.JSONObject{
			"direction": "out", "truck": "T1", "containers": "C1,X9",
			"weight": 4000, "unit": "kg", "force": true,
		},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": 2, "session_id": "session-1", "direction": "out",
			"truck": "T1", "bruto": 4000, "truck_tara": nil, "neto": "na",
		},
	}.Check(t, s.Handler)

	// the forced close must not back-fill the IN row
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/weight/1",
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": 1, "session_id": "session-1", "datetime": "19700101000000",
			"direction": "in", "truck": "T1", "containers": []string{"C1", "X9"},
			"bruto": 10000, "truck_tara": "na", "neto": "na", "produce": "oranges",
		},
	}.Check(t, s.Handler)
}

func TestListWeighings(t *testing.T) {
	s := setupTest(t)
	registerContainer(t, s, "C1", 500)

	for _, body := range []assert.JSONObject{
		{"direction": "in", "truck": "T1", "containers": "C1", "weight": 10000, "unit": "kg", "produce": "apples"},
		{"direction": "out", "truck": "T1", "containers": "C1", "weight": 4000, "unit": "kg"},
		{"direction": "none", "containers": "C1", "weight": 700, "unit": "kg"},
	} {
		assert.HTTPRequest{
			Method: "POST", Path: "/weight", Body: body,
			ExpectStatus: http.StatusOK,
		}.Check(t, s.Handler)
		s.Clock.StepBy(1 * time.Minute)
	}

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/weight",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/weight-list-all.json"),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/weight?filter=out,none",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/weight-list-filtered.json"),
	}.Check(t, s.Handler)

	// a window that excludes everything yields an empty array, not null
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/weight?from=19690101000000&to=19691231000000",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/weight-list-empty.json"),
	}.Check(t, s.Handler)

	for _, path := range []string{
		"/weight?filter=upwards",
		"/weight?from=notadate",
		"/weight?from=19700102000000&to=19700101000000",
		"/weight?limit=-1",
	} {
		assert.HTTPRequest{
			Method: "GET", Path: path,
			ExpectStatus: http.StatusBadRequest,
		}.Check(t, s.Handler)
	}
}

func TestItemRollups(t *testing.T) {
	s := setupTest(t)
	registerContainer(t, s, "C1", 500)
	registerContainer(t, s, "C2", 600)

	weighings := []assert.JSONObject{
		{"direction": "in", "truck": "T1", "containers": "C1,C2", "weight": 10000, "unit": "kg", "produce": "apples"},
		{"direction": "out", "truck": "T1", "containers": "C1,C2", "weight": 4000, "unit": "kg"},
		{"direction": "in", "truck": "T1", "containers": "C1", "weight": 8000, "unit": "kg", "produce": "grapes"},
		{"direction": "out", "truck": "T1", "containers": "C1", "weight": 3000, "unit": "kg"},
	}
	for _, body := range weighings {
		assert.HTTPRequest{
			Method: "POST", Path: "/weight", Body: body,
			ExpectStatus: http.StatusOK,
		}.Check(t, s.Handler)
		s.Clock.StepBy(1 * time.Minute)
	}

	// truck rollup: tara values are 2900 (twice) and 2500 (twice), mean 2700
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/item/T1",
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": "T1", "kind": "truck", "tara": 2700,
			"sessions": []string{"session-1", "session-2"},
		},
	}.Check(t, s.Handler)

	// container rollup: registered tare plus the sessions that used it
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/item/C2",
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"id": "C2", "kind": "container", "tara": 600,
			"sessions": []string{"session-1"},
		},
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/item/NOPE",
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestUnknownContainers(t *testing.T) {
	s := setupTest(t)
	registerContainer(t, s, "C1", 500)

	assert.HTTPRequest{
		Method: "POST", Path: "/weight",
		Body: assert.JSONObject{
			"direction": "none", "containers": "C1,X9,X2",
			"weight": 1500, "unit": "kg",
		},
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/unknown",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONFixtureFile("fixtures/unknown-containers.json"),
	}.Check(t, s.Handler)
}

func TestBatchWeight(t *testing.T) {
	s := setupTest(t)

	csvContent := "id,weight,unit\nB1,300,kg\nB2,bogus,kg\nB3,700,lbs\n"
	err := os.WriteFile(filepath.Join(s.IngestDir, "tares.csv"), []byte(csvContent), 0o666)
	if err != nil {
		t.Fatal(err)
	}

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/batch-weight",
		Body:         assert.JSONObject{"file": "tares.csv"},
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.JSONObject{
			"processed": 2, "updated": 0, "skipped": 0, "errors": 1,
			"diagnostics": []string{`row 2: invalid weight "bogus"`},
		},
	}.Check(t, s.Handler)

	// 700 lbs were normalized on ingestion
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/container/B3",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONObject{"id": "B3", "weight": 318, "unit": "lbs"},
	}.Check(t, s.Handler)

	// path traversal is rejected
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/batch-weight",
		Body:         assert.JSONObject{"file": "../tares.csv"},
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/batch-weight",
		Body:         assert.JSONObject{"file": "no-such-file.csv"},
		ExpectStatus: http.StatusBadRequest,
	}.Check(t, s.Handler)
}

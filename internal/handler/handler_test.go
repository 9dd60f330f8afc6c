package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/satmon/internal/generator"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/query"
	"github.com/xtxerr/satmon/internal/storage/archive"
	"github.com/xtxerr/satmon/internal/storage/series"
)

type apiFixture struct {
	t   *testing.T
	mgr *manager.Manager
	srv http.Handler
}

func newAPI(t *testing.T, withArchive bool) *apiFixture {
	t.Helper()

	mgr := manager.New(series.New())
	deps := Deps{
		Manager:   mgr,
		Engine:    query.New(mgr, mgr.Series(), query.WithIngestStats(mgr.Stats())),
		Generator: generator.New(generator.Config{Seed: 42, Interval: 10 * time.Second, Window: time.Hour, Workers: 2}),
	}
	if withArchive {
		a, err := archive.New(filepath.Join(t.TempDir(), "archive"))
		if err != nil {
			t.Fatalf("archive.New: %v", err)
		}
		t.Cleanup(func() { a.Close() })
		deps.Archive = a
	}

	return &apiFixture{t: t, mgr: mgr, srv: New(deps).Routes()}
}

// do sends a request and decodes the JSON response into out when non-nil.
func (f *apiFixture) do(method, path string, body any, out any) *httptest.ResponseRecorder {
	f.t.Helper()

	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			f.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			f.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec
}

func (f *apiFixture) expect(rec *httptest.ResponseRecorder, status int, code string) {
	f.t.Helper()
	if rec.Code != status {
		f.t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	if code == "" {
		return
	}
	var eb errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &eb); err != nil {
		f.t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	if eb.Error.Code != code {
		f.t.Fatalf("error code = %q, want %q (%s)", eb.Error.Code, code, eb.Error.Message)
	}
}

// seed registers an active satellite with one power unit holding a
// voltage and a battery level parameter.
func (f *apiFixture) seed(name string) (satelliteView, unitView, []parameterView) {
	f.t.Helper()

	var sat satelliteView
	f.expect(f.do("POST", "/api/v1/satellites", map[string]any{
		"name": name, "launch_date": "2024-03-01",
	}, &sat), http.StatusCreated, "")
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/activate", nil, &sat), http.StatusOK, "")

	var unit unitView
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/units", map[string]any{
		"name": "Power System", "description": "EPS",
	}, &unit), http.StatusCreated, "")

	var params []parameterView
	for _, def := range [][2]string{{"battery_voltage", "voltage"}, {"battery_level", "battery_level"}} {
		var p parameterView
		f.expect(f.do("POST", "/api/v1/units/"+unit.ID+"/parameters", map[string]any{
			"name": def[0], "type": def[1],
		}, &p), http.StatusCreated, "")
		params = append(params, p)
	}
	return sat, unit, params
}

func TestHealth(t *testing.T) {
	f := newAPI(t, false)
	var body map[string]string
	f.expect(f.do("GET", "/health", nil, &body), http.StatusOK, "")
	if body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}

type stubMetastore struct{ err error }

func (s stubMetastore) Health(context.Context) error { return s.err }

func TestHealthChecksMetastore(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"reachable", nil, http.StatusOK, "ok"},
		{"down", fmt.Errorf("connection closed"), http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := manager.New(series.New())
			srv := New(Deps{
				Manager:   mgr,
				Engine:    query.New(mgr, mgr.Series()),
				Generator: generator.New(generator.Config{}),
				Metastore: stubMetastore{err: tt.err},
			}).Routes()

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.want {
				t.Errorf("health = %v", body)
			}
		})
	}
}

func TestSatelliteLifecycle(t *testing.T) {
	f := newAPI(t, false)

	var sat satelliteView
	f.expect(f.do("POST", "/api/v1/satellites", map[string]any{
		"name":        "Intella-Sat-1",
		"launch_date": "2024-03-01",
		"metadata":    map[string]string{"orbit": "LEO"},
	}, &sat), http.StatusCreated, "")
	if sat.Status != "pending" || sat.Metadata["orbit"] != "LEO" {
		t.Errorf("registered satellite = %+v", sat)
	}
	if !sat.LaunchDate.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("launch date = %v", sat.LaunchDate)
	}

	f.expect(f.do("POST", "/api/v1/satellites", map[string]any{
		"name": "Intella-Sat-1", "launch_date": "2024-03-01",
	}, nil), http.StatusConflict, "duplicate_name")

	base := "/api/v1/satellites/" + sat.ID
	f.expect(f.do("POST", base+"/disable", nil, nil), http.StatusConflict, "invalid_transition")
	f.expect(f.do("POST", base+"/activate", nil, &sat), http.StatusOK, "")
	if sat.Status != "active" || sat.ActivatedAt == nil {
		t.Errorf("activated satellite = %+v", sat)
	}
	f.expect(f.do("POST", base+"/activate", nil, nil), http.StatusConflict, "invalid_transition")
	f.expect(f.do("POST", base+"/disable", nil, &sat), http.StatusOK, "")
	if sat.Status != "disabled" {
		t.Errorf("status = %s, want disabled", sat.Status)
	}
	f.expect(f.do("POST", base+"/enable", nil, &sat), http.StatusOK, "")
	if sat.Status != "active" {
		t.Errorf("status = %s, want active", sat.Status)
	}

	name := "Intella-Sat-1B"
	f.expect(f.do("PATCH", base, map[string]any{"name": name}, &sat), http.StatusOK, "")
	if sat.Name != name {
		t.Errorf("name = %s, want %s", sat.Name, name)
	}

	var got satelliteView
	f.expect(f.do("GET", base, nil, &got), http.StatusOK, "")
	if got.ID != sat.ID || got.Name != name {
		t.Errorf("GET = %+v", got)
	}

	f.expect(f.do("GET", "/api/v1/satellites/nope", nil, nil), http.StatusNotFound, "not_found")
}

func TestRegisterValidation(t *testing.T) {
	f := newAPI(t, false)

	tests := []struct {
		name string
		body any
		code string
	}{
		{"missing launch date", map[string]any{"name": "A"}, "invalid_request"},
		{"bad launch date", map[string]any{"name": "A", "launch_date": "someday"}, "invalid_request"},
		{"bad name", map[string]any{"name": "a/b", "launch_date": "2024-01-01"}, "invalid_request"},
		{"unknown field", map[string]any{"name": "A", "launch_date": "2024-01-01", "orbit": "GEO"}, "invalid_request"},
		{"empty body", "", "invalid_request"},
		{"malformed", "{", "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.t = t
			f.expect(f.do("POST", "/api/v1/satellites", tt.body, nil), http.StatusBadRequest, tt.code)
		})
	}
}

func TestListSatellitesPagination(t *testing.T) {
	f := newAPI(t, false)
	for i := 0; i < 25; i++ {
		var sat satelliteView
		f.expect(f.do("POST", "/api/v1/satellites", map[string]any{
			"name": fmt.Sprintf("SAT-%02d", i), "launch_date": "2024-01-01",
		}, &sat), http.StatusCreated, "")
		if i%5 == 0 {
			f.do("POST", "/api/v1/satellites/"+sat.ID+"/activate", nil, nil)
			f.do("POST", "/api/v1/satellites/"+sat.ID+"/disable", nil, nil)
		}
	}

	var page pageView[satelliteView]
	f.expect(f.do("GET", "/api/v1/satellites", nil, &page), http.StatusOK, "")
	if page.Total != 20 || len(page.Items) != 20 || page.Page != 1 || page.PageSize != 20 {
		t.Errorf("default page: total=%d items=%d page=%d size=%d", page.Total, len(page.Items), page.Page, page.PageSize)
	}

	f.expect(f.do("GET", "/api/v1/satellites?include_disabled=true&page=3&page_size=10", nil, &page), http.StatusOK, "")
	if page.Total != 25 || len(page.Items) != 5 {
		t.Errorf("page 3: total=%d items=%d", page.Total, len(page.Items))
	}

	f.expect(f.do("GET", "/api/v1/satellites?page=x", nil, nil), http.StatusBadRequest, "invalid_request")

	for _, path := range []string{"/api/v1/satellites", "/api/v1/hierarchy"} {
		var huge pageView[json.RawMessage]
		f.expect(f.do("GET", path+"?page=4611686018427387904", nil, &huge), http.StatusOK, "")
		if huge.Total != 20 || len(huge.Items) != 0 {
			t.Errorf("%s far page: total=%d items=%d", path, huge.Total, len(huge.Items))
		}
	}
}

func TestUnitsAndParameters(t *testing.T) {
	f := newAPI(t, false)
	sat, unit, params := f.seed("Intella-Sat-1")

	volt := params[0]
	if volt.Min != 11.5 || volt.Max != 13 || volt.UOM != "V" || volt.SatelliteID != sat.ID {
		t.Errorf("voltage parameter = %+v", volt)
	}

	var units []unitView
	f.expect(f.do("GET", "/api/v1/satellites/"+sat.ID+"/units", nil, &units), http.StatusOK, "")
	if len(units) != 1 || units[0].ID != unit.ID {
		t.Errorf("units = %+v", units)
	}

	var list []parameterView
	f.expect(f.do("GET", "/api/v1/units/"+unit.ID+"/parameters", nil, &list), http.StatusOK, "")
	if len(list) != 2 {
		t.Errorf("parameters = %d, want 2", len(list))
	}

	f.expect(f.do("POST", "/api/v1/units/"+unit.ID+"/parameters", map[string]any{
		"name": "battery_voltage", "type": "voltage",
	}, nil), http.StatusConflict, "duplicate_name")
	f.expect(f.do("POST", "/api/v1/units/"+unit.ID+"/parameters", map[string]any{
		"name": "humidity", "type": "humidity",
	}, nil), http.StatusBadRequest, "invalid_request")
	f.expect(f.do("POST", "/api/v1/satellites/missing/units", map[string]any{"name": "Thermal"}, nil),
		http.StatusNotFound, "not_found")

	var updated parameterView
	f.expect(f.do("PATCH", "/api/v1/parameters/"+volt.ID, map[string]any{"uom": "mV"}, &updated), http.StatusOK, "")
	if updated.UOM != "mV" {
		t.Errorf("uom = %s", updated.UOM)
	}

	var uv unitView
	f.expect(f.do("PATCH", "/api/v1/units/"+unit.ID, map[string]any{"description": "Electrical power"}, &uv), http.StatusOK, "")
	if uv.Description != "Electrical power" {
		t.Errorf("description = %q", uv.Description)
	}

	f.expect(f.do("DELETE", "/api/v1/parameters/"+params[1].ID, nil, nil), http.StatusNoContent, "")
	f.expect(f.do("GET", "/api/v1/parameters/"+params[1].ID, nil, nil), http.StatusNotFound, "not_found")

	var del deleteUnitResponse
	f.expect(f.do("DELETE", "/api/v1/units/"+unit.ID, nil, &del), http.StatusOK, "")
	if len(del.DeletedParameters) != 1 || del.DeletedParameters[0] != volt.ID {
		t.Errorf("cascade = %+v", del)
	}
	f.expect(f.do("GET", "/api/v1/parameters/"+volt.ID, nil, nil), http.StatusNotFound, "not_found")

	var types []parameterTypeView
	f.expect(f.do("GET", "/api/v1/parameter-types", nil, &types), http.StatusOK, "")
	if len(types) < 6 {
		t.Errorf("parameter types = %d, want at least 6", len(types))
	}
}

func TestDisabledSatelliteIsFrozen(t *testing.T) {
	f := newAPI(t, false)
	sat, unit, params := f.seed("Frozen")

	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/disable", nil, nil), http.StatusOK, "")

	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/units", map[string]any{"name": "Thermal"}, nil),
		http.StatusLocked, "satellite_disabled")
	f.expect(f.do("POST", "/api/v1/units/"+unit.ID+"/parameters", map[string]any{"name": "x", "type": "current"}, nil),
		http.StatusLocked, "satellite_disabled")
	f.expect(f.do("POST", "/api/v1/telemetry", map[string]any{
		"parameter_id": params[0].ID,
		"points":       []map[string]any{{"timestamp": 1000, "value": 12}},
	}, nil), http.StatusLocked, "satellite_disabled")
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", nil, nil), http.StatusLocked, "satellite_disabled")

	// Reads still work.
	f.expect(f.do("GET", "/api/v1/units/"+unit.ID, nil, nil), http.StatusOK, "")
}

func TestPendingSatelliteRejectsTelemetry(t *testing.T) {
	f := newAPI(t, false)

	var sat satelliteView
	f.expect(f.do("POST", "/api/v1/satellites", map[string]any{
		"name": "Intella-Sat-2", "launch_date": "2025-06-01",
	}, &sat), http.StatusCreated, "")

	// Structure may be built before activation.
	var unit unitView
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/units", map[string]any{"name": "Power System"}, &unit),
		http.StatusCreated, "")
	var p parameterView
	f.expect(f.do("POST", "/api/v1/units/"+unit.ID+"/parameters", map[string]any{
		"name": "battery_voltage", "type": "voltage",
	}, &p), http.StatusCreated, "")

	ingest := map[string]any{
		"parameter_id": p.ID,
		"points":       []map[string]any{{"timestamp": 1000, "value": 12}},
	}
	f.expect(f.do("POST", "/api/v1/telemetry", ingest, nil), http.StatusConflict, "satellite_pending")
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", nil, nil), http.StatusConflict, "satellite_pending")

	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/activate", nil, nil), http.StatusOK, "")
	f.expect(f.do("POST", "/api/v1/telemetry", ingest, nil), http.StatusCreated, "")
}

func TestTelemetryIngestAndQuery(t *testing.T) {
	f := newAPI(t, false)
	sat, _, params := f.seed("Intella-Sat-1")
	volt := params[0].ID

	var ir ingestResponse
	f.expect(f.do("POST", "/api/v1/telemetry", map[string]any{
		"parameter_id": volt,
		"points": []map[string]any{
			{"timestamp": "2025-01-01T00:00:00Z", "value": 12.0},
			{"timestamp": "2025-01-01T00:01:00Z", "value": 12.2},
			{"timestamp": 1735689720000, "value": 12.4},
		},
	}, &ir), http.StatusCreated, "")
	if ir.Accepted != 3 {
		t.Errorf("accepted = %d", ir.Accepted)
	}

	f.expect(f.do("POST", "/api/v1/telemetry", map[string]any{
		"parameter_id": volt,
		"points":       []map[string]any{{"timestamp": "2025-01-01T00:03:00Z", "value": 14.0}},
	}, nil), http.StatusUnprocessableEntity, "out_of_range")
	f.expect(f.do("POST", "/api/v1/telemetry", map[string]any{
		"parameter_id": "missing",
		"points":       []map[string]any{{"value": 1}},
	}, nil), http.StatusNotFound, "not_found")
	f.expect(f.do("POST", "/api/v1/telemetry", map[string]any{"parameter_id": volt}, nil),
		http.StatusBadRequest, "invalid_request")

	var res struct {
		Series []seriesView `json:"series"`
	}
	f.expect(f.do("GET", "/api/v1/telemetry?parameter_id="+volt, nil, &res), http.StatusOK, "")
	if len(res.Series) != 1 || len(res.Series[0].Points) != 3 {
		t.Fatalf("series = %+v", res.Series)
	}
	if res.Series[0].Points[2].Value != 12.4 {
		t.Errorf("last value = %g", res.Series[0].Points[2].Value)
	}

	f.expect(f.do("GET", "/api/v1/telemetry?satellite_id="+sat.ID+"&start=2025-01-01T00:00:30Z&end=2025-01-01T00:01:30Z", nil, &res),
		http.StatusOK, "")
	if len(res.Series) != 2 {
		t.Fatalf("satellite filter: %d series, want 2", len(res.Series))
	}
	for _, s := range res.Series {
		if s.ParameterID == volt && len(s.Points) != 1 {
			t.Errorf("window: %d points, want 1", len(s.Points))
		}
	}

	f.expect(f.do("GET", "/api/v1/telemetry?parameter_id="+volt+"&limit=2", nil, &res), http.StatusOK, "")
	if len(res.Series[0].Points) != 2 || !res.Series[0].Truncated {
		t.Errorf("limit: %+v", res.Series[0])
	}

	f.expect(f.do("GET", "/api/v1/telemetry?parameter_id="+volt+"&start=2025-01-02T00:00:00Z&end=2025-01-01T00:00:00Z", nil, nil),
		http.StatusBadRequest, "invalid_range")
	f.expect(f.do("GET", "/api/v1/telemetry?start=yesterday", nil, nil), http.StatusBadRequest, "invalid_request")
	f.expect(f.do("GET", "/api/v1/telemetry?satellite_id=nope", nil, nil), http.StatusNotFound, "not_found")
}

func TestAggregateEndpoint(t *testing.T) {
	f := newAPI(t, false)
	_, _, params := f.seed("Intella-Sat-1")
	volt := params[0].ID

	points := make([]map[string]any, 30)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range points {
		points[i] = map[string]any{"timestamp": base.Add(time.Duration(i) * time.Minute).UnixMilli(), "value": 12.0}
	}
	f.expect(f.do("POST", "/api/v1/telemetry", map[string]any{"parameter_id": volt, "points": points}, nil),
		http.StatusCreated, "")

	var res struct {
		Series []aggregateView `json:"series"`
	}
	f.expect(f.do("GET", "/api/v1/telemetry/aggregate?parameter_id="+volt+"&bucket=10m", nil, &res), http.StatusOK, "")
	if len(res.Series) != 1 || len(res.Series[0].Buckets) != 3 {
		t.Fatalf("aggregate = %+v", res.Series)
	}
	b := res.Series[0].Buckets[0]
	if b.Count != 10 || b.Avg != 12 || b.P50 == nil {
		t.Errorf("bucket = %+v", b)
	}
	if res.Series[0].Bucket != "10m0s" {
		t.Errorf("bucket label = %q", res.Series[0].Bucket)
	}

	f.expect(f.do("GET", "/api/v1/telemetry/aggregate?parameter_id="+volt, nil, nil), http.StatusBadRequest, "invalid_request")
	f.expect(f.do("GET", "/api/v1/telemetry/aggregate?parameter_id="+volt+"&bucket=soon", nil, nil), http.StatusBadRequest, "invalid_request")
}

func TestGenerateAndStatus(t *testing.T) {
	f := newAPI(t, false)
	sat, _, _ := f.seed("Intella-Sat-1")

	end := time.Now().UTC().Truncate(10 * time.Second).Format(time.RFC3339)
	body := map[string]any{"end": end}

	var gr generateResponse
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", body, &gr), http.StatusOK, "")
	if gr.Parameters != 2 || gr.Points != 720 {
		t.Errorf("generate = %+v, want 2 parameters with 360 points each", gr)
	}

	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", body, &gr), http.StatusOK, "")
	if gr.Points != 0 || gr.Skipped != 720 {
		t.Errorf("second generate = %+v, want everything skipped", gr)
	}

	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", map[string]any{"window": "1s", "interval": "1ms"}, nil),
		http.StatusOK, "")
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", map[string]any{"window": "720h", "interval": "1s"}, nil),
		http.StatusBadRequest, "invalid_request")
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", map[string]any{"window": "-1h"}, nil),
		http.StatusBadRequest, "invalid_range")
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", map[string]any{"window": "1s", "interval": "500us"}, nil),
		http.StatusBadRequest, "invalid_request")

	var st statusView
	f.expect(f.do("GET", "/api/v1/satellites/"+sat.ID+"/status", nil, &st), http.StatusOK, "")
	if st.Operational != string(query.StateNominal) {
		t.Errorf("operational = %s, want nominal", st.Operational)
	}
	if st.UnitCount != 1 || st.ParameterCount != 2 || st.TotalPoints < 720 {
		t.Errorf("status = %+v", st)
	}
	for _, p := range st.Parameters {
		if p.LastValue == nil || *p.LastValue < p.Min || *p.LastValue > p.Max {
			t.Errorf("parameter %s last value out of range: %+v", p.Name, p)
		}
	}

	var stats statsResponse
	f.expect(f.do("GET", "/api/v1/stats", nil, &stats), http.StatusOK, "")
	if stats.Satellites != 1 || stats.Parameters != 2 || stats.Points < 720 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHierarchy(t *testing.T) {
	f := newAPI(t, false)
	sat, unit, _ := f.seed("Intella-Sat-1")
	f.seed("GOES-16")

	var page pageView[satelliteTreeView]
	f.expect(f.do("GET", "/api/v1/hierarchy", nil, &page), http.StatusOK, "")
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("hierarchy = %+v", page)
	}

	f.expect(f.do("GET", "/api/v1/hierarchy?satellite_id="+sat.ID, nil, &page), http.StatusOK, "")
	if page.Total != 1 {
		t.Fatalf("filtered hierarchy total = %d", page.Total)
	}
	tree := page.Items[0]
	if tree.ID != sat.ID || len(tree.Units) != 1 || tree.Units[0].ID != unit.ID || len(tree.Units[0].Parameters) != 2 {
		t.Errorf("tree = %+v", tree)
	}
}

func TestArchiveEndpoints(t *testing.T) {
	f := newAPI(t, true)
	sat, _, params := f.seed("Intella-Sat-1")
	f.expect(f.do("POST", "/api/v1/satellites/"+sat.ID+"/generate", map[string]any{"window": "10m"}, nil), http.StatusOK, "")

	var er exportResponse
	f.expect(f.do("POST", "/api/v1/archive", map[string]any{
		"satellite_id": sat.ID,
		"bucket":       "5m",
	}, &er), http.StatusCreated, "")
	if er.Points != 120 || er.Parameters != 2 || er.AggregatesFile == "" {
		t.Errorf("export = %+v", er)
	}
	if strings.ContainsRune(er.PointsFile, '/') {
		t.Errorf("points file should be a base name, got %q", er.PointsFile)
	}

	var sum struct {
		Parameters []archive.Summary `json:"parameters"`
	}
	f.expect(f.do("GET", "/api/v1/archive/summary?parameter_id="+params[0].ID, nil, &sum), http.StatusOK, "")
	if len(sum.Parameters) != 1 || sum.Parameters[0].Count != 60 {
		t.Errorf("summary = %+v", sum.Parameters)
	}

	var files struct {
		Files []archive.File `json:"files"`
	}
	f.expect(f.do("GET", "/api/v1/archive", nil, &files), http.StatusOK, "")
	if len(files.Files) != 2 {
		t.Errorf("files = %+v", files.Files)
	}

	var pr archive.PruneResult
	f.expect(f.do("DELETE", "/api/v1/archive?older_than=1h&dry_run=true", nil, &pr), http.StatusOK, "")
	if pr.FilesDeleted != 0 || pr.FilesSkipped != 2 {
		t.Errorf("prune = %+v", pr)
	}
	f.expect(f.do("DELETE", "/api/v1/archive", nil, nil), http.StatusBadRequest, "invalid_request")
	f.expect(f.do("DELETE", "/api/v1/archive?older_than=0s", nil, nil), http.StatusBadRequest, "invalid_request")

	f.expect(f.do("POST", "/api/v1/archive", map[string]any{}, nil), http.StatusBadRequest, "invalid_request")
	f.expect(f.do("POST", "/api/v1/archive", map[string]any{"parameter_ids": []string{"nope"}}, nil),
		http.StatusNotFound, "not_found")
}

func TestArchiveDisabled(t *testing.T) {
	f := newAPI(t, false)
	f.expect(f.do("GET", "/api/v1/archive/summary", nil, nil), http.StatusNotFound, "not_found")
	f.expect(f.do("POST", "/api/v1/archive", map[string]any{"satellite_id": "x"}, nil), http.StatusNotFound, "not_found")
}

func TestRouting(t *testing.T) {
	f := newAPI(t, false)

	f.expect(f.do("GET", "/api/v1/nothing-here", nil, nil), http.StatusNotFound, "not_found")
	f.expect(f.do("PUT", "/api/v1/satellites", nil, nil), http.StatusMethodNotAllowed, "invalid_request")

	req := httptest.NewRequest("OPTIONS", "/api/v1/satellites", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be allowed with a wildcard origin")
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("simple request: status=%d origin=%q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

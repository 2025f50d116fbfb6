package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bobmcallan/vire-screener/internal/models"
)

func TestDecodeArray_NativeObjects(t *testing.T) {
	raw := json.RawMessage(`[{"symbol":"BHP","date":"2024-01-02","close":45.1,"volume":1000},{"symbol":"CBA","date":"2024-01-02","close":110.5}]`)
	bars, err := DecodeArray[models.Bar](raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Symbol != "BHP" || bars[0].Close != 45.1 || bars[0].Volume != 1000 {
		t.Errorf("bar 0: got %+v", bars[0])
	}
	if bars[1].Date.Format(models.DateLayout) != "2024-01-02" {
		t.Errorf("bar 1 date: got %s", bars[1].Date)
	}
}

func TestDecodeArray_StringEncodedAndMixed(t *testing.T) {
	raw := json.RawMessage(`["{\"symbol\":\"BHP\",\"date\":\"2024-01-02\",\"close\":45.1}", {"symbol":"CBA","date":"2024-01-03","close":110.5}]`)
	bars, err := DecodeArray[models.Bar](raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Symbol != "BHP" || bars[1].Symbol != "CBA" || bars[1].Close != 110.5 {
		t.Errorf("got %+v", bars)
	}
}

func TestDecodeArray_EmptyInputs(t *testing.T) {
	for _, raw := range []string{``, `[]`, `null`} {
		bars, err := DecodeArray[models.Bar](json.RawMessage(raw))
		if err != nil {
			t.Errorf("%q: unexpected error: %v", raw, err)
		}
		if len(bars) != 0 {
			t.Errorf("%q: expected no bars, got %d", raw, len(bars))
		}
	}
}

func TestDecodeArray_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":         `not json`,
		"object":           `{"symbol":"BHP"}`,
		"non-object items": `["not a json object","also not"]`,
		"bad date":         `[{"symbol":"BHP","date":"02/01/2024"}]`,
	}
	for name, raw := range cases {
		if _, err := DecodeArray[models.Bar](json.RawMessage(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPathSymbol(t *testing.T) {
	cases := []struct {
		path, prefix, want string
	}{
		{"/api/bars/BHP", "/api/bars/", "BHP"},
		{"/api/bars/bhp.ax", "/api/bars/", "BHP.AX"},
		{"/api/bars/cba/extra", "/api/bars/", "CBA"},
		{"/api/chart/", "/api/chart/", ""},
		{"/api/other/BHP", "/api/bars/", ""},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if got := pathSymbol(r, tc.prefix); got != tc.want {
			t.Errorf("pathSymbol(%q, %q) = %q, want %q", tc.path, tc.prefix, got, tc.want)
		}
	}
}

func TestRequireMethod_SetsAllow(t *testing.T) {
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/api/parse", nil)
	if RequireMethod(rr, r, http.MethodGet, http.MethodPost) {
		t.Fatal("expected method mismatch")
	}
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") != "GET, POST" {
		t.Errorf("unexpected Allow header %q", rr.Header().Get("Allow"))
	}
}

func TestDecodeJSONLimit_OversizedBody(t *testing.T) {
	body := `{"query":"` + strings.Repeat("x", 200) + `"}`
	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(body))

	var v parseRequest
	if DecodeJSONLimit(rr, r, &v, 64) {
		t.Fatal("expected oversized body to be rejected")
	}
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rr.Code)
	}
}

func TestDecodeJSON_EmptyAndMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"malformed": `{"query":`,
	}
	for name, body := range cases {
		rr := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/parse", strings.NewReader(body))
		var v parseRequest
		if DecodeJSON(rr, r, &v) {
			t.Errorf("%s: expected rejection", name)
			continue
		}
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestWriteErrorWithCode_EchoesCorrelationID(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set(correlationHeader, "abcd1234")

	WriteErrorWithCode(rr, http.StatusBadRequest, "query is required", "empty_query")

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "empty_query" || resp.CorrelationID != "abcd1234" || resp.Error != "query is required" {
		t.Errorf("unexpected body %+v", resp)
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusOK, map[string]float64{"bad": math.NaN()})

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"internal"`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

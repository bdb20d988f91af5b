package patient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const validBody = `{
	"patientId": "P123",
	"name": "John Doe",
	"dateOfBirth": "1985-02-20",
	"gender": "Male",
	"contactInfo": {"phone": "+1 555-987-6543", "email": "john@example.com", "address": "221B Baker Street, London"},
	"allergies": ["Penicillin"],
	"doctorNotes": ""
}`

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc, zerolog.New(io.Discard)), echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createViaHandler(t *testing.T, h *Handler, e *echo.Echo) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/patients", validBody), rec)
	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode(t, rec)["patientId"].(string)
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()
	id := createViaHandler(t, h, e)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected storage id in response, got %q", id)
	}
}

func TestHandler_CreatePatient_ValidationErrors(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/patients", `{"patientId":"P1","name":"John Doe"}`), rec)
	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode(t, rec)
	errs, _ := body["errors"].(map[string]any)
	if errs["patientId"] != "Patient ID must be in format P001-P999999" {
		t.Errorf("unexpected patientId error %v", errs["patientId"])
	}
	if _, ok := errs["name"]; ok {
		t.Error("expected no name error")
	}
	if errs["email"] != "Email address is required" {
		t.Errorf("unexpected email error %v", errs["email"])
	}
}

func TestHandler_CreatePatient_Conflict(t *testing.T) {
	h, e := newTestHandler()
	createViaHandler(t, h, e)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/patients", validBody), rec)
	h.CreatePatient(c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "Patient ID already exists" {
		t.Errorf("unexpected error %v", got)
	}
}

func TestHandler_CreatePatient_MalformedBody(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/patients", `{"name":`), rec)
	h.CreatePatient(c)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler()
	id := createViaHandler(t, h, e)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["patientId"] != "P123" {
		t.Errorf("expected P123, got %v", body["patientId"])
	}
	if hist, ok := body["medicalHistory"].([]any); !ok || len(hist) != 0 {
		t.Errorf("expected medicalHistory to serialize as [], got %v", body["medicalHistory"])
	}
}

func TestHandler_GetPatient_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	h.GetPatient(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "Invalid patient ID" {
		t.Errorf("unexpected error %v", got)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	h.GetPatient(c)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_UpdatePatient(t *testing.T) {
	h, e := newTestHandler()
	id := createViaHandler(t, h, e)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", `{"allergies":["Latex","Latex"],"doctorNotes":"Re-test"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["message"] != "Patient updated successfully" || body["modifiedCount"] != float64(1) {
		t.Errorf("unexpected body %v", body)
	}

	p, _ := h.svc.Get(context.Background(), uuid.MustParse(id))
	if len(p.Allergies) != 2 || p.DoctorNotes != "Re-test" {
		t.Errorf("unexpected stored patient %+v", p)
	}
}

func TestHandler_UpdatePatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", `{"doctorNotes":"x"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	h.UpdatePatient(c)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, e := newTestHandler()
	id := createViaHandler(t, h, e)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec)["deletedCount"]; got != float64(1) {
		t.Errorf("expected deletedCount 1, got %v", got)
	}
}

func TestHandler_ListPatients(t *testing.T) {
	h, e := newTestHandler()
	createViaHandler(t, h, e)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/patients?search=pen&field=allergies&page=0&limit=500", nil), rec)

	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := decode(t, rec)
	if body["total"] != float64(1) || body["currentPage"] != float64(1) || body["totalPages"] != float64(1) {
		t.Errorf("unexpected envelope %v", body)
	}
	if patients, _ := body["patients"].([]any); len(patients) != 1 {
		t.Errorf("expected 1 patient, got %v", body["patients"])
	}
}

func TestHandler_ListPatients_StoreFailure(t *testing.T) {
	h, e := newTestHandler()
	h.svc.patients.(*mockPatientRepo).failWith = errors.New("connection reset")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/patients", nil), rec)
	h.ListPatients(c)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "Failed to fetch patients" {
		t.Errorf("expected generic message, got %v", got)
	}
}

func TestHandler_GetStats(t *testing.T) {
	h, e := newTestHandler()
	createViaHandler(t, h, e)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/patients/stats", nil), rec)
	if err := h.GetStats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := decode(t, rec)
	if body["totalPatients"] != float64(1) {
		t.Errorf("expected totalPatients 1, got %v", body["totalPatients"])
	}
	if recent, _ := body["recentActivity"].([]any); len(recent) != 1 {
		t.Errorf("expected 1 recent entry, got %v", body["recentActivity"])
	}
}

func TestHandler_AnalyzeQuery_MissingQuery(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/patients/optimize", nil), rec)

	h.AnalyzeQuery(c)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "Query parameter is required" {
		t.Errorf("unexpected error %v", got)
	}
}

func TestHandler_AnalyzeQuery(t *testing.T) {
	h, e := newTestHandler()
	h.svc.patients.(*mockPatientRepo).explain = []byte(bitmapPlan)
	createViaHandler(t, h, e)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/patients/optimize?query=john", nil), rec)
	if err := h.AnalyzeQuery(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := decode(t, rec)
	perf, _ := body["performance"].(map[string]any)
	if idx, _ := perf["indexesUsed"].([]any); len(idx) != 1 {
		t.Errorf("expected indexesUsed array with one index, got %v", perf["indexesUsed"])
	}
	if results, _ := body["results"].([]any); len(results) != 1 {
		t.Errorf("expected 1 result, got %v", body["results"])
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/patients", validBody))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/patients/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected stats route to win over :id, got %d", rec.Code)
	}
}

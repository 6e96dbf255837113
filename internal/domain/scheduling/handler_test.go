package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo, *fixture) {
	f := newFixture(t)
	return NewHandler(f.svc), newEcho(), f
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler(zerolog.Nop())
	return e
}

// serve routes the request through RegisterRoutes with actor attached.
func serve(e *echo.Echo, h *Handler, actor auth.Actor, method, target, body string) *httptest.ResponseRecorder {
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, e, f := newTestHandler(t)

	body := `{"physician_id":"` + f.physician.ID.String() + `","start_at":"2025-01-10T09:00","end_at":"2025-01-10T09:30"}`
	rec := serve(e, h, f.patient, http.MethodPost, "/api/v1/appointments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.Status != StatusPending || a.PatientID != f.patient.UserID {
		t.Errorf("unexpected appointment: %+v", a)
	}
}

func TestHandler_CreateAppointment_Conflict(t *testing.T) {
	h, e, f := newTestHandler(t)
	f.book(t, f.physician, f.other, "2025-01-10T09:00", "2025-01-10T10:00")

	body := `{"physician_id":"` + f.physician.ID.String() + `","start_at":"2025-01-10T09:30","end_at":"2025-01-10T10:30"}`
	rec := serve(e, h, f.patient, http.MethodPost, "/api/v1/appointments", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp apperr.ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != apperr.CodeSchedulingConflict {
		t.Errorf("expected conflict code, got %+v", resp)
	}
}

func TestHandler_CreateAppointment_BadTimestamp(t *testing.T) {
	h, e, f := newTestHandler(t)

	body := `{"physician_id":"` + f.physician.ID.String() + `","start_at":"10/01/2025","end_at":"2025-01-10T10:30"}`
	rec := serve(e, h, f.patient, http.MethodPost, "/api/v1/appointments", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_GetAppointment_InvalidID(t *testing.T) {
	h, e, f := newTestHandler(t)

	rec := serve(e, h, f.admin, http.MethodGet, "/api/v1/appointments/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_EditAppointment_Forbidden(t *testing.T) {
	h, e, f := newTestHandler(t)
	a := f.book(t, f.physician, f.other, "2025-01-10T09:00", "2025-01-10T10:00")

	body := `{"start_at":"2025-01-10T11:00","end_at":"2025-01-10T12:00"}`
	rec := serve(e, h, f.patient, http.MethodPut, "/api/v1/appointments/"+a.ID.String(), body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestHandler_CancelAppointment_Window(t *testing.T) {
	h, e, f := newTestHandler(t)
	a := f.book(t, f.physician, f.patient, "2025-01-09T12:00", "2025-01-09T12:30")

	rec := serve(e, h, f.patient, http.MethodPost, "/api/v1/appointments/"+a.ID.String()+"/cancel", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	rec = serve(newEcho(), h, f.doctor, http.MethodPost, "/api/v1/appointments/"+a.ID.String()+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for physician, got %d", rec.Code)
	}
	var res CancelResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Appointment == nil || res.Appointment.Status != StatusCancelled {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestHandler_ListAppointments_Paginated(t *testing.T) {
	h, e, f := newTestHandler(t)
	f.book(t, f.physician, f.patient, "2025-01-10T09:00", "2025-01-10T10:00")
	f.book(t, f.physician, f.patient, "2025-01-10T10:00", "2025-01-10T11:00")
	f.book(t, f.physician, f.patient, "2025-01-10T11:00", "2025-01-10T12:00")

	rec := serve(e, h, f.patient, http.MethodGet, "/api/v1/appointments?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data    []Appointment `json:"data"`
		Total   int           `json:"total"`
		HasMore bool          `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Data) != 2 || body.Total != 3 || !body.HasMore {
		t.Errorf("unexpected page: %d items, total %d, has_more %v", len(body.Data), body.Total, body.HasMore)
	}
}

func TestHandler_UpcomingRequiresPhysician(t *testing.T) {
	h, e, f := newTestHandler(t)

	rec := serve(e, h, f.patient, http.MethodGet, "/api/v1/appointments/upcoming", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	rec = serve(newEcho(), h, f.doctor, http.MethodGet, "/api/v1/appointments/upcoming?patient_id=bad", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad patient_id, got %d", rec.Code)
	}
}

func TestHandler_Concluded_EmptyIsArray(t *testing.T) {
	h, e, f := newTestHandler(t)

	rec := serve(e, h, f.doctor, http.MethodGet, "/api/v1/appointments/concluded", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_PhysicianRoutes(t *testing.T) {
	h, e, f := newTestHandler(t)
	f.book(t, f.physician, f.patient, "2025-01-10T09:00", "2025-01-10T10:00")

	rec := serve(e, h, f.doctor, http.MethodGet, "/api/v1/physicians/me/patients", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), f.patient.UserID.String()) {
		t.Errorf("expected own patients, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(newEcho(), h, f.otherDoc, http.MethodGet, "/api/v1/physicians/"+f.physician.ID.String(), "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another physician's calendar, got %d", rec.Code)
	}
}

func TestHandler_Dashboard(t *testing.T) {
	h, e, f := newTestHandler(t)

	rec := serve(e, h, f.doctor, http.MethodGet, "/api/v1/dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var d Dashboard
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d.Physician == nil || d.Physician.ID != f.physician.ID {
		t.Errorf("expected physician on dashboard, got %+v", d.Physician)
	}
}

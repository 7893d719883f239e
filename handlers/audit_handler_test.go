package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditmgt/config"
	"auditmgt/models"
	"auditmgt/utils"
	"auditmgt/websocket"
)

type auditFixture struct {
	router http.Handler
	store  *fakeAuditStore
	events *recordingPublisher
}

func newAuditFixture(t *testing.T, policy config.OwnershipPolicy) *auditFixture {
	t.Helper()
	s := newFakeAuditStore()
	events := &recordingPublisher{}
	h := NewAuditHandler(s, policy, events, nil, nil)

	r := mux.NewRouter()
	r.Use(asUser)
	r.HandleFunc("/api/audits", h.ListAudits).Methods(http.MethodGet)
	r.HandleFunc("/api/audits", h.CreateAudit).Methods(http.MethodPost)
	r.HandleFunc("/api/audits/stats", h.GetStats).Methods(http.MethodGet)
	r.HandleFunc("/api/audits/{id}", h.GetAudit).Methods(http.MethodGet)
	r.HandleFunc("/api/audits/{id}", h.UpdateAudit).Methods(http.MethodPut)
	r.HandleFunc("/api/audits/{id}", h.DeleteAudit).Methods(http.MethodDelete)
	return &auditFixture{router: r, store: s, events: events}
}

func (f *auditFixture) do(t *testing.T, method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *auditFixture) create(t *testing.T, user string) models.Audit {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/audits", user,
		`{"auditName":"Q4 Financial Audit","company":"TechCorp Inc.","auditDate":"2024-01-15","auditor":"John Smith","auditType":"financial"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAudit(t, rec)
}

func decodeAudit(t *testing.T, rec *httptest.ResponseRecorder) models.Audit {
	t.Helper()
	var body struct {
		Audit models.Audit `json:"audit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Audit
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func detailPaths(e utils.ErrorResponse) []string {
	out := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		out = append(out, d.Path)
	}
	return out
}

func TestAuditHandler_RequiresSession(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	a := f.create(t, "owner")

	cases := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/audits", ""},
		{http.MethodPost, "/api/audits", `{"auditName":"x"}`},
		{http.MethodGet, "/api/audits/stats", ""},
		{http.MethodGet, "/api/audits/" + a.ID, ""},
		{http.MethodPut, "/api/audits/" + a.ID, `{"status":"pending"}`},
		{http.MethodDelete, "/api/audits/" + a.ID, ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, "", tc.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Unauthorized", decodeError(t, rec).Error)
		})
	}
}

func TestAuditHandler_CreateThenGet(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)

	rec := f.do(t, http.MethodPost, "/api/audits", "owner",
		`{"auditName":"Q4 Financial Audit","company":"TechCorp Inc.","auditDate":"2024-01-15","auditor":"John Smith","auditType":"financial"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))

	created := decodeAudit(t, rec)
	assert.Regexp(t, `^AUD-\d{4}-\d{6}$`, created.ID)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.Equal(t, "owner", created.UserID)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Nil(t, created.FormData)

	rec = f.do(t, http.MethodGet, "/api/audits/"+created.ID, "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAudit(t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Q4 Financial Audit", got.AuditName)
	assert.Equal(t, "TechCorp Inc.", got.Company)
	assert.Equal(t, "2024-01-15", got.AuditDate)
	assert.Equal(t, "John Smith", got.Auditor)
	assert.Equal(t, models.AuditTypeFinancial, got.AuditType)

	assert.Equal(t, []string{websocket.EventAuditCreated}, f.events.types())
}

func TestAuditHandler_CreateWithFormDataIsCompleted(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	payload, err := json.Marshal(map[string]interface{}{
		"auditName": "Q1 Security Review",
		"company":   "Acme",
		"auditDate": "2024-03-01",
		"auditor":   "Jane Doe",
		"auditType": "security",
		"formData":  validFormData(),
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/audits", "owner", string(payload))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeAudit(t, rec)
	assert.Equal(t, models.StatusCompleted, a.Status)
	require.NotNil(t, a.FormData)
	assert.Equal(t, "IT", a.FormData.BasicInfo.Department)
}

func TestAuditHandler_CreateRejectsInvalidPayload(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)

	rec := f.do(t, http.MethodPost, "/api/audits", "owner",
		`{"company":"Acme","auditDate":"2024-01-15","auditor":"Jane","auditType":"marketing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "Invalid data", e.Error)
	assert.ElementsMatch(t, []string{"auditName", "auditType"}, detailPaths(e))

	form := validFormData()
	form.ProcessEvaluation.ProcessEfficiency = 11
	payload, _ := json.Marshal(map[string]interface{}{
		"auditName": "A", "company": "B", "auditDate": "2024-01-01",
		"auditor": "C", "auditType": "quality", "formData": form,
	})
	rec = f.do(t, http.MethodPost, "/api/audits", "owner", string(payload))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, detailPaths(decodeError(t, rec)), "formData.processEvaluation.processEfficiency")

	rec = f.do(t, http.MethodPost, "/api/audits", "owner", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.store.audits)
	assert.Empty(t, f.events.types())
}

func TestAuditHandler_NonOwnerSplitPolicy(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	a := f.create(t, "owner")

	rec := f.do(t, http.MethodGet, "/api/audits/"+a.ID, "intruder", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decodeError(t, rec).Error)

	rec = f.do(t, http.MethodPut, "/api/audits/"+a.ID, "intruder", `{"status":"completed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Audit not found", decodeError(t, rec).Error)

	rec = f.do(t, http.MethodDelete, "/api/audits/"+a.ID, "intruder", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/audits/"+a.ID, "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeAudit(t, rec)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Equal(t, a.Version, got.Version)
}

func TestOwnershipStatus(t *testing.T) {
	tests := []struct {
		policy   config.OwnershipPolicy
		mutating bool
		want     int
	}{
		{config.PolicySplit, false, http.StatusForbidden},
		{config.PolicySplit, true, http.StatusNotFound},
		{config.PolicyConceal, false, http.StatusNotFound},
		{config.PolicyConceal, true, http.StatusNotFound},
		{config.PolicyReveal, false, http.StatusForbidden},
		{config.PolicyReveal, true, http.StatusForbidden},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ownershipStatus(tt.policy, tt.mutating), "%s mutating=%v", tt.policy, tt.mutating)
	}
}

func TestAuditHandler_ConcealPolicyHidesReads(t *testing.T) {
	f := newAuditFixture(t, config.PolicyConceal)
	a := f.create(t, "owner")

	rec := f.do(t, http.MethodGet, "/api/audits/"+a.ID, "intruder", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Audit not found", decodeError(t, rec).Error)
}

func TestAuditHandler_UpdateChangesOnlyGivenFields(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	a := f.create(t, "owner")

	rec := f.do(t, http.MethodPut, "/api/audits/"+a.ID, "owner",
		`{"status":"pending","userId":"intruder","id":"AUD-1999-000001"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))

	got := decodeAudit(t, rec)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "owner", got.UserID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, a.AuditName, got.AuditName)
	assert.Equal(t, a.Company, got.Company)
	assert.Equal(t, a.AuditDate, got.AuditDate)
	assert.Equal(t, a.Auditor, got.Auditor)
	assert.Equal(t, a.AuditType, got.AuditType)
	assert.Equal(t, a.CreatedAt, got.CreatedAt)
	assert.Greater(t, got.UpdatedAt, a.UpdatedAt)
	assert.Equal(t, int64(2), got.Version)

	assert.Equal(t, []string{websocket.EventAuditCreated, websocket.EventAuditUpdated}, f.events.types())
}

func TestAuditHandler_UpdateValidation(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	a := f.create(t, "owner")

	rec := f.do(t, http.MethodPut, "/api/audits/"+a.ID, "owner", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"status"}, detailPaths(decodeError(t, rec)))

	rec = f.do(t, http.MethodPut, "/api/audits/"+a.ID, "owner", `{"auditName":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/audits/AUD-2024-999999", "owner", `{"status":"pending"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditHandler_IfMatch(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	a := f.create(t, "owner")

	rec := f.do(t, http.MethodPut, "/api/audits/"+a.ID, "owner", `{"status":"in-progress"}`, "If-Match", `"1"`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/audits/"+a.ID, "owner", `{"status":"completed"}`, "If-Match", `"1"`)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "Audit was modified by someone else", decodeError(t, rec).Error)
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))

	rec = f.do(t, http.MethodPut, "/api/audits/"+a.ID, "owner", `{"status":"completed"}`, "If-Match", "not-a-version")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/audits/"+a.ID, "owner", `{"status":"completed"}`, "If-Match", "*")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusCompleted, decodeAudit(t, rec).Status)
}

func TestParseIfMatch(t *testing.T) {
	tests := []struct {
		header string
		want   *int64
		ok     bool
	}{
		{"", nil, true},
		{"*", nil, true},
		{`"3"`, ptr(int64(3)), true},
		{`W/"4"`, ptr(int64(4)), true},
		{"5", ptr(int64(5)), true},
		{`"abc"`, nil, false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		if tt.header != "" {
			req.Header.Set("If-Match", tt.header)
		}
		got, ok := parseIfMatch(req)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func ptr[T any](v T) *T { return &v }

func TestAuditHandler_Delete(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	a := f.create(t, "owner")

	rec := f.do(t, http.MethodDelete, "/api/audits/"+a.ID, "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/audits/"+a.ID, "owner", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/audits/"+a.ID, "owner", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{websocket.EventAuditCreated, websocket.EventAuditDeleted}, f.events.types())
}

func TestAuditHandler_DeleteReportsVanishedAudit(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	a := f.create(t, "owner")
	f.store.vanish = true

	rec := f.do(t, http.MethodDelete, "/api/audits/"+a.ID, "owner", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to delete audit", decodeError(t, rec).Error)
}

func TestAuditHandler_ListAndFilter(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)

	rec := f.do(t, http.MethodGet, "/api/audits", "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"audits":[]}`, rec.Body.String())

	first := f.create(t, "owner")
	f.create(t, "owner")
	f.create(t, "someone-else")
	rec = f.do(t, http.MethodPut, "/api/audits/"+first.ID, "owner", `{"status":"pending"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Audits []models.Audit `json:"audits"`
	}
	rec = f.do(t, http.MethodGet, "/api/audits", "owner", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Audits, 2)
	for _, a := range body.Audits {
		assert.Equal(t, "owner", a.UserID)
	}

	rec = f.do(t, http.MethodGet, "/api/audits?status=pending", "owner", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Audits, 1)
	assert.Equal(t, first.ID, body.Audits[0].ID)

	rec = f.do(t, http.MethodGet, "/api/audits?status=bogus", "owner", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"status"}, detailPaths(decodeError(t, rec)))
}

func TestAuditHandler_Stats(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)

	rec := f.do(t, http.MethodGet, "/api/audits/stats", "owner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stats":{"total":0,"completed":0,"inProgress":0,"pending":0,"draft":0}}`, rec.Body.String())

	a := f.create(t, "owner")
	f.create(t, "owner")
	f.create(t, "other")
	f.do(t, http.MethodPut, "/api/audits/"+a.ID, "owner", `{"status":"in-progress"}`)

	rec = f.do(t, http.MethodGet, "/api/audits/stats", "owner", "")
	var body struct {
		Stats models.AuditStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.AuditStats{Total: 2, InProgress: 1, Draft: 1}, body.Stats)
}

func TestAuditHandler_StoreFailureIsInternalError(t *testing.T) {
	f := newAuditFixture(t, config.PolicySplit)
	f.store.failAll = errors.New("connection reset")

	for _, path := range []string{"/api/audits", "/api/audits/stats", "/api/audits/AUD-2024-000001"} {
		rec := f.do(t, http.MethodGet, path, "owner", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
		assert.Equal(t, "Internal server error", decodeError(t, rec).Error)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	}
}

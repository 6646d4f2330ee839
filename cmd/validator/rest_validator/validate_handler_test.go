package restvalidator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/codetask/validator/language"
	"github.com/codetask/validator/scheduler"
	"github.com/codetask/validator/types"
)

type mockScheduler struct {
	submitErr error
	report    *types.Report
	cancelled map[string]bool
	lastJob   *scheduler.Job
}

func (m *mockScheduler) Submit(_ context.Context, job *scheduler.Job) (<-chan *types.Report, error) {
	m.lastJob = job
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	ch := make(chan *types.Report, 1)
	rep := m.report
	if rep == nil {
		rep = &types.Report{SubmissionID: job.Submission.ID, Verdict: types.VerdictAccepted}
	}
	ch <- rep
	return ch, nil
}

func (m *mockScheduler) Cancel(id string) bool {
	return m.cancelled[id]
}

func newTestRouter(t *testing.T, m *mockScheduler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewValidateHandle(m, language.Default(), zaptest.NewLogger(t)).Register(r)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validBody() map[string]any {
	return map[string]any{
		"language": "python",
		"source":   "print(1)",
		"cases": []map[string]any{
			{"input": "1\n", "expected": "1\n"},
		},
	}
}

func TestHandleValidate(t *testing.T) {
	m := &mockScheduler{}
	r := newTestRouter(t, m)

	w := postJSON(t, r, "/validate", validBody())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rep types.Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.SubmissionID == "" {
		t.Error("expected a submission id in the report")
	}
	if m.lastJob == nil || len(m.lastJob.Cases) != 1 {
		t.Errorf("job = %+v", m.lastJob)
	}
}

func TestHandleValidateBadRequest(t *testing.T) {
	r := newTestRouter(t, &mockScheduler{})

	body := validBody()
	delete(body, "cases")
	if w := postJSON(t, r, "/validate", body); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}

	body = validBody()
	body["language"] = "cobol"
	if w := postJSON(t, r, "/validate", body); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleValidateOverloaded(t *testing.T) {
	r := newTestRouter(t, &mockScheduler{submitErr: scheduler.ErrOverloaded})
	if w := postJSON(t, r, "/validate", validBody()); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleValidateDuplicate(t *testing.T) {
	r := newTestRouter(t, &mockScheduler{submitErr: scheduler.ErrDuplicate})
	if w := postJSON(t, r, "/validate", validBody()); w.Code != http.StatusConflict {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleCancel(t *testing.T) {
	m := &mockScheduler{cancelled: map[string]bool{"s1": true}}
	r := newTestRouter(t, m)

	if w := postJSON(t, r, "/cancel/s1", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if w := postJSON(t, r, "/cancel/unknown", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHandleLanguages(t *testing.T) {
	r := newTestRouter(t, &mockScheduler{})
	req := httptest.NewRequest(http.MethodGet, "/languages", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var names []string
	if err := json.Unmarshal(w.Body.Bytes(), &names); err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 {
		t.Error("expected at least one language")
	}
}

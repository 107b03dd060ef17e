package echoapi

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/wakora/hatua/core/cycle"
)

func TestHome(t *testing.T) {
	app := newTestApp(t)

	req, rec := newRequest(http.MethodGet, "/")
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %v, want %v", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "Welcome to Hatua API!" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAuthAndRoleGuards(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	app.addFounder(t, "fd-2")

	founderToken := getToken(t, app.conf, "fd-1", true, false, false)
	mentorToken := getToken(t, app.conf, "m-1", false, true, false)
	adminToken := getToken(t, app.conf, "a-1", false, false, true)

	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{
			name: "missing token", method: http.MethodPost, path: "/v1/commits",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "mentor cannot submit commits", method: http.MethodPost, path: "/v1/commits",
			token: mentorToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "founder cannot enroll", method: http.MethodPost, path: "/v1/founders/fd-2/enroll",
			token: founderToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "founder cannot lock", method: http.MethodPost, path: "/v1/founders/fd-2/lock",
			token: founderToken, wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "founder cannot view another founder's cycle", method: http.MethodGet,
			path: "/v1/founders/fd-2/cycle", token: founderToken,
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "founder can view their own cycle", method: http.MethodGet,
			path: "/v1/founders/fd-1/cycle", token: founderToken, wantCode: http.StatusOK,
		},
		{
			name: "mentor can view any cycle", method: http.MethodGet,
			path: "/v1/founders/fd-1/cycle", token: mentorToken, wantCode: http.StatusOK,
		},
		{
			name: "founder cannot view the audit trail", method: http.MethodGet,
			path: "/v1/founders/fd-1/audit", token: founderToken,
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "mentor can view the audit trail", method: http.MethodGet,
			path: "/v1/founders/fd-1/audit", token: mentorToken, wantCode: http.StatusOK,
		},
		{
			name: "admin can view notifications", method: http.MethodGet,
			path: "/v1/founders/fd-1/notifications", token: adminToken, wantCode: http.StatusOK,
		},
		{
			name: "founder cannot submit another founder's rsd", method: http.MethodPost,
			path: "/v1/founders/fd-2/rsd", token: founderToken,
			body:     marchallObj(t, RSDRequest{Completion: 50}),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{
			name: "unknown founder is a 404", method: http.MethodGet,
			path: "/v1/founders/ghost/cycle", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "Not Found"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestSubmitCommitEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	token := getToken(t, app.conf, "fd-1", true, false, false)

	body := marchallObj(t, cycle.NewCommit{
		Goal: "close 3 pilot customers", TargetRevenue: 2000, PlannedHours: 40,
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/commits", token, body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %v, want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	// a second commit hits the wrong phase
	tt := httpTest{
		wantCode: http.StatusForbidden,
		wantData: []byte(`{"reason":"wrong_phase"}`),
	}
	req, rec = newAuthRequest(http.MethodPost, "/v1/commits", token, body)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func TestSubmitCommitValidation(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	token := getToken(t, app.conf, "fd-1", true, false, false)

	tt := httpTest{
		wantCode: http.StatusUnprocessableEntity,
		wantData: []byte(`{
			"goal": "this field is required",
			"target_revenue": "this field is required",
			"planned_hours": "this field is required"
		}`),
	}
	req, rec := newAuthRequest(http.MethodPost, "/v1/commits", token, []byte(`{}`))
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func TestSubmitCommitPastDeadlineEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	token := getToken(t, app.conf, "fd-1", true, false, false)

	app.setNow(time.Date(2026, time.January, 5, 9, 0, 1, 0, app.loc))
	body := marchallObj(t, cycle.NewCommit{Goal: "late", TargetRevenue: 100, PlannedHours: 10})
	req, rec := newAuthRequest(http.MethodPost, "/v1/commits", token, body)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusForbidden,
		wantData: []byte(`{"reason":"past_deadline"}`),
	}, rec)
}

func TestSubmitReportEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	token := getToken(t, app.conf, "fd-1", true, false, false)
	app.runToPendingReport(t, "fd-1", token)

	app.setNow(time.Date(2026, time.January, 9, 13, 0, 0, 0, app.loc))

	// evidence-less report is rejected with a field error
	body := marchallObj(t, cycle.NewReport{RevenueGenerated: 1200, HoursSpent: 30})
	req, rec := newAuthRequest(http.MethodPost, "/v1/reports", token, body)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusUnprocessableEntity,
		wantData: []byte(`{"evidence_urls": "at least one evidence URL is required"}`),
	}, rec)

	// resubmission with evidence lands
	body = marchallObj(t, cycle.NewReport{
		RevenueGenerated: 1200, HoursSpent: 30,
		EvidenceURLs: []string{"https://drive.example.com/week1"},
	})
	req, rec = newAuthRequest(http.MethodPost, "/v1/reports", token, body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %v, want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestLockedFounderIsDenied(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	token := getToken(t, app.conf, "fd-1", true, false, false)
	adminToken := getToken(t, app.conf, "a-1", false, false, true)

	lockBody := marchallObj(t, LockRequest{Rationale: "program violation"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/founders/fd-1/lock", adminToken, lockBody)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("lock code = %v, want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	body := marchallObj(t, cycle.NewCommit{Goal: "g", TargetRevenue: 1, PlannedHours: 1})
	req, rec = newAuthRequest(http.MethodPost, "/v1/commits", token, body)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusForbidden,
		wantData: []byte(`{"reason":"account_locked"}`),
	}, rec)

	// unlock reopens the account
	unlockBody := marchallObj(t, LockRequest{Rationale: "resolved with mentor"})
	req, rec = newAuthRequest(http.MethodPost, "/v1/founders/fd-1/unlock", adminToken, unlockBody)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock code = %v, want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	req, rec = newAuthRequest(http.MethodPost, "/v1/commits", token, body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("code = %v, want %v after unlock", rec.Code, http.StatusCreated)
	}
}

func TestUnlockWhenNotLocked(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	adminToken := getToken(t, app.conf, "a-1", false, false, true)

	body := marchallObj(t, LockRequest{Rationale: "oops"})
	req, rec := newAuthRequest(http.MethodPost, "/v1/founders/fd-1/unlock", adminToken, body)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: []byte(`{"error":"account is not locked"}`),
	}, rec)
}

func TestMentorApprovalEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	mentorToken := getToken(t, app.conf, "m-1", false, true, false)

	req, rec := newAuthRequest(http.MethodPost, "/v1/founders/fd-1/mentor-approval", mentorToken)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, SuccessResponse{Success: "approval recorded"}),
	}, rec)
}

func TestGetStagesEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.addFounder(t, "fd-1")
	token := getToken(t, app.conf, "fd-1", true, false, false)

	req, rec := newAuthRequest(http.MethodGet, "/v1/founders/fd-1/stages", token)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v, want %v", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"stage_number":1`) || !strings.Contains(body, `"in_progress"`) {
		t.Errorf("body = %s, want stage 1 in progress", body)
	}
}

// runToPendingReport drives the founder's week to the report window through
// the API and the tick path.
func (app *testApp) runToPendingReport(t *testing.T, founderID, token string) {
	t.Helper()

	app.setNow(time.Date(2026, time.January, 5, 8, 30, 0, 0, app.loc))
	body := marchallObj(t, cycle.NewCommit{
		Goal: "close 3 pilot customers", TargetRevenue: 2000, PlannedHours: 40,
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/commits", token, body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("commit code = %v; body %s", rec.Code, rec.Body.String())
	}

	at := time.Date(2026, time.January, 9, 12, 0, 0, 0, app.loc)
	app.setNow(at)
	if err := app.cycles.ProcessTick(context.Background(), founderID, cycle.TickReportWindow, at); err != nil {
		t.Fatalf("report window tick: %v", err)
	}
}

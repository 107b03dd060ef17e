package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/wakora/hatua/core"
	"github.com/wakora/hatua/core/audit"
	"github.com/wakora/hatua/core/cycle"
	"github.com/wakora/hatua/core/founder"
	"github.com/wakora/hatua/core/notification"
	"github.com/wakora/hatua/core/stage"
	emailsvc "github.com/wakora/hatua/services/email"
	evidencesvc "github.com/wakora/hatua/services/evidence"
	inmemdb "github.com/wakora/hatua/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte // nil skips the body check
}

// testApp is the API plus direct handles on its collaborators, so tests can
// seed state and move the clock.
type testApp struct {
	server   Server
	conf     *core.Config
	db       *inmemdb.DB
	founders *founder.Service
	cycles   *cycle.Service
	stages   *stage.Service
	evidence *evidencesvc.StaticChecker
	loc      *time.Location
	now      time.Time
}

func (app *testApp) setNow(t time.Time) { app.now = t }

func testConfig() *core.Config {
	return &core.Config{
		TestMode:  true,
		AppName:   "Hatua",
		SecretKey: "test-secret",
		Server:    core.ServerConfig{JWTExpirationDelta: 10 * time.Minute},
		Program: core.ProgramConfig{
			Timezone:             "Africa/Lagos",
			Weeks:                12,
			LockThreshold:        2,
			RollingWindow:        3,
			StageReportsNeeded:   2,
			Stage3Multiplier:     2.0,
			GraduationMultiplier: 4.0,
		},
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conf := testConfig()
	loc := conf.Location()
	app := &testApp{
		conf:     conf,
		db:       inmemdb.Open(),
		evidence: &evidencesvc.StaticChecker{Rejected: make(map[string]bool)},
		loc:      loc,
		now:      time.Date(2026, time.January, 5, 8, 0, 0, 0, loc), // Monday 08:00
	}
	clock := core.ClockFunc(func() time.Time { return app.now })
	logger := core.NopLogger{}
	sched := cycle.NewSchedule(loc)

	cycleRepo := inmemdb.NewCycleRepository(app.db)
	directory := inmemdb.NewFounderDirectory(app.db)
	notifRepo := inmemdb.NewNotificationRepository(app.db)
	auditor := audit.NewWriter(inmemdb.NewAuditRepository(app.db), clock, logger)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	resolve := func(ctx context.Context, founderID string) ([]mail.Address, error) {
		f, err := directory.GetFounder(ctx, founderID)
		if err != nil {
			return nil, err
		}
		return []mail.Address{{Name: f.Name, Address: f.Email}}, nil
	}
	dispatcher := notification.NewDispatcher(notifRepo, mailSvc, resolve, clock, logger, conf)
	t.Cleanup(dispatcher.Close)

	app.founders = founder.NewService(inmemdb.NewFounderRepository(app.db), dispatcher, notifRepo, auditor, clock, conf)
	app.stages = stage.NewService(inmemdb.NewStageRepository(app.db), cycleRepo, app.founders, directory, dispatcher, auditor, clock, conf, logger)
	app.cycles = cycle.NewService(cycleRepo, app.founders, app.stages, dispatcher, auditor, *app.evidence, clock, sched, conf, logger)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	cycle.InitValidators(validate, translator)

	app.server = NewServer(ServerDeps{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         logger,
		CycleSvc:       app.cycles,
		FounderSvc:     app.founders,
		StageSvc:       app.stages,
		Auditor:        auditor,
		Dispatcher:     dispatcher,
		Validate:       validate,
		Translator:     translator,
	})
	return app
}

// addFounder seeds the directory and enrolls the founder into the program.
func (app *testApp) addFounder(t *testing.T, id string) {
	t.Helper()
	app.db.AddFounder(founder.Founder{
		ID:              id,
		Name:            "Founder " + id,
		Email:           id + "@example.com",
		MentorEmail:     "mentor@example.com",
		BaselineRevenue: 1000,
	})
	if _, err := app.cycles.Enroll(context.Background(), id); err != nil {
		t.Fatalf("enrolling %s: %v", id, err)
	}
}

func getToken(t *testing.T, conf *core.Config, subject string, isFounder, isMentor, isAdmin bool) string {
	t.Helper()
	claims := NewClaims(conf, subject, "Test User", subject+"@example.com", isFounder, isMentor, isAdmin)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportgate/reportgate/pkg/audit"
	"github.com/reportgate/reportgate/pkg/embed"
	"github.com/reportgate/reportgate/pkg/entitlement"
	"github.com/reportgate/reportgate/pkg/errs"
	"github.com/reportgate/reportgate/pkg/identity"
	"github.com/reportgate/reportgate/pkg/links"
	"github.com/reportgate/reportgate/pkg/observability"
	"github.com/reportgate/reportgate/pkg/powerbi"
	"github.com/reportgate/reportgate/pkg/reports"
	"github.com/reportgate/reportgate/pkg/units"
)

// ---- fakes ----

type fakeUsers struct {
	byID map[int64]*identity.User
}

func (f *fakeUsers) CreateUser(req *identity.CreateUserRequest) (*identity.User, error) {
	user := &identity.User{ID: int64(len(f.byID) + 1), Username: req.Username, Role: req.Role}
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUsers) GetUser(id int64) (*identity.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, errs.NotFound("user %d not found", id)
	}
	return user, nil
}

func (f *fakeUsers) GetUserByUsername(username string) (*identity.User, error) {
	for _, user := range f.byID {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, errs.NotFound("user %q not found", username)
}

func (f *fakeUsers) ListUsers() ([]*identity.User, error) {
	out := make([]*identity.User, 0, len(f.byID))
	for _, user := range f.byID {
		out = append(out, user)
	}
	return out, nil
}

func (f *fakeUsers) UpdateUser(id int64, req *identity.UpdateUserRequest) (*identity.User, error) {
	return f.GetUser(id)
}

func (f *fakeUsers) DeleteUser(id int64) error {
	if _, ok := f.byID[id]; !ok {
		return errs.NotFound("user %d not found", id)
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUsers) Authenticate(username, password string) (*identity.User, error) {
	if password != "correct-horse" {
		return nil, errs.Unauthorized("invalid credentials")
	}
	return f.GetUserByUsername(username)
}

type fakeUnits struct {
	unitsByID   map[int64]*units.Unit
	memberships map[int64][]*units.Membership
	granted     []units.GrantRequest
}

func (f *fakeUnits) CreateUnit(req *units.CreateUnitRequest) (*units.Unit, error) {
	unit := &units.Unit{ID: int64(len(f.unitsByID) + 1), Name: req.Name}
	f.unitsByID[unit.ID] = unit
	return unit, nil
}

func (f *fakeUnits) GetUnit(id int64) (*units.Unit, error) {
	unit, ok := f.unitsByID[id]
	if !ok {
		return nil, errs.NotFound("unit %d not found", id)
	}
	return unit, nil
}

func (f *fakeUnits) ListUnits() ([]*units.Unit, error) {
	out := make([]*units.Unit, 0, len(f.unitsByID))
	for _, unit := range f.unitsByID {
		out = append(out, unit)
	}
	return out, nil
}

func (f *fakeUnits) UpdateUnit(id int64, req *units.UpdateUnitRequest) (*units.Unit, error) {
	return f.GetUnit(id)
}

func (f *fakeUnits) DeleteUnit(id int64) error { return nil }

func (f *fakeUnits) Grant(userID, unitID int64, rlsParam string) error {
	f.granted = append(f.granted, units.GrantRequest{UserID: userID, RLSFilterParam: rlsParam})
	return nil
}

func (f *fakeUnits) UpdateGrant(userID, unitID int64, rlsParam string) error { return nil }
func (f *fakeUnits) Revoke(userID, unitID int64) error                       { return nil }

func (f *fakeUnits) UnitsOfUser(userID int64) ([]*units.Membership, error) {
	return f.memberships[userID], nil
}

func (f *fakeUnits) RLSParam(userID, unitID int64) (string, error) {
	for _, m := range f.memberships[userID] {
		if m.Unit.ID == unitID {
			return m.RLSFilterParam, nil
		}
	}
	return "", errs.NotFound("no association")
}

func (f *fakeUnits) MembersOfUnit(unitID int64) ([]*units.Member, error) { return nil, nil }

type fakeReports struct {
	byID  map[int64]*reports.Report
	joins map[int64][]int64
}

func (f *fakeReports) CreateReport(req *reports.CreateReportRequest) (*reports.Report, error) {
	report := &reports.Report{ID: int64(len(f.byID) + 1), ReportID: req.ReportID, Name: req.Name}
	f.byID[report.ID] = report
	f.joins[report.ID] = req.UnitIDs
	return report, nil
}

func (f *fakeReports) GetReport(id int64) (*reports.Report, error) {
	report, ok := f.byID[id]
	if !ok {
		return nil, errs.NotFound("report %d not found", id)
	}
	return report, nil
}

func (f *fakeReports) ListReports() ([]*reports.Report, error) {
	out := make([]*reports.Report, 0, len(f.byID))
	for _, report := range f.byID {
		out = append(out, report)
	}
	return out, nil
}

func (f *fakeReports) ReportsForUnit(unitID int64) ([]*reports.Report, error) {
	var out []*reports.Report
	for id, unitIDs := range f.joins {
		for _, u := range unitIDs {
			if u == unitID {
				out = append(out, f.byID[id])
				break
			}
		}
	}
	return out, nil
}

func (f *fakeReports) UnitsOfReport(reportID int64) ([]int64, error) {
	return f.joins[reportID], nil
}

func (f *fakeReports) UpdateReport(id int64, req *reports.UpdateReportRequest) (*reports.Report, error) {
	return f.GetReport(id)
}

func (f *fakeReports) DeleteReport(id int64) error { return nil }

func (f *fakeReports) AttachUnits(reportID int64, unitIDs []int64) error {
	f.joins[reportID] = append(f.joins[reportID], unitIDs...)
	return nil
}

func (f *fakeReports) Sync(workspaceID string, items []reports.SyncItem, unitIDs []int64) (*reports.SyncResult, error) {
	return &reports.SyncResult{Created: len(items)}, nil
}

func (f *fakeReports) CreateStep(req *reports.CreateStepRequest) (*reports.Step, error) {
	return &reports.Step{ID: 1, StepNumber: req.StepNumber, Name: req.Name}, nil
}

func (f *fakeReports) GetStepByNumber(stepNumber int) (*reports.Step, error) {
	return nil, errs.NotFound("step %d not found", stepNumber)
}

func (f *fakeReports) ListSteps() ([]*reports.Step, error) { return nil, nil }

func (f *fakeReports) UpdateStep(id int64, req *reports.UpdateStepRequest) (*reports.Step, error) {
	return nil, errs.NotFound("step %d not found", id)
}

func (f *fakeReports) DeleteStep(id int64) error { return nil }

func (f *fakeReports) ReportsByStepAndUnit(stepID, unitID int64) ([]*reports.Report, error) {
	return nil, nil
}

type fakeLinks struct{}

func (fakeLinks) Create(unitID int64, req *links.CreateLinkRequest) (*links.Link, error) {
	return &links.Link{ID: 1, UnitID: unitID, Name: req.Name, URL: req.URL}, nil
}
func (fakeLinks) Get(id int64) (*links.Link, error)        { return nil, errs.NotFound("link not found") }
func (fakeLinks) ListForUnit(int64) ([]*links.Link, error) { return nil, nil }
func (fakeLinks) Update(int64, *links.UpdateLinkRequest) (*links.Link, error) {
	return nil, errs.NotFound("link not found")
}
func (fakeLinks) Delete(int64) error { return nil }

type fakeLogs struct {
	entries []*audit.Entry
}

func (f *fakeLogs) Append(entry *audit.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLogs) List(audit.Filter) ([]*audit.Entry, error) { return f.entries, nil }

type fakeUpstream struct{}

func (fakeUpstream) Workspaces(context.Context) ([]powerbi.Workspace, error) {
	return []powerbi.Workspace{{ID: "ws-1", Name: "Finance"}}, nil
}

func (fakeUpstream) Reports(_ context.Context, workspaceID string) ([]powerbi.ReportInfo, error) {
	return []powerbi.ReportInfo{{ID: "r-guid", Name: "Sales", EmbedURL: "https://embed/r", DatasetID: "d-1"}}, nil
}

func (fakeUpstream) Report(_ context.Context, workspaceID, reportID string) (*powerbi.ReportInfo, error) {
	return &powerbi.ReportInfo{ID: reportID, EmbedURL: "https://embed/" + reportID, DatasetID: "d-1"}, nil
}

func (fakeUpstream) GenerateToken(_ context.Context, _ string, _ *powerbi.ReportInfo, identity *powerbi.EmbedIdentity) (*powerbi.EmbedToken, error) {
	return &powerbi.EmbedToken{Token: "embed-token", TokenID: "tid", Expiration: time.Now().Add(time.Hour)}, nil
}

// ---- harness ----

type testEnv struct {
	server *Server
	tokens *identity.TokenIssuer
	units  *fakeUnits
	logs   *fakeLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	users := &fakeUsers{byID: map[int64]*identity.User{
		1:  {ID: 1, Username: "admin", Role: identity.RoleAdmin},
		10: {ID: 10, Username: "maria", Role: identity.RoleUser},
	}}
	unitService := &fakeUnits{
		unitsByID: map[int64]*units.Unit{
			1: {ID: 1, Name: "North"},
			2: {ID: 2, Name: "South"},
		},
		memberships: map[int64][]*units.Membership{
			10: {{Unit: units.Unit{ID: 1, Name: "North"}, RLSFilterParam: "7"}},
		},
	}
	reportService := &fakeReports{
		byID: map[int64]*reports.Report{
			101: {ID: 101, ReportID: "r-guid", WorkspaceID: "ws-1", Name: "Sales"},
			102: {ID: 102, ReportID: "r-guid-2", WorkspaceID: "ws-1", Name: "Stock"},
		},
		joins: map[int64][]int64{101: {1}, 102: {2}},
	}

	tokens := identity.NewTokenIssuer("test-secret", 15*time.Minute, 24*time.Hour)
	resolver := entitlement.NewResolver(unitService, reportService)
	logs := &fakeLogs{}
	broker := embed.NewBroker(resolver, reportService, fakeUpstream{}, logs, logger)

	server := NewServer(Deps{
		Users:    users,
		Units:    unitService,
		Reports:  reportService,
		Links:    fakeLinks{},
		Logs:     logs,
		Resolver: resolver,
		Broker:   broker,
		Upstream: fakeUpstream{},
		Tokens:   tokens,
		Metrics:  observability.NewMetrics(),
	}, logger)

	return &testEnv{server: server, tokens: tokens, units: unitService, logs: logs}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func (e *testEnv) accessToken(t *testing.T, userID int64) string {
	t.Helper()
	token, err := e.tokens.IssueAccess(userID)
	require.NoError(t, err)
	return token
}

// ---- tests ----

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	t.Run("valid credentials return a token pair", func(t *testing.T) {
		recorder := env.do(t, http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "maria", "password": "correct-horse"})
		require.Equal(t, http.StatusOK, recorder.Code)

		var pair tokenPairResponse
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&pair))
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, "maria", pair.User.Username)
		require.Len(t, pair.User.Units, 1)
		assert.Equal(t, "7", pair.User.Units[0].RLSFilterParam)
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		recorder := env.do(t, http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "maria", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("refresh token cannot be used as access token", func(t *testing.T) {
		refresh, err := env.tokens.IssueRefresh(10)
		require.NoError(t, err)
		recorder := env.do(t, http.MethodGet, "/api/auth/me", refresh, nil)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("me returns the caller with memberships", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/auth/me", env.accessToken(t, 10), nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var profile userProfile
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&profile))
		assert.Equal(t, "maria", profile.Username)
		require.Len(t, profile.Units, 1)
		assert.Equal(t, "North", profile.Units[0].Unit.Name)
	})
}

func TestAuthGuards(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports", "", nil)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("member blocked from admin routes", func(t *testing.T) {
		token := env.accessToken(t, 10)
		recorder := env.do(t, http.MethodGet, "/api/admin/users", token, nil)
		assert.Equal(t, http.StatusForbidden, recorder.Code)

		recorder = env.do(t, http.MethodPost, "/api/units", token, map[string]string{"name": "X"})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("admin passes the guard", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/admin/users", env.accessToken(t, 1), nil)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})
}

func TestReportVisibility(t *testing.T) {
	env := newTestEnv(t)

	t.Run("member sees only shared-unit reports", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports", env.accessToken(t, 10), nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var visible []*reports.Report
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&visible))
		require.Len(t, visible, 1)
		assert.Equal(t, "Sales", visible[0].Name)
	})

	t.Run("admin sees all reports", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports", env.accessToken(t, 1), nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var visible []*reports.Report
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&visible))
		assert.Len(t, visible, 2)
	})

	t.Run("member blocked from foreign report detail", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports/102", env.accessToken(t, 10), nil)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("report detail appends a view entry", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports/101", env.accessToken(t, 10), nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		require.NotEmpty(t, env.logs.entries)
		last := env.logs.entries[len(env.logs.entries)-1]
		assert.Equal(t, audit.Action("view"), last.Action)
		assert.Equal(t, int64(101), last.ReportID)
		assert.Equal(t, int64(10), last.UserID)
	})
}

func TestEmbedConfigEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("member embed carries unit and logs access", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports/101/embed-config", env.accessToken(t, 10), nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var cfg embed.Config
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&cfg))
		assert.Equal(t, "embed-token", cfg.AccessToken)
		assert.Equal(t, "r-guid", cfg.ReportID)
		assert.Equal(t, int64(1), cfg.UnitID)

		require.Len(t, env.logs.entries, 1)
		assert.Equal(t, int64(10), env.logs.entries[0].UserID)
		assert.Equal(t, audit.Action("embed_token_generated"), env.logs.entries[0].Action)
	})

	t.Run("member denied on foreign report", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports/102/embed-config", env.accessToken(t, 10), nil)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("pinning an unavailable unit fails", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/reports/101/embed-config?unit_id=2", env.accessToken(t, 10), nil)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})
}

func TestUnitBrowsing(t *testing.T) {
	env := newTestEnv(t)

	t.Run("member unit list is membership-scoped", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/units", env.accessToken(t, 10), nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var visible []*units.Unit
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&visible))
		require.Len(t, visible, 1)
		assert.Equal(t, "North", visible[0].Name)
	})

	t.Run("member blocked from foreign unit", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/units/2/reports", env.accessToken(t, 10), nil)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("admin grants membership", func(t *testing.T) {
		recorder := env.do(t, http.MethodPost, "/api/units/2/users", env.accessToken(t, 1),
			map[string]any{"user_id": 10, "rls_filter_param": "9"})
		require.Equal(t, http.StatusCreated, recorder.Code)
		require.Len(t, env.units.granted, 1)
		assert.Equal(t, "9", env.units.granted[0].RLSFilterParam)
	})
}

func TestWorkspaceSync(t *testing.T) {
	env := newTestEnv(t)
	admin := env.accessToken(t, 1)

	t.Run("lists upstream workspaces", func(t *testing.T) {
		recorder := env.do(t, http.MethodGet, "/api/workspaces", admin, nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var workspaces []powerbi.Workspace
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&workspaces))
		require.Len(t, workspaces, 1)
		assert.Equal(t, "Finance", workspaces[0].Name)
	})

	t.Run("sync requires unit_ids", func(t *testing.T) {
		recorder := env.do(t, http.MethodPost, "/api/reports/sync/ws-1", admin, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("sync mirrors the workspace", func(t *testing.T) {
		recorder := env.do(t, http.MethodPost, "/api/reports/sync/ws-1", admin,
			map[string]any{"unit_ids": []int64{1}})
		require.Equal(t, http.StatusOK, recorder.Code)

		var result reports.SyncResult
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&result))
		assert.Equal(t, 1, result.Created)
	})
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

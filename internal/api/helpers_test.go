package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/ravenchat/internal/config"
	"github.com/npezzotti/ravenchat/internal/connect"
	"github.com/npezzotti/ravenchat/internal/database"
	"github.com/npezzotti/ravenchat/internal/server"
	"github.com/npezzotti/ravenchat/internal/stats"
	"github.com/npezzotti/ravenchat/internal/testutil"
	"github.com/npezzotti/ravenchat/internal/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:     "localhost:8080",
		SigningKey:     testSigningKey,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

// newTestApp wires an App to a fresh in-memory repository. The chat server is
// not running.
func newTestApp(t *testing.T) (*App, database.Repository) {
	t.Helper()

	repo := database.NewMemoryRepository()
	return newTestAppWithRepo(t, repo), repo
}

func newTestAppWithRepo(t *testing.T, repo database.Repository) *App {
	t.Helper()

	logger := testutil.TestLogger(t)
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	cs, err := server.NewChatServer(logger, su)
	require.NoError(t, err)

	svc := connect.NewService(repo, logger, connect.Options{})
	return NewApp(http.NewServeMux(), logger, cs, svc, testConfig())
}

// do sends a request through the full handler chain, authenticated as
// userId when it is non-zero.
func do(t *testing.T, app *App, method, path string, body any, userId int) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if userId != 0 {
		token, err := app.createJwtForSession(types.User{Id: userId}, defaultJwtExpiration)
		require.NoError(t, err)
		req.AddCookie(createJwtCookie(token, defaultJwtExpiration))
	}

	return serve(app, req)
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(app *App, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	app.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func register(t *testing.T, app *App, username string, answers ...string) types.User {
	t.Helper()

	rr := do(t, app, http.MethodPost, "/api/auth/register", RegisterRequest{
		Username:  username,
		Password:  "correct horse",
		Questions: []string{"first pet?", "birth city?", "favorite color?"},
		Answers:   answers,
	}, 0)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	return decode[types.User](t, rr)
}

// findCookie returns the named cookie set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

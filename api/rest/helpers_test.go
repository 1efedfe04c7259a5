package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/friendhub/api/rest"
	"github.com/kasuganosora/friendhub/audit"
	"github.com/kasuganosora/friendhub/auth"
	"github.com/kasuganosora/friendhub/cache"
	"github.com/kasuganosora/friendhub/scheduler"
	"github.com/kasuganosora/friendhub/social"
	"github.com/kasuganosora/friendhub/testutil"
	"github.com/kasuganosora/friendhub/user"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testSecret   = "test-secret"
	testAdminKey = "admin-key"
)

var cheapHash = auth.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type testEnv struct {
	r      *gin.Engine
	db     *gorm.DB
	audit  *audit.Service
	pubsub cache.PubSub
	tokens *auth.TokenIssuer
}

func newTestEnv(t *testing.T, opts ...func(*rest.Routes)) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	sched.AddTicker("audit_purge", time.Hour, func(context.Context) {})

	tokens := auth.NewTokenIssuer(testSecret, auth.DefaultTokenTTL)
	authSvc := auth.NewService(db, tokens, auditSvc, logger)
	authSvc.SetHashParams(cheapHash)
	userSvc := user.NewService(db, c, time.Minute, auditSvc, logger)
	socialSvc := social.NewService(db, social.NewEvents(ps), auditSvc, logger)

	routes := rest.Routes{
		Auth:     rest.NewAuthHandler(authSvc, logger),
		Users:    rest.NewUserHandler(userSvc, logger),
		Social:   rest.NewSocialHandler(socialSvc, logger),
		Admin:    rest.NewAdminHandler(db, auditSvc, sched, logger),
		Tokens:   tokens,
		AdminKey: testAdminKey,
	}
	for _, opt := range opts {
		opt(&routes)
	}
	r := gin.New()
	routes.Register(r)

	return &testEnv{r: r, db: db, audit: auditSvc, pubsub: ps, tokens: tokens}
}

func postJSON(r http.Handler, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	return doJSON(r, http.MethodPost, path, body, headers...)
}

func doJSON(r http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf *bytes.Reader
	switch b := body.(type) {
	case nil:
		buf = bytes.NewReader(nil)
	case string:
		buf = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, w)["error"]
}

type member struct {
	ID    int64
	Token string
}

// signup registers an account through the API and returns its id and token.
func (e *testEnv) signup(t *testing.T, email, first, last string, age int) member {
	t.Helper()
	w := postJSON(e.r, "/auth/signup", map[string]interface{}{
		"email":     email,
		"password":  "password123",
		"firstName": first,
		"lastName":  last,
		"age":       age,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token := decode[map[string]string](t, w)["access_token"]
	require.NotEmpty(t, token)

	claims, err := e.tokens.Verify(token)
	require.NoError(t, err)
	return member{ID: claims.AccountID, Token: token}
}

func (e *testEnv) befriend(t *testing.T, from, to member) {
	t.Helper()
	w := postJSON(e.r, fmt.Sprintf("/users/%d/friend-requests", to.ID), nil, bearer(from.Token)...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = doJSON(e.r, http.MethodPatch, fmt.Sprintf("/users/%d/friends", from.ID), nil, bearer(to.Token)...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

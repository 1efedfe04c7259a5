package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/friendhub/api/rest"
	"github.com/kasuganosora/friendhub/api/sse"
	apows "github.com/kasuganosora/friendhub/api/ws"
	"github.com/kasuganosora/friendhub/audit"
	"github.com/kasuganosora/friendhub/auth"
	"github.com/kasuganosora/friendhub/cache"
	"github.com/kasuganosora/friendhub/config"
	mw "github.com/kasuganosora/friendhub/middleware"
	"github.com/kasuganosora/friendhub/scheduler"
	"github.com/kasuganosora/friendhub/social"
	"github.com/kasuganosora/friendhub/testutil"
	"github.com/kasuganosora/friendhub/user"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const adminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Audit  *audit.Service
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws
	Sec    config.SecurityConfig
}

// Option tweaks the security settings before the server is built.
type Option func(*config.SecurityConfig)

// WithRateLimit overrides the per-IP limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *config.SecurityConfig) {
		s.RateLimitRPS = rps
		s.RateLimitBurst = burst
	}
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T, opts ...Option) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTL:         time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	for _, opt := range opts {
		opt(&sec)
	}

	ctx, cancel := context.WithCancel(context.Background())

	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)
	require.NoError(t, sched.AddTicker("audit_purge", time.Hour, func(ctx context.Context) {
		_, _ = auditSvc.Purge(ctx, 24*time.Hour)
	}))

	// ---- Services ----
	tokens := auth.NewTokenIssuer(sec.JWTSecret, sec.JWTTTL)
	authSvc := auth.NewService(db, tokens, auditSvc, logger)
	authSvc.SetHashParams(auth.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	userSvc := user.NewService(db, c, time.Minute, auditSvc, logger)
	socialSvc := social.NewService(db, social.NewEvents(pubsub), auditSvc, logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	require.NoError(t, mw.TrustProxies(r, nil))
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(ctx, rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apirest.Routes{
		Auth:     apirest.NewAuthHandler(authSvc, logger),
		Users:    apirest.NewUserHandler(userSvc, logger),
		Social:   apirest.NewSocialHandler(socialSvc, logger),
		Admin:    apirest.NewAdminHandler(db, auditSvc, sched, logger),
		Tokens:   tokens,
		AdminKey: adminKey,
	}.Register(r)

	sseH := sse.NewHandler(pubsub, time.Second, logger)
	r.GET("/events", mw.AuthQuery(tokens), sseH.ServeSSE)

	wsH := apows.NewHandler(pubsub, nil, logger)
	r.GET("/ws", mw.AuthQuery(tokens), wsH.ServeWS)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws"

	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Audit:  auditSvc,
		Server: server,
		URL:    url,
		WSURL:  wsURL,
		Sec:    sec,
	}
	t.Cleanup(func() {
		// Ending the subscriptions first lets open streams return.
		_ = pubsub.Close()
		server.Close()
		cancel()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body and Bearer token.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil, token)
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Expect asserts the status code and closes the body.
func Expect(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, status, data)
	}
}

// --- Account helpers ---

var uidCounter atomic.Int64

// UniqueEmail returns an address no other test in the run has used.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s%d_%d@example.com", prefix, time.Now().UnixNano(), uidCounter.Add(1))
}

// Member is a signed-up account as seen by a client.
type Member struct {
	ID    int64
	Email string
	Token string
}

// Signup registers a new account and resolves its ID through /users/me.
func (ts *TestServer) Signup(t *testing.T, first, last string, age int) Member {
	t.Helper()
	email := UniqueEmail(strings.ToLower(first))
	resp := ts.PostJSON(t, "/auth/signup", map[string]interface{}{
		"email":     email,
		"password":  "correct horse",
		"firstName": first,
		"lastName":  last,
		"age":       age,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	ReadJSON(t, resp, &tok)
	require.NotEmpty(t, tok.AccessToken)

	resp = ts.Get(t, "/users/me", tok.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		ID int64 `json:"id"`
	}
	ReadJSON(t, resp, &me)
	return Member{ID: me.ID, Email: email, Token: tok.AccessToken}
}

// --- SSE client ---

// SSEEvent is one dispatched server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// SSEClient reads events from GET /events in the background.
type SSEClient struct {
	resp   *http.Response
	events chan SSEEvent
}

// ConnectSSE opens the event stream for token.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	resp, err := http.Get(ts.URL + "/events?token=" + token)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := &SSEClient{resp: resp, events: make(chan SSEEvent, 64)}
	t.Cleanup(func() { resp.Body.Close() })
	go sc.readLoop()
	return sc
}

func (sc *SSEClient) readLoop() {
	defer close(sc.events)
	scanner := bufio.NewScanner(sc.resp.Body)
	var cur SSEEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Name != "" {
				sc.events <- cur
			}
			cur = SSEEvent{}
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// Next returns the next named event or fails after timeout.
func (sc *SSEClient) Next(t *testing.T, timeout time.Duration) SSEEvent {
	t.Helper()
	select {
	case ev, ok := <-sc.events:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for SSE event")
		return SSEEvent{}
	}
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop keeps read deadlines off the connection itself.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	pkt apows.Packet
	err error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 64)}
	t.Cleanup(func() { _ = conn.Close() })
	go wc.readLoop()
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		var pkt apows.Packet
		err := wc.Conn.ReadJSON(&pkt)
		wc.readCh <- readResult{pkt, err}
		if err != nil {
			return
		}
	}
}

// Send writes a numbered packet of the given type.
func (wc *WSClient) Send(msgType string) uint64 {
	wc.t.Helper()
	wc.seq++
	require.NoError(wc.t, wc.Conn.WriteJSON(apows.Packet{Seq: wc.seq, Type: msgType}))
	return wc.seq
}

// RecvType reads packets until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) apows.Packet {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", msgType)
			if res.pkt.Type == msgType {
				return res.pkt
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
			return apows.Packet{}
		}
	}
}

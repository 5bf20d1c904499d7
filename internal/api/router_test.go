package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	specpkg "github.com/botdesk/botdesk/api"
	"github.com/botdesk/botdesk/internal/api"
	"github.com/botdesk/botdesk/internal/api/handler"
	"github.com/botdesk/botdesk/internal/auth"
	"github.com/botdesk/botdesk/internal/bot"
	"github.com/botdesk/botdesk/internal/conversation"
	"github.com/botdesk/botdesk/internal/entitlement"
	"github.com/botdesk/botdesk/internal/events"
	"github.com/botdesk/botdesk/internal/gate"
	"github.com/botdesk/botdesk/internal/metrics"
	"github.com/botdesk/botdesk/internal/oauth"
	"github.com/botdesk/botdesk/internal/provider"
	"github.com/botdesk/botdesk/internal/token"
	"github.com/botdesk/botdesk/internal/usage"
	"github.com/botdesk/botdesk/internal/user"
)

type testServer struct {
	router *chi.Mux
	users  *user.MemoryRepository
	ledger *usage.MemoryLedger
	convs  *conversation.MemoryRepository
	svc    *auth.Service
}

type serverOptions struct {
	provider    provider.Provider
	google      handler.GoogleFlow
	gateTimeout time.Duration
}

type serverOption func(*serverOptions)

func withProvider(p provider.Provider) serverOption {
	return func(o *serverOptions) { o.provider = p }
}

func withGoogle(g handler.GoogleFlow) serverOption {
	return func(o *serverOptions) { o.google = g }
}

func withGateTimeout(d time.Duration) serverOption {
	return func(o *serverOptions) { o.gateTimeout = d }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	o := serverOptions{provider: provider.Echo{}, gateTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	users := user.NewMemoryRepository()
	ledger := usage.NewMemoryLedger(nil)
	convs := conversation.NewMemoryRepository()
	codec := token.NewCodec("router-test-secret", "botdesk", nil)
	catalog, err := bot.Load("")
	require.NoError(t, err)

	resolver := auth.NewResolver(codec, users)
	policy := entitlement.NewPolicy(ledger, entitlement.DefaultFreeLimit)
	svc := auth.NewService(users, codec, time.Hour, 4, events.Noop{})

	router := api.NewRouter(api.RouterDeps{
		Version:       "test",
		OpenAPISpec:   specpkg.OpenAPISpec,
		Metrics:       http.NotFoundHandler(),
		Resolver:      resolver,
		Policy:        policy,
		Gate:          gate.New(resolver, policy, ledger, gate.WithTimeout(o.gateTimeout)),
		Accounts:      svc,
		Users:         users,
		Ledger:        ledger,
		FreeLimit:     entitlement.DefaultFreeLimit,
		Catalog:       catalog,
		Provider:      o.provider,
		Conversations: convs,
		Google:        o.google,
		StateSigner:   oauth.NewStateSigner("state"),
		AuthRateRPS:   1000,
		AuthRateBurst: 1000,
	})
	return &testServer{router: router, users: users, ledger: ledger, convs: convs, svc: svc}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func TestFreeTierFlow(t *testing.T) {
	s := newTestServer(t)
	tok := s.signUp(t, "u1@x.io")

	for i := 1; i <= 5; i++ {
		w, env := s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": fmt.Sprintf("hi %d", i)})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var data struct {
			Reply string `json:"reply"`
			Usage struct {
				Used  int `json:"used"`
				Limit int `json:"limit"`
			} `json:"usage"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, fmt.Sprintf("[gpt-4] hi %d", i), data.Reply)
		assert.Equal(t, i, data.Usage.Used)
		assert.Equal(t, 5, data.Usage.Limit)
	}

	w, env := s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": "one more"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "QUOTA_EXCEEDED", env.Error.Code)
	var details struct {
		BotID string `json:"botId"`
		Used  int    `json:"used"`
		Limit int    `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	assert.Equal(t, "gpt-4", details.BotID)
	assert.Equal(t, 5, details.Used)
	assert.Equal(t, 5, details.Limit)

	w, _ = s.do(t, http.MethodPost, "/bots/code-helper/chat", tok, map[string]string{"message": "other bot"})
	assert.Equal(t, http.StatusOK, w.Code, "quota is per bot")

	w, _ = s.do(t, http.MethodPost, "/me/upgrade", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": "premium now"})
	assert.Equal(t, http.StatusOK, w.Code)

	u, err := s.users.FindByEmail(context.Background(), "u1@x.io")
	require.NoError(t, err)
	count, _ := s.ledger.GetCount(context.Background(), u.ID, "gpt-4")
	assert.Equal(t, 5, count)
}

func TestPremiumOnlyRoutes(t *testing.T) {
	s := newTestServer(t)
	tok := s.signUp(t, "free@x.io")

	w, env := s.do(t, http.MethodPost, "/images", tok, map[string]string{"prompt": "a cat"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "PREMIUM_REQUIRED", env.Error.Code)

	w, _ = s.do(t, http.MethodPost, "/audio", tok, map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	w, _ = s.do(t, http.MethodPost, "/bots/gpt-4-turbo/chat", tok, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	_, _ = s.do(t, http.MethodPost, "/me/upgrade", tok, nil)

	w, env = s.do(t, http.MethodPost, "/images", tok, map[string]string{"prompt": "a cat"})
	require.Equal(t, http.StatusOK, w.Code)
	var img struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &img))
	assert.NotEmpty(t, img.URL)

	w, _ = s.do(t, http.MethodPost, "/audio", tok, map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/bots/gpt-4/chat"},
		{http.MethodPost, "/images"},
		{http.MethodGet, "/me"},
		{http.MethodGet, "/conversations"},
		{http.MethodGet, "/admin/users"},
	} {
		w, env := s.do(t, tc.method, tc.path, "", map[string]string{"message": "hi", "prompt": "x"})
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
		if assert.NotNil(t, env.Error) {
			assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
		}
	}
}

func TestAdminRevokesPremium(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	admin, err := s.svc.BootstrapAdmin(ctx, "admin@x.io", "password123")
	require.NoError(t, err)
	adminTok, err := s.svc.IssueToken(admin)
	require.NoError(t, err)

	tok := s.signUp(t, "u1@x.io")
	u, err := s.users.FindByEmail(ctx, "u1@x.io")
	require.NoError(t, err)

	w, _ := s.do(t, http.MethodGet, "/admin/users", tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPut, "/admin/users/"+u.ID.String()+"/premium", adminTok, map[string]bool{"isPremium": true})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/images", tok, map[string]string{"prompt": "a cat"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPut, "/admin/users/"+u.ID.String()+"/premium", adminTok, map[string]bool{"isPremium": false})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/images", tok, map[string]string{"prompt": "a cat"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code, "revocation applies to the existing token")

	w, _ = s.do(t, http.MethodPut, "/admin/users/"+u.ID.String()+"/premium", adminTok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := s.do(t, http.MethodGet, "/admin/users", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)
}

func TestAdminResetsUsage(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	admin, err := s.svc.BootstrapAdmin(ctx, "admin@x.io", "password123")
	require.NoError(t, err)
	adminTok, err := s.svc.IssueToken(admin)
	require.NoError(t, err)

	tok := s.signUp(t, "u1@x.io")
	u, err := s.users.FindByEmail(ctx, "u1@x.io")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.ledger.RecordUse(ctx, u.ID, "gpt-4")
		require.NoError(t, err)
	}

	w, _ := s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": "hi"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/admin/users/"+u.ID.String()+"/usage/gpt-4", adminTok, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConcurrentChatNeverExceedsLimit(t *testing.T) {
	s := newTestServer(t)
	tok := s.signUp(t, "u1@x.io")

	codes := make(chan int, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, _ := s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": "hi"})
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	assert.Equal(t, 5, counts[http.StatusOK])
	assert.Equal(t, 15, counts[http.StatusTooManyRequests])
}

// slowProvider holds every chat call long enough for all concurrent
// requests to pass the entitlement pre-check before any commits.
type slowProvider struct {
	provider.Echo
	delay time.Duration
}

func (p slowProvider) Chat(ctx context.Context, model string, messages []provider.Message) (string, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return p.Echo.Chat(ctx, model, messages)
}

func TestConcurrentChat_LostCommitStoresNothing(t *testing.T) {
	s := newTestServer(t, withProvider(slowProvider{delay: 50 * time.Millisecond}))
	tok := s.signUp(t, "u1@x.io")

	codes := make(chan int, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, _ := s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": fmt.Sprintf("hi %d", i)})
			codes <- w.Code
		}(i)
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	assert.Equal(t, 5, counts[http.StatusOK])
	assert.Equal(t, 15, counts[http.StatusTooManyRequests])

	u, err := s.users.FindByEmail(context.Background(), "u1@x.io")
	require.NoError(t, err)
	convs, err := s.convs.ListByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, convs, counts[http.StatusOK], "only allowed turns are stored")
	for _, c := range convs {
		msgs, err := s.convs.ListMessages(context.Background(), u.ID, c.ID)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	}

	count, err := s.ledger.GetCount(context.Background(), u.ID, "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

type failingChatProvider struct {
	provider.Echo
	err error
}

func (p failingChatProvider) Chat(context.Context, string, []provider.Message) (string, error) {
	return "", p.err
}

type blockingProvider struct {
	provider.Echo
}

func (blockingProvider) Chat(ctx context.Context, _ string, _ []provider.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (s *testServer) usageRecords(t *testing.T, tok string) int {
	t.Helper()
	w, env := s.do(t, http.MethodGet, "/me/usage", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Records []struct {
			Used int `json:"used"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	used := 0
	for _, r := range data.Records {
		used += r.Used
	}
	return used
}

func TestChat_ProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		opts       []serverOption
		wantStatus int
		wantCode   string
	}{
		{
			name:       "upstream rejection",
			opts:       []serverOption{withProvider(failingChatProvider{err: &provider.APIError{Status: 500, Message: "overloaded"}})},
			wantStatus: http.StatusBadGateway,
			wantCode:   "PROVIDER_ERROR",
		},
		{
			name:       "transport failure",
			opts:       []serverOption{withProvider(failingChatProvider{err: fmt.Errorf("dial tcp: connection refused")})},
			wantStatus: http.StatusBadGateway,
			wantCode:   "PROVIDER_ERROR",
		},
		{
			name:       "deadline",
			opts:       []serverOption{withProvider(blockingProvider{}), withGateTimeout(20 * time.Millisecond)},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "PROVIDER_TIMEOUT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, tc.opts...)
			tok := s.signUp(t, "u1@x.io")

			w, env := s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": "hi"})
			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.wantCode, env.Error.Code)

			assert.Equal(t, 0, s.usageRecords(t, tok), "a failed call must not consume quota")

			w, env = s.do(t, http.MethodGet, "/conversations", tok, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, "[]", string(env.Data))
		})
	}
}

type fakeGoogle struct {
	identity *oauth.Identity
	err      error
}

func (fakeGoogle) AuthURL(state string) string {
	return "https://accounts.example/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (f fakeGoogle) Exchange(_ context.Context, code string) (*oauth.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

// startGoogle runs GET /auth/google and returns the issued state cookie.
func (s *testServer) startGoogle(t *testing.T) *http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, loc.Query().Get("state"), cookies[0].Value)
	return cookies[0]
}

func (s *testServer) googleCallback(t *testing.T, query string, cookie *http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestGoogleCallback(t *testing.T) {
	identity := &oauth.Identity{Subject: "g-123", Email: "g@x.io", EmailVerified: true, Name: "G"}

	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t)
		w, env := s.googleCallback(t, "state=x&code=y", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", env.Error.Code)
	})

	t.Run("missing state cookie", func(t *testing.T) {
		s := newTestServer(t, withGoogle(fakeGoogle{identity: identity}))
		cookie := s.startGoogle(t)
		w, env := s.googleCallback(t, "state="+url.QueryEscape(cookie.Value)+"&code=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_STATE", env.Error.Code)
	})

	t.Run("state mismatch", func(t *testing.T) {
		s := newTestServer(t, withGoogle(fakeGoogle{identity: identity}))
		cookie := s.startGoogle(t)
		w, env := s.googleCallback(t, "state=other&code=abc", cookie)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_STATE", env.Error.Code)
	})

	t.Run("forged state", func(t *testing.T) {
		s := newTestServer(t, withGoogle(fakeGoogle{identity: identity}))
		forged := &http.Cookie{Name: "oauth_state", Value: "nonce.badsignature"}
		w, env := s.googleCallback(t, "state=nonce.badsignature&code=abc", forged)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_STATE", env.Error.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		s := newTestServer(t, withGoogle(fakeGoogle{identity: identity}))
		cookie := s.startGoogle(t)
		w, env := s.googleCallback(t, "state="+url.QueryEscape(cookie.Value), cookie)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "MISSING_CODE", env.Error.Code)
	})

	t.Run("exchange fails", func(t *testing.T) {
		s := newTestServer(t, withGoogle(fakeGoogle{err: fmt.Errorf("invalid_grant")}))
		cookie := s.startGoogle(t)
		w, env := s.googleCallback(t, "state="+url.QueryEscape(cookie.Value)+"&code=abc", cookie)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	})

	t.Run("unverified email", func(t *testing.T) {
		s := newTestServer(t, withGoogle(fakeGoogle{err: oauth.ErrEmailNotVerified}))
		cookie := s.startGoogle(t)
		w, env := s.googleCallback(t, "state="+url.QueryEscape(cookie.Value)+"&code=abc", cookie)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "EMAIL_NOT_VERIFIED", env.Error.Code)
	})

	t.Run("signs in", func(t *testing.T) {
		s := newTestServer(t, withGoogle(fakeGoogle{identity: identity}))
		cookie := s.startGoogle(t)
		w, env := s.googleCallback(t, "state="+url.QueryEscape(cookie.Value)+"&code=abc", cookie)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var data struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		w, _ = s.do(t, http.MethodGet, "/me", data.Token, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		u, err := s.users.FindByGoogleID(context.Background(), "g-123")
		require.NoError(t, err)
		assert.Equal(t, "g@x.io", u.Email)
	})
}

func TestConversationsAreOwnerScoped(t *testing.T) {
	s := newTestServer(t)
	alice := s.signUp(t, "alice@x.io")
	bob := s.signUp(t, "bob@x.io")

	w, env := s.do(t, http.MethodPost, "/bots/gpt-3.5-turbo/chat", alice, map[string]string{"message": "first"})
	require.Equal(t, http.StatusOK, w.Code)
	var chat struct {
		ConversationID string `json:"conversationId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &chat))

	w, _ = s.do(t, http.MethodPost, "/bots/gpt-3.5-turbo/chat", alice,
		map[string]string{"message": "second", "conversationId": chat.ConversationID})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodGet, "/conversations/"+chat.ConversationID+"/messages", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[3].Role)

	w, _ = s.do(t, http.MethodGet, "/conversations/"+chat.ConversationID+"/messages", bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/bots/gpt-3.5-turbo/chat", bob,
		map[string]string{"message": "hijack", "conversationId": chat.ConversationID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodDelete, "/conversations/"+chat.ConversationID, alice, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = s.do(t, http.MethodGet, "/conversations", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestMeUsage(t *testing.T) {
	s := newTestServer(t)
	tok := s.signUp(t, "u1@x.io")
	_, _ = s.do(t, http.MethodPost, "/bots/gpt-4/chat", tok, map[string]string{"message": "hi"})

	w, env := s.do(t, http.MethodGet, "/me/usage", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Limit   int `json:"limit"`
		Records []struct {
			BotID string `json:"botId"`
			Used  int    `json:"used"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 5, data.Limit)
	require.Len(t, data.Records, 1)
	assert.Equal(t, "gpt-4", data.Records[0].BotID)
	assert.Equal(t, 1, data.Records[0].Used)
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "u1@x.io")

	w, env := s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": "u1@x.io", "password": "password123"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_EMAIL", env.Error.Code)

	w, env = s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": "bad", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, _ = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "u1@x.io", "password": "password123"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "u1@x.io", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	w, _ = s.do(t, http.MethodGet, "/auth/google", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "google sign-in is disabled without configuration")
}

func TestAuthAttemptsCounted(t *testing.T) {
	s := newTestServer(t)
	counter := func(method, outcome string) float64 {
		return testutil.ToFloat64(metrics.AuthAttempts.WithLabelValues(method, outcome))
	}

	before := counter("signup", "success")
	s.signUp(t, "u1@x.io")
	assert.Equal(t, before+1, counter("signup", "success"))

	before = counter("signup", "rejected")
	w, _ := s.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": "u1@x.io", "password": "password123"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, before+1, counter("signup", "rejected"))

	before = counter("password", "rejected")
	w, _ = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "u1@x.io", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, before+1, counter("password", "rejected"))
}

func TestHealthAndBots(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"healthy"`)

	w, env = s.do(t, http.MethodGet, "/bots", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bots []struct {
		ID      string `json:"id"`
		Metered bool   `json:"metered"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bots))
	require.NotEmpty(t, bots)
	assert.Equal(t, "gpt-3.5-turbo", bots[0].ID)
	assert.True(t, bots[0].Metered)
}

type openAPISpec struct {
	Paths map[string]map[string]interface{} `json:"paths"`
}

type route struct {
	method string
	path   string
}

func TestOpenAPISpec_RoutesCoverAllPaths(t *testing.T) {
	specJSON, err := yaml.YAMLToJSON(specpkg.OpenAPISpec)
	require.NoError(t, err, "embedded spec must convert to JSON")

	var spec openAPISpec
	require.NoError(t, json.Unmarshal(specJSON, &spec))

	var specRoutes []route
	for path, methods := range spec.Paths {
		for method := range methods {
			specRoutes = append(specRoutes, route{method: strings.ToUpper(method), path: path})
		}
	}

	var chiRoutes []route
	err = chi.Walk(newTestServer(t).router, func(method, routePath string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		normalized := strings.TrimRight(routePath, "/")
		if normalized == "" {
			normalized = "/"
		}
		chiRoutes = append(chiRoutes, route{method: method, path: normalized})
		return nil
	})
	require.NoError(t, err)

	sortRoutes(specRoutes)
	sortRoutes(chiRoutes)
	assert.Equal(t, specRoutes, chiRoutes)
}

func sortRoutes(routes []route) {
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].path == routes[j].path {
			return routes[i].method < routes[j].method
		}
		return routes[i].path < routes[j].path
	})
}

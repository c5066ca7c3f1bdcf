package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mergegate/internal/pull"
)

const testSecret = "hook-secret"

type call struct {
	op     string
	repo   pull.Repo
	number int
	branch string
	sha    string
	check  string
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeEngine) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeEngine) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeEngine) EvaluatePRNumber(ctx context.Context, repo pull.Repo, number int) error {
	f.record(call{op: "evaluate", repo: repo, number: number})
	return nil
}

func (f *fakeEngine) EvaluateBranch(ctx context.Context, repo pull.Repo, branch string) error {
	f.record(call{op: "branch", repo: repo, branch: branch})
	return nil
}

func (f *fakeEngine) HandleCheckCompleted(ctx context.Context, repo pull.Repo, sha, checkName string) {
	f.record(call{op: "signal", repo: repo, sha: sha, check: checkName})
}

func (f *fakeEngine) Backfill(ctx context.Context, repo pull.Repo) error {
	f.record(call{op: "backfill", repo: repo})
	return nil
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, h http.Handler, event, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/github/hook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "d-1")
	req.Header.Set("X-Hub-Signature-256", sign(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)
	h := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/github/hook", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, engine.recorded())
}

func TestWebhookPullRequestOpenedTriggersEvaluation(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"action":"opened","number":7,"pull_request":{"number":7},"repository":{"name":"api","owner":{"login":"acme"}}}`
	rec := deliver(t, srv.Router(), "pull_request", body)
	srv.Wait()

	assert.Equal(t, http.StatusAccepted, rec.Code)
	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, call{op: "evaluate", repo: pull.Repo{Owner: "acme", Name: "api"}, number: 7}, calls[0])
}

func TestWebhookPullRequestClosedIsIgnored(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"action":"closed","pull_request":{"number":7},"repository":{"name":"api","owner":{"login":"acme"}}}`
	rec := deliver(t, srv.Router(), "pull_request", body)
	srv.Wait()

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, engine.recorded())
}

func TestWebhookCheckRunCompletedSignalsEngine(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"action":"completed","check_run":{"name":"lint","head_sha":"abc123"},"repository":{"name":"api","owner":{"login":"acme"}}}`
	deliver(t, srv.Router(), "check_run", body)
	srv.Wait()

	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, call{op: "signal", repo: pull.Repo{Owner: "acme", Name: "api"}, sha: "abc123", check: "lint"}, calls[0])
}

func TestWebhookStatusPendingIsIgnored(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"state":"pending","sha":"abc123","context":"ci/build","repository":{"name":"api","owner":{"login":"acme"}}}`
	deliver(t, srv.Router(), "status", body)
	srv.Wait()

	assert.Empty(t, engine.recorded())
}

func TestWebhookStatusCompletedSignalsEngine(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"state":"success","sha":"abc123","context":"ci/build","repository":{"name":"api","owner":{"login":"acme"}}}`
	deliver(t, srv.Router(), "status", body)
	srv.Wait()

	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "ci/build", calls[0].check)
}

func TestWebhookPushToBranchSweepsOpenPRs(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"ref":"refs/heads/main","repository":{"name":"api","owner":{"login":"acme"}}}`
	deliver(t, srv.Router(), "push", body)
	srv.Wait()

	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, call{op: "branch", repo: pull.Repo{Owner: "acme", Name: "api"}, branch: "main"}, calls[0])
}

func TestWebhookTagPushIsIgnored(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"ref":"refs/tags/v1.0.0","repository":{"name":"api","owner":{"login":"acme"}}}`
	deliver(t, srv.Router(), "push", body)
	srv.Wait()

	assert.Empty(t, engine.recorded())
}

func TestWebhookRecheckCommentTriggersEvaluation(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"action":"created","issue":{"number":7,"pull_request":{"url":"https://api.github.com/repos/acme/api/pulls/7"}},"comment":{"body":"/mergegate recheck"},"repository":{"name":"api","owner":{"login":"acme"}}}`
	deliver(t, srv.Router(), "issue_comment", body)
	srv.Wait()

	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "evaluate", calls[0].op)
	assert.Equal(t, 7, calls[0].number)
}

func TestWebhookOrdinaryCommentIsIgnored(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"action":"created","issue":{"number":7,"pull_request":{"url":"u"}},"comment":{"body":"looks good to me"},"repository":{"name":"api","owner":{"login":"acme"}}}`
	deliver(t, srv.Router(), "issue_comment", body)
	srv.Wait()

	assert.Empty(t, engine.recorded())
}

func TestWebhookInstallationAddedBackfills(t *testing.T) {
	engine := &fakeEngine{}
	srv := New(engine, testSecret)

	body := `{"action":"added","repositories_added":[{"full_name":"acme/api"},{"full_name":"acme/web"}]}`
	deliver(t, srv.Router(), "installation_repositories", body)
	srv.Wait()

	calls := engine.recorded()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, "backfill", c.op)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := New(&fakeEngine{}, testSecret)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

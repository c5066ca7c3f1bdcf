// Package server exposes the webhook endpoint that drives evaluation. Every
// event is acknowledged immediately and processed on a detached worker, so
// slow API reconciliation never blocks webhook delivery.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v81/github"
	"github.com/google/uuid"

	"mergegate/internal/notify"
	"mergegate/internal/pull"
)

// taskTimeout bounds one detached evaluation task.
const taskTimeout = 30 * time.Minute

// Engine is the evaluation surface the server drives.
type Engine interface {
	EvaluatePRNumber(ctx context.Context, repo pull.Repo, number int) error
	EvaluateBranch(ctx context.Context, repo pull.Repo, branch string) error
	HandleCheckCompleted(ctx context.Context, repo pull.Repo, sha, checkName string)
	Backfill(ctx context.Context, repo pull.Repo) error
}

type Server struct {
	engine Engine
	secret []byte

	tasks sync.WaitGroup
}

func New(engine Engine, webhookSecret string) *Server {
	return &Server{engine: engine, secret: []byte(webhookSecret)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/api/github/hook", s.handleWebhook)
	return r
}

// Wait blocks until every in-flight evaluation task has finished. Called
// during shutdown, after the listener has stopped accepting events.
func (s *Server) Wait() {
	s.tasks.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, s.secret)
	if err != nil {
		slog.Warn("webhook signature rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		http.Error(w, "unparseable payload", http.StatusBadRequest)
		return
	}

	log := slog.With("delivery", github.DeliveryID(r), "event", github.WebHookType(r))

	switch e := event.(type) {
	case *github.PullRequestEvent:
		s.onPullRequest(log, e)
	case *github.CheckRunEvent:
		s.onCheckRun(log, e)
	case *github.StatusEvent:
		s.onStatus(log, e)
	case *github.PushEvent:
		s.onPush(log, e)
	case *github.IssueCommentEvent:
		s.onIssueComment(log, e)
	case *github.InstallationRepositoriesEvent:
		s.onInstallation(log, e)
	default:
		log.Debug("event ignored")
	}

	w.WriteHeader(http.StatusAccepted)
}

// dispatch runs fn on a detached worker with its own deadline; webhook
// deliveries are acknowledged long before evaluation finishes.
func (s *Server) dispatch(log *slog.Logger, fn func(ctx context.Context, log *slog.Logger)) {
	log = log.With("task", uuid.NewString())
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		fn(ctx, log)
	}()
}

func (s *Server) onPullRequest(log *slog.Logger, e *github.PullRequestEvent) {
	switch e.GetAction() {
	case "opened", "synchronize", "reopened", "edited":
	default:
		return
	}
	repo := eventRepo(e.GetRepo())
	number := e.GetPullRequest().GetNumber()
	s.dispatch(log, func(ctx context.Context, log *slog.Logger) {
		log.Info("evaluating pull request", "repo", repo.String(), "pr", number, "action", e.GetAction())
		if err := s.engine.EvaluatePRNumber(ctx, repo, number); err != nil {
			log.Error("evaluation failed", "repo", repo.String(), "pr", number, "error", err)
		}
	})
}

func (s *Server) onCheckRun(log *slog.Logger, e *github.CheckRunEvent) {
	if e.GetAction() != "completed" {
		return
	}
	repo := eventRepo(e.GetRepo())
	sha := e.GetCheckRun().GetHeadSHA()
	name := e.GetCheckRun().GetName()
	s.dispatch(log, func(ctx context.Context, log *slog.Logger) {
		s.engine.HandleCheckCompleted(ctx, repo, sha, name)
	})
}

func (s *Server) onStatus(log *slog.Logger, e *github.StatusEvent) {
	if e.GetState() == "pending" {
		return
	}
	repo := eventRepo(e.GetRepo())
	sha := e.GetSHA()
	name := e.GetContext()
	s.dispatch(log, func(ctx context.Context, log *slog.Logger) {
		s.engine.HandleCheckCompleted(ctx, repo, sha, name)
	})
}

func (s *Server) onPush(log *slog.Logger, e *github.PushEvent) {
	branch, ok := strings.CutPrefix(e.GetRef(), "refs/heads/")
	if !ok {
		return // tag push
	}
	repo := pull.Repo{Owner: e.GetRepo().GetOwner().GetLogin(), Name: e.GetRepo().GetName()}
	s.dispatch(log, func(ctx context.Context, log *slog.Logger) {
		log.Info("re-evaluating branch after push", "repo", repo.String(), "branch", branch)
		if err := s.engine.EvaluateBranch(ctx, repo, branch); err != nil {
			log.Error("branch evaluation failed", "repo", repo.String(), "branch", branch, "error", err)
		}
	})
}

func (s *Server) onIssueComment(log *slog.Logger, e *github.IssueCommentEvent) {
	if e.GetAction() != "created" || !e.GetIssue().IsPullRequest() {
		return
	}
	if !strings.Contains(e.GetComment().GetBody(), notify.RecheckCommand) {
		return
	}
	repo := eventRepo(e.GetRepo())
	number := e.GetIssue().GetNumber()
	s.dispatch(log, func(ctx context.Context, log *slog.Logger) {
		log.Info("recheck requested", "repo", repo.String(), "pr", number)
		if err := s.engine.EvaluatePRNumber(ctx, repo, number); err != nil {
			log.Error("recheck failed", "repo", repo.String(), "pr", number, "error", err)
		}
	})
}

func (s *Server) onInstallation(log *slog.Logger, e *github.InstallationRepositoriesEvent) {
	if e.GetAction() != "added" {
		return
	}
	for _, added := range e.RepositoriesAdded {
		owner, name, ok := strings.Cut(added.GetFullName(), "/")
		if !ok {
			continue
		}
		repo := pull.Repo{Owner: owner, Name: name}
		s.dispatch(log, func(ctx context.Context, log *slog.Logger) {
			log.Info("backfilling repository", "repo", repo.String())
			if err := s.engine.Backfill(ctx, repo); err != nil {
				log.Error("backfill failed", "repo", repo.String(), "error", err)
			}
		})
	}
}

func eventRepo(r *github.Repository) pull.Repo {
	return pull.Repo{Owner: r.GetOwner().GetLogin(), Name: r.GetName()}
}

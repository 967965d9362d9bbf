package server

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eskrenkovic/code-duel-go/internal/config"
	"github.com/eskrenkovic/code-duel-go/internal/modules/core"
	"github.com/eskrenkovic/code-duel-go/internal/modules/duel"
	duelcommands "github.com/eskrenkovic/code-duel-go/internal/modules/duel/commands"
	dueldomain "github.com/eskrenkovic/code-duel-go/internal/modules/duel/domain"
	duelqueries "github.com/eskrenkovic/code-duel-go/internal/modules/duel/queries"
	"github.com/eskrenkovic/code-duel-go/internal/modules/identity"
	"github.com/eskrenkovic/code-duel-go/internal/modules/judge"
	"github.com/eskrenkovic/code-duel-go/internal/modules/messaging"
	"github.com/eskrenkovic/code-duel-go/internal/modules/stats"
	"github.com/eskrenkovic/code-duel-go/internal/modules/tasks"

	"github.com/eskrenkovic/mediator-go"
	"github.com/eskrenkovic/migrate-go"
	"github.com/go-chi/chi"
	_ "github.com/lib/pq"
)

// countdownResolution is how often in_progress sessions broadcast their
// remaining time.
const countdownResolution = time.Second

type Server interface {
	Start() error
	Stop() error
}

var _ Server = &HTTPServer{}

// HTTPServer acts as the composition root for an application.
type HTTPServer struct {
	server *http.Server
}

func NewHTTPServer(config config.Config) (Server, error) {
	baseCtx := context.Background()

	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := migrate.Run(baseCtx, db, config.MigrationsPath); err != nil {
		return nil, err
	}

	requestLoggingBehavior := core.RequestLoggingBehavior{Logger: config.Logger}
	handlerErrorLoggingBehavior := core.HandlerErrorLoggingBehavior{Logger: config.Logger}
	requestValidationBehavior := core.RequestValidationBehavior{}

	mediator.RegisterPipelineBehavior(&requestLoggingBehavior)
	mediator.RegisterPipelineBehavior(&handlerErrorLoggingBehavior)
	mediator.RegisterPipelineBehavior(&requestValidationBehavior)

	// shared collaborators

	hub := messaging.NewHub(config.Logger)
	chat := messaging.NewChatAnnotator(db)
	directory := identity.NewDirectory(db)
	statsRecorder := stats.NewSQLRecorder(db)
	taskStore := tasks.NewStore(db)

	executor := judge.NewClient(config.JudgeURL)
	evaluator := judge.NewEvaluator(executor, config.Logger)

	invites := dueldomain.NewInviteRegistry()
	sessions := dueldomain.NewSessionRegistry()
	timers := dueldomain.NewCountdownSet(countdownResolution)

	gameStore := duel.NewGameStore(db)
	notifier := duel.NewNotifier(sessions, gameStore, taskStore, hub, config.Logger)
	finalizer := duel.NewFinalizer(
		sessions,
		timers,
		gameStore,
		taskStore,
		statsRecorder,
		chat,
		hub,
		notifier,
		config.Game.FinalizeSettle,
		config.Logger,
	)

	// handler registration

	// invites

	sendInviteHandler := duelcommands.NewSendInviteCommandHandler(
		invites,
		sessions,
		directory,
		chat,
		hub,
		config.Game.InviteTTL,
		config.Logger,
	)
	err = mediator.RegisterRequestHandler[duelcommands.SendInviteCommand, duelcommands.SendInviteResponse](
		sendInviteHandler,
	)
	if err != nil {
		return nil, err
	}

	acceptInviteHandler := duelcommands.NewAcceptInviteCommandHandler(
		invites,
		sessions,
		gameStore,
		chat,
		hub,
		config.Game.Duration,
		config.Logger,
	)
	err = mediator.RegisterRequestHandler[duelcommands.AcceptInviteCommand, duelcommands.AcceptInviteResponse](
		acceptInviteHandler,
	)
	if err != nil {
		return nil, err
	}

	declineInviteHandler := duelcommands.NewDeclineInviteCommandHandler(invites, chat, hub, config.Logger)
	err = mediator.RegisterRequestHandler[duelcommands.DeclineInviteCommand, core.Unit](
		declineInviteHandler,
	)
	if err != nil {
		return nil, err
	}

	// sessions

	setReadyHandler := duelcommands.NewSetReadyCommandHandler(
		sessions,
		gameStore,
		notifier,
		finalizer,
		config.Game.ReadyGrace,
		config.Logger,
	)
	err = mediator.RegisterRequestHandler[duelcommands.SetReadyCommand, duelcommands.SetReadyResponse](
		setReadyHandler,
	)
	if err != nil {
		return nil, err
	}

	leaveGameHandler := duelcommands.NewLeaveGameCommandHandler(sessions, gameStore, finalizer)
	err = mediator.RegisterRequestHandler[duelcommands.LeaveGameCommand, core.Unit](
		leaveGameHandler,
	)
	if err != nil {
		return nil, err
	}

	submitSolutionHandler := duelcommands.NewSubmitSolutionCommandHandler(
		sessions,
		taskStore,
		evaluator,
		notifier,
		finalizer,
		config.Game.RequiredLevels,
		config.Logger,
	)
	err = mediator.RegisterRequestHandler[duelcommands.SubmitSolutionCommand, duelcommands.SubmitSolutionResponse](
		submitSolutionHandler,
	)
	if err != nil {
		return nil, err
	}

	joinSessionHandler := duelqueries.NewJoinSessionQueryHandler(sessions, gameStore, timers, finalizer)
	err = mediator.RegisterRequestHandler[duelqueries.JoinSessionQuery, dueldomain.GameSession](
		joinSessionHandler,
	)
	if err != nil {
		return nil, err
	}

	getProgressHandler := duelqueries.NewGetProgressQueryHandler(
		sessions,
		gameStore,
		taskStore,
		config.Game.RequiredLevels,
	)
	err = mediator.RegisterRequestHandler[duelqueries.GetProgressQuery, duelqueries.GetProgressResponse](
		getProgressHandler,
	)
	if err != nil {
		return nil, err
	}

	getTaskTemplateHandler := duelqueries.NewGetTaskTemplateQueryHandler(taskStore)
	err = mediator.RegisterRequestHandler[duelqueries.GetTaskTemplateQuery, duelqueries.GetTaskTemplateResponse](
		getTaskTemplateHandler,
	)
	if err != nil {
		return nil, err
	}

	// recovery

	recovery := duel.NewRecoveryLoader(gameStore, sessions, finalizer, config.Logger)
	if err := recovery.Load(baseCtx); err != nil {
		return nil, err
	}

	r := router{
		mux: chi.NewRouter(),
		middleware: []httpMiddleware{
			baseContextMiddleware(baseCtx),
			core.CorrelationIDHTTPMiddleware,
		},
	}

	// http

	authenticated := identity.AuthenticationMiddleware(db)

	r.register("POST /duels/invites", duelcommands.HandleSendInvite, authenticated)
	r.register("POST /duels/invites/{id}/actions/accept", duelcommands.HandleAcceptInvite, authenticated)
	r.register("POST /duels/invites/{id}/actions/decline", duelcommands.HandleDeclineInvite, authenticated)

	r.register("GET /duels/{id}", duelqueries.HandleJoinSession, authenticated)
	r.register("GET /duels/{id}/progress", duelqueries.HandleGetProgress, authenticated)
	r.register("PUT /duels/{id}/actions/ready", duelcommands.HandleSetReady, authenticated)
	r.register("PUT /duels/{id}/actions/leave", duelcommands.HandleLeaveGame, authenticated)
	r.register("POST /duels/{id}/submissions", duelcommands.HandleSubmitSolution, authenticated)

	r.register("GET /tasks/{id}/template", duelqueries.HandleGetTaskTemplate, authenticated)

	r.register("GET /ws", hub.HandleWS, authenticated)

	server := http.Server{
		Addr:    net.JoinHostPort("", strconv.Itoa(config.Port)),
		Handler: r.mux,
	}

	return &HTTPServer{server: &server}, nil
}

func (s *HTTPServer) Start() error {
	if err := s.server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}

	return nil
}

func (s *HTTPServer) Stop() error {
	return s.server.Close()
}

type httpMiddleware func(http.HandlerFunc) http.HandlerFunc

type router struct {
	mux        chi.Router
	middleware []httpMiddleware
}

func (r *router) register(pattern string, handler http.HandlerFunc, middleware ...httpMiddleware) {
	method, path, _ := strings.Cut(pattern, " ")

	h := handler

	allMiddleware := append(r.middleware, middleware...)

	for i := len(allMiddleware) - 1; i >= 0; i-- {
		h = allMiddleware[i](h)
	}

	r.mux.Method(method, path, h)
}

func baseContextMiddleware(baseCtx context.Context) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			baseCtx := baseCtx

			if v, ok := ctx.Value(http.ServerContextKey).(*http.Server); ok {
				baseCtx = context.WithValue(baseCtx, http.ServerContextKey, v)
			}

			if v, ok := ctx.Value(http.LocalAddrContextKey).(net.Addr); ok {
				baseCtx = context.WithValue(baseCtx, http.LocalAddrContextKey, v)
			}

			if v, ok := ctx.Value(chi.RouteCtxKey).(*chi.Context); ok {
				baseCtx = context.WithValue(baseCtx, chi.RouteCtxKey, v)
			}

			next.ServeHTTP(w, r.WithContext(baseCtx))
		}
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/cmtonkinson/brain-scheduler/config"
	"github.com/cmtonkinson/brain-scheduler/internal/agent"
	"github.com/cmtonkinson/brain-scheduler/internal/capability"
	"github.com/cmtonkinson/brain-scheduler/internal/command"
	"github.com/cmtonkinson/brain-scheduler/internal/dispatch"
	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/health"
	"github.com/cmtonkinson/brain-scheduler/internal/metrics"
	"github.com/cmtonkinson/brain-scheduler/internal/notify"
	"github.com/cmtonkinson/brain-scheduler/internal/obslog"
	"github.com/cmtonkinson/brain-scheduler/internal/predicate"
	"github.com/cmtonkinson/brain-scheduler/internal/query"
	"github.com/cmtonkinson/brain-scheduler/internal/reaper"
	"github.com/cmtonkinson/brain-scheduler/internal/retry"
	"github.com/cmtonkinson/brain-scheduler/internal/store"
	"github.com/cmtonkinson/brain-scheduler/internal/subject"
	"github.com/cmtonkinson/brain-scheduler/internal/timeradapter"
	httptransport "github.com/cmtonkinson/brain-scheduler/internal/transport/http"
	"github.com/cmtonkinson/brain-scheduler/internal/transport/http/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := obslog.New(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	scheduleStore := store.NewScheduleStore(pool)
	taskIntentStore := store.NewTaskIntentStore(pool)
	executionStore := store.NewExecutionStore(pool)
	executionRunner := store.NewExecutionRunner(pool)
	scheduleRunner := store.NewScheduleRunner(pool)
	auditStore := store.NewAuditStore(pool)

	gate, err := capability.New(ctx, splitCSV(cfg.CapabilityAllowlist), splitCSV(cfg.CapabilityDenylist),
		capability.WithLogger(logger),
		capability.WithAudit(func(_ context.Context, capabilityID string, _ domain.ActorContext, reason capability.ReasonCode, _ map[string]any, _ time.Time) {
			metrics.CapabilityDecisionsTotal.WithLabelValues(capabilityID, string(reason)).Inc()
		}),
	)
	if err != nil {
		stop()
		log.Fatalf("capability gate: %v", err)
	}

	resolver := newSubjectResolver(cfg, logger)

	predicateSvc := predicate.New(gate, resolver, func(ctx context.Context, req predicate.Request, res predicate.Result) {
		metrics.PredicateEvaluationsTotal.WithLabelValues(string(res.Status)).Inc()
		row := domain.PredicateAuditRow{
			EvaluationID:               req.EvaluationID,
			ScheduleID:                 req.ScheduleID,
			ExecutionID:                req.ExecutionID,
			TaskIntentID:               req.TaskIntentID,
			PredicateSubject:           req.Predicate.Subject,
			PredicateOperator:          req.Predicate.Operator,
			PredicateValue:             req.Predicate.Value,
			EvaluationTime:             req.EvaluationTime,
			EvaluatedAt:                time.Now(),
			Status:                     string(res.Status),
			ResultCode:                 string(res.ResultCode),
			ObservedValue:              res.ObservedValue,
			AuthorizationDecision:      res.AuthorizationDecision,
			AuthorizationReasonMessage: res.AuthorizationReason,
			ProviderName:               req.ProviderName,
			ProviderAttempt:            req.ProviderAttempt,
			CorrelationID:              req.CorrelationID,
			Actor:                      req.Actor,
			TraceID:                    req.TraceID,
		}
		if _, err := auditStore.AppendPredicate(ctx, row); err != nil {
			logger.ErrorContext(ctx, "append predicate audit row failed", "error", err, "evaluation_id", req.EvaluationID)
		}
	})

	invoker := newInvoker(cfg, logger)
	notifier := newNotifier(cfg, logger)

	policy := retry.Policy{
		MaxAttempts:        cfg.RetryMaxAttempts,
		BackoffStrategy:    domain.BackoffStrategy(cfg.RetryBackoffStrategy),
		BackoffBaseSeconds: cfg.RetryBackoffBaseSeconds,
		MaxBackoff:         time.Hour,
	}

	dispatcher := dispatch.New(scheduleStore, taskIntentStore, executionStore, executionRunner, predicateSvc, invoker, notifier, policy, logger)

	adapter := timeradapter.NewCronAdapter(func(ctx context.Context, cb timeradapter.Callback) {
		if _, err := dispatcher.Dispatch(ctx, cb); err != nil && !errors.Is(err, dispatch.ErrScheduleInactive) {
			logger.ErrorContext(ctx, "dispatch failed", "error", err, "schedule_id", cb.ScheduleID)
		}
	})

	commandSvc := command.New(scheduleStore, scheduleRunner, adapter, logger)
	querySvc := query.New(scheduleStore, executionStore, taskIntentStore, auditStore)

	scheduleHandler := handler.NewScheduleHandler(commandSvc, logger)
	queryHandler := handler.NewQueryHandler(querySvc, logger)

	router := httptransport.NewRouter(logger, scheduleHandler, queryHandler, checker, cfg.JWKSURL, []byte(cfg.HMACSecret))
	apiSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logger.Info("api server started", "port", cfg.Port)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	staleReaper := reaper.New(executionStore, executionRunner, policy, cfg.ReaperInterval, cfg.ReaperHeartbeatTimeout, logger)
	go staleReaper.Start(ctx)

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newSubjectResolver(cfg *config.Config, logger *slog.Logger) subject.Resolver {
	if cfg.RedisURL == "" {
		return subject.NewStaticResolver(nil)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, falling back to static subject resolver", "error", err)
		return subject.NewStaticResolver(nil)
	}
	return subject.NewRedisResolver(redis.NewClient(opts))
}

func newInvoker(cfg *config.Config, logger *slog.Logger) agent.Invoker {
	if cfg.AnthropicAPIKey == "" {
		logger.Warn("ANTHROPIC_API_KEY unset; agent invocations will fail at dispatch time")
		return nil
	}
	invoker, err := agent.NewAnthropicInvokerFromAPIKey(cfg.AnthropicAPIKey, "claude-sonnet-4-5")
	if err != nil {
		logger.Warn("anthropic invoker construction failed", "error", err)
		return nil
	}
	return invoker
}

func newNotifier(cfg *config.Config, logger *slog.Logger) *notify.Router {
	if cfg.SlackWebhookURL == "" {
		return notify.NewRouter(nil, nil)
	}
	slackNotifier := notify.NewSlackNotifier(cfg.SlackWebhookURL, "#brain-scheduler")
	return notify.NewRouter(slackNotifier, func(err error, n notify.Notification) {
		logger.Error("failure notification delivery failed", "error", err, "execution_id", n.ExecutionID)
	})
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

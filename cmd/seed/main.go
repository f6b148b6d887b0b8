// seed creates a handful of representative schedules against the local dev
// database, covering the one_time, interval, and conditional schedule types.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/command"
	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/store"
	"github.com/cmtonkinson/brain-scheduler/internal/timeradapter"
)

const seedActorID = "seed-dev-local"

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := store.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	adapter := timeradapter.NewCronAdapter(func(_ context.Context, cb timeradapter.Callback) {
		logger.Info("seed adapter fired", "schedule_id", cb.ScheduleID, "trace_id", cb.TraceID)
	})

	svc := command.New(store.NewScheduleStore(pool), store.NewScheduleRunner(pool), adapter, logger)

	actor := domain.ActorContext{
		ActorType:      domain.ActorHuman,
		ActorID:        strPtr(seedActorID),
		Channel:        "cli",
		PrivilegeLevel: "unconstrained",
		AutonomyLevel:  "full",
		TraceID:        "seed",
	}

	runAt := time.Now().Add(time.Minute)
	threshold := "80"

	specs := []struct {
		label string
		in    domain.ScheduleCreateInput
	}{
		{
			label: "one-shot reminder",
			in: domain.ScheduleCreateInput{
				Intent: intent(actor, "send the weekly digest", nil),
				ScheduleType: domain.ScheduleOneTime,
				Timezone:     "UTC",
				Definition:   domain.ScheduleDefinition{RunAt: &runAt},
			},
		},
		{
			label: "hourly health check",
			in: domain.ScheduleCreateInput{
				Intent: intent(actor, "ping the monitoring webhook", nil),
				ScheduleType: domain.ScheduleInterval,
				Timezone:     "UTC",
				Definition: domain.ScheduleDefinition{
					IntervalCount: 1,
					IntervalUnit:  domain.UnitHour,
					AnchorAt:      &runAt,
				},
			},
		},
		{
			label: "conditional memory hygiene nudge",
			in: domain.ScheduleCreateInput{
				Intent: intent(actor, "nudge to tidy up notes", nil),
				ScheduleType: domain.ScheduleConditional,
				Timezone:     "UTC",
				Definition: domain.ScheduleDefinition{
					PredicateSubject:        "memory.propose/hygiene_score",
					PredicateOperator:       domain.OpLt,
					PredicateValue:          &threshold,
					EvaluationIntervalCount: 6,
					EvaluationIntervalUnit:  domain.EvalUnitHour,
				},
			},
		},
	}

	var created int
	for _, spec := range specs {
		sched, err := svc.CreateSchedule(ctx, actor, command.CreateScheduleInput{Schedule: spec.in})
		if err != nil {
			log.Fatalf("create schedule %q: %v", spec.label, err)
		}
		fmt.Printf("  %-32s id=%s next_run_at=%v\n", spec.label, sched.ID, sched.NextRunAt)
		created++
	}

	fmt.Println()
	fmt.Printf("Seed complete: %d schedules created for actor %q\n", created, seedActorID)
}

func intent(actor domain.ActorContext, summary string, details *string) domain.TaskIntentCreateInput {
	return domain.TaskIntentCreateInput{
		Summary:          summary,
		Details:          details,
		CreatorActorType: actor.ActorType,
		CreatorActorID:   actor.ActorID,
		CreatorChannel:   actor.Channel,
	}
}

func strPtr(s string) *string { return &s }

package workers

import (
	"log"
	"time"

	"fitness-challenge-system/services"

	"github.com/go-co-op/gocron/v2"
)

// StartWeekSweep runs the week-lock sweep once immediately (catch-up after a
// restart) and then hourly. The sweep is idempotent, so overlap with the
// on-demand endpoint is harmless. Returns the scheduler so main can shut it
// down.
func StartWeekSweep(weekService *services.WeekService) gocron.Scheduler {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal("failed to create sweep scheduler:", err)
	}

	run := func() {
		result, err := weekService.RunSweep(time.Now())
		if err != nil {
			log.Printf("⚠️  [SweepWorker] sweep failed: %v", err)
			return
		}
		if result.Locked > 0 || result.Opened > 0 {
			log.Printf("✅ [SweepWorker] locked %d, opened %d weeks", result.Locked, result.Opened)
		}
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(run),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		log.Fatal("failed to schedule week sweep:", err)
	}

	sched.Start()
	return sched
}

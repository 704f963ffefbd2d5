package main

import (
	"context"
	"log"
	"lookboardapi/dbhelper"
	"lookboardapi/services"
	"lookboardapi/tasks"
	"os"

	"github.com/hibiken/asynq"
)

func runScheduler() {

	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}, &asynq.SchedulerOpts{

		LogLevel: asynq.InfoLevel,
	})

	purgeTask, err := tasks.NewPurgeStaleBatchesTask()
	if err != nil {
		log.Fatalf("Failed to build purge task: %v", err)
	}
	scheduled := []struct {
		cron string
		task *asynq.Task
		desc string
	}{
		{
			cron: "30 2 * * *", // nightly
			task: purgeTask,
			desc: "Purge stale panel batches",
		},
	}

	for _, t := range scheduled {
		entryID, err := scheduler.Register(t.cron, t.task, asynq.Queue("generate"))
		if err != nil {
			log.Fatalf("Failed to register task '%s': %v", t.desc, err)
		}
		log.Printf("Registered task '%s' with ID: %s, cron: %s", t.desc, entryID, t.cron)
	}

	log.Println("Starting scheduler...")
	if err := scheduler.Run(); err != nil {
		log.Fatalf("Scheduler failed: %v", err)
	}
}

func main() {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			"generate": 7,
		}},
	)
	awsService := &services.AWSService{}
	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("[Queue] Failed to initialize AWS provider: S3")
	}
	generationProvider := services.NewHTTPGenerationClient(services.GetEnv("GENERATION_ENDPOINT", "http://localhost:9090/generate"))

	mux := asynq.NewServeMux()
	db := dbhelper.SetupDB()
	mux.HandleFunc("generate:panels", func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandlePanelBatchTask(ctx, t, db, generationProvider, awsService)
	})
	mux.HandleFunc("panels:split", func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandlePanelSplitTask(ctx, t, db, awsService)
	})
	mux.HandleFunc("batches:purge", func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandlePurgeStaleBatchesTask(ctx, t, db)
	})

	go runScheduler()
	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}

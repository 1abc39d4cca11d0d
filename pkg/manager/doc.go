// Package manager provides the Manager, the orchestration authority for
// jobs, stages and tasks.
//
// Every operation runs as one storage transaction: a task claim moves its
// stage and job to IN_PROGRESS, a terminal task report settles its stage,
// and a finished stage activates the next one or finishes the job, all in
// the same unit of work. Transactions that lose a race are retried.
//
// Basic usage:
//
//	m := manager.New(store,
//		manager.WithLogger(logger),
//		manager.DefaultAttempts(3),
//	)
//
//	job, _ := m.CreateJob(ctx, core.NewJob{Name: "ingest", Priority: core.PriorityHigh})
//	stage, _ := m.CreateStage(ctx, job.ID, core.NewStage{Type: "tiles"})
//	m.CreateTasks(ctx, stage.ID, "tiles", []core.NewTask{{Data: payload}})
//
//	task, _ := m.DequeueTask(ctx, "tiles")
//	if task != nil {
//		m.MarkTaskCompleted(ctx, task.ID)
//	}
//
// Hooks and the Events channel observe committed changes only.
package manager

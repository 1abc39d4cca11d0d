package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MapColonies/jobnik/pkg/core"
)

func taskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, claim and report tasks",
	}
	cmd.AddCommand(
		taskCreateCmd(a),
		taskGetCmd(a),
		taskDequeueCmd(a),
		taskReportCmd(a, "complete", core.TaskStatusCompleted),
		taskReportCmd(a, "fail", core.TaskStatusFailed),
	)
	return cmd
}

func taskCreateCmd(a *app) *cobra.Command {
	var (
		stageType   string
		payloads    []string
		count       int
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "create <stage-id>",
		Short: "Add tasks to a stage",
		Long: "Add tasks to a stage. Each --data flag adds one task with that JSON payload;\n" +
			"--count adds tasks without a payload.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in []core.NewTask
			for _, p := range payloads {
				data, err := jsonArg("data", p)
				if err != nil {
					return err
				}
				in = append(in, core.NewTask{Data: data, MaxAttempts: maxAttempts})
			}
			for i := 0; i < count; i++ {
				in = append(in, core.NewTask{MaxAttempts: maxAttempts})
			}
			if len(in) == 0 {
				return errors.New("give at least one --data or a positive --count")
			}

			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := m.CreateTasks(cmd.Context(), args[0], stageType, in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tasks)
		},
	}
	cmd.Flags().StringVar(&stageType, "type", "", "stage type, must match the stage")
	cmd.Flags().StringArrayVar(&payloads, "data", nil, "task payload as JSON, repeatable")
	cmd.Flags().IntVar(&count, "count", 0, "number of tasks without payload")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt budget per task, 0 for the default")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func taskGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			task, err := m.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

func taskDequeueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dequeue <stage-type>",
		Short: "Claim the next task of a stage type",
		Long:  "Claim the next task of a stage type. Prints null when nothing is claimable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			task, err := m.DequeueTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), task)
		},
	}
}

func taskReportCmd(a *app, use string, to core.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: "Report a claimed task as " + strings.ToLower(string(to)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			code, err := m.SetTaskStatus(cmd.Context(), args[0], to)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), codeResult{code})
		},
	}
}

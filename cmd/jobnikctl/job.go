package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MapColonies/jobnik/pkg/core"
)

func jobCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Create, inspect and control jobs",
	}
	cmd.AddCommand(
		jobCreateCmd(a),
		jobGetCmd(a),
		jobListCmd(a),
		jobStatusCmd(a),
		jobPriorityCmd(a),
		jobDeleteCmd(a),
	)
	return cmd
}

func jobCreateCmd(a *app) *cobra.Command {
	var name, priority, data, metadata string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := core.NewJob{Name: name, Priority: core.Priority(strings.ToUpper(priority))}
			var err error
			if in.Data, err = jsonArg("data", data); err != nil {
				return err
			}
			if in.UserMetadata, err = jsonArg("metadata", metadata); err != nil {
				return err
			}

			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			job, err := m.CreateJob(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&priority, "priority", string(core.PriorityMedium), "VERY_LOW, LOW, MEDIUM, HIGH or VERY_HIGH")
	cmd.Flags().StringVar(&data, "data", "", "job payload as JSON")
	cmd.Flags().StringVar(&metadata, "metadata", "", "user metadata as JSON")
	return cmd
}

func jobGetCmd(a *app) *cobra.Command {
	var withStages bool
	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			job, err := m.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !withStages {
				return printJSON(cmd.OutOrStdout(), job)
			}
			stages, err := m.ListStages(cmd.Context(), job.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				*core.Job
				Stages []*core.Stage `json:"stages"`
			}{job, stages})
		},
	}
	cmd.Flags().BoolVar(&withStages, "stages", false, "include the job's stages")
	return cmd
}

func jobListCmd(a *app) *cobra.Command {
	var (
		filter       core.JobFilter
		status, prio string
		since, until time.Duration
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = core.JobStatus(strings.ToUpper(status))
			filter.Priority = core.Priority(strings.ToUpper(prio))
			now := time.Now()
			if since > 0 {
				filter.Since = now.Add(-since)
			}
			if until > 0 {
				filter.Until = now.Add(-until)
			}

			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			jobs, total, err := m.ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				Total int64       `json:"total"`
				Jobs  []*core.Job `json:"jobs"`
			}{total, jobs})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&prio, "priority", "", "filter by priority")
	cmd.Flags().StringVar(&filter.Name, "name", "", "filter by name substring")
	cmd.Flags().DurationVar(&since, "since", 0, "only jobs created within this long ago")
	cmd.Flags().DurationVar(&until, "until", 0, "only jobs created at least this long ago")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "page offset")
	return cmd
}

func jobStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "status <job-id> <PENDING|PAUSED|ABORTED>",
		Short:     "Pause, resume or abort a job",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"PENDING", "PAUSED", "ABORTED"},
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			code, err := m.SetJobStatus(cmd.Context(), args[0], core.JobStatus(strings.ToUpper(args[1])))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), codeResult{code})
		},
	}
}

func jobPriorityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <job-id> <priority>",
		Short: "Change the priority of an unfinished job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			code, err := m.UpdateJobPriority(cmd.Context(), args[0], core.Priority(strings.ToUpper(args[1])))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), codeResult{code})
		},
	}
}

func jobDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a finished job with its stages and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			code, err := m.DeleteJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), codeResult{code})
		},
	}
}

type codeResult struct {
	Code core.Code `json:"code"`
}

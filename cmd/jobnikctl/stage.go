package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/MapColonies/jobnik/pkg/core"
)

func stageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Append and inspect the stages of a job",
	}
	cmd.AddCommand(
		stageCreateCmd(a),
		stageGetCmd(a),
		stageListCmd(a),
		stageStatusCmd(a),
		stageSummaryCmd(a),
	)
	return cmd
}

func stageCreateCmd(a *app) *cobra.Command {
	var (
		in             core.NewStage
		data, metadata string
	)
	cmd := &cobra.Command{
		Use:   "create <job-id>",
		Short: "Append a stage to a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			stage, err := m.CreateStage(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stage)
		},
	}
	cmd.Flags().StringVar(&in.Type, "type", "", "stage type consumers dequeue by")
	cmd.Flags().BoolVar(&in.StartAsWaiting, "waiting", false, "hold the stage in WAITING until released")
	cmd.Flags().StringVar(&data, "data", "", "stage payload as JSON")
	cmd.Flags().StringVar(&metadata, "metadata", "", "user metadata as JSON")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func stageGetCmd(a *app) *cobra.Command {
	var withTasks bool
	cmd := &cobra.Command{
		Use:   "get <stage-id>",
		Short: "Show a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			stage, err := m.GetStage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !withTasks {
				return printJSON(cmd.OutOrStdout(), stage)
			}
			tasks, err := m.ListTasks(cmd.Context(), stage.ID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), struct {
				*core.Stage
				Tasks []*core.Task `json:"tasks"`
			}{stage, tasks})
		},
	}
	cmd.Flags().BoolVar(&withTasks, "tasks", false, "include the stage's tasks")
	return cmd
}

func stageListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <job-id>",
		Short: "List a job's stages in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			stages, err := m.ListStages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stages)
		},
	}
}

func stageStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <stage-id> <status>",
		Short: "Move a stage, typically releasing it from WAITING to PENDING",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			code, err := m.SetStageStatus(cmd.Context(), args[0], core.StageStatus(strings.ToUpper(args[1])))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), codeResult{code})
		},
	}
}

func stageSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <stage-id>",
		Short: "Show a stage's task counts by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := m.GetStageSummary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
}

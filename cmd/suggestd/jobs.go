package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"ropa-suggestions/internal/domain/model"
	"ropa-suggestions/internal/infra/ropaapi"

	"github.com/spf13/cobra"
)

func newJobsCommand(flags *rootFlags) *cobra.Command {
	var tenant, entityType string

	cmd := &cobra.Command{
		Use:   "jobs <entity-id>",
		Short: "List the backend's suggestion jobs for one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if tenant == "" {
				tenant = cfg.Backend.TenantID
			}
			et, err := model.ParseEntityType(entityType)
			if err != nil {
				return err
			}
			ref := model.EntityRef{TenantID: tenant, Type: et, ID: args[0]}
			if err := ref.Validate(); err != nil {
				return err
			}
			client, err := ropaapi.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Timeout)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return listJobs(ctx, cmd.OutOrStdout(), client, ref)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (defaults to backend.tenant_id)")
	cmd.Flags().StringVar(&entityType, "type", string(model.EntityActivity), "entity type: repository|activity|data_element|dpia|risk")
	return cmd
}

type jobLister interface {
	ListJobs(ctx context.Context, ref model.EntityRef) ([]model.SuggestionJobSummary, error)
}

func listJobs(ctx context.Context, out io.Writer, backend jobLister, ref model.EntityRef) error {
	jobs, err := backend.ListJobs(ctx, ref)
	if err != nil {
		return fmt.Errorf("list jobs for %s: %w", ref, err)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB ID\tFIELD\tSTATUS\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.JobID, j.FieldName, j.Status, j.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

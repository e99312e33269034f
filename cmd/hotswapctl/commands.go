package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"

	"github.com/chimera-pool/chimera-pool-core/internal/adminrpc"
)

var stageFlags adminrpc.StageRequest

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the controller status",
	RunE: withClient(func(ctx context.Context, c *adminrpc.Client) (map[string]any, error) {
		return c.Status(ctx)
	}),
}

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Stage and validate a candidate engine",
	RunE: withClient(func(ctx context.Context, c *adminrpc.Client) (map[string]any, error) {
		return c.Stage(ctx, stageFlags)
	}),
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start migrating to the staged candidate",
	RunE: withClient(func(ctx context.Context, c *adminrpc.Client) (map[string]any, error) {
		return c.Start(ctx)
	}),
}

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance the migration one step",
	RunE: withClient(func(ctx context.Context, c *adminrpc.Client) (map[string]any, error) {
		return c.Advance(ctx)
	}),
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Abort the migration and discard the candidate",
	RunE: withClient(func(ctx context.Context, c *adminrpc.Client) (map[string]any, error) {
		return c.Rollback(ctx)
	}),
}

func init() {
	f := stageCmd.Flags()
	f.StringVar(&stageFlags.Engine, "engine", "", "registry engine name (required)")
	f.StringVar(&stageFlags.Name, "name", "", "override the candidate name")
	f.StringVar(&stageFlags.Version, "version", "", "override the candidate version")
	f.Float64Var(&stageFlags.FailRate, "fail-rate", 0, "inject this share of hash failures")
	_ = stageCmd.MarkFlagRequired("engine")
}

func withClient(call func(context.Context, *adminrpc.Client) (map[string]any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		c, err := adminrpc.Dial(rootFlags.addr)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), rootFlags.timeout)
		defer cancel()

		out, err := call(ctx, c)
		if err != nil {
			st := status.Convert(err)
			return fmt.Errorf("%s: %s", st.Code(), st.Message())
		}
		return render(cmd.OutOrStdout(), out, rootFlags.json)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/miradorstack/mirador-feedback/internal/api"
	"github.com/miradorstack/mirador-feedback/internal/engine"
)

func main() {
	if err := newRootCmd(dialInsecure).Execute(); err != nil {
		os.Exit(1)
	}
}

type dialFunc func(addr string) (*grpc.ClientConn, error)

func dialInsecure(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

type cli struct {
	addr    string
	timeout time.Duration
	dial    dialFunc
}

func newRootCmd(dial dialFunc) *cobra.Command {
	c := &cli{dial: dial}
	root := &cobra.Command{
		Use:          "feedbackctl",
		Short:        "Inspect and drive the mirador-feedback engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.addr, "addr", "localhost:50051", "gRPC address of the feedback engine")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(c.fingerprintCmd(), c.ingestCmd(), c.clustersCmd(), c.analyzeCmd())
	return root
}

func (c *cli) fingerprintCmd() *cobra.Command {
	var errorType, service, message string
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the cluster fingerprint of an error without contacting the engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"fingerprint":       engine.FingerprintParts(errorType, service, message),
				"normalizedMessage": engine.NormalizeMessage(message),
			})
		},
	}
	cmd.Flags().StringVar(&errorType, "type", "", "error type")
	cmd.Flags().StringVar(&service, "service", "", "service name")
	cmd.Flags().StringVar(&message, "message", "", "error message")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func (c *cli) ingestCmd() *cobra.Command {
	req := &api.IngestErrorRequest{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Report an error to the engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd, func(ctx context.Context, client *api.FeedbackLoopClient) (any, error) {
				return client.IngestError(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.Source, "source", "custom", "error source")
	cmd.Flags().StringVar(&req.ErrorType, "type", "", "error type")
	cmd.Flags().StringVar(&req.Message, "message", "", "error message")
	cmd.Flags().StringVar(&req.Severity, "severity", "medium", "severity")
	cmd.Flags().StringVar(&req.Service, "service", "", "service name")
	cmd.Flags().StringVar(&req.Endpoint, "endpoint", "", "endpoint")
	cmd.Flags().StringVar(&req.Environment, "env", "", "environment")
	for _, name := range []string{"tenant", "type", "message", "service"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (c *cli) clustersCmd() *cobra.Command {
	req := &api.ListClustersRequest{}
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List a tenant's error clusters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd, func(ctx context.Context, client *api.FeedbackLoopClient) (any, error) {
				return client.ListClusters(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&req.Severity, "severity", "", "severity filter")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum clusters to return")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func (c *cli) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <cluster-id>",
		Short: "Run an impact analysis for a cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, func(ctx context.Context, client *api.FeedbackLoopClient) (any, error) {
				return client.AnalyzeImpact(ctx, &api.ClusterRequest{ClusterID: args[0]})
			})
		},
	}
}

func (c *cli) call(cmd *cobra.Command, fn func(ctx context.Context, client *api.FeedbackLoopClient) (any, error)) error {
	conn, err := c.dial(c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()
	out, err := fn(ctx, api.NewFeedbackLoopClient(conn))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

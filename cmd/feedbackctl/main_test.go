package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/miradorstack/mirador-feedback/internal/api"
	"github.com/miradorstack/mirador-feedback/internal/config"
	"github.com/miradorstack/mirador-feedback/internal/engine"
	"github.com/miradorstack/mirador-feedback/internal/repo"
	"github.com/miradorstack/mirador-feedback/internal/services"
)

func execute(t *testing.T, dial dialFunc, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(dial)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func bufconnDialer(t *testing.T) dialFunc {
	t.Helper()
	store, err := repo.OpenBadgerStore(repo.InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc := services.NewFeedbackService(services.Options{Store: store, Scheduler: engine.InlineScheduler{}})

	lis := bufconn.Listen(1 << 20)
	server := api.NewServerWithListener(config.ServerConfig{}, lis, api.NewGRPCService(svc))
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(ctx)
	})

	return func(string) (*grpc.ClientConn, error) {
		return grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}
}

func TestFingerprintCommand(t *testing.T) {
	out, err := execute(t, nil, "fingerprint", "--type", "TimeoutError", "--service", "checkout",
		"--message", "Request 42 timed out after 30000ms")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, engine.FingerprintParts("TimeoutError", "checkout", "Request 7 timed out after 10ms"), got["fingerprint"])
	assert.Equal(t, "Request N timed out after Nms", got["normalizedMessage"])
}

func TestIngestAndAnalyzeCommands(t *testing.T) {
	dial := bufconnDialer(t)

	out, err := execute(t, dial, "ingest", "--tenant", "tenant-c", "--type", "PaymentError",
		"--message", "card 4242 declined", "--severity", "high", "--service", "billing")
	require.NoError(t, err)
	var ingested api.IngestErrorResponse
	require.NoError(t, json.Unmarshal([]byte(out), &ingested))
	require.True(t, ingested.ClusterCreated)

	out, err = execute(t, dial, "analyze", ingested.ClusterID)
	require.NoError(t, err)
	var analysis struct {
		ErrorClusterID string `json:"errorClusterId"`
		ImpactScore    int    `json:"impactScore"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &analysis))
	assert.Equal(t, ingested.ClusterID, analysis.ErrorClusterID)
	assert.Positive(t, analysis.ImpactScore)

	out, err = execute(t, dial, "clusters", "--tenant", "tenant-c")
	require.NoError(t, err)
	var list api.ListClustersResponse
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Len(t, list.Clusters, 1)
}

func TestAnalyzeCommandRequiresClusterID(t *testing.T) {
	_, err := execute(t, nil, "analyze")
	require.Error(t, err)
}

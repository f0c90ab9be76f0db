package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

func TestRegressionGeneratorDefaultsToPlaywright(t *testing.T) {
	store := newMemTestStore()
	gen := NewRegressionTestGenerator(stubGenerator{code: "generated"}, store, time.Second, nil)

	test, err := gen.Generate(context.Background(), testCluster(), "", false)
	require.NoError(t, err)
	require.Equal(t, models.FrameworkPlaywright, test.Framework)
	require.Equal(t, "generated", test.TestCode)
	require.Equal(t, models.GeneratedByModel, test.GeneratedBy)
	require.Equal(t, "cluster-1", test.ErrorClusterID)
	require.Equal(t, "tenant-a", test.TenantID)
	require.Equal(t, test.ID, store.links["cluster-1"])
}

func TestRegressionGeneratorWithoutBackend(t *testing.T) {
	store := newMemTestStore()
	gen := NewRegressionTestGenerator(nil, store, time.Second, nil)

	_, err := gen.Generate(context.Background(), testCluster(), models.FrameworkJest, false)
	require.ErrorIs(t, err, ErrGeneratorUnavailable)
	require.Empty(t, store.tests)

	test, err := gen.Generate(context.Background(), testCluster(), models.FrameworkJest, true)
	require.NoError(t, err)
	require.Equal(t, models.GeneratedByTemplate, test.GeneratedBy)
}

func TestRegressionGeneratorRejectsEmptyCode(t *testing.T) {
	gen := NewRegressionTestGenerator(stubGenerator{code: "  "}, newMemTestStore(), time.Second, nil)
	_, err := gen.Generate(context.Background(), testCluster(), models.FrameworkGo, false)
	require.ErrorContains(t, err, "empty code")
}

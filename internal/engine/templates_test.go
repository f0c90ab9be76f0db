package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

func TestRenderTemplatePerFramework(t *testing.T) {
	cluster := testCluster()
	cases := map[models.TestFramework]string{
		models.FrameworkPlaywright: "@playwright/test",
		models.FrameworkCypress:    "cy.visit",
		models.FrameworkJest:       "not.toThrow",
		models.FrameworkPytest:     "def test_regression_TimeoutError",
		models.FrameworkGo:         "func TestRegressionTimeoutError",
	}
	for framework, marker := range cases {
		code := RenderTemplate(framework, cluster)
		require.Contains(t, code, marker, framework)
	}
}

func TestRenderTemplateQuotesMessages(t *testing.T) {
	cluster := testCluster()
	cluster.PrimaryMessage = `can't parse "json"`
	code := RenderTemplate(models.FrameworkJest, cluster)
	require.Contains(t, code, `"should not reproduce error: can't parse \"json\""`)
}

func TestRenderTemplateUnknownFrameworkUsesJest(t *testing.T) {
	require.Equal(t, RenderTemplate(models.FrameworkJest, testCluster()), RenderTemplate("mocha", testCluster()))
}

func TestExtractScenarios(t *testing.T) {
	scenarios := ExtractScenarios(testCluster())
	require.Len(t, scenarios, 1)
	require.Equal(t, "Prevent TimeoutError", scenarios[0].Name)
	require.Len(t, scenarios[0].Steps, 3)
}

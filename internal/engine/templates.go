package engine

import (
	"bytes"
	"strconv"
	"text/template"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

var templateFuncs = template.FuncMap{"quote": strconv.Quote}

var frameworkTemplates = map[models.TestFramework]*template.Template{
	models.FrameworkPlaywright: template.Must(template.New("playwright").Funcs(templateFuncs).Parse(`import { test, expect } from '@playwright/test';

test.describe({{quote .Title}}, () => {
  test({{quote .Case}}, async ({ page }) => {
{{- if .Endpoint}}
    await page.goto({{quote .Endpoint}});
{{- else}}
    // Navigate to the page that raised the error.
{{- end}}

    // Perform the actions that triggered the error.

    await expect(page.locator('body')).not.toContainText({{quote .ErrorType}});
    await expect(page).toHaveTitle(/.*/);
  });
});
`)),
	models.FrameworkCypress: template.Must(template.New("cypress").Funcs(templateFuncs).Parse(`describe({{quote .Title}}, () => {
  it({{quote .Case}}, () => {
{{- if .Endpoint}}
    cy.visit({{quote .Endpoint}});
{{- else}}
    // cy.visit(...)
{{- end}}

    // Perform the actions that triggered the error.

    cy.get('body').should('not.contain', {{quote .ErrorType}});
  });
});
`)),
	models.FrameworkJest: template.Must(template.New("jest").Funcs(templateFuncs).Parse(`describe({{quote .Title}}, () => {
  it({{quote .Case}}, async () => {
    const service = {{quote .Service}};

    // Execute the call that triggered the error against the service.

    expect(() => {
      // assertion
    }).not.toThrow();
  });
});
`)),
	models.FrameworkPytest: template.Must(template.New("pytest").Funcs(templateFuncs).Parse(`import pytest


def test_regression_{{.Ident}}():
    """{{.Title}}: {{.Case}}"""
    service = {{quote .Service}}
{{- if .Endpoint}}
    endpoint = {{quote .Endpoint}}
{{- end}}

    # Execute the call that triggered the error against the service.

    with pytest.raises(Exception):
        pytest.fail({{quote .ErrorType}} + " reproduced")
`)),
	models.FrameworkGo: template.Must(template.New("go").Funcs(templateFuncs).Parse(`package regression

import "testing"

// {{.Title}}
func TestRegression{{.Ident}}(t *testing.T) {
	service := {{quote .Service}}
{{- if .Endpoint}}
	endpoint := {{quote .Endpoint}}
	_ = endpoint
{{- end}}
	_ = service

	// Execute the call that triggered the error against the service.

	t.Log({{quote .Case}})
}
`)),
}

type templateData struct {
	Title     string
	Case      string
	ErrorType string
	Service   string
	Endpoint  string
	Ident     string
}

// RenderTemplate renders the local fallback test for a cluster. Unknown frameworks use
// the jest template.
func RenderTemplate(framework models.TestFramework, cluster models.ErrorCluster) string {
	tmpl, ok := frameworkTemplates[framework]
	if !ok {
		tmpl = frameworkTemplates[models.FrameworkJest]
	}
	data := templateData{
		Title:     "Regression: " + cluster.ErrorType,
		Case:      "should not reproduce error: " + truncate(cluster.PrimaryMessage, 50),
		ErrorType: cluster.ErrorType,
		Service:   firstOr(cluster.AffectedServices, "service"),
		Endpoint:  firstOr(cluster.AffectedEndpoints, ""),
		Ident:     identifier(cluster.ErrorType),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// Templates are static and data is plain strings.
		panic(err)
	}
	return buf.String()
}

// ExtractScenarios describes the behaviour a regression test guards.
func ExtractScenarios(cluster models.ErrorCluster) []models.TestScenario {
	return []models.TestScenario{{
		Name: "Prevent " + cluster.ErrorType,
		Steps: []string{
			"Navigate to affected endpoint",
			"Perform triggering action",
			"Verify error does not occur",
		},
		Assertions: []string{
			"No " + cluster.ErrorType + " should be thrown",
			"Page should load successfully",
		},
	}}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 && values[0] != "" {
		return values[0]
	}
	return fallback
}

func identifier(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "Error"
	}
	return string(out)
}

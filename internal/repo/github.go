package repo

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

// GitHubTicketer files tickets as GitHub issues.
type GitHubTicketer struct {
	client  *github.Client
	owner   string
	repo    string
	timeout time.Duration
}

// NewGitHubTicketer authenticates with a static token.
func NewGitHubTicketer(ctx context.Context, token, owner, repo string, timeout time.Duration) (*GitHubTicketer, error) {
	if token == "" {
		return nil, fmt.Errorf("github token not set")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return newGitHubTicketer(github.NewClient(oauth2.NewClient(ctx, ts)), owner, repo, timeout)
}

func newGitHubTicketer(client *github.Client, owner, repo string, timeout time.Duration) (*GitHubTicketer, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("github owner and repository are required")
	}
	return &GitHubTicketer{client: client, owner: owner, repo: repo, timeout: timeout}, nil
}

// CreateTicket opens an issue. The ticket id is "owner/repo#number". The rule's project,
// when set, is added as a label.
func (t *GitHubTicketer) CreateTicket(ctx context.Context, req models.TicketRequest) (models.Ticket, error) {
	ctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()

	labels := append([]string{}, req.Labels...)
	if req.Project != "" {
		labels = append(labels, req.Project)
	}
	labels = append(labels, "priority:"+req.Priority)

	issue, resp, err := t.client.Issues.Create(ctx, t.owner, t.repo, &github.IssueRequest{
		Title:  github.String(req.Summary),
		Body:   github.String(req.Description),
		Labels: &labels,
	})
	if err != nil {
		return models.Ticket{}, fmt.Errorf("create github issue: %w", err)
	}
	if resp != nil && resp.StatusCode != http.StatusCreated {
		return models.Ticket{}, fmt.Errorf("create github issue: unexpected status %s", resp.Status)
	}
	return models.Ticket{
		ID:  fmt.Sprintf("%s/%s#%d", t.owner, t.repo, issue.GetNumber()),
		URL: issue.GetHTMLURL(),
	}, nil
}

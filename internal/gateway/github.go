// Package gateway provides a gateway to the GitHub REST API with
// rate-limit-aware retry and transparent pagination.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"github.com/t-okubo/repo-census/internal/domain"
)

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
type Fetcher interface {
	ListRepositories(ctx context.Context, owner string) ([]domain.Repository, error)
	ListTeams(ctx context.Context, owner string) ([]string, error)
	ListTeamMembers(ctx context.Context, owner, slug string) ([]string, error)
	ListContributors(ctx context.Context, owner, repo string) ([]domain.Contributor, error)
	GetParticipation(ctx context.Context, owner, repo string) (*domain.Participation, error)
}

// Gateway is the concrete implementation of the Fetcher interface.
type Gateway struct {
	client *github.Client
	retry  retryPolicy
	logger *log.Logger
}

// NewGateway creates a Gateway. An empty token yields an unauthenticated
// client, which GitHub serves with a much smaller quota. The secondary
// rate-limit waiter sits below the oauth2 transport so abuse-detection
// responses are absorbed before they reach the retry layer.
func NewGateway(token string, logger *log.Logger) (*Gateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	httpClient := &http.Client{Transport: rateLimitWaiter}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient.Transport = &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		}
	}
	return &Gateway{
		client: github.NewClient(httpClient),
		retry:  defaultRetryPolicy(),
		logger: logger,
	}, nil
}

// ListRepositories returns every repository of the organization, all types,
// sorted by full name, concatenated across pages in fetch order.
func (g *Gateway) ListRepositories(ctx context.Context, owner string) ([]domain.Repository, error) {
	desc := fmt.Sprintf("list repositories of %s", owner)
	opts := &github.RepositoryListByOrgOptions{
		Type:        "all",
		Sort:        "full_name",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	var all []domain.Repository
	for {
		var (
			page []*github.Repository
			resp *github.Response
		)
		err := g.withRetry(ctx, desc, func() (*github.Response, error) {
			var err error
			page, resp, err = g.client.Repositories.ListByOrg(ctx, owner, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			repo, err := toRepository(r)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", desc, err)
			}
			all = append(all, repo)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Println("  Fetching next page of repositories...")
	}
	return all, nil
}

// ListTeams returns the slugs of every team in the organization.
func (g *Gateway) ListTeams(ctx context.Context, owner string) ([]string, error) {
	desc := fmt.Sprintf("list teams of %s", owner)
	opts := &github.ListOptions{PerPage: 100}
	var slugs []string
	for {
		var (
			page []*github.Team
			resp *github.Response
		)
		err := g.withRetry(ctx, desc, func() (*github.Response, error) {
			var err error
			page, resp, err = g.client.Teams.ListTeams(ctx, owner, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, team := range page {
			if team == nil || team.Slug == nil {
				return nil, fmt.Errorf("%s: team record is missing its slug", desc)
			}
			slugs = append(slugs, team.GetSlug())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Println("  Fetching next page of teams...")
	}
	return slugs, nil
}

// ListTeamMembers returns the member logins of one team.
func (g *Gateway) ListTeamMembers(ctx context.Context, owner, slug string) ([]string, error) {
	desc := fmt.Sprintf("list members of team %s/%s", owner, slug)
	opts := &github.TeamListTeamMembersOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var logins []string
	for {
		var (
			page []*github.User
			resp *github.Response
		)
		err := g.withRetry(ctx, desc, func() (*github.Response, error) {
			var err error
			page, resp, err = g.client.Teams.ListTeamMembersBySlug(ctx, owner, slug, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, member := range page {
			if member == nil || member.Login == nil {
				return nil, fmt.Errorf("%s: member record is missing its login", desc)
			}
			logins = append(logins, member.GetLogin())
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Println("  Fetching next page of team members...")
	}
	return logins, nil
}

// ListContributors returns the contributors of one repository. An empty
// repository (204 from the platform) yields an empty slice, not an error.
func (g *Gateway) ListContributors(ctx context.Context, owner, repo string) ([]domain.Contributor, error) {
	desc := fmt.Sprintf("list contributors of %s/%s", owner, repo)
	opts := &github.ListContributorsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var all []domain.Contributor
	for {
		var (
			page []*github.Contributor
			resp *github.Response
		)
		err := g.withRetry(ctx, desc, func() (*github.Response, error) {
			var err error
			page, resp, err = g.client.Repositories.ListContributors(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, c := range page {
			if c == nil || c.Login == nil {
				return nil, fmt.Errorf("%s: contributor record is missing its login", desc)
			}
			all = append(all, domain.Contributor{Login: c.GetLogin()})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Println("  Fetching next page of contributors...")
	}
	return all, nil
}

// GetParticipation returns the weekly commit counts of one repository,
// oldest week first. It returns nil without error when the platform has no
// data (204). A 202 means the platform is still computing the stats
// server-side and is retried like any other failure.
func (g *Gateway) GetParticipation(ctx context.Context, owner, repo string) (*domain.Participation, error) {
	desc := fmt.Sprintf("participation stats of %s/%s", owner, repo)
	var (
		participation *github.RepositoryParticipation
		resp          *github.Response
	)
	err := g.withRetry(ctx, desc, func() (*github.Response, error) {
		var err error
		participation, resp, err = g.client.Repositories.ListParticipation(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.StatusCode == http.StatusNoContent {
		g.logger.Printf("No participation data for %s/%s", owner, repo)
		return nil, nil
	}
	if participation == nil || participation.All == nil {
		return nil, nil
	}
	return &domain.Participation{Weekly: participation.All}, nil
}

func toRepository(r *github.Repository) (domain.Repository, error) {
	if r == nil || r.ID == nil || r.Name == nil || r.FullName == nil {
		return domain.Repository{}, fmt.Errorf("repository record is missing id, name or full name")
	}
	return domain.Repository{
		ID:       r.GetID(),
		Name:     r.GetName(),
		FullName: r.GetFullName(),
		Size:     r.GetSize(),
	}, nil
}

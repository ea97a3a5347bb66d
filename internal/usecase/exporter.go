// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/montanaflynn/stats"

	"github.com/t-okubo/repo-census/internal/config"
	"github.com/t-okubo/repo-census/internal/domain"
	"github.com/t-okubo/repo-census/internal/gateway"
)

// Ledger is the append-only output file protocol the exporter writes through.
type Ledger interface {
	Create() error
	RecordedIDs() (map[int64]struct{}, error)
	Append(row domain.SummaryRow) error
}

// Exporter is the use case for one export run. It orchestrates enumeration,
// per-repository fetches and ledger appends, strictly sequentially.
type Exporter struct {
	fetcher gateway.Fetcher
	ledger  Ledger
	logger  *log.Logger
	warnLog *log.Logger
}

// NewExporter creates a new Exporter instance. logger carries verbose
// progress output; warnLog carries warnings that must always surface.
func NewExporter(fetcher gateway.Fetcher, ledger Ledger, logger, warnLog *log.Logger) *Exporter {
	return &Exporter{
		fetcher: fetcher,
		ledger:  ledger,
		logger:  logger,
		warnLog: warnLog,
	}
}

// Run executes one export. Output-file preconditions are checked before any
// network activity: normal mode must create a fresh file, append-only mode
// must find an existing one whose recorded ids become the skip-set. A single
// repository's fetch failure never aborts the batch; a ledger write failure
// does, since the file is the product.
func (e *Exporter) Run(ctx context.Context, cfg config.Config) error {
	recorded := make(map[int64]struct{})
	if cfg.AppendOnly {
		ids, err := e.ledger.RecordedIDs()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("the output file does not already exist; run without --append-only to create a new one: %w", err)
			}
			return err
		}
		recorded = ids
		e.logger.Printf("Continuing existing output with %d recorded repositories", len(recorded))
	} else {
		if err := e.ledger.Create(); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("the output file already exists; use --append-only to continue it: %w", err)
			}
			return err
		}
	}

	e.logger.Printf("Fetching repositories of %s...", cfg.Owner)
	repos, err := e.fetcher.ListRepositories(ctx, cfg.Owner)
	if err != nil {
		// Nothing to process, but the run itself is not an error: the output
		// file stays valid and a later append-only run picks everything up.
		e.warnLog.Printf("failed to list repositories of %s, nothing to do: %v", cfg.Owner, err)
	}

	e.logger.Println("Fetching teams and their members...")
	teams := e.fetchTeams(ctx, cfg.Owner)

	var written, skipped, undercounted int
	var yearlyCounts []float64
	for i, repo := range repos {
		if _, ok := recorded[repo.ID]; ok {
			skipped++
			continue
		}
		e.logger.Printf("[%d/%d] Processing %s", i+1, len(repos), repo.FullName)
		owner, name := repo.OwnerAndName()

		partial := false
		contributors, err := e.fetcher.ListContributors(ctx, owner, name)
		if err != nil {
			e.warnLog.Printf("contributors of %s unavailable, its row may be undercounted: %v", repo.FullName, err)
			contributors = nil
			partial = true
		}
		participation, err := e.fetcher.GetParticipation(ctx, owner, name)
		if err != nil {
			e.warnLog.Printf("participation stats of %s unavailable, its row may be undercounted: %v", repo.FullName, err)
			participation = nil
			partial = true
		}
		if partial {
			undercounted++
		}

		row := domain.BuildSummaryRow(repo, contributors, participation, teams)
		if err := e.ledger.Append(row); err != nil {
			return fmt.Errorf("append row for %s: %w", repo.FullName, err)
		}
		written++
		yearlyCounts = append(yearlyCounts, float64(row.Last52WeekCommits))
	}

	e.logger.Printf("Done: %d rows written, %d repositories skipped, %d rows possibly undercounted", written, skipped, undercounted)
	if written > 0 {
		mean, _ := stats.Mean(yearlyCounts)
		median, _ := stats.Median(yearlyCounts)
		e.logger.Printf("52-week commit counts across new rows: mean %.1f, median %.1f", mean, median)
	}
	return nil
}

// fetchTeams returns every team with its member login set. Team data only
// feeds the team_names column, so failures degrade to empty sets with a
// warning instead of aborting the run.
func (e *Exporter) fetchTeams(ctx context.Context, owner string) []domain.Team {
	slugs, err := e.fetcher.ListTeams(ctx, owner)
	if err != nil {
		e.warnLog.Printf("failed to list teams of %s, team names will be empty: %v", owner, err)
		return nil
	}
	teams := make([]domain.Team, 0, len(slugs))
	for _, slug := range slugs {
		logins, err := e.fetcher.ListTeamMembers(ctx, owner, slug)
		if err != nil {
			e.warnLog.Printf("failed to list members of team %s, it will not appear in any row: %v", slug, err)
			logins = nil
		}
		members := make(map[string]struct{}, len(logins))
		for _, login := range logins {
			members[login] = struct{}{}
		}
		teams = append(teams, domain.Team{Slug: slug, Members: members})
	}
	return teams
}

// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"sort"
	"strings"
)

// Repository is one repository owned by the target organization.
// The ID is the platform-assigned identifier and is the dedup key
// for append-only continuation across runs.
type Repository struct {
	ID       int64
	Name     string
	FullName string
	Size     int
}

// OwnerAndName splits the full qualified name into its owner and name
// parts. Org repositories always carry an owner prefix, but a name without
// one falls back to the plain fields rather than producing empty segments.
func (r Repository) OwnerAndName() (string, string) {
	owner, name, ok := strings.Cut(r.FullName, "/")
	if !ok {
		return r.FullName, r.Name
	}
	return owner, name
}

// Contributor is an account that has authored commits to a repository.
type Contributor struct {
	Login string
}

// Team is an organizational team: a slug plus its member logins.
type Team struct {
	Slug    string
	Members map[string]struct{}
}

// Participation holds weekly commit counts for a repository, oldest week
// first, most recent last. The platform reports 52 weeks. A nil *Participation
// means the platform has no data for the repository.
type Participation struct {
	Weekly []int
}

// SummaryRow is the unit of output: one row per repository, write-once.
type SummaryRow struct {
	RepoName          string
	RepoID            int64
	RepoSize          int
	Last3WeeksCommits int
	Last52WeekCommits int
	ContributorCount  int
	ContributorNames  string
	TeamNames         string
}

// BuildSummaryRow assembles the output row for one repository. Absent
// participation yields zero commit counts, never an error. The team list
// contains exactly the teams whose member set intersects the repository's
// contributor set.
func BuildSummaryRow(repo Repository, contributors []Contributor, participation *Participation, teams []Team) SummaryRow {
	logins := make(map[string]struct{}, len(contributors))
	for _, c := range contributors {
		logins[c.Login] = struct{}{}
	}

	var matched []string
	for _, team := range teams {
		for login := range logins {
			if _, ok := team.Members[login]; ok {
				matched = append(matched, team.Slug)
				break
			}
		}
	}

	return SummaryRow{
		RepoName:          repo.Name,
		RepoID:            repo.ID,
		RepoSize:          repo.Size,
		Last3WeeksCommits: participation.recentSum(3),
		Last52WeekCommits: participation.recentSum(52),
		ContributorCount:  len(logins),
		ContributorNames:  sortedJoin(logins),
		TeamNames:         sortedJoinSlice(matched),
	}
}

// recentSum sums the commit counts of the most recent n weeks.
// A nil receiver (no data from the platform) sums to zero.
func (p *Participation) recentSum(n int) int {
	if p == nil {
		return 0
	}
	weekly := p.Weekly
	if len(weekly) > n {
		weekly = weekly[len(weekly)-n:]
	}
	total := 0
	for _, count := range weekly {
		total += count
	}
	return total
}

func sortedJoin(set map[string]struct{}) string {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	return sortedJoinSlice(values)
}

func sortedJoinSlice(values []string) string {
	sort.Strings(values)
	return strings.Join(values, ", ")
}

package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/t-okubo/repo-census/internal/config"
	"github.com/t-okubo/repo-census/internal/domain"
	"github.com/t-okubo/repo-census/internal/ledger"
)

// mockFetcher is a mock implementation of the gateway.Fetcher interface.
// It lets us simulate the GitHub gateway without making real API calls.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) ListRepositories(ctx context.Context, owner string) ([]domain.Repository, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Repository), args.Error(1)
}

func (m *mockFetcher) ListTeams(ctx context.Context, owner string) ([]string, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockFetcher) ListTeamMembers(ctx context.Context, owner, slug string) ([]string, error) {
	args := m.Called(ctx, owner, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockFetcher) ListContributors(ctx context.Context, owner, repo string) ([]domain.Contributor, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Contributor), args.Error(1)
}

func (m *mockFetcher) GetParticipation(ctx context.Context, owner, repo string) (*domain.Participation, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Participation), args.Error(1)
}

func discardLoggers() (*log.Logger, *log.Logger) {
	return log.New(io.Discard, "", 0), log.New(io.Discard, "", 0)
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func fullParticipation(recent ...int) *domain.Participation {
	weekly := make([]int, 52-len(recent), 52)
	return &domain.Participation{Weekly: append(weekly, recent...)}
}

func TestExporter_Run_NormalMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	fetcher := new(mockFetcher)
	ctx := context.Background()

	fetcher.On("ListRepositories", mock.Anything, "acme").Return([]domain.Repository{
		{ID: 1, Name: "alpha", FullName: "acme/alpha", Size: 10},
		{ID: 2, Name: "beta", FullName: "acme/beta", Size: 0},
	}, nil)
	fetcher.On("ListTeams", mock.Anything, "acme").Return([]string{"core", "docs"}, nil)
	fetcher.On("ListTeamMembers", mock.Anything, "acme", "core").Return([]string{"alice"}, nil)
	fetcher.On("ListTeamMembers", mock.Anything, "acme", "docs").Return([]string{"carol"}, nil)
	fetcher.On("ListContributors", mock.Anything, "acme", "alpha").Return([]domain.Contributor{{Login: "alice"}, {Login: "bob"}}, nil)
	fetcher.On("ListContributors", mock.Anything, "acme", "beta").Return([]domain.Contributor{}, nil)
	fetcher.On("GetParticipation", mock.Anything, "acme", "alpha").Return(fullParticipation(2, 0, 5), nil)
	fetcher.On("GetParticipation", mock.Anything, "acme", "beta").Return(nil, nil)

	logger, warnLog := discardLoggers()
	exporter := NewExporter(fetcher, ledger.NewCSV(path), logger, warnLog)
	err := exporter.Run(ctx, config.Config{Owner: "acme", File: path})

	require.NoError(t, err)
	fetcher.AssertExpectations(t)

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, ledger.Header, rows[0])
	assert.Equal(t, []string{"alpha", "1", "10", "7", "7", "2", "alice, bob", "core"}, rows[1])
	// Absent participation yields zero counts, and the row is still written.
	assert.Equal(t, []string{"beta", "2", "0", "0", "0", "0", "", ""}, rows[2])
}

func TestExporter_Run_AppendOnlySkipsRecordedRepos(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	csvLedger := ledger.NewCSV(path)
	require.NoError(t, csvLedger.Create())
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, csvLedger.Append(domain.SummaryRow{RepoName: "old", RepoID: id}))
	}

	fetcher := new(mockFetcher)
	fetcher.On("ListRepositories", mock.Anything, "acme").Return([]domain.Repository{
		{ID: 1, Name: "alpha", FullName: "acme/alpha"},
		{ID: 2, Name: "beta", FullName: "acme/beta"},
		{ID: 3, Name: "gamma", FullName: "acme/gamma"},
		{ID: 4, Name: "delta", FullName: "acme/delta"},
	}, nil)
	fetcher.On("ListTeams", mock.Anything, "acme").Return([]string{}, nil)
	// Only the unrecorded repository may be fetched.
	fetcher.On("ListContributors", mock.Anything, "acme", "delta").Return([]domain.Contributor{{Login: "dana"}}, nil)
	fetcher.On("GetParticipation", mock.Anything, "acme", "delta").Return(fullParticipation(1), nil)

	logger, warnLog := discardLoggers()
	exporter := NewExporter(fetcher, csvLedger, logger, warnLog)
	err := exporter.Run(context.Background(), config.Config{Owner: "acme", File: path, AppendOnly: true})

	require.NoError(t, err)
	fetcher.AssertExpectations(t)
	fetcher.AssertNotCalled(t, "ListContributors", mock.Anything, "acme", "alpha")

	rows := readRows(t, path)
	require.Len(t, rows, 5)
	assert.Equal(t, "delta", rows[4][0])
	assert.Equal(t, "4", rows[4][1])
}

func TestExporter_Run_ModePreconditions(t *testing.T) {
	t.Run("append-only without an existing file fails before any fetch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.csv")
		fetcher := new(mockFetcher)

		logger, warnLog := discardLoggers()
		exporter := NewExporter(fetcher, ledger.NewCSV(path), logger, warnLog)
		err := exporter.Run(context.Background(), config.Config{Owner: "acme", File: path, AppendOnly: true})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not already exist")
		fetcher.AssertNotCalled(t, "ListRepositories", mock.Anything, "acme")
	})

	t.Run("normal mode with an existing file fails before any fetch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		require.NoError(t, os.WriteFile(path, []byte("leftover"), 0o644))
		fetcher := new(mockFetcher)

		logger, warnLog := discardLoggers()
		exporter := NewExporter(fetcher, ledger.NewCSV(path), logger, warnLog)
		err := exporter.Run(context.Background(), config.Config{Owner: "acme", File: path})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
		fetcher.AssertNotCalled(t, "ListRepositories", mock.Anything, "acme")

		data, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.Equal(t, "leftover", string(data), "the existing file must not be clobbered")
	})
}

func TestExporter_Run_FetchFailuresProduceUndercountedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	fetcher := new(mockFetcher)

	fetcher.On("ListRepositories", mock.Anything, "acme").Return([]domain.Repository{
		{ID: 1, Name: "alpha", FullName: "acme/alpha", Size: 5},
	}, nil)
	fetcher.On("ListTeams", mock.Anything, "acme").Return([]string{"core"}, nil)
	fetcher.On("ListTeamMembers", mock.Anything, "acme", "core").Return(nil, errors.New("retries exhausted"))
	fetcher.On("ListContributors", mock.Anything, "acme", "alpha").Return(nil, errors.New("retries exhausted"))
	fetcher.On("GetParticipation", mock.Anything, "acme", "alpha").Return(nil, errors.New("retries exhausted"))

	logger, warnLog := discardLoggers()
	exporter := NewExporter(fetcher, ledger.NewCSV(path), logger, warnLog)
	err := exporter.Run(context.Background(), config.Config{Owner: "acme", File: path})

	// A single repository's failures never abort the batch; its row is
	// written with empty/zero substitutes.
	require.NoError(t, err)
	rows := readRows(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"alpha", "1", "5", "0", "0", "0", "", ""}, rows[1])
}

// failingLedger reports an error on the first Append.
type failingLedger struct {
	*ledger.CSV
}

func (f *failingLedger) Append(row domain.SummaryRow) error {
	return errors.New("disk full")
}

func TestExporter_Run_AppendFailureAbortsTheBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	fetcher := new(mockFetcher)

	fetcher.On("ListRepositories", mock.Anything, "acme").Return([]domain.Repository{
		{ID: 1, Name: "alpha", FullName: "acme/alpha"},
	}, nil)
	fetcher.On("ListTeams", mock.Anything, "acme").Return([]string{}, nil)
	fetcher.On("ListContributors", mock.Anything, "acme", "alpha").Return([]domain.Contributor{}, nil)
	fetcher.On("GetParticipation", mock.Anything, "acme", "alpha").Return(nil, nil)

	logger, warnLog := discardLoggers()
	exporter := NewExporter(fetcher, &failingLedger{ledger.NewCSV(path)}, logger, warnLog)
	err := exporter.Run(context.Background(), config.Config{Owner: "acme", File: path})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
	"github.com/Blackwoodproductions/webstack-services/internal/config"
	"github.com/Blackwoodproductions/webstack-services/internal/health"
	"github.com/Blackwoodproductions/webstack-services/internal/visitors"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(config.DBConfig{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, Close(db))
	})
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(config.DBConfig{Driver: "oracle"})
	require.Error(t, err)
}

func TestLeadRepoCreateAndList(t *testing.T) {
	t.Parallel()

	repo := NewLeadRepo(testDB(t), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &Lead{
		ID: "lead-1", Email: "a@example.com", Status: LeadStatusNew, CreatedAt: now,
	}))
	require.NoError(t, repo.Create(ctx, &Lead{
		ID: "lead-2", Email: "b@example.com", Status: LeadStatusContacted, CreatedAt: now.Add(time.Second),
	}))

	all, err := repo.List(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "lead-2", all[0].ID, "newest first")

	contacted, err := repo.List(ctx, LeadStatusContacted, 10, 0)
	require.NoError(t, err)
	require.Len(t, contacted, 1)
	assert.Equal(t, "lead-2", contacted[0].ID)
}

func TestAlertRepoLifecycle(t *testing.T) {
	t.Parallel()

	repo := NewAlertRepo(testDB(t), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	_, found, err := repo.FindUnresolved(ctx, "api")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, repo.Raise(ctx, health.Alert{
		ID: "alert-1", Check: "api", Message: "check api failing", RaisedAt: now,
	}))

	alert, found, err := repo.FindUnresolved(ctx, "api")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alert-1", alert.ID)
	assert.Nil(t, alert.ResolvedAt)

	require.NoError(t, repo.Resolve(ctx, "alert-1", now.Add(time.Minute)))

	_, found, err = repo.FindUnresolved(ctx, "api")
	require.NoError(t, err)
	assert.False(t, found)

	// Resolving twice reports not found.
	assert.ErrorIs(t, repo.Resolve(ctx, "alert-1", now), ErrNotFound)

	all, err := repo.List(ctx, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].ResolvedAt)

	open, err := repo.List(ctx, true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAuditJobRepoRoundtrip(t *testing.T) {
	t.Parallel()

	repo := NewAuditJobRepo(testDB(t), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	job := audit.Job{
		ID:        "job-1",
		Status:    audit.JobStatusQueued,
		Submitted: now,
		Parameters: audit.JobParameters{
			StartURL: "https://example.com",
			MaxPages: 25,
			MaxDepth: 3,
		},
	}
	require.NoError(t, repo.CreateJob(ctx, job))

	require.NoError(t, repo.UpdateJobStatus(ctx, "job-1", audit.JobStatusRunning, "", audit.JobCounters{}))

	require.NoError(t, repo.RecordPage(ctx, audit.PageRecord{
		JobID:       "job-1",
		URL:         "https://example.com/",
		StatusCode:  200,
		FetchedAt:   now,
		ContentHash: "abc123",
		Signals:     audit.PageSignals{Title: "Example", TitleLength: 7, WordCount: 120},
	}))

	require.NoError(t, repo.UpdateJobStatus(
		ctx, "job-1", audit.JobStatusSucceeded, "", audit.JobCounters{PagesSucceeded: 1},
	))

	got, err := repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, audit.JobStatusSucceeded, got.Status)
	assert.Equal(t, 1, got.Counters.PagesSucceeded)
	assert.NotNil(t, got.Started)
	assert.NotNil(t, got.Finished)
	assert.Equal(t, "https://example.com", got.Parameters.StartURL)

	pages, err := repo.ListPages(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Example", pages[0].Signals.Title)
	assert.Equal(t, 120, pages[0].Signals.WordCount)

	_, err = repo.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChatRepoSessionsAndMessages(t *testing.T) {
	t.Parallel()

	repo := NewChatRepo(testDB(t), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateSession(ctx, &ChatSession{
		ID: "sess-1", Topic: "billing", StartedAt: now,
	}))
	require.NoError(t, repo.AppendMessage(ctx, &ChatMessage{
		ID: "msg-1", SessionID: "sess-1", Role: ChatRoleVisitor, Body: "hi", CreatedAt: now,
	}))
	require.NoError(t, repo.AppendMessage(ctx, &ChatMessage{
		ID: "msg-2", SessionID: "sess-1", Role: ChatRoleAgent, Body: "hello", CreatedAt: now.Add(time.Second),
	}))

	session, err := repo.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, "msg-1", session.Messages[0].ID)

	err = repo.AppendMessage(ctx, &ChatMessage{
		ID: "msg-3", SessionID: "missing", Role: ChatRoleVisitor, Body: "anyone?", CreatedAt: now,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVisitorRepoEnrichment(t *testing.T) {
	t.Parallel()

	repo := NewVisitorRepo(testDB(t), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateSession(ctx, &VisitorSession{
		ID:        "v-1",
		Domain:    "example.com",
		UserAgent: "Mozilla/5.0",
		Referrer:  "https://www.google.com/",
		Hostname:  "vpn.acme.com",
		FirstSeen: now,
		LastSeen:  now,
	}))

	require.NoError(t, repo.ApplyEnrichment(ctx, "v-1", visitors.Enrichment{
		Channel:      visitors.ChannelSearch,
		IsBot:        false,
		CompanyGuess: "Acme",
	}))
	require.NoError(t, repo.Touch(ctx, "v-1", now.Add(time.Minute)))

	got, err := repo.Get(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, string(visitors.ChannelSearch), got.Channel)
	assert.Equal(t, "Acme", got.CompanyGuess)
	assert.False(t, got.IsBot)
	assert.True(t, got.LastSeen.After(got.FirstSeen))

	assert.ErrorIs(t, repo.Touch(ctx, "missing", now), ErrNotFound)
}

func TestDirectoryRepoApprovalFlow(t *testing.T) {
	t.Parallel()

	repo := NewDirectoryRepo(testDB(t), nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, &DirectoryListing{
		ID: "list-1", Name: "Acme SEO", Website: "https://acme.example", Category: "agencies", CreatedAt: now,
	}))

	pending, err := repo.List(ctx, "agencies", ListingStatusPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.UpdateStatus(ctx, "list-1", ListingStatusApproved))

	approved, err := repo.List(ctx, "", ListingStatusApproved, 10, 0)
	require.NoError(t, err)
	require.Len(t, approved, 1)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", ListingStatusApproved), ErrNotFound)
}

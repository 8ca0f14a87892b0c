package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hirehub/internal/database"
	"hirehub/internal/service"
	"hirehub/internal/testutil"
)

type fixture struct {
	db        *gorm.DB
	recruiter database.User
	company   *database.Company
	job       *database.Job
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	recruiter := testutil.CreateUser(t, db, "recruiter@example.com", database.RoleRecruiter)
	company, err := service.NewCompanyService(db).Register(ctx, recruiter.ID, service.CompanyInput{
		Name:    "Acme",
		Website: "https://acme.example",
	})
	require.NoError(t, err)

	job, err := service.NewJobService(db).Create(ctx, recruiter.ID, service.JobInput{
		Title:       "Backend Engineer",
		Description: "Build APIs",
		JobType:     "full-time",
		Salary:      database.SalaryBetween(100, 150),
		CompanyID:   company.ID,
	})
	require.NoError(t, err)

	return fixture{db: db, recruiter: recruiter, company: company, job: job}
}

func TestApplyTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidate := testutil.CreateUser(t, f.db, "cand@example.com", database.RoleCandidate)
	svc := service.NewApplicationService(f.db)

	app, err := svc.Apply(ctx, candidate.ID, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ApplicationPending, app.Status)

	_, err = svc.Apply(ctx, candidate.ID, f.job.ID)
	require.ErrorIs(t, err, service.ErrConflict)
}

func TestApplyRoleAndOwnershipChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewApplicationService(f.db)

	_, err := svc.Apply(ctx, f.recruiter.ID, f.job.ID)
	require.ErrorIs(t, err, service.ErrForbidden)

	candidate := testutil.CreateUser(t, f.db, "cand@example.com", database.RoleCandidate)
	_, err = svc.Apply(ctx, candidate.ID, 9999)
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestAcceptAutoRejectsOtherPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewApplicationService(f.db)

	var apps []*database.Application
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		u := testutil.CreateUser(t, f.db, email, database.RoleCandidate)
		app, err := svc.Apply(ctx, u.ID, f.job.ID)
		require.NoError(t, err)
		apps = append(apps, app)
	}

	change, err := svc.UpdateStatus(ctx, f.recruiter.ID, apps[0].ID, database.ApplicationAccepted)
	require.NoError(t, err)
	assert.Equal(t, database.ApplicationAccepted, change.Application.Status)
	require.Len(t, change.AutoRejected, 2)

	var stored []database.Application
	require.NoError(t, f.db.Order("id").Find(&stored).Error)
	require.Len(t, stored, 3)
	assert.Equal(t, database.ApplicationAccepted, stored[0].Status)
	assert.Equal(t, database.ApplicationRejected, stored[1].Status)
	assert.Equal(t, database.ApplicationRejected, stored[2].Status)

	// 已处理的投递不能再次变更
	_, err = svc.UpdateStatus(ctx, f.recruiter.ID, apps[1].ID, database.ApplicationAccepted)
	require.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestSecondAcceptanceOnSameJobConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewApplicationService(f.db)

	first := testutil.CreateUser(t, f.db, "first@example.com", database.RoleCandidate)
	app, err := svc.Apply(ctx, first.ID, f.job.ID)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, f.recruiter.ID, app.ID, database.ApplicationAccepted)
	require.NoError(t, err)

	// 接受之后才投递的候选人不会被自动拒绝，但也不能再被接受
	late := testutil.CreateUser(t, f.db, "late@example.com", database.RoleCandidate)
	lateApp, err := svc.Apply(ctx, late.ID, f.job.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, f.recruiter.ID, lateApp.ID, database.ApplicationAccepted)
	require.ErrorIs(t, err, service.ErrConflict)

	var stored database.Application
	require.NoError(t, f.db.First(&stored, lateApp.ID).Error)
	assert.Equal(t, database.ApplicationPending, stored.Status)

	// 拒绝仍然可行
	change, err := svc.UpdateStatus(ctx, f.recruiter.ID, lateApp.ID, database.ApplicationRejected)
	require.NoError(t, err)
	assert.Equal(t, database.ApplicationRejected, change.Application.Status)
}

func TestUpdateStatusRequiresJobCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewApplicationService(f.db)

	candidate := testutil.CreateUser(t, f.db, "cand@example.com", database.RoleCandidate)
	other := testutil.CreateUser(t, f.db, "other@example.com", database.RoleRecruiter)
	app, err := svc.Apply(ctx, candidate.ID, f.job.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, other.ID, app.ID, database.ApplicationRejected)
	require.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.UpdateStatus(ctx, f.recruiter.ID, app.ID, "maybe")
	require.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestWithdrawOnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := service.NewApplicationService(f.db).WithClock(func() time.Time { return now })

	first := testutil.CreateUser(t, f.db, "a@example.com", database.RoleCandidate)
	second := testutil.CreateUser(t, f.db, "b@example.com", database.RoleCandidate)
	pending, err := svc.Apply(ctx, first.ID, f.job.ID)
	require.NoError(t, err)
	decided, err := svc.Apply(ctx, second.ID, f.job.ID)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, f.recruiter.ID, decided.ID, database.ApplicationRejected)
	require.NoError(t, err)

	withdrawn, err := svc.Withdraw(ctx, first.ID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ApplicationWithdrawn, withdrawn.Status)
	require.NotNil(t, withdrawn.ExpiresAt)
	assert.True(t, withdrawn.ExpiresAt.Equal(now.Add(time.Hour)))

	_, err = svc.Withdraw(ctx, second.ID, decided.ID)
	require.ErrorIs(t, err, service.ErrInvalidTransition)

	_, err = svc.Withdraw(ctx, second.ID, pending.ID)
	require.ErrorIs(t, err, service.ErrForbidden)
}

func TestReapplyAndPurgeAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := service.NewApplicationService(f.db).WithClock(func() time.Time { return now })

	candidate := testutil.CreateUser(t, f.db, "cand@example.com", database.RoleCandidate)
	app, err := svc.Apply(ctx, candidate.ID, f.job.ID)
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, candidate.ID, app.ID)
	require.NoError(t, err)

	// 未过期前仍视为已投递
	_, err = svc.Apply(ctx, candidate.ID, f.job.ID)
	require.ErrorIs(t, err, service.ErrConflict)

	purged, err := svc.PurgeExpiredWithdrawn(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)

	now = now.Add(2 * time.Hour)
	again, err := svc.Apply(ctx, candidate.ID, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ApplicationPending, again.Status)

	_, err = svc.Withdraw(ctx, candidate.ID, again.ID)
	require.NoError(t, err)
	now = now.Add(61 * time.Minute)
	purged, err = svc.PurgeExpiredWithdrawn(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	var count int64
	require.NoError(t, f.db.Model(&database.Application{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListByJobOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewApplicationService(f.db)

	candidate := testutil.CreateUser(t, f.db, "cand@example.com", database.RoleCandidate)
	_, err := svc.Apply(ctx, candidate.ID, f.job.ID)
	require.NoError(t, err)

	job, apps, err := svc.ListByJob(ctx, f.recruiter.ID, f.job.ID)
	require.NoError(t, err)
	assert.Equal(t, f.job.ID, job.ID)
	require.Len(t, apps, 1)
	assert.Equal(t, candidate.Email, apps[0].Applicant.Email)

	_, _, err = svc.ListByJob(ctx, candidate.ID, f.job.ID)
	require.ErrorIs(t, err, service.ErrForbidden)

	mine, err := svc.ListByApplicant(ctx, candidate.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Acme", mine[0].Job.Company.Name)
}

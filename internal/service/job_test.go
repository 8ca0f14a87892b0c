package service_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirehub/internal/database"
	"hirehub/internal/service"
	"hirehub/internal/testutil"
)

func TestJobCreateValidation(t *testing.T) {
	f := newFixture(t)
	svc := service.NewJobService(f.db)
	ctx := context.Background()

	cases := map[string]service.JobInput{
		"missing title": {Description: "d", JobType: "remote", Salary: database.FixedSalary(1), CompanyID: f.company.ID},
		"bad job type":  {Title: "t", Description: "d", JobType: "gig", Salary: database.FixedSalary(1), CompanyID: f.company.ID},
		"no salary":     {Title: "t", Description: "d", JobType: "remote", CompanyID: f.company.ID},
		"bad range":     {Title: "t", Description: "d", JobType: "remote", Salary: database.SalaryBetween(5, 1), CompanyID: f.company.ID},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, f.recruiter.ID, in)
			require.ErrorIs(t, err, service.ErrInvalidInput)
		})
	}

	other := testutil.CreateUser(t, f.db, "other@example.com", database.RoleRecruiter)
	_, err := svc.Create(ctx, other.ID, service.JobInput{
		Title: "t", Description: "d", JobType: "remote", Salary: database.NegotiableSalary(), CompanyID: f.company.ID,
	})
	require.ErrorIs(t, err, service.ErrForbidden)
}

func TestJobListFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	svc := service.NewJobService(f.db)
	ctx := context.Background()

	for _, title := range []string{"Go Developer", "Frontend Developer", "Data Analyst"} {
		_, err := svc.Create(ctx, f.recruiter.ID, service.JobInput{
			Title:       title,
			Description: "Join us",
			JobType:     "remote",
			Location:    "Remote EU",
			Salary:      database.NegotiableSalary(),
			CompanyID:   f.company.ID,
		})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, service.JobFilter{Keyword: "developer"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Frontend Developer", page.Items[0].Title)
	assert.Equal(t, "Acme", page.Items[0].Company.Name)

	page, err = svc.List(ctx, service.JobFilter{JobType: "REMOTE", Location: "eu", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Go Developer", page.Items[0].Title)

	page, err = svc.List(ctx, service.JobFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.EqualValues(t, 4, page.Total)
}

func TestJobListTreatsWildcardsLiterally(t *testing.T) {
	f := newFixture(t)
	svc := service.NewJobService(f.db)
	ctx := context.Background()

	for _, title := range []string{"100% Remote Engineer", "Senior Engineer", "node_js Engineer"} {
		_, err := svc.Create(ctx, f.recruiter.ID, service.JobInput{
			Title:       title,
			Description: "Join us",
			JobType:     "remote",
			Location:    "Berlin",
			Salary:      database.NegotiableSalary(),
			CompanyID:   f.company.ID,
		})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, service.JobFilter{Keyword: "%"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "100% Remote Engineer", page.Items[0].Title)

	page, err = svc.List(ctx, service.JobFilter{Keyword: "_"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "node_js Engineer", page.Items[0].Title)

	page, err = svc.List(ctx, service.JobFilter{Location: "%"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.Total)
}

func TestJobListClampsHugePage(t *testing.T) {
	f := newFixture(t)
	svc := service.NewJobService(f.db)

	page, err := svc.List(context.Background(), service.JobFilter{Page: math.MaxInt, Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 10000, page.Page)
	assert.Empty(t, page.Items)
	assert.EqualValues(t, 1, page.Total)
}

func TestJobDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candidate := testutil.CreateUser(t, f.db, "cand@example.com", database.RoleCandidate)

	_, err := service.NewApplicationService(f.db).Apply(ctx, candidate.ID, f.job.ID)
	require.NoError(t, err)
	_, err = service.NewSavedJobService(f.db).Save(ctx, candidate.ID, f.job.ID)
	require.NoError(t, err)

	svc := service.NewJobService(f.db)
	require.ErrorIs(t, svc.Delete(ctx, candidate.ID, f.job.ID), service.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, f.recruiter.ID, f.job.ID))

	_, err = svc.Get(ctx, f.job.ID)
	require.ErrorIs(t, err, service.ErrNotFound)

	var apps, saved int64
	require.NoError(t, f.db.Model(&database.Application{}).Count(&apps).Error)
	require.NoError(t, f.db.Model(&database.SavedJob{}).Count(&saved).Error)
	assert.Zero(t, apps)
	assert.Zero(t, saved)
}

func TestJobUpdateKeepsSalaryUnion(t *testing.T) {
	f := newFixture(t)
	svc := service.NewJobService(f.db)

	updated, err := svc.Update(context.Background(), f.recruiter.ID, f.job.ID, service.JobInput{
		Title:        "Senior Backend Engineer",
		Description:  "Build APIs",
		JobType:      "contract",
		Requirements: []string{" Go ", "", "SQL"},
		Salary:       database.FixedSalary(120),
	})
	require.NoError(t, err)
	assert.Equal(t, database.SalaryFixed, updated.Salary.Kind)
	assert.Equal(t, float64(120), updated.Salary.Amount)
	assert.Equal(t, []string{"Go", "SQL"}, []string(updated.Requirements))
	assert.Equal(t, f.company.ID, updated.CompanyID)
}

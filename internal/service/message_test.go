package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirehub/internal/database"
	"hirehub/internal/service"
	"hirehub/internal/testutil"
)

func TestMessageSendValidation(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	svc := service.NewMessageService(db)
	alice := testutil.CreateUser(t, db, "alice@example.com", database.RoleCandidate)

	_, err := svc.Send(ctx, alice.ID, alice.ID, "hi", "")
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.Send(ctx, alice.ID, 999, "hi", "")
	require.ErrorIs(t, err, service.ErrNotFound)

	bob := testutil.CreateUser(t, db, "bob@example.com", database.RoleRecruiter)
	_, err = svc.Send(ctx, alice.ID, bob.ID, "   ", "")
	require.ErrorIs(t, err, service.ErrInvalidInput)

	msg, err := svc.Send(ctx, alice.ID, bob.ID, "", "chat/1/pic.png")
	require.NoError(t, err)
	assert.Equal(t, "chat/1/pic.png", msg.ImageKey)
}

func TestMessageHistoryReadAndConversations(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	svc := service.NewMessageService(db)
	alice := testutil.CreateUser(t, db, "alice@example.com", database.RoleCandidate)
	bob := testutil.CreateUser(t, db, "bob@example.com", database.RoleRecruiter)
	carol := testutil.CreateUser(t, db, "carol@example.com", database.RoleRecruiter)

	var ids []uint
	for _, text := range []string{"one", "two", "three"} {
		m, err := svc.Send(ctx, bob.ID, alice.ID, text, "")
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}
	_, err := svc.Send(ctx, alice.ID, carol.ID, "hello carol", "")
	require.NoError(t, err)

	history, err := svc.History(ctx, alice.ID, bob.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0].Text)
	assert.Equal(t, "three", history[1].Text)

	older, err := svc.History(ctx, alice.ID, bob.ID, ids[1], 10)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "one", older[0].Text)

	convs, err := svc.Conversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, carol.ID, convs[0].Peer.ID)
	assert.Zero(t, convs[0].Unread)
	assert.Equal(t, bob.ID, convs[1].Peer.ID)
	assert.EqualValues(t, 3, convs[1].Unread)
	assert.Equal(t, "three", convs[1].LastMessage.Text)

	marked, err := svc.MarkRead(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, marked)

	marked, err = svc.MarkRead(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, marked)
}

func TestSavedJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := service.NewSavedJobService(f.db)
	candidate := testutil.CreateUser(t, f.db, "cand@example.com", database.RoleCandidate)

	_, err := svc.Save(ctx, candidate.ID, 4242)
	require.ErrorIs(t, err, service.ErrNotFound)

	_, err = svc.Save(ctx, candidate.ID, f.job.ID)
	require.NoError(t, err)
	_, err = svc.Save(ctx, candidate.ID, f.job.ID)
	require.ErrorIs(t, err, service.ErrConflict)

	list, err := svc.List(ctx, candidate.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Backend Engineer", list[0].Job.Title)
	assert.Equal(t, "Acme", list[0].Job.Company.Name)

	require.NoError(t, svc.Unsave(ctx, candidate.ID, f.job.ID))
	require.ErrorIs(t, svc.Unsave(ctx, candidate.ID, f.job.ID), service.ErrNotFound)
}

func TestUpdateProfileDedupesSkills(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	svc := service.NewUserService(db)
	user := testutil.CreateUser(t, db, "u@example.com", database.RoleCandidate)

	updated, err := svc.UpdateProfile(ctx, user.ID, service.ProfileInput{
		Name:   "  Dana ",
		Skills: []string{"Go", "go", " SQL ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Dana", updated.Name)
	assert.Equal(t, []string{"Go", "SQL"}, []string(updated.Skills))

	_, err = svc.UpdateProfile(ctx, user.ID, service.ProfileInput{Name: ""})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	prev, err := svc.SetResume(ctx, user.ID, "resumes/1/cv.pdf", "cv.pdf")
	require.NoError(t, err)
	assert.Empty(t, prev)

	recruiter := testutil.CreateUser(t, db, "r@example.com", database.RoleRecruiter)
	_, err = svc.SetResume(ctx, recruiter.ID, "resumes/2/cv.pdf", "cv.pdf")
	require.ErrorIs(t, err, service.ErrForbidden)
}

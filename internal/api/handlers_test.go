package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hirehub/internal/database"
	"hirehub/internal/realtime"
	"hirehub/internal/storage"
	"hirehub/internal/tasks"
	"hirehub/internal/testutil"
)

// seedCompanyAndJob 通过接口创建公司与职位，返回职位 ID。
func seedCompanyAndJob(t *testing.T, env *testEnv, recruiterToken string) (uint, uint) {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/company", gin.H{
		"name":     "Acme",
		"website":  "https://acme.example",
		"location": "Berlin",
	}, recruiterToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var co struct {
		Company companyResponse `json:"company"`
	}
	decode(t, w, &co)

	w = env.do(t, http.MethodPost, "/api/job", gin.H{
		"title":        "Backend Engineer",
		"description":  "Build APIs in Go",
		"requirements": []string{" Go ", "", "SQL"},
		"salary":       []float64{100, 200},
		"location":     "Berlin",
		"job_type":     "full-time",
		"company_id":   co.Company.ID,
	}, recruiterToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var job struct {
		Job jobResponse `json:"job"`
	}
	decode(t, w, &job)
	return co.Company.ID, job.Job.ID
}

func TestRoleGates(t *testing.T) {
	env := newTestEnv(t)
	candidate := testutil.CreateUser(t, env.db, "cand@example.com", database.RoleCandidate)

	w := env.do(t, http.MethodPost, "/api/company", gin.H{"name": "Nope"}, env.token(t, candidate))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/company/mine", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/job/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompanyJobLifecycle(t *testing.T) {
	env := newTestEnv(t)
	recruiter := testutil.CreateUser(t, env.db, "rec@example.com", database.RoleRecruiter)
	other := testutil.CreateUser(t, env.db, "other@example.com", database.RoleRecruiter)
	token := env.token(t, recruiter)

	companyID, jobID := seedCompanyAndJob(t, env, token)

	// 名称大小写不敏感唯一
	w := env.do(t, http.MethodPost, "/api/company", gin.H{"name": "ACME"}, env.token(t, other))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/job/%d", jobID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Job struct {
			Salary       json.RawMessage `json:"salary"`
			Requirements []string        `json:"requirements"`
			Company      *companyResponse
		} `json:"job"`
	}
	decode(t, w, &got)
	assert.JSONEq(t, `[100,200]`, string(got.Job.Salary))
	assert.Equal(t, []string{"Go", "SQL"}, got.Job.Requirements)
	require.NotNil(t, got.Job.Company)
	assert.Equal(t, "Acme", got.Job.Company.Name)

	w = env.do(t, http.MethodPut, fmt.Sprintf("/api/job/%d", jobID), gin.H{
		"title":       "Hacked",
		"description": "x",
		"salary":      "negotiable",
		"job_type":    "contract",
	}, env.token(t, other))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/job?keyword=backend&limit=500", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []jobResponse `json:"items"`
		Total int64         `json:"total"`
		Limit int           `json:"limit"`
	}
	decode(t, w, &page)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 100, page.Limit)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/job/company/%d", companyID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/company/%d", companyID), nil, token)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, env.storage.prefixes, storage.OwnerPrefix(storage.PrefixLogo, companyID))

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/job/%d", jobID), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompanyLogoUpload(t *testing.T) {
	env := newTestEnv(t)
	recruiter := testutil.CreateUser(t, env.db, "rec@example.com", database.RoleRecruiter)
	token := env.token(t, recruiter)
	companyID, _ := seedCompanyAndJob(t, env, token)

	path := fmt.Sprintf("/api/company/%d/logo", companyID)
	w := env.upload(t, path, "file", "logo.txt", []byte("plain text"), nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.upload(t, path, "file", "logo.png", pngBytes, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Company companyResponse `json:"company"`
	}
	decode(t, w, &resp)
	assert.Contains(t, resp.Company.LogoURL, storage.OwnerPrefix(storage.PrefixLogo, companyID))
	assert.Len(t, env.storage.uploaded, 1)
}

func TestApplicationWorkflow(t *testing.T) {
	env := newTestEnv(t)
	recruiter := testutil.CreateUser(t, env.db, "rec@example.com", database.RoleRecruiter)
	alice := testutil.CreateUser(t, env.db, "alice@example.com", database.RoleCandidate)
	bob := testutil.CreateUser(t, env.db, "bob@example.com", database.RoleCandidate)
	recToken := env.token(t, recruiter)
	_, jobID := seedCompanyAndJob(t, env, recToken)

	applyPath := fmt.Sprintf("/api/application/job/%d", jobID)
	w := env.do(t, http.MethodPost, applyPath, nil, env.token(t, alice))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var aliceApp struct {
		Application applicationResponse `json:"application"`
	}
	decode(t, w, &aliceApp)
	assert.Equal(t, database.ApplicationPending, aliceApp.Application.Status)

	w = env.do(t, http.MethodPost, applyPath, nil, env.token(t, alice))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, applyPath, nil, recToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, applyPath, nil, env.token(t, bob))
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, applyPath, nil, recToken)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Applications []applicationResponse `json:"applications"`
	}
	decode(t, w, &listed)
	require.Len(t, listed.Applications, 2)
	emails := []string{}
	for _, a := range listed.Applications {
		require.NotNil(t, a.Applicant)
		emails = append(emails, a.Applicant.Email)
	}
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, emails)

	statusPath := fmt.Sprintf("/api/application/%d/status", aliceApp.Application.ID)
	w = env.do(t, http.MethodPatch, statusPath, gin.H{"status": "maybe"}, recToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, statusPath, gin.H{"status": "accepted"}, recToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var changed struct {
		Application  applicationResponse `json:"application"`
		AutoRejected int                 `json:"auto_rejected"`
	}
	decode(t, w, &changed)
	assert.Equal(t, database.ApplicationAccepted, changed.Application.Status)
	assert.Equal(t, 1, changed.AutoRejected)

	mails := env.queue.emails(t, tasks.TemplateApplicationStatus)
	require.Len(t, mails, 2)
	byRecipient := map[string]tasks.EmailPayload{}
	for _, m := range mails {
		byRecipient[m.To] = m
	}
	assert.Equal(t, "accepted", byRecipient["alice@example.com"].Data["status"])
	assert.Equal(t, "rejected", byRecipient["bob@example.com"].Data["status"])
	assert.Equal(t, "Acme", byRecipient["bob@example.com"].Data["company"])

	// 已处理的投递不能再次变更
	w = env.do(t, http.MethodPatch, statusPath, gin.H{"status": "rejected"}, recToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/application/mine", nil, env.token(t, bob))
	require.Equal(t, http.StatusOK, w.Code)
	var mine struct {
		Applications []applicationResponse `json:"applications"`
	}
	decode(t, w, &mine)
	require.Len(t, mine.Applications, 1)
	assert.Equal(t, database.ApplicationRejected, mine.Applications[0].Status)
	require.NotNil(t, mine.Applications[0].Job)
	assert.Equal(t, "Backend Engineer", mine.Applications[0].Job.Title)

	w = env.do(t, http.MethodPatch, fmt.Sprintf("/api/application/%d/withdraw", mine.Applications[0].ID), nil, env.token(t, bob))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWithdrawSetsExpiry(t *testing.T) {
	env := newTestEnv(t)
	recruiter := testutil.CreateUser(t, env.db, "rec@example.com", database.RoleRecruiter)
	cand := testutil.CreateUser(t, env.db, "cand@example.com", database.RoleCandidate)
	_, jobID := seedCompanyAndJob(t, env, env.token(t, recruiter))

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/application/job/%d", jobID), nil, env.token(t, cand))
	require.Equal(t, http.StatusCreated, w.Code)
	var app struct {
		Application applicationResponse `json:"application"`
	}
	decode(t, w, &app)

	before := time.Now()
	w = env.do(t, http.MethodPatch, fmt.Sprintf("/api/application/%d/withdraw", app.Application.ID), nil, env.token(t, cand))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &app)
	assert.Equal(t, database.ApplicationWithdrawn, app.Application.Status)
	require.NotNil(t, app.Application.ExpiresAt)
	assert.WithinDuration(t, before.Add(time.Hour), *app.Application.ExpiresAt, 5*time.Second)

	// 撤回未过期前不能重新投递
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/application/job/%d", jobID), nil, env.token(t, cand))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSavedJobs(t *testing.T) {
	env := newTestEnv(t)
	recruiter := testutil.CreateUser(t, env.db, "rec@example.com", database.RoleRecruiter)
	cand := testutil.CreateUser(t, env.db, "cand@example.com", database.RoleCandidate)
	_, jobID := seedCompanyAndJob(t, env, env.token(t, recruiter))
	token := env.token(t, cand)

	path := fmt.Sprintf("/api/saved-job/%d", jobID)
	w := env.do(t, http.MethodPost, path, nil, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = env.do(t, http.MethodPost, path, nil, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, http.MethodPost, "/api/saved-job/9999", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/saved-job", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		SavedJobs []savedJobResponse `json:"saved_jobs"`
	}
	decode(t, w, &list)
	require.Len(t, list.SavedJobs, 1)
	require.NotNil(t, list.SavedJobs[0].Job)
	assert.Equal(t, jobID, list.SavedJobs[0].Job.ID)

	w = env.do(t, http.MethodDelete, path, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, path, nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProfileAndUploads(t *testing.T) {
	env := newTestEnv(t)
	cand := testutil.CreateUser(t, env.db, "cand@example.com", database.RoleCandidate)
	recruiter := testutil.CreateUser(t, env.db, "rec@example.com", database.RoleRecruiter)
	token := env.token(t, cand)

	w := env.do(t, http.MethodPut, "/api/user/profile", gin.H{
		"name":   "Candice",
		"phone":  "+49 123",
		"bio":    "Gopher",
		"skills": []string{"Go", "go", " SQL "},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var profile struct {
		User userResponse `json:"user"`
	}
	decode(t, w, &profile)
	assert.Equal(t, []string{"Go", "SQL"}, profile.User.Skills)

	w = env.upload(t, "/api/user/profile/picture", "file", "me.png", pngBytes, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first database.User
	require.NoError(t, env.db.First(&first, cand.ID).Error)
	assert.True(t, storage.BelongsTo(first.ProfilePictureKey, storage.PrefixAvatar, cand.ID))
	assert.Contains(t, env.storage.uploaded, first.ProfilePictureKey)
	assert.Empty(t, env.storage.deleted)

	// 新头像替换旧对象
	w = env.upload(t, "/api/user/profile/picture", "file", "me2.png", pngBytes, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.storage.deleted, first.ProfilePictureKey)
	var second database.User
	require.NoError(t, env.db.First(&second, cand.ID).Error)
	assert.NotEqual(t, first.ProfilePictureKey, second.ProfilePictureKey)
	assert.Contains(t, env.storage.uploaded, second.ProfilePictureKey)

	w = env.upload(t, "/api/user/profile/resume", "file", "cv.png", pngBytes, nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.upload(t, "/api/user/profile/resume", "file", "cv.pdf", pdfBytes, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &profile)
	assert.Equal(t, "cv.pdf", profile.User.ResumeOriginalName)
	assert.True(t, strings.Contains(profile.User.ResumeURL, "/"+storage.PrefixResume+"/"))
	var withResume database.User
	require.NoError(t, env.db.First(&withResume, cand.ID).Error)
	assert.Contains(t, env.storage.uploaded, withResume.ResumeKey)
	assert.NotContains(t, env.storage.deleted, withResume.ResumeKey)

	w = env.upload(t, "/api/user/profile/resume", "file", "cv.pdf", pdfBytes, nil, env.token(t, recruiter))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 公开资料不含邮箱与电话
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/user/%d", cand.ID), nil, env.token(t, recruiter))
	require.Equal(t, http.StatusOK, w.Code)
	var public map[string]map[string]any
	decode(t, w, &public)
	assert.NotContains(t, public["user"], "email")
	assert.NotContains(t, public["user"], "phone")
	assert.Equal(t, "Candice", public["user"]["name"])
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	cand := testutil.CreateUser(t, env.db, "cand@example.com", database.RoleCandidate)

	big := append(append([]byte{}, pngBytes...), make([]byte, 2<<20)...)
	w := env.upload(t, "/api/user/profile/picture", "file", "big.png", big, nil, env.token(t, cand))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, env.storage.uploaded)
}

func TestMessagingFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := testutil.CreateUser(t, env.db, "alice@example.com", database.RoleCandidate)
	bob := testutil.CreateUser(t, env.db, "bob@example.com", database.RoleRecruiter)
	aliceToken, bobToken := env.token(t, alice), env.token(t, bob)

	ctx := context.Background()
	bobEvents := env.hub.Subscribe(ctx, bob.ID)
	defer bobEvents.Close()
	_, err := bobEvents.Receive(ctx)
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/message/%d", alice.ID), gin.H{"text": "hi"}, aliceToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodPost, "/api/message/9999", gin.H{"text": "hi"}, aliceToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/message/%d", bob.ID), gin.H{"text": "   "}, aliceToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/message/%d", bob.ID), gin.H{"text": "Hello Bob"}, aliceToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	evt := nextEvent(t, bobEvents)
	assert.Equal(t, realtime.EventMessageNew, evt.Type)
	var pushed messageResponse
	require.NoError(t, json.Unmarshal(evt.Data, &pushed))
	assert.Equal(t, "Hello Bob", pushed.Text)
	assert.Equal(t, alice.ID, pushed.SenderID)

	w = env.upload(t, fmt.Sprintf("/api/message/%d", bob.ID), "image", "pic.png", pngBytes, map[string]string{"text": "look"}, aliceToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var withImage struct {
		Message messageResponse `json:"message"`
	}
	decode(t, w, &withImage)
	assert.Contains(t, withImage.Message.ImageURL, storage.OwnerPrefix(storage.PrefixChatImage, alice.ID))

	w = env.do(t, http.MethodGet, "/api/message/conversations", nil, bobToken)
	require.Equal(t, http.StatusOK, w.Code)
	var convs struct {
		Conversations []conversationResponse `json:"conversations"`
	}
	decode(t, w, &convs)
	require.Len(t, convs.Conversations, 1)
	assert.Equal(t, alice.ID, convs.Conversations[0].Peer.ID)
	assert.EqualValues(t, 2, convs.Conversations[0].Unread)
	assert.Equal(t, "look", convs.Conversations[0].LastMessage.Text)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/message/%d?limit=1", alice.ID), nil, bobToken)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Messages []messageResponse `json:"messages"`
	}
	decode(t, w, &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "look", history.Messages[0].Text)

	aliceEvents := env.hub.Subscribe(ctx, alice.ID)
	defer aliceEvents.Close()
	_, err = aliceEvents.Receive(ctx)
	require.NoError(t, err)

	w = env.do(t, http.MethodPatch, fmt.Sprintf("/api/message/%d/read", alice.ID), nil, bobToken)
	require.Equal(t, http.StatusOK, w.Code)
	var read struct {
		Updated int64 `json:"updated"`
	}
	decode(t, w, &read)
	assert.EqualValues(t, 2, read.Updated)

	evt = nextEvent(t, aliceEvents)
	assert.Equal(t, realtime.EventMessageRead, evt.Type)
	var readPayload realtime.ReadPayload
	require.NoError(t, json.Unmarshal(evt.Data, &readPayload))
	assert.Equal(t, bob.ID, readPayload.ReaderID)
	assert.EqualValues(t, 2, readPayload.Count)

	w = env.do(t, http.MethodGet, "/api/message/online", nil, bobToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_ids":[]}`, w.Body.String())
}

type rawEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func nextEvent(t *testing.T, ps *redis.PubSub) rawEvent {
	t.Helper()
	select {
	case msg := <-ps.Channel():
		var evt rawEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for realtime event")
	}
	return rawEvent{}
}

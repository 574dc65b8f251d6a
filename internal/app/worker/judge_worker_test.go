package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"code_arena/internal/app/service"
	"code_arena/internal/common"
	"code_arena/internal/domain/model"
	"code_arena/internal/domain/repository/repotest"
	"code_arena/internal/judge"
	"code_arena/internal/platform/config"
	"code_arena/internal/ws"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQueue = "judge_jobs_test"

// fakeJudge serves the external judge's batch API. Each submitted case is
// judged with the next status id from the configured sequence.
type fakeJudge struct {
	statuses []int
	calls    atomic.Int32
	srv      *httptest.Server
	verdicts map[string]int
}

func newFakeJudge(t *testing.T, statuses ...int) *fakeJudge {
	t.Helper()
	f := &fakeJudge{statuses: statuses, verdicts: make(map[string]int)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.Method == http.MethodPost {
			var req struct {
				Submissions []json.RawMessage `json:"submissions"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			tokens := make([]map[string]string, 0, len(req.Submissions))
			for i := range req.Submissions {
				tok := fmt.Sprintf("tok-%d", i)
				f.verdicts[tok] = f.statuses[i%len(f.statuses)]
				tokens = append(tokens, map[string]string{"token": tok})
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(tokens)
			return
		}

		runtime := "0.01"
		mem := 2048
		stderr := "wrong output"
		type verdict struct {
			Token  string  `json:"token"`
			Status struct {
				ID int `json:"id"`
			} `json:"status"`
			Time   *string `json:"time"`
			Memory *int    `json:"memory"`
			Stderr *string `json:"stderr"`
		}
		var out struct {
			Submissions []verdict `json:"submissions"`
		}
		for _, tok := range strings.Split(r.URL.Query().Get("tokens"), ",") {
			v := verdict{Token: tok, Time: &runtime, Memory: &mem}
			v.Status.ID = f.verdicts[tok]
			if v.Status.ID == judge.StatusIDWrongAnswer {
				v.Stderr = &stderr
			}
			out.Submissions = append(out.Submissions, v)
		}
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

type workerFixture struct {
	worker         *JudgeWorker
	submissionRepo *repotest.SubmissionRepo
	problemRepo    *repotest.ProblemRepo
	contestRepo    *repotest.ContestRepo
	userRepo       *repotest.UserRepo
	waiters        *service.ResultWaiters
	hub            *ws.Hub
	rdb            *redis.Client
	mr             *miniredis.Miniredis
}

func newWorkerFixture(t *testing.T, judgeURL string) *workerFixture {
	t.Helper()

	prev := config.AppConfig
	config.AppConfig = &config.Config{
		JudgeQueueName:    testQueue,
		JudgePollInterval: time.Millisecond,
		JudgeMaxPolls:     50,
	}
	t.Cleanup(func() { config.AppConfig = prev })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	submissionRepo := repotest.NewSubmissionRepo()
	problemRepo := repotest.NewProblemRepo()
	contestRepo := repotest.NewContestRepo()
	userRepo := repotest.NewUserRepo()
	waiters := service.NewResultWaiters()
	hub := ws.NewHub()

	problemRepo.Add(&model.Problem{ID: "p1", Title: "Two Sum"},
		model.TestCase{ID: "t1", ProblemID: "p1", Input: "1 2", ExpectedOutput: "3"},
		model.TestCase{ID: "t2", ProblemID: "p1", Input: "4 5", ExpectedOutput: "9"},
	)

	client := judge.NewClient(judgeURL, "", time.Millisecond, 50)
	leaderboard := service.NewLeaderboardService(contestRepo, submissionRepo, userRepo)

	return &workerFixture{
		worker:         NewJudgeWorker(rdb, client, submissionRepo, problemRepo, leaderboard, hub, waiters),
		submissionRepo: submissionRepo,
		problemRepo:    problemRepo,
		contestRepo:    contestRepo,
		userRepo:       userRepo,
		waiters:        waiters,
		hub:            hub,
		rdb:            rdb,
		mr:             mr,
	}
}

func (f *workerFixture) createSubmission(t *testing.T, id, userID string, contestID *string) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		ID:             id,
		UserID:         userID,
		ProblemID:      "p1",
		ContestID:      contestID,
		Language:       "python",
		Code:           "print(sum(map(int, input().split())))",
		Status:         model.StatusPending,
		TestCasesTotal: 2,
	}
	require.NoError(t, f.submissionRepo.Create(context.Background(), nil, sub))
	return sub
}

func TestProcessAcceptedSubmission(t *testing.T) {
	fj := newFakeJudge(t, judge.StatusIDAccepted, judge.StatusIDAccepted)
	f := newWorkerFixture(t, fj.srv.URL)

	sub := f.createSubmission(t, "sub-1", "alice", nil)
	ch := f.waiters.Register(sub.ID)

	f.worker.process(context.Background(), sub.ID)

	stored, err := f.submissionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, stored.Status)
	assert.Equal(t, 2, stored.TestCasesPassed)
	assert.InDelta(t, 0.02, stored.Runtime, 1e-9)
	assert.Equal(t, 2048, stored.MemoryKB)
	assert.True(t, f.submissionRepo.Solved("alice", "p1"))

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.Equal(t, model.StatusAccepted, res.Submission.Status)
	case <-time.After(time.Second):
		t.Fatal("waiter was not notified")
	}
}

func TestProcessWrongAnswer(t *testing.T) {
	fj := newFakeJudge(t, judge.StatusIDAccepted, judge.StatusIDWrongAnswer)
	f := newWorkerFixture(t, fj.srv.URL)

	sub := f.createSubmission(t, "sub-1", "alice", nil)
	f.worker.process(context.Background(), sub.ID)

	stored, err := f.submissionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWrongAnswer, stored.Status)
	assert.Equal(t, 1, stored.TestCasesPassed)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "wrong output", *stored.ErrorMessage)
	assert.False(t, f.submissionRepo.Solved("alice", "p1"))
}

func TestProcessJudgeDownLeavesSubmissionPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	f := newWorkerFixture(t, srv.URL)

	sub := f.createSubmission(t, "sub-1", "alice", nil)
	ch := f.waiters.Register(sub.ID)

	f.worker.process(context.Background(), sub.ID)

	stored, err := f.submissionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status, "infra failure must not produce a verdict")

	select {
	case res := <-ch:
		assert.ErrorIs(t, res.Err, common.ErrJudgeUnavailable)
	case <-time.After(time.Second):
		t.Fatal("waiter was not notified")
	}
}

func TestProcessSkipsAlreadyJudged(t *testing.T) {
	fj := newFakeJudge(t, judge.StatusIDAccepted)
	f := newWorkerFixture(t, fj.srv.URL)

	sub := f.createSubmission(t, "sub-1", "alice", nil)
	require.NoError(t, f.submissionRepo.Finalize(context.Background(), nil, sub.ID,
		model.StatusWrongAnswer, 1, 0.01, 100, nil))

	f.worker.process(context.Background(), sub.ID)

	assert.Zero(t, fj.calls.Load(), "already judged submissions must not hit the judge")
	stored, _ := f.submissionRepo.GetByID(context.Background(), sub.ID)
	assert.Equal(t, model.StatusWrongAnswer, stored.Status)
}

func TestFirstContestAcceptBroadcastsLeaderboard(t *testing.T) {
	fj := newFakeJudge(t, judge.StatusIDAccepted, judge.StatusIDAccepted)
	f := newWorkerFixture(t, fj.srv.URL)
	ctx := context.Background()

	contest := &model.Contest{
		ID:         "c1",
		Name:       "Round",
		ProblemIDs: []string{"p1"},
		StartTime:  time.Now().Add(-time.Hour),
		EndTime:    time.Now().Add(time.Hour),
	}
	require.NoError(t, f.contestRepo.Create(ctx, nil, contest))
	require.NoError(t, f.userRepo.Create(ctx, &model.User{ID: "alice", Username: "alice", Email: "a@x.io"}))
	require.NoError(t, f.contestRepo.Register(ctx, "c1", "alice"))

	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		require.NoError(t, err)
		f.hub.Join("c1", conn)
	}))
	defer wsSrv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(wsSrv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.hub.RoomSize("c1") == 1 }, time.Second, 5*time.Millisecond)

	contestID := "c1"
	sub := f.createSubmission(t, "sub-1", "alice", &contestID)
	f.worker.process(ctx, sub.ID)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev struct {
		Type        string             `json:"type"`
		ContestID   string             `json:"contest_id"`
		Leaderboard *model.Leaderboard `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "leaderboard_update", ev.Type)
	assert.Equal(t, "c1", ev.ContestID)
	require.NotNil(t, ev.Leaderboard)
	require.Len(t, ev.Leaderboard.Rows, 1)
	assert.Equal(t, 1, ev.Leaderboard.Rows[0].Rank)
	assert.Equal(t, "alice", ev.Leaderboard.Rows[0].Name)
	assert.Equal(t, 1, ev.Leaderboard.Rows[0].Score)

	// A repeat accept on the same problem must not broadcast again.
	sub2 := f.createSubmission(t, "sub-2", "alice", &contestID)
	f.worker.process(ctx, sub2.ID)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "re-accept should not trigger a broadcast")
}

func TestRunDrainsQueue(t *testing.T) {
	fj := newFakeJudge(t, judge.StatusIDAccepted, judge.StatusIDAccepted)
	f := newWorkerFixture(t, fj.srv.URL)
	ctx, cancel := context.WithCancel(context.Background())

	subA := f.createSubmission(t, "sub-a", "alice", nil)
	subB := f.createSubmission(t, "sub-b", "bob", nil)
	require.NoError(t, f.rdb.LPush(ctx, testQueue, subA.ID, subB.ID).Err())

	runDone := make(chan struct{})
	go func() {
		f.worker.Run(ctx, 2)
		close(runDone)
	}()

	require.Eventually(t, func() bool {
		a, errA := f.submissionRepo.GetByID(context.Background(), subA.ID)
		b, errB := f.submissionRepo.GetByID(context.Background(), subB.ID)
		return errA == nil && errB == nil && a.Terminal() && b.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-runDone:
	case <-time.After(10 * time.Second):
		t.Fatal("worker pool did not stop after cancel")
	}
}

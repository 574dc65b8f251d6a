package service

import (
	"context"
	"testing"
	"time"

	"code_arena/internal/common"
	"code_arena/internal/domain/model"
	"code_arena/internal/domain/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contestStart = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func testContest(problemIDs ...string) *model.Contest {
	return &model.Contest{
		ID:         "contest-1",
		Name:       "Weekly Round",
		ProblemIDs: problemIDs,
		StartTime:  contestStart,
		EndTime:    contestStart.Add(2 * time.Hour),
	}
}

func judged(user, problem string, status model.SubmissionStatus, at time.Time, seq int64) model.Submission {
	contestID := "contest-1"
	return model.Submission{
		ID:        user + "-" + problem + "-" + at.Format("150405"),
		UserID:    user,
		ProblemID: problem,
		ContestID: &contestID,
		Language:  "python",
		Status:    status,
		CreatedAt: at,
		Seq:       seq,
	}
}

func TestBuildRowsTwoUserScenario(t *testing.T) {
	contest := testContest("p1", "p2")
	subs := []model.Submission{
		judged("alice", "p1", model.StatusAccepted, contestStart.Add(5*time.Minute), 1),
		judged("alice", "p2", model.StatusWrongAnswer, contestStart.Add(7*time.Minute), 2),
		judged("bob", "p1", model.StatusAccepted, contestStart.Add(8*time.Minute), 3),
		judged("bob", "p2", model.StatusAccepted, contestStart.Add(9*time.Minute), 4),
	}
	names := map[string]string{"alice": "alice", "bob": "bob"}

	rows := BuildRows(contest, subs, []string{"alice", "bob"}, names)
	require.Len(t, rows, 2)

	bob, alice := rows[0], rows[1]

	assert.Equal(t, 1, bob.Rank)
	assert.Equal(t, "bob", bob.UserID)
	assert.Equal(t, 2, bob.Score)
	assert.Equal(t, "10:09:00", bob.FinishTimeDisplay)
	assert.Equal(t, "00:09:00", bob.TimeTakenDisplay)
	assert.Equal(t, "00:08:00", bob.PerProblem["p1"].TimeTakenDisplay)
	assert.Equal(t, "00:01:00", bob.PerProblem["p2"].TimeTakenDisplay)

	assert.Equal(t, 2, alice.Rank)
	assert.Equal(t, "alice", alice.UserID)
	assert.Equal(t, 1, alice.Score)
	assert.Equal(t, "00:05:00", alice.TimeTakenDisplay)
	assert.Equal(t, model.CellAccepted, alice.PerProblem["p1"].Status)
	assert.Equal(t, model.CellWrong, alice.PerProblem["p2"].Status)
}

func TestBuildRowsFirstAttemptLocksIn(t *testing.T) {
	contest := testContest("p1")
	subs := []model.Submission{
		judged("alice", "p1", model.StatusWrongAnswer, contestStart.Add(3*time.Minute), 1),
		judged("alice", "p1", model.StatusAccepted, contestStart.Add(10*time.Minute), 2),
	}

	rows := BuildRows(contest, subs, []string{"alice"}, map[string]string{"alice": "alice"})
	require.Len(t, rows, 1)

	assert.Equal(t, 0, rows[0].Score)
	assert.Equal(t, model.CellWrong, rows[0].PerProblem["p1"].Status)
	assert.Equal(t, NoTimeDisplay, rows[0].TimeTakenDisplay)
}

func TestBuildRowsRepeatAcceptDoesNotDoubleScore(t *testing.T) {
	contest := testContest("p1")
	subs := []model.Submission{
		judged("alice", "p1", model.StatusAccepted, contestStart.Add(3*time.Minute), 1),
		judged("alice", "p1", model.StatusAccepted, contestStart.Add(4*time.Minute), 2),
	}

	rows := BuildRows(contest, subs, []string{"alice"}, map[string]string{"alice": "alice"})
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Score)
	assert.Equal(t, "00:03:00", rows[0].TimeTakenDisplay)
}

func TestBuildRowsUnattemptedBackfill(t *testing.T) {
	contest := testContest("p1", "p2", "p3")
	subs := []model.Submission{
		judged("alice", "p2", model.StatusAccepted, contestStart.Add(1*time.Minute), 1),
	}

	rows := BuildRows(contest, subs, []string{"alice"}, map[string]string{"alice": "alice"})
	require.Len(t, rows, 1)

	row := rows[0]
	require.Len(t, row.PerProblem, 3)
	assert.Equal(t, model.CellUnattempted, row.PerProblem["p1"].Status)
	assert.Equal(t, model.CellAccepted, row.PerProblem["p2"].Status)
	assert.Equal(t, model.CellUnattempted, row.PerProblem["p3"].Status)
}

func TestBuildRowsPenaltyTimeAccumulates(t *testing.T) {
	contest := testContest("p1", "p2")
	subs := []model.Submission{
		judged("alice", "p1", model.StatusAccepted, contestStart.Add(30*time.Minute), 1),
		judged("alice", "p2", model.StatusAccepted, contestStart.Add(45*time.Minute), 2),
	}

	rows := BuildRows(contest, subs, []string{"alice"}, map[string]string{"alice": "alice"})
	require.Len(t, rows, 1)

	// Second problem is measured from the first accept, not from the start.
	assert.Equal(t, "00:30:00", rows[0].PerProblem["p1"].TimeTakenDisplay)
	assert.Equal(t, "00:15:00", rows[0].PerProblem["p2"].TimeTakenDisplay)
	assert.Equal(t, "00:45:00", rows[0].TimeTakenDisplay)
}

func TestBuildRowsTiesKeepBaseOrderWithDistinctRanks(t *testing.T) {
	contest := testContest("p1")

	rows := BuildRows(contest, nil, []string{"carol", "alice", "bob"},
		map[string]string{"carol": "carol", "alice": "alice", "bob": "bob"})
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"carol", "alice", "bob"},
		[]string{rows[0].UserID, rows[1].UserID, rows[2].UserID})
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].Rank, rows[1].Rank, rows[2].Rank})
}

func TestBuildRowsScoredAboveUnscored(t *testing.T) {
	contest := testContest("p1")
	subs := []model.Submission{
		judged("bob", "p1", model.StatusAccepted, contestStart.Add(50*time.Minute), 1),
	}

	rows := BuildRows(contest, subs, []string{"alice", "bob"},
		map[string]string{"alice": "alice", "bob": "bob"})

	assert.Equal(t, "bob", rows[0].UserID)
	assert.Equal(t, "alice", rows[1].UserID)
	assert.Nil(t, rows[1].FinishTime)
	assert.Equal(t, NoTimeDisplay, rows[1].FinishTimeDisplay)
}

func TestBuildRowsDeterministic(t *testing.T) {
	contest := testContest("p1", "p2")
	subs := []model.Submission{
		judged("alice", "p1", model.StatusAccepted, contestStart.Add(5*time.Minute), 1),
		judged("bob", "p1", model.StatusAccepted, contestStart.Add(5*time.Minute), 2),
		judged("carol", "p2", model.StatusWrongAnswer, contestStart.Add(6*time.Minute), 3),
	}
	ids := []string{"alice", "bob", "carol"}
	names := map[string]string{"alice": "a", "bob": "b", "carol": "c"}

	first := BuildRows(contest, subs, ids, names)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, BuildRows(contest, subs, ids, names))
	}
}

func TestParticipantIDsRegistrantsFirstThenSubmitters(t *testing.T) {
	regs := []model.Registration{
		{UserID: "alice"}, {UserID: "bob"},
	}
	subs := []model.Submission{
		{UserID: "carol"}, {UserID: "alice"}, {UserID: "dave"}, {UserID: "carol"},
	}

	ids := participantIDs(regs, subs)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, ids)
}

func TestBuildFullPipeline(t *testing.T) {
	ctx := context.Background()
	contestRepo := repotest.NewContestRepo()
	submissionRepo := repotest.NewSubmissionRepo()
	userRepo := repotest.NewUserRepo()

	contest := testContest("p1", "p2")
	require.NoError(t, contestRepo.Create(ctx, nil, contest))
	require.NoError(t, userRepo.Create(ctx, &model.User{ID: "alice", Username: "alice", Email: "a@x.io"}))
	require.NoError(t, userRepo.Create(ctx, &model.User{ID: "bob", Username: "bob", Email: "b@x.io"}))
	require.NoError(t, contestRepo.Register(ctx, contest.ID, "alice"))
	require.NoError(t, contestRepo.Register(ctx, contest.ID, "bob"))

	for _, sub := range []model.Submission{
		judged("alice", "p1", model.StatusAccepted, contestStart.Add(5*time.Minute), 0),
		judged("bob", "p1", model.StatusAccepted, contestStart.Add(8*time.Minute), 0),
		judged("bob", "p2", model.StatusAccepted, contestStart.Add(9*time.Minute), 0),
		// Pending submissions must not influence the standings.
		judged("alice", "p2", model.StatusPending, contestStart.Add(9*time.Minute), 0),
	} {
		s := sub
		require.NoError(t, submissionRepo.Create(ctx, nil, &s))
	}

	svc := NewLeaderboardService(contestRepo, submissionRepo, userRepo)
	board, err := svc.Build(ctx, contest.ID)
	require.NoError(t, err)

	assert.Equal(t, contest.ID, board.ContestID)
	assert.Equal(t, []string{"p1", "p2"}, board.ProblemIDs)
	require.Len(t, board.Rows, 2)
	assert.Equal(t, "bob", board.Rows[0].Name)
	assert.Equal(t, 2, board.Rows[0].Score)
	assert.Equal(t, model.CellUnattempted, board.Rows[1].PerProblem["p2"].Status)
}

func TestBuildUnknownContest(t *testing.T) {
	svc := NewLeaderboardService(repotest.NewContestRepo(), repotest.NewSubmissionRepo(), repotest.NewUserRepo())
	_, err := svc.Build(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBuildEmptyHistory(t *testing.T) {
	ctx := context.Background()
	contestRepo := repotest.NewContestRepo()
	contest := testContest("p1")
	require.NoError(t, contestRepo.Create(ctx, nil, contest))

	svc := NewLeaderboardService(contestRepo, repotest.NewSubmissionRepo(), repotest.NewUserRepo())
	board, err := svc.Build(ctx, contest.ID)

	require.NoError(t, err)
	assert.Empty(t, board.Rows)
}

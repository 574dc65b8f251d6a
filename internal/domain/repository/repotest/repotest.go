// Package repotest provides in-memory repository implementations for tests.
// They honor the same ordering and idempotency contracts as the postgres
// implementations, which the leaderboard fold and the judging pipeline
// depend on.
package repotest

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"code_arena/internal/common"
	"code_arena/internal/domain/model"
)

type ContestRepo struct {
	mu       sync.Mutex
	contests map[string]*model.Contest
	regs     map[string][]model.Registration
}

func NewContestRepo() *ContestRepo {
	return &ContestRepo{
		contests: make(map[string]*model.Contest),
		regs:     make(map[string][]model.Registration),
	}
}

func (f *ContestRepo) Create(ctx context.Context, tx *sql.Tx, c *model.Contest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.contests {
		if existing.Slug != "" && existing.Slug == c.Slug {
			return common.ErrConflict
		}
	}
	f.contests[c.ID] = c
	return nil
}

func (f *ContestRepo) GetByID(ctx context.Context, id string) (*model.Contest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contests[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return c, nil
}

func (f *ContestRepo) List(ctx context.Context, limit, offset int) ([]model.Contest, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Contest, 0, len(f.contests))
	for _, c := range f.contests {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, len(out), nil
}

func (f *ContestRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contests[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.contests, id)
	return nil
}

func (f *ContestRepo) Register(ctx context.Context, contestID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range f.regs[contestID] {
		if reg.UserID == userID {
			return nil
		}
	}
	f.regs[contestID] = append(f.regs[contestID], model.Registration{
		ContestID: contestID, UserID: userID, RegisteredAt: time.Now(),
	})
	return nil
}

func (f *ContestRepo) Deregister(ctx context.Context, contestID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	regs := f.regs[contestID]
	for i, reg := range regs {
		if reg.UserID == userID {
			f.regs[contestID] = append(regs[:i:i], regs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *ContestRepo) IsRegistered(ctx context.Context, contestID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range f.regs[contestID] {
		if reg.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *ContestRepo) ListRegistrations(ctx context.Context, contestID string) ([]model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Registration(nil), f.regs[contestID]...), nil
}

type SubmissionRepo struct {
	mu     sync.Mutex
	subs   []*model.Submission
	solved map[string]map[string]bool
	seq    int64
}

func NewSubmissionRepo() *SubmissionRepo {
	return &SubmissionRepo{solved: make(map[string]map[string]bool)}
}

func (f *SubmissionRepo) Create(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	sub.Seq = f.seq
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	cp := *sub
	f.subs = append(f.subs, &cp)
	return nil
}

func (f *SubmissionRepo) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *SubmissionRepo) Finalize(ctx context.Context, tx *sql.Tx, id string, status model.SubmissionStatus,
	passed int, runtime float64, memoryKB int, errorMessage *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.ID == id {
			s.Status = status
			s.TestCasesPassed = passed
			s.Runtime = runtime
			s.MemoryKB = memoryKB
			s.ErrorMessage = errorMessage
			return nil
		}
	}
	return common.ErrNotFound
}

func (f *SubmissionRepo) ListByUser(ctx context.Context, userID string, problemID *string) ([]model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Submission{}
	for _, s := range f.subs {
		if s.UserID != userID {
			continue
		}
		if problemID != nil && s.ProblemID != *problemID {
			continue
		}
		out = append(out, *s)
	}
	sortSubs(out)
	return out, nil
}

func (f *SubmissionRepo) ListByContest(ctx context.Context, contestID string, statuses []model.SubmissionStatus) ([]model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	allowed := make(map[model.SubmissionStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	out := []model.Submission{}
	for _, s := range f.subs {
		if s.ContestID == nil || *s.ContestID != contestID {
			continue
		}
		if len(statuses) > 0 && !allowed[s.Status] {
			continue
		}
		out = append(out, *s)
	}
	sortSubs(out)
	return out, nil
}

func (f *SubmissionRepo) CountAccepted(ctx context.Context, contestID, userID, problemID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.subs {
		if s.ContestID != nil && *s.ContestID == contestID &&
			s.UserID == userID && s.ProblemID == problemID && s.Status == model.StatusAccepted {
			count++
		}
	}
	return count, nil
}

func (f *SubmissionRepo) MarkProblemSolved(ctx context.Context, tx *sql.Tx, userID, problemID, submissionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.solved[userID] == nil {
		f.solved[userID] = make(map[string]bool)
	}
	f.solved[userID][problemID] = true
	return nil
}

// Solved reports whether the user's solved set contains the problem.
func (f *SubmissionRepo) Solved(userID, problemID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.solved[userID][problemID]
}

func sortSubs(subs []model.Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].Seq < subs[j].Seq
	})
}

type ProblemRepo struct {
	mu        sync.Mutex
	problems  map[string]*model.Problem
	testCases map[string][]model.TestCase
}

func NewProblemRepo() *ProblemRepo {
	return &ProblemRepo{
		problems:  make(map[string]*model.Problem),
		testCases: make(map[string][]model.TestCase),
	}
}

func (f *ProblemRepo) Add(p *model.Problem, cases ...model.TestCase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.problems[p.ID] = p
	f.testCases[p.ID] = cases
}

func (f *ProblemRepo) GetByID(ctx context.Context, id string) (*model.Problem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.problems[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return p, nil
}

func (f *ProblemRepo) GetTestCasesByProblemID(ctx context.Context, problemID string) ([]model.TestCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.TestCase(nil), f.testCases[problemID]...), nil
}

type UserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[string]*model.User)}
}

func (f *UserRepo) Create(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username || u.Email == user.Email {
			return common.ErrConflict
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *UserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (f *UserRepo) UsernamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			names[id] = u.Username
		}
	}
	return names, nil
}

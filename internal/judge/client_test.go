package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"code_arena/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, maxPolls int) *Client {
	return NewClient(baseURL, "", time.Millisecond, maxPolls)
}

func TestSubmitBatchReturnsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasPrefix(r.URL.Path, "/submissions/batch"))

		var req wireBatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Submissions, 2)
		assert.Equal(t, 71, req.Submissions[0].LanguageID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]wireToken{{Token: "tok-a"}, {Token: "tok-b"}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	tokens, err := c.SubmitBatch(context.Background(), []Case{
		{Source: "print(1)", LanguageID: 71, Stdin: "x", ExpectedOutput: "1"},
		{Source: "print(2)", LanguageID: 71, Stdin: "y", ExpectedOutput: "2"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a", "tok-b"}, tokens)
}

func TestSubmitBatchUnavailableOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.SubmitBatch(context.Background(), []Case{{Source: "x", LanguageID: 71}})

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrJudgeUnavailable)
}

func TestSubmitBatchUnavailableOnNonArrayBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "queue full"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.SubmitBatch(context.Background(), []Case{{Source: "x", LanguageID: 71}})

	assert.ErrorIs(t, err, common.ErrJudgeUnavailable)
}

func TestSubmitBatchUnavailableOnTokenCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]wireToken{{Token: "only-one"}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	_, err := c.SubmitBatch(context.Background(), []Case{
		{Source: "x", LanguageID: 71}, {Source: "y", LanguageID: 71},
	})

	assert.ErrorIs(t, err, common.ErrJudgeUnavailable)
}

func TestSubmitBatchUnavailableOnConnectionRefused(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 5)
	_, err := c.SubmitBatch(context.Background(), []Case{{Source: "x", LanguageID: 71}})

	assert.ErrorIs(t, err, common.ErrJudgeUnavailable)
}

func TestAwaitResultsPollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "tok-a,tok-b", r.URL.Query().Get("tokens"))

		n := polls.Add(1)
		statusA := wireStatus{ID: StatusIDAccepted}
		statusB := wireStatus{ID: StatusIDProcessing}
		if n >= 3 {
			statusB = wireStatus{ID: StatusIDWrongAnswer}
		}
		runtime := "0.004"
		mem := 2048
		json.NewEncoder(w).Encode(wireBatchResponse{Submissions: []wireVerdict{
			{Token: "tok-a", Status: statusA, Time: &runtime, Memory: &mem},
			{Token: "tok-b", Status: statusB},
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 10)
	verdicts, err := c.AwaitResults(context.Background(), []string{"tok-a", "tok-b"})

	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	assert.Equal(t, StatusIDAccepted, verdicts[0].StatusID)
	assert.InDelta(t, 0.004, verdicts[0].Time, 1e-9)
	assert.Equal(t, 2048, verdicts[0].MemoryKB)
	assert.Equal(t, StatusIDWrongAnswer, verdicts[1].StatusID)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestAwaitResultsTimesOutAfterPollBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireBatchResponse{Submissions: []wireVerdict{
			{Token: "tok-a", Status: wireStatus{ID: StatusIDInQueue}},
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	_, err := c.AwaitResults(context.Background(), []string{"tok-a"})

	assert.ErrorIs(t, err, common.ErrJudgeTimeout)
}

func TestAwaitResultsRespectsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireBatchResponse{Submissions: []wireVerdict{
			{Token: "tok-a", Status: wireStatus{ID: StatusIDProcessing}},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Hour, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.AwaitResults(ctx, []string{"tok-a"})
	assert.ErrorIs(t, err, common.ErrJudgeTimeout)
}

func TestAwaitResultsNoTokens(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 3)
	verdicts, err := c.AwaitResults(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, verdicts)
}

func TestClientSendsAuthToken(t *testing.T) {
	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Auth-Token"))
		json.NewEncoder(w).Encode([]wireToken{{Token: "tok"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sekret", time.Millisecond, 3)
	_, err := c.SubmitBatch(context.Background(), []Case{{Source: "x", LanguageID: 71}})

	require.NoError(t, err)
	assert.Equal(t, "sekret", gotHeader.Load())
}

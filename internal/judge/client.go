package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"code_arena/internal/common"
)

// Judge0 status ids. Anything above wrong-answer is some flavor of
// compile/runtime error; the aggregator only distinguishes these three
// groups.
const (
	StatusIDInQueue     = 1
	StatusIDProcessing  = 2
	StatusIDAccepted    = 3
	StatusIDWrongAnswer = 4
)

const verdictFields = "token,status_id,status,time,memory,stdout,stderr,compile_output"

// Case is one (source, stdin, expected output) triple sent to the judge.
type Case struct {
	Source         string
	LanguageID     int
	Stdin          string
	ExpectedOutput string
}

// RawVerdict is the judge's terminal result for one case.
type RawVerdict struct {
	Token         string
	StatusID      int
	Time          float64 // seconds
	MemoryKB      int
	Stdout        string
	Stderr        string
	CompileOutput string
}

// Pending reports whether the verdict is still queued or running.
func (v RawVerdict) Pending() bool {
	return v.StatusID <= StatusIDProcessing
}

type Client struct {
	baseURL      string
	authToken    string
	httpc        *http.Client
	pollInterval time.Duration
	maxPolls     int
}

func NewClient(baseURL, authToken string, pollInterval time.Duration, maxPolls int) *Client {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 60
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		authToken:    authToken,
		httpc:        &http.Client{Timeout: 15 * time.Second},
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

type wireSubmission struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin,omitempty"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

type wireBatchRequest struct {
	Submissions []wireSubmission `json:"submissions"`
}

type wireToken struct {
	Token string `json:"token"`
}

type wireStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type wireVerdict struct {
	Token         string     `json:"token"`
	Status        wireStatus `json:"status"`
	Time          *string    `json:"time"`
	Memory        *int       `json:"memory"`
	Stdout        *string    `json:"stdout"`
	Stderr        *string    `json:"stderr"`
	CompileOutput *string    `json:"compile_output"`
}

type wireBatchResponse struct {
	Submissions []wireVerdict `json:"submissions"`
}

// SubmitBatch sends every case to the judge in one batch call and returns
// the opaque tokens to poll. Any transport failure, non-2xx response, or a
// payload that is not a token array means no verdict was obtained: callers
// must treat the returned ErrJudgeUnavailable as an infrastructure failure,
// never as a judged outcome.
func (c *Client) SubmitBatch(ctx context.Context, cases []Case) ([]string, error) {
	if len(cases) == 0 {
		return nil, common.Errorf("no cases to submit: %w", common.ErrBadRequest)
	}

	req := wireBatchRequest{Submissions: make([]wireSubmission, 0, len(cases))}
	for _, cs := range cases {
		req.Submissions = append(req.Submissions, wireSubmission{
			SourceCode:     cs.Source,
			LanguageID:     cs.LanguageID,
			Stdin:          cs.Stdin,
			ExpectedOutput: cs.ExpectedOutput,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, common.Errorf("marshal batch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/submissions/batch?base64_encoded=false", bytes.NewReader(body))
	if err != nil {
		return nil, common.Errorf("build batch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, common.Errorf("judge batch call failed: %v: %w", err, common.ErrJudgeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, common.Errorf("judge batch call returned %d: %w", resp.StatusCode, common.ErrJudgeUnavailable)
	}

	var created []wireToken
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, common.Errorf("judge batch response is not a token array: %v: %w", err, common.ErrJudgeUnavailable)
	}
	if len(created) != len(cases) {
		return nil, common.Errorf("judge returned %d tokens for %d cases: %w", len(created), len(cases), common.ErrJudgeUnavailable)
	}

	tokens := make([]string, 0, len(created))
	for _, t := range created {
		if t.Token == "" {
			return nil, common.Errorf("judge returned an empty token: %w", common.ErrJudgeUnavailable)
		}
		tokens = append(tokens, t.Token)
	}
	return tokens, nil
}

// AwaitResults polls the judge until every token reaches a terminal state.
// The poll budget is bounded: after maxPolls attempts it gives up with
// ErrJudgeTimeout so a stuck judge cannot block the pipeline forever.
func (c *Client) AwaitResults(ctx context.Context, tokens []string) ([]RawVerdict, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, common.Errorf("poll wait interrupted: %v: %w", ctx.Err(), common.ErrJudgeTimeout)
			case <-time.After(c.pollInterval):
			}
		}

		verdicts, err := c.fetchVerdicts(ctx, tokens)
		if err != nil {
			return nil, err
		}

		done := true
		for _, v := range verdicts {
			if v.Pending() {
				done = false
				break
			}
		}
		if done {
			return verdicts, nil
		}
	}

	return nil, common.Errorf("tokens still running after %d polls: %w", c.maxPolls, common.ErrJudgeTimeout)
}

func (c *Client) fetchVerdicts(ctx context.Context, tokens []string) ([]RawVerdict, error) {
	q := url.Values{}
	q.Set("tokens", strings.Join(tokens, ","))
	q.Set("fields", verdictFields)
	q.Set("base64_encoded", "false")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/submissions/batch?"+q.Encode(), nil)
	if err != nil {
		return nil, common.Errorf("build poll request: %w", err)
	}
	c.setAuth(httpReq)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, common.Errorf("judge poll failed: %v: %w", err, common.ErrJudgeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, common.Errorf("judge poll returned %d: %w", resp.StatusCode, common.ErrJudgeUnavailable)
	}

	var batch wireBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, common.Errorf("decode poll response: %v: %w", err, common.ErrJudgeUnavailable)
	}
	if len(batch.Submissions) != len(tokens) {
		return nil, common.Errorf("judge returned %d verdicts for %d tokens: %w", len(batch.Submissions), len(tokens), common.ErrJudgeUnavailable)
	}

	verdicts := make([]RawVerdict, 0, len(batch.Submissions))
	for _, wv := range batch.Submissions {
		verdicts = append(verdicts, RawVerdict{
			Token:         wv.Token,
			StatusID:      wv.Status.ID,
			Time:          parseSeconds(wv.Time),
			MemoryKB:      deref(wv.Memory),
			Stdout:        derefStr(wv.Stdout),
			Stderr:        derefStr(wv.Stderr),
			CompileOutput: derefStr(wv.CompileOutput),
		})
	}
	return verdicts, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
}

// parseSeconds handles the judge reporting execution time as a decimal
// string ("0.002") or omitting it entirely.
func parseSeconds(s *string) float64 {
	if s == nil || *s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return 0
	}
	return f
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

package judge

import (
	"code_arena/internal/domain/model"
)

// Outcome is the submission-level reduction of a batch of raw verdicts.
type Outcome struct {
	Status       model.SubmissionStatus
	Passed       int
	Total        int
	Runtime      float64 // summed over passed cases, seconds
	MemoryKB     int     // peak over passed cases
	ErrorMessage string
}

// Aggregate reduces per-case verdicts into one submission outcome. It is a
// pure function of its input: no I/O, no clock, no shared state.
//
// Policy on multiple failing cases: the last failing case wins. Later
// failures tend to carry more informative output, and either choice is
// arbitrary; this one is documented so it stays deliberate.
func Aggregate(verdicts []RawVerdict) Outcome {
	out := Outcome{
		Status: model.StatusAccepted,
		Total:  len(verdicts),
	}

	for _, v := range verdicts {
		if v.StatusID == StatusIDAccepted {
			out.Passed++
			out.Runtime += v.Time
			if v.MemoryKB > out.MemoryKB {
				out.MemoryKB = v.MemoryKB
			}
			continue
		}

		if v.StatusID == StatusIDWrongAnswer {
			out.Status = model.StatusWrongAnswer
			out.ErrorMessage = v.Stderr
		} else {
			out.Status = model.StatusError
			if v.Stderr != "" {
				out.ErrorMessage = v.Stderr
			} else {
				out.ErrorMessage = v.CompileOutput
			}
		}
	}

	return out
}

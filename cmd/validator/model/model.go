// Package model defines the JSON wire format of the validation server and
// its conversion into scheduler jobs.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codetask/validator/scheduler"
	"github.com/codetask/validator/types"
)

const defaultEpsilon = 1e-6

// Request is one validation request.
type Request struct {
	SubmissionID string `json:"submissionId,omitempty"`
	TaskID       string `json:"taskId,omitempty"`
	Language     string `json:"language"`
	Source       string `json:"source"`
	RunAll       bool   `json:"runAll,omitempty"`
	Cases        []Case `json:"cases"`
}

// Case is one test case of a request.
type Case struct {
	Input       string  `json:"input"`
	Expected    string  `json:"expected"`
	Mode        string  `json:"mode,omitempty"`
	Epsilon     float64 `json:"epsilon,omitempty"`
	TimeLimitMs uint64  `json:"timeLimitMs,omitempty"`
	MemoryLimit uint64  `json:"memoryLimit,omitempty"`
}

// Event is one message pushed over the websocket endpoint.
type Event struct {
	Type         string            `json:"type"` // progress | report | error
	SubmissionID string            `json:"submissionId,omitempty"`
	Progress     *types.TestResult `json:"progress,omitempty"`
	Report       *types.Report     `json:"report,omitempty"`
	Error        string            `json:"error,omitempty"`
}

var modeNames = map[string]types.ComparisonMode{
	"":                 types.ModeExact,
	"exact":            types.ModeExact,
	"trimmedLines":     types.ModeTrimmedLines,
	"tokenSequence":    types.ModeTokenSequence,
	"numericTolerance": types.ModeNumericTolerance,
}

// ConvertRequest validates the request and builds a scheduler job. A
// missing submission id gets a generated one.
func ConvertRequest(req *Request) (*scheduler.Job, error) {
	if req.Language == "" {
		return nil, fmt.Errorf("language is required")
	}
	if len(req.Source) == 0 {
		return nil, fmt.Errorf("source is required")
	}
	if len(req.Cases) == 0 {
		return nil, fmt.Errorf("at least one test case is required")
	}

	id := req.SubmissionID
	if id == "" {
		id = uuid.NewString()
	}

	cases := make([]types.TestCase, 0, len(req.Cases))
	for i, c := range req.Cases {
		mode, ok := modeNames[c.Mode]
		if !ok {
			return nil, fmt.Errorf("case %d: invalid comparison mode: %s", i, c.Mode)
		}
		eps := c.Epsilon
		if mode == types.ModeNumericTolerance {
			if eps < 0 {
				return nil, fmt.Errorf("case %d: epsilon must not be negative", i)
			}
			if eps == 0 {
				eps = defaultEpsilon
			}
		}
		cases = append(cases, types.TestCase{
			Index:       i,
			Input:       []byte(c.Input),
			Expected:    []byte(c.Expected),
			Mode:        mode,
			Epsilon:     eps,
			TimeLimit:   time.Duration(c.TimeLimitMs) * time.Millisecond,
			MemoryLimit: c.MemoryLimit,
		})
	}

	return &scheduler.Job{
		Submission: &types.Submission{
			ID:          id,
			TaskID:      req.TaskID,
			Source:      []byte(req.Source),
			Language:    req.Language,
			SubmittedAt: time.Now(),
		},
		Cases:   cases,
		Options: types.Options{RunAll: req.RunAll},
	}, nil
}

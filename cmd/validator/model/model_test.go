package model

import (
	"testing"
	"time"

	"github.com/codetask/validator/types"
)

func validRequest() *Request {
	return &Request{
		Language: "python",
		Source:   "print(1)",
		Cases: []Case{
			{Input: "1\n", Expected: "1\n"},
		},
	}
}

func TestConvertRequest(t *testing.T) {
	req := validRequest()
	req.SubmissionID = "s1"
	req.Cases = append(req.Cases, Case{
		Expected:    "3.14",
		Mode:        "numericTolerance",
		TimeLimitMs: 500,
		MemoryLimit: 64 << 20,
	})

	job, err := ConvertRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if job.Submission.ID != "s1" {
		t.Errorf("id = %q", job.Submission.ID)
	}
	if len(job.Cases) != 2 {
		t.Fatalf("cases = %d", len(job.Cases))
	}
	c := job.Cases[1]
	if c.Index != 1 || c.Mode != types.ModeNumericTolerance {
		t.Errorf("case = %+v", c)
	}
	if c.Epsilon != defaultEpsilon {
		t.Errorf("epsilon = %v", c.Epsilon)
	}
	if c.TimeLimit != 500*time.Millisecond {
		t.Errorf("timeLimit = %v", c.TimeLimit)
	}
}

func TestConvertRequestGeneratesID(t *testing.T) {
	job, err := ConvertRequest(validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if job.Submission.ID == "" {
		t.Error("expected a generated submission id")
	}
}

func TestConvertRequestRejectsInvalid(t *testing.T) {
	for _, tt := range []struct {
		name   string
		mutate func(*Request)
	}{
		{"noLanguage", func(r *Request) { r.Language = "" }},
		{"noSource", func(r *Request) { r.Source = "" }},
		{"noCases", func(r *Request) { r.Cases = nil }},
		{"badMode", func(r *Request) { r.Cases[0].Mode = "fuzzy" }},
		{"negativeEpsilon", func(r *Request) {
			r.Cases[0].Mode = "numericTolerance"
			r.Cases[0].Epsilon = -1
		}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			if _, err := ConvertRequest(req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

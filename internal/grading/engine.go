package grading

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// QuestionType is the closed set of question kinds the engine knows.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	Matching       QuestionType = "matching"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
	FileUpload     QuestionType = "file_upload"
)

// Types lists every question type in a stable order.
func Types() []QuestionType {
	return []QuestionType{MultipleChoice, TrueFalse, Matching, ShortAnswer, Essay, FileUpload}
}

func ParseQuestionType(s string) (QuestionType, error) {
	t := QuestionType(strings.TrimSpace(strings.ToLower(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// AutoGradable reports whether answers can be scored without a human.
func (t QuestionType) AutoGradable() bool {
	switch t {
	case MultipleChoice, TrueFalse, Matching, ShortAnswer:
		return true
	}
	return false
}

// RequiresOptions reports whether the question must carry options.
func (t QuestionType) RequiresOptions() bool {
	switch t {
	case MultipleChoice, TrueFalse, Matching:
		return true
	}
	return false
}

// Option is the grading view of a question option.
type Option struct {
	ID        string
	Text      string
	MatchText string
	Correct   bool
}

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type     QuestionType
	Points   float64
	Options  []Option
	Accepted []string // short_answer
}

// Response is what the learner submitted for one question.
type Response struct {
	Text      string
	OptionIDs []string
	Matches   map[string]string // term -> definition
	FileRef   string
}

// Result is the outcome of grading a single answer. A nil Score means the
// answer waits for a manual grade; it is not zero.
type Result struct {
	IsCorrect   *bool
	Score       *float64
	NeedsManual bool
	Feedback    []string
}

// Gradable grades one question type.
type Gradable interface {
	Grade(ctx context.Context, q Q, r Response) (Result, error)
}

type Engine struct {
	gradables map[QuestionType]Gradable
}

type EngineOption func(*config)

type config struct {
	truthy []string
}

// WithTruthyTokens replaces the tokens a true/false answer accepts as true.
func WithTruthyTokens(tokens ...string) EngineOption {
	return func(c *config) {
		if len(tokens) > 0 {
			c.truthy = tokens
		}
	}
}

// NewEngine installs one Gradable per question type.
func NewEngine(opts ...EngineOption) *Engine {
	cfg := &config{truthy: []string{"true", "benar"}}
	for _, o := range opts {
		o(cfg)
	}
	truthy := make(map[string]struct{}, len(cfg.truthy))
	for _, t := range cfg.truthy {
		truthy[normalizeToken(t)] = struct{}{}
	}
	return &Engine{
		gradables: map[QuestionType]Gradable{
			MultipleChoice: choiceGradable{},
			TrueFalse:      trueFalseGradable{truthy: truthy},
			Matching:       matchingGradable{},
			ShortAnswer:    shortAnswerGradable{},
			Essay:          manualGradable{},
			FileUpload:     manualGradable{},
		},
	}
}

func (e *Engine) Grade(ctx context.Context, q Q, r Response) (Result, error) {
	g, ok := e.gradables[q.Type]
	if !ok {
		return Result{}, fmt.Errorf("no grader for question type %q", q.Type)
	}
	return g.Grade(ctx, q, r)
}

func award(q Q, correct bool) Result {
	score := 0.0
	if correct {
		score = q.Points
	}
	return Result{IsCorrect: &correct, Score: &score}
}

// --- Gradables ---

type choiceGradable struct{}

func (choiceGradable) Grade(_ context.Context, q Q, r Response) (Result, error) {
	correct := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o.Correct {
			correct = append(correct, o.ID)
		}
	}
	if len(correct) == 0 {
		return Result{}, fmt.Errorf("multiple_choice question has no correct option")
	}
	return award(q, setEqual(toSet(correct), toSet(r.OptionIDs))), nil
}

type matchingGradable struct{}

func (matchingGradable) Grade(_ context.Context, q Q, r Response) (Result, error) {
	if len(q.Options) == 0 {
		return Result{}, fmt.Errorf("matching question has no pairs")
	}
	want := make(map[string]string, len(q.Options))
	for _, o := range q.Options {
		want[o.Text] = o.MatchText
	}
	ok := len(r.Matches) == len(want)
	if ok {
		for term, def := range want {
			if got, found := r.Matches[term]; !found || got != def {
				ok = false
				break
			}
		}
	}
	return award(q, ok), nil
}

type trueFalseGradable struct {
	truthy map[string]struct{}
}

func (g trueFalseGradable) Grade(_ context.Context, q Q, r Response) (Result, error) {
	var key *Option
	for i := range q.Options {
		if q.Options[i].Correct {
			key = &q.Options[i]
			break
		}
	}
	if key == nil {
		return Result{}, fmt.Errorf("true_false question has no correct option")
	}
	return award(q, g.truth(r.Text) == g.truth(key.Text)), nil
}

func (g trueFalseGradable) truth(s string) bool {
	_, ok := g.truthy[normalizeToken(s)]
	return ok
}

type shortAnswerGradable struct{}

func (shortAnswerGradable) Grade(_ context.Context, q Q, r Response) (Result, error) {
	resp := normalizeToken(r.Text)
	for _, a := range q.Accepted {
		if normalizeToken(a) == resp && resp != "" {
			return award(q, true), nil
		}
	}
	return award(q, false), nil
}

type manualGradable struct{}

func (manualGradable) Grade(_ context.Context, _ Q, _ Response) (Result, error) {
	return Result{NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// SortedKeys returns the keys of a string set in order; used for stable
// persistence of selected options.
func SortedKeys(ids []string) []string {
	set := toSet(ids)
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

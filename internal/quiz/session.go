package quiz

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInvalidQuiz     = errors.New("invalid quiz")
	ErrQuestionIndex   = errors.New("question index out of range")
	ErrAlreadyAnswered = errors.New("question already answered")
	ErrSessionClosed   = errors.New("quiz session is closed")
	ErrInvalidChoice   = errors.New("answer must be an option letter")
)

// State is the lifecycle state of a quiz session
type State string

const (
	StateCreated   State = "created"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// Question is one multiple choice question as produced by the quiz prompt
type Question struct {
	Prompt  string   `json:"question"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// CorrectLabel returns the upper-cased letter of the correct option ("b) Mitosis" gives "B")
func (q Question) CorrectLabel() string {
	return label(q.Answer)
}

// label returns the text before the first ")", trimmed and upper-cased. Option text without
// a ")" delimiter is labelled by its first character.
func label(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ")"); i >= 0 {
		return strings.ToUpper(strings.TrimSpace(s[:i]))
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ""
	}
	return strings.ToUpper(string(r))
}

// parseChoice accepts a bare option letter ("b") or a labelled option ("B) Mitosis")
// and returns the upper-cased letter.
func parseChoice(s string) (string, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ")"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if utf8.RuneCountInString(s) != 1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsLetter(r) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
	return strings.ToUpper(s), nil
}

// Validate checks the question has a prompt, at least two options and an answer naming one of them
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return errors.New("missing question text")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("expected at least 2 options, got %d", len(q.Options))
	}
	want := q.CorrectLabel()
	if want == "" {
		return errors.New("missing answer")
	}
	for _, opt := range q.Options {
		if label(opt) == want {
			return nil
		}
	}
	return fmt.Errorf("answer %q matches no option", q.Answer)
}

// Outcome records one answered question
type Outcome struct {
	Index         int    `json:"index"`
	Chosen        string `json:"chosen"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
}

// Session is a quiz in progress. It is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	ID    string
	Topic string

	questions []Question
	outcomes  []*Outcome
	answered  int
	correct   int
	state     State

	CreatedAt time.Time
	updatedAt time.Time
}

// New validates the questions and creates a session in the created state
func New(id, topic string, questions []Question) (*Session, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrInvalidQuiz, i+1, err)
		}
	}
	now := time.Now()
	return &Session{
		ID:        id,
		Topic:     topic,
		questions: append([]Question(nil), questions...),
		outcomes:  make([]*Outcome, len(questions)),
		state:     StateCreated,
		CreatedAt: now,
		updatedAt: now,
	}, nil
}

// SubmitAnswer records the answer to question index. Each question can be answered once;
// a second submission fails with ErrAlreadyAnswered and leaves the score unchanged.
func (s *Session) SubmitAnswer(index int, chosen string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted || s.state == StateAbandoned {
		return Outcome{}, ErrSessionClosed
	}
	if index < 0 || index >= len(s.questions) {
		return Outcome{}, fmt.Errorf("%w: %d not in [0, %d)", ErrQuestionIndex, index, len(s.questions))
	}
	if s.outcomes[index] != nil {
		return Outcome{}, fmt.Errorf("%w: question %d", ErrAlreadyAnswered, index+1)
	}

	got, err := parseChoice(chosen)
	if err != nil {
		return Outcome{}, err
	}
	want := s.questions[index].CorrectLabel()
	o := &Outcome{Index: index, Chosen: got, Correct: got == want, CorrectAnswer: want}
	s.outcomes[index] = o
	s.answered++
	if o.Correct {
		s.correct++
	}

	s.state = StateActive
	if s.answered == len(s.questions) {
		s.state = StateCompleted
	}
	s.updatedAt = time.Now()
	return *o, nil
}

// Abandon closes the session early. Completed sessions stay completed.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCompleted {
		s.state = StateAbandoned
		s.updatedAt = time.Now()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Score returns the number of correct answers and the number of questions
func (s *Session) Score() (correct, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.correct, len(s.questions)
}

// Percentage returns correct / total * 100
func (s *Session) Percentage() float64 {
	correct, total := s.Score()
	return float64(correct) / float64(total) * 100
}

// Questions returns a copy of the questions, answers included
func (s *Session) Questions() []Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Question(nil), s.questions...)
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// PublicQuestion is a question without its answer
type PublicQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Snapshot is a JSON-safe copy of session state. Answers are only revealed through outcomes.
type Snapshot struct {
	ID           string           `json:"session_id"`
	Topic        string           `json:"topic"`
	State        State            `json:"state"`
	Questions    []PublicQuestion `json:"questions"`
	Outcomes     []Outcome        `json:"outcomes"`
	CorrectCount int              `json:"correct_count"`
	Total        int              `json:"total"`
	Score        float64          `json:"score"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:           s.ID,
		Topic:        s.Topic,
		State:        s.state,
		Questions:    make([]PublicQuestion, len(s.questions)),
		Outcomes:     []Outcome{},
		CorrectCount: s.correct,
		Total:        len(s.questions),
		Score:        float64(s.correct) / float64(len(s.questions)) * 100,
	}
	for i, q := range s.questions {
		snap.Questions[i] = PublicQuestion{Question: q.Prompt, Options: append([]string(nil), q.Options...)}
	}
	for _, o := range s.outcomes {
		if o != nil {
			snap.Outcomes = append(snap.Outcomes, *o)
		}
	}
	return snap
}

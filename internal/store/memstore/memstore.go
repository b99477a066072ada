// Package memstore keeps the course data in process memory. It backs
// offline demos and the service tests; every transaction works on a copy
// of the data that replaces the live copy only when fn succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mind-engage/coursework/internal/apperr"
	"github.com/mind-engage/coursework/internal/assessment"
	"github.com/mind-engage/coursework/internal/enrollment"
)

type progressKey struct{ enrollmentID, lessonID string }

type data struct {
	assessments map[string]assessment.Assessment
	questions   map[string]assessment.Question
	attempts    map[string]assessment.Attempt
	answers     map[string]assessment.Answer
	lessons     map[string]enrollment.Lesson
	enrollments map[string]enrollment.Enrollment
	progress    map[progressKey]enrollment.LessonProgress
	invitations map[string]enrollment.Invitation
}

func newData() *data {
	return &data{
		assessments: map[string]assessment.Assessment{},
		questions:   map[string]assessment.Question{},
		attempts:    map[string]assessment.Attempt{},
		answers:     map[string]assessment.Answer{},
		lessons:     map[string]enrollment.Lesson{},
		enrollments: map[string]enrollment.Enrollment{},
		progress:    map[progressKey]enrollment.LessonProgress{},
		invitations: map[string]enrollment.Invitation{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies the maps; stored values are replaced, never mutated in
// place, so a shallow copy per map is enough.
func (d *data) clone() *data {
	return &data{
		assessments: copyMap(d.assessments),
		questions:   copyMap(d.questions),
		attempts:    copyMap(d.attempts),
		answers:     copyMap(d.answers),
		lessons:     copyMap(d.lessons),
		enrollments: copyMap(d.enrollments),
		progress:    copyMap(d.progress),
		invitations: copyMap(d.invitations),
	}
}

type Store struct {
	mu sync.Mutex
	d  *data
}

func New() *Store { return &Store{d: newData()} }

func (s *Store) inTx(fn func(d *data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.d.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.d = work
	return nil
}

// Assessments is the transactional view used by assessment.Service.
func (s *Store) Assessments() assessment.Store { return assessmentStore{s} }

// Enrollments is the transactional view used by enrollment.Service.
func (s *Store) Enrollments() enrollment.Store { return enrollmentStore{s} }

type assessmentStore struct{ s *Store }

func (a assessmentStore) InTx(ctx context.Context, fn func(assessment.Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.s.inTx(func(d *data) error { return fn(assessmentRepo{tx{d}}) })
}

type enrollmentStore struct{ s *Store }

func (e enrollmentStore) InTx(ctx context.Context, fn func(enrollment.Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.s.inTx(func(d *data) error { return fn(enrollmentRepo{tx{d}}) })
}

// ---- seeding ----

func (s *Store) PutAssessment(a assessment.Assessment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return s.inTx(func(d *data) error {
		d.assessments[a.ID] = a
		return nil
	})
}

// PutQuestion stores a question with its options after checking the
// authoring rules.
func (s *Store) PutQuestion(q assessment.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	return s.inTx(func(d *data) error {
		if _, ok := d.assessments[q.AssessmentID]; !ok {
			return apperr.NotFound("assessment", q.AssessmentID)
		}
		d.questions[q.ID] = q
		return nil
	})
}

func (s *Store) PutLesson(l enrollment.Lesson) error {
	return s.inTx(func(d *data) error {
		d.lessons[l.ID] = l
		return nil
	})
}

func (s *Store) PutInvitation(inv enrollment.Invitation) error {
	return s.inTx(func(d *data) error {
		for _, other := range d.invitations {
			if other.Token == inv.Token && other.ID != inv.ID {
				return fmt.Errorf("invitation token %q already used", inv.Token)
			}
		}
		d.invitations[inv.ID] = inv
		return nil
	})
}

func (s *Store) PutEnrollment(e enrollment.Enrollment) error {
	return s.inTx(func(d *data) error {
		if other := findEnrollment(d, e.UserID, e.CourseID); other != nil && other.ID != e.ID {
			return fmt.Errorf("user %s already enrolled in %s", e.UserID, e.CourseID)
		}
		d.enrollments[e.ID] = e
		return nil
	})
}

// ---- shared reads ----

type tx struct{ d *data }

func (t tx) CountLessons(_ context.Context, courseID string) (int, error) {
	n := 0
	for _, l := range t.d.lessons {
		if l.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (t tx) CountCompletedLessons(_ context.Context, enrollmentID string) (int, error) {
	e, ok := t.d.enrollments[enrollmentID]
	if !ok {
		return 0, nil
	}
	n := 0
	for k, p := range t.d.progress {
		if k.enrollmentID != enrollmentID || !p.IsCompleted {
			continue
		}
		if l, ok := t.d.lessons[k.lessonID]; ok && l.CourseID == e.CourseID {
			n++
		}
	}
	return n, nil
}

func (t tx) RequiredAssessmentIDs(_ context.Context, courseID string) ([]string, error) {
	var ids []string
	for _, a := range t.d.assessments {
		if a.CourseID == courseID && a.IsRequired && a.Status != assessment.StatusDraft {
			ids = append(ids, a.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (t tx) HasPassedAttempt(_ context.Context, userID, assessmentID string) (bool, error) {
	for _, at := range t.d.attempts {
		if at.UserID != userID || at.AssessmentID != assessmentID {
			continue
		}
		if at.Passed != nil && *at.Passed && (at.Status == assessment.AttemptGraded || at.Status == assessment.AttemptCompleted) {
			return true, nil
		}
	}
	return false, nil
}

func findEnrollment(d *data, userID, courseID string) *enrollment.Enrollment {
	for _, e := range d.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			e := e
			return &e
		}
	}
	return nil
}

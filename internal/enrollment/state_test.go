package enrollment

import (
	"errors"
	"testing"
	"time"

	"github.com/mind-engage/coursework/internal/apperr"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestStatus_Transitions(t *testing.T) {
	all := []Status{StatusActive, StatusCompleted, StatusDropped}
	allowed := map[[2]Status]bool{
		{StatusActive, StatusCompleted}: true,
		{StatusActive, StatusDropped}:   true,
		{StatusDropped, StatusActive}:   true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[[2]Status{from, to}] {
				t.Fatalf("%s -> %s: got %v", from, to, got)
			}
		}
	}
	if Status("paused").CanTransition(StatusActive) {
		t.Fatal("unknown status must not transition")
	}
}

func TestDrop(t *testing.T) {
	e := &Enrollment{ID: "e", Status: StatusActive}
	if err := e.Drop(); err != nil || e.Status != StatusDropped {
		t.Fatalf("drop active: %v %s", err, e.Status)
	}

	done := &Enrollment{ID: "e", Status: StatusCompleted}
	err := done.Drop()
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindInvalidTransition || ae.Rule != "completed_cannot_drop" {
		t.Fatalf("drop completed: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatal("status changed on rejection")
	}

	if err := (&Enrollment{Status: StatusDropped}).Drop(); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("drop dropped: %v", err)
	}
}

func TestReenroll(t *testing.T) {
	started := t0
	lesson := "l3"
	dropped := func() *Enrollment {
		return &Enrollment{ID: "e", Status: StatusDropped, ProgressPercentage: 42.9, StartedAt: &started, LastLessonID: &lesson}
	}

	e := dropped()
	if err := e.Reenroll(false); err != nil {
		t.Fatal(err)
	}
	if e.Status != StatusActive || e.ProgressPercentage != 0 || e.StartedAt != nil || e.LastLessonID != nil {
		t.Fatalf("reset reenroll: %+v", e)
	}

	e = dropped()
	if err := e.Reenroll(true); err != nil {
		t.Fatal(err)
	}
	if e.ProgressPercentage != 42.9 || e.StartedAt == nil || e.LastLessonID == nil || *e.LastLessonID != "l3" {
		t.Fatalf("preserving reenroll: %+v", e)
	}

	for _, s := range []Status{StatusActive, StatusCompleted} {
		if err := (&Enrollment{Status: s}).Reenroll(true); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Fatalf("reenroll %s: %v", s, err)
		}
	}
}

func TestComplete_SetsCompletedAtOnce(t *testing.T) {
	e := &Enrollment{ID: "e", Status: StatusActive}
	if err := e.Complete(t0); err != nil {
		t.Fatal(err)
	}
	if e.Status != StatusCompleted || !e.CompletedAt.Equal(t0) {
		t.Fatalf("%+v", e)
	}
	if err := e.Complete(t0.Add(time.Hour)); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("second complete: %v", err)
	}
	if !e.CompletedAt.Equal(t0) {
		t.Fatal("completed_at moved")
	}
	if err := (&Enrollment{Status: StatusDropped}).Complete(t0); err == nil {
		t.Fatal("dropped enrollment must not complete")
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("dropped"); err != nil || s != StatusDropped {
		t.Fatalf("%q %v", s, err)
	}
	if _, err := ParseStatus("suspended"); err == nil {
		t.Fatal("expected error")
	}
}

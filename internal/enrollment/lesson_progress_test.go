package enrollment

import (
	"testing"
	"time"
)

func TestApplyPage_HighestNeverDecreases(t *testing.T) {
	p := &LessonProgress{}
	p.ApplyPage(3, 10)
	p.ApplyPage(7, 0)
	p.ApplyPage(2, 0)
	if p.CurrentPage != 2 || p.HighestPageReached != 7 || p.TotalPages != 10 {
		t.Fatalf("%+v", p)
	}
	p.ApplyPage(99, 0)
	if p.CurrentPage != 10 || p.HighestPageReached != 10 {
		t.Fatalf("clamped: %+v", p)
	}
	p.ApplyPage(0, 0)
	if p.CurrentPage != 1 {
		t.Fatalf("page floor: %d", p.CurrentPage)
	}
}

func TestAddTime_Accumulates(t *testing.T) {
	p := &LessonProgress{}
	for _, s := range []int{30, 45, 0} {
		if err := p.AddTime(s); err != nil {
			t.Fatal(err)
		}
	}
	if p.TimeSpentSeconds != 75 {
		t.Fatalf("time %d", p.TimeSpentSeconds)
	}
	if err := p.AddTime(-1); err == nil {
		t.Fatal("negative time accepted")
	}
}

func TestSettle_Completion(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		apply func(*LessonProgress)
		force bool
		want  bool
	}{
		{"last page", func(p *LessonProgress) { p.ApplyPage(5, 5) }, false, true},
		{"middle page", func(p *LessonProgress) { p.ApplyPage(4, 5) }, false, false},
		{"90% media", func(p *LessonProgress) { p.ApplyMedia(540, 600) }, false, true},
		{"89% media", func(p *LessonProgress) { p.ApplyMedia(539, 600) }, false, false},
		{"media without duration", func(p *LessonProgress) { p.ApplyMedia(100, 0) }, false, false},
		{"explicit", func(p *LessonProgress) {}, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &LessonProgress{}
			tc.apply(p)
			if got := p.settle(now, tc.force); got != tc.want || p.IsCompleted != tc.want {
				t.Fatalf("settle=%v completed=%v, want %v", got, p.IsCompleted, tc.want)
			}
		})
	}
}

func TestSettle_Sticky(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	p := &LessonProgress{}
	p.ApplyPage(5, 5)
	p.settle(now, false)
	p.ApplyPage(1, 0)
	if p.settle(now.Add(time.Minute), false) {
		t.Fatal("already completed lesson reported completion again")
	}
	if !p.IsCompleted || !p.CompletedAt.Equal(now) {
		t.Fatalf("%+v", p)
	}
}

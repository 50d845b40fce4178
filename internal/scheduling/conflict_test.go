package scheduling

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/testutil"
)

func seedAppointment(st *testutil.FakeStore, id, staffID string, start, end time.Time) {
	st.Appointments[id] = models.Appointment{
		ID: id, BusinessID: "biz-1", StaffID: staffID, Status: models.AppointmentConfirmed,
		ScheduledStart: start, ScheduledEnd: end,
	}
}

func TestCheckConflictHalfOpen(t *testing.T) {
	st := testutil.NewFakeStore()
	seedAppointment(st, "a1", "st-1", monday.Add(10*time.Hour), monday.Add(11*time.Hour))
	v := NewValidator(st, NewEngine(st))

	tests := []struct {
		name     string
		start    time.Time
		end      time.Time
		conflict bool
	}{
		{"ends exactly at existing start", monday.Add(9 * time.Hour), monday.Add(10 * time.Hour), false},
		{"starts exactly at existing end", monday.Add(11 * time.Hour), monday.Add(12 * time.Hour), false},
		{"overlaps tail", monday.Add(10*time.Hour + 30*time.Minute), monday.Add(11*time.Hour + 30*time.Minute), true},
		{"fully inside", monday.Add(10*time.Hour + 15*time.Minute), monday.Add(10*time.Hour + 45*time.Minute), true},
		{"fully covers", monday.Add(9 * time.Hour), monday.Add(12 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := v.CheckConflict("st-1", "", tt.start, tt.end)
			if err != nil {
				t.Fatalf("CheckConflict: %v", err)
			}
			if (c != nil) != tt.conflict {
				t.Errorf("conflict = %v, want %v", c, tt.conflict)
			}
			if c != nil && c.Resource != "staff" {
				t.Errorf("conflict resource = %s, want staff", c.Resource)
			}
		})
	}
}

func TestCheckConflictRequiresResource(t *testing.T) {
	v := NewValidator(testutil.NewFakeStore(), NewEngine(testutil.NewFakeStore()))
	if _, err := v.CheckConflict("", "", monday, monday.Add(time.Hour)); !errors.Is(err, models.ErrNoBookingResource) {
		t.Errorf("CheckConflict error = %v, want ErrNoBookingResource", err)
	}
}

func TestBookSuccess(t *testing.T) {
	st := testutil.NewFakeStore()
	v := NewValidator(st, NewEngine(st))

	appt := models.Appointment{
		ID: "a1", BusinessID: "biz-1", StaffID: "st-1", Status: models.AppointmentConfirmed,
		ScheduledStart: monday.Add(10 * time.Hour), ScheduledEnd: monday.Add(10*time.Hour + 30*time.Minute),
	}
	conflict, alts, err := v.Book(appt, utcBusiness(), 30*time.Minute)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if conflict != nil || alts != nil {
		t.Errorf("conflict = %v, alternatives = %v, want none", conflict, alts)
	}
	if _, ok := st.Appointments["a1"]; !ok {
		t.Error("appointment not persisted")
	}
}

func TestBookConflictReturnsAlternatives(t *testing.T) {
	st := testutil.NewFakeStore()
	st.Rules["st-1"] = []models.AvailabilityRule{mondayRule("09:00", "12:00")}
	seedAppointment(st, "a1", "st-1", monday.Add(10*time.Hour), monday.Add(10*time.Hour+30*time.Minute))
	v := NewValidator(st, NewEngine(st))

	appt := models.Appointment{
		ID: "a2", BusinessID: "biz-1", StaffID: "st-1", Status: models.AppointmentConfirmed,
		ScheduledStart: monday.Add(10 * time.Hour), ScheduledEnd: monday.Add(10*time.Hour + 30*time.Minute),
	}
	conflict, alts, err := v.Book(appt, utcBusiness(), 30*time.Minute)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if conflict == nil {
		t.Fatal("expected a conflict")
	}
	if !conflict.Start.Equal(monday.Add(10*time.Hour)) || !conflict.End.Equal(monday.Add(10*time.Hour+30*time.Minute)) {
		t.Errorf("conflict window = %v-%v", conflict.Start, conflict.End)
	}
	if len(alts) == 0 || len(alts) > maxAlternatives {
		t.Fatalf("got %d alternatives, want 1..%d", len(alts), maxAlternatives)
	}
	for i := 1; i < len(alts); i++ {
		if alts[i].Start.Before(alts[i-1].Start) {
			t.Error("alternatives not chronological")
		}
	}
	// The nearest free starts around 10:00 are 09:30 and 10:30; both must be offered.
	found := map[string]bool{}
	for _, a := range alts {
		found[a.Start.Format("15:04")] = true
	}
	if !found["09:30"] || !found["10:30"] {
		t.Errorf("alternatives = %v, want 09:30 and 10:30 included", found)
	}
	if _, ok := st.Appointments["a2"]; ok {
		t.Error("conflicting appointment was persisted")
	}
}

func TestBookConcurrentSameSlot(t *testing.T) {
	st := testutil.NewFakeStore()
	v := NewValidator(st, NewEngine(st))
	start := monday.Add(10 * time.Hour)
	end := start.Add(30 * time.Minute)

	const bookers = 10
	results := make(chan bool, bookers)
	var wg sync.WaitGroup
	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			appt := models.Appointment{
				ID: fmt.Sprintf("a%d", n), BusinessID: "biz-1", StaffID: "st-1",
				Status:         models.AppointmentConfirmed,
				ScheduledStart: start, ScheduledEnd: end,
			}
			conflict, _, err := v.Book(appt, utcBusiness(), 30*time.Minute)
			if err != nil {
				t.Errorf("Book: %v", err)
			}
			results <- conflict == nil
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for won := range results {
		if won {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("got %d winning bookings, want exactly 1", wins)
	}
	if len(st.Appointments) != 1 {
		t.Errorf("got %d persisted appointments, want 1", len(st.Appointments))
	}
}

func TestRescheduleIgnoresSelf(t *testing.T) {
	st := testutil.NewFakeStore()
	seedAppointment(st, "a1", "st-1", monday.Add(10*time.Hour), monday.Add(11*time.Hour))
	v := NewValidator(st, NewEngine(st))

	conflict, err := v.Reschedule("a1", monday.Add(10*time.Hour+30*time.Minute), monday.Add(11*time.Hour+30*time.Minute))
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if conflict != nil {
		t.Errorf("conflict = %v, want nil (self excluded)", conflict)
	}
	if got := st.Appointments["a1"].ScheduledStart; !got.Equal(monday.Add(10*time.Hour + 30*time.Minute)) {
		t.Errorf("appointment start = %v, not moved", got)
	}
}

func TestModifyChecksNewResource(t *testing.T) {
	st := testutil.NewFakeStore()
	seedAppointment(st, "a1", "st-1", monday.Add(10*time.Hour), monday.Add(11*time.Hour))
	seedAppointment(st, "a2", "st-2", monday.Add(10*time.Hour), monday.Add(11*time.Hour))
	v := NewValidator(st, NewEngine(st))

	moved := st.Appointments["a1"]
	moved.StaffID = "st-2"
	conflict, err := v.Modify(moved)
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if conflict == nil || conflict.Resource != "staff" {
		t.Errorf("conflict = %v, want staff conflict on st-2", conflict)
	}
	if st.Appointments["a1"].StaffID != "st-1" {
		t.Error("appointment modified despite conflict")
	}
}

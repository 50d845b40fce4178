// Package testutil provides an in-memory Store implementation for tests.
package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/turnero/turnero/internal/models"
	"github.com/turnero/turnero/internal/store"
)

// FakeStore is a mutex-guarded in-memory Store. Zero value is not usable;
// call NewFakeStore. Err, when set, is returned by every method, which lets
// tests exercise lookup-failure paths.
type FakeStore struct {
	mu sync.Mutex

	Err error

	Businesses   map[string]models.Business
	Services     map[string]models.Service
	Staff        map[string]models.StaffRecord
	Sessions     map[string]models.Session // keyed by Session.Key()
	Rules        map[string][]models.AvailabilityRule
	Appointments map[string]models.Appointment
	Profiles     map[string]models.CustomerProfile // keyed by businessID+"|"+phone
	ToolCalls    []models.ToolCallRecord
}

var _ store.Store = (*FakeStore)(nil)

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Businesses:   make(map[string]models.Business),
		Services:     make(map[string]models.Service),
		Staff:        make(map[string]models.StaffRecord),
		Sessions:     make(map[string]models.Session),
		Rules:        make(map[string][]models.AvailabilityRule),
		Appointments: make(map[string]models.Appointment),
		Profiles:     make(map[string]models.CustomerProfile),
	}
}

func (f *FakeStore) GetStaffByPhone(phone string) ([]models.StaffRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.StaffRecord
	for _, st := range f.Staff {
		if st.PhoneNumber == phone && st.IsActive {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeStore) GetStaffByPhoneAndBusiness(phone, businessID string) (*models.StaffRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for _, st := range f.Staff {
		if st.PhoneNumber == phone && st.BusinessID == businessID && st.IsActive {
			cp := st
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *FakeStore) MarkFirstMessageSeen(staffID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	st, ok := f.Staff[staffID]
	if !ok || st.FirstMessageAt != nil {
		return false, nil
	}
	st.FirstMessageAt = &at
	f.Staff[staffID] = st
	return true, nil
}

func (f *FakeStore) UpdateStaffName(staffID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	st, ok := f.Staff[staffID]
	if ok {
		st.Name = name
		f.Staff[staffID] = st
	}
	return nil
}

func (f *FakeStore) UpdateStaffPermission(staffID string, level models.PermissionLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	st, ok := f.Staff[staffID]
	if ok {
		st.PermissionLevel = level
		f.Staff[staffID] = st
	}
	return nil
}

func (f *FakeStore) ListStaff(businessID string) ([]models.StaffRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.StaffRecord
	for _, st := range f.Staff {
		if st.BusinessID == businessID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeStore) GetBusiness(id string) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	b, ok := f.Businesses[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *FakeStore) GetBusinessByNumber(number string) (*models.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for _, b := range f.Businesses {
		if b.WhatsAppNumber == number {
			cp := b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *FakeStore) CreateBusinessGraph(b models.Business, services []models.Service, rules []models.AvailabilityRule, staff []models.StaffRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if _, exists := f.Businesses[b.ID]; exists {
		return nil
	}
	f.Businesses[b.ID] = b
	for _, svc := range services {
		f.Services[svc.ID] = svc
	}
	for _, st := range staff {
		f.Staff[st.ID] = st
	}
	for _, r := range rules {
		f.Rules[r.StaffID] = append(f.Rules[r.StaffID], r)
	}
	return nil
}

func (f *FakeStore) ListServices(businessID string) ([]models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Service
	for _, svc := range f.Services {
		if svc.BusinessID == businessID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeStore) GetService(id string) (*models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	svc, ok := f.Services[id]
	if !ok {
		return nil, nil
	}
	return &svc, nil
}

func (f *FakeStore) GetSession(businessID, phone string, flowType models.FlowType) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	s, ok := f.Sessions[models.SessionKey(businessID, phone, flowType)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *FakeStore) SaveSession(s models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Sessions[s.Key()] = s
	return nil
}

func (f *FakeStore) DeleteSession(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for k, s := range f.Sessions {
		if s.ID == id {
			delete(f.Sessions, k)
		}
	}
	return nil
}

func (f *FakeStore) ListStaleSessions(olderThan time.Time) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Session
	for _, s := range f.Sessions {
		if !s.Terminal() && s.LastActivityAt.Before(olderThan) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *FakeStore) ListSessionsByPhone(phone string) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Session
	for _, s := range f.Sessions {
		if s.PhoneNumber == phone {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeStore) ReplaceAvailabilityRules(staffID string, rules []models.AvailabilityRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Rules[staffID] = append([]models.AvailabilityRule(nil), rules...)
	return nil
}

func (f *FakeStore) ListAvailabilityRules(staffID string) ([]models.AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]models.AvailabilityRule(nil), f.Rules[staffID]...), nil
}

func (f *FakeStore) ListBlockingAppointments(staffID, spotID string, from, to time.Time) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Appointment
	for _, a := range f.Appointments {
		if !a.Status.Blocking() {
			continue
		}
		if !models.Overlaps(a.ScheduledStart, a.ScheduledEnd, from, to) {
			continue
		}
		if (staffID != "" && a.StaffID == staffID) || (spotID != "" && a.SpotID == spotID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out, nil
}

func (f *FakeStore) GetAppointment(id string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	a, ok := f.Appointments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *FakeStore) ListAppointmentsByCustomer(businessID, phone string) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Appointment
	for _, a := range f.Appointments {
		if a.BusinessID == businessID && a.CustomerPhone == phone {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out, nil
}

// findConflict mirrors the SQL backends' overlap test. Caller holds the lock.
func (f *FakeStore) findConflict(staffID, spotID string, start, end time.Time, excludeID string) *store.Conflict {
	for _, a := range f.Appointments {
		if a.ID == excludeID || !a.Status.Blocking() {
			continue
		}
		if !models.Overlaps(a.ScheduledStart, a.ScheduledEnd, start, end) {
			continue
		}
		if staffID != "" && a.StaffID == staffID {
			return &store.Conflict{Resource: "staff", Start: a.ScheduledStart, End: a.ScheduledEnd}
		}
		if spotID != "" && a.SpotID == spotID {
			return &store.Conflict{Resource: "spot", Start: a.ScheduledStart, End: a.ScheduledEnd}
		}
	}
	return nil
}

func (f *FakeStore) CreateAppointmentIfFree(appt models.Appointment) (*store.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, exists := f.Appointments[appt.ID]; exists {
		return nil, nil
	}
	if c := f.findConflict(appt.StaffID, appt.SpotID, appt.ScheduledStart, appt.ScheduledEnd, appt.ID); c != nil {
		return c, nil
	}
	f.Appointments[appt.ID] = appt
	return nil, nil
}

func (f *FakeStore) RescheduleAppointmentIfFree(id string, start, end time.Time) (*store.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	a, ok := f.Appointments[id]
	if !ok {
		return nil, nil
	}
	if c := f.findConflict(a.StaffID, a.SpotID, start, end, id); c != nil {
		return c, nil
	}
	a.ScheduledStart = start
	a.ScheduledEnd = end
	f.Appointments[id] = a
	return nil, nil
}

func (f *FakeStore) UpdateAppointmentIfFree(appt models.Appointment) (*store.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if c := f.findConflict(appt.StaffID, appt.SpotID, appt.ScheduledStart, appt.ScheduledEnd, appt.ID); c != nil {
		return c, nil
	}
	f.Appointments[appt.ID] = appt
	return nil, nil
}

func (f *FakeStore) UpdateAppointmentStatus(id string, status models.AppointmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	a, ok := f.Appointments[id]
	if ok {
		a.Status = status
		f.Appointments[id] = a
	}
	return nil
}

func (f *FakeStore) GetCustomerProfile(businessID, phone string) (*models.CustomerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.Profiles[businessID+"|"+phone]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *FakeStore) SaveCustomerProfile(p models.CustomerProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Profiles[p.BusinessID+"|"+p.PhoneNumber] = p
	return nil
}

func (f *FakeStore) AddToolCallRecord(rec models.ToolCallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.ToolCalls = append(f.ToolCalls, rec)
	return nil
}

func (f *FakeStore) ListToolCallRecords(phone string, limit int) ([]models.ToolCallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.ToolCallRecord
	for i := len(f.ToolCalls) - 1; i >= 0 && len(out) < limit; i-- {
		if f.ToolCalls[i].PhoneNumber == phone {
			out = append(out, f.ToolCalls[i])
		}
	}
	return out, nil
}

func (f *FakeStore) Close() error { return nil }

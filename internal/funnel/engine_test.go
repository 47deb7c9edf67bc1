package funnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"leadfunnel_backend/internal/analyzer"
	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/channels"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/funnel/domain"
	"leadfunnel_backend/internal/notify"
	"leadfunnel_backend/internal/reports"
	"leadfunnel_backend/platform/logger"
)

// fakeStore is an in-memory record store for engine tests.
type fakeStore struct {
	mu         sync.Mutex
	leads      map[string]*crm.Lead
	activities map[string][]crm.Activity
	nextID     int

	failUpdateState bool
	failList        bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:      make(map[string]*crm.Lead),
		activities: make(map[string][]crm.Activity),
	}
}

func (s *fakeStore) clone(lead *crm.Lead) *crm.Lead {
	c := *lead
	return &c
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*crm.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	return s.clone(lead), nil
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*crm.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lead := range s.leads {
		if lead.Email == email {
			return s.clone(lead), nil
		}
	}
	return nil, crm.ErrNotFound
}

func (s *fakeStore) FindByPhone(_ context.Context, phone string) (*crm.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lead := range s.leads {
		if lead.Phone == phone {
			return s.clone(lead), nil
		}
	}
	return nil, crm.ErrNotFound
}

func (s *fakeStore) FindByExternalID(_ context.Context, externalID string) (*crm.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lead := range s.leads {
		if lead.ExternalID == externalID {
			return s.clone(lead), nil
		}
	}
	return nil, crm.ErrNotFound
}

func (s *fakeStore) ListByState(_ context.Context, state domain.State) ([]*crm.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("list failed")
	}
	var out []*crm.Lead
	for _, lead := range s.leads {
		if lead.State == state {
			out = append(out, s.clone(lead))
		}
	}
	return out, nil
}

func (s *fakeStore) Create(_ context.Context, lead *crm.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	lead.ID = fmt.Sprintf("lead-%d", s.nextID)
	s.leads[lead.ID] = s.clone(lead)
	return nil
}

func (s *fakeStore) Update(_ context.Context, id string, update crm.LeadUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return crm.ErrNotFound
	}
	if update.Name != nil {
		lead.Name = *update.Name
	}
	if update.Company != nil {
		lead.Company = *update.Company
	}
	if update.Goals != nil {
		lead.Goals = *update.Goals
	}
	if update.Priority != nil {
		lead.Priority = *update.Priority
	}
	if update.SequenceCursor != nil {
		lead.SequenceCursor = *update.SequenceCursor
	}
	if update.LastStepSentAt != nil {
		lead.LastStepSentAt = update.LastStepSentAt
	}
	if update.Booking != nil {
		lead.Booking = update.Booking
	}
	if update.CallReference != nil {
		lead.CallReference = *update.CallReference
	}
	return nil
}

func (s *fakeStore) UpdateState(_ context.Context, id string, newState domain.State, activity crm.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateState {
		return errors.New("update state failed")
	}
	lead, ok := s.leads[id]
	if !ok {
		return crm.ErrNotFound
	}
	lead.State = newState
	lead.StateUpdatedAt = time.Now().UTC()
	activity.LeadID = id
	s.activities[id] = append(s.activities[id], activity)
	return nil
}

func (s *fakeStore) AppendActivity(_ context.Context, activity crm.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[activity.LeadID] = append(s.activities[activity.LeadID], activity)
	return nil
}

func (s *fakeStore) RecentActivities(_ context.Context, leadID string, limit int) ([]crm.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.activities[leadID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]crm.Activity, len(all))
	copy(out, all)
	return out, nil
}

func (s *fakeStore) mustGet(id string) *crm.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.leads[id])
}

func (s *fakeStore) activityKinds(id string) []crm.ActivityKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kinds []crm.ActivityKind
	for _, a := range s.activities[id] {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

// fakeOracle returns a scripted booking event.
type fakeOracle struct {
	event *booking.Event
	err   error
	calls int
}

func (o *fakeOracle) CheckBooking(context.Context, string, time.Time) (*booking.Event, error) {
	o.calls++
	return o.event, o.err
}

// fakeEmail records sent messages.
type fakeEmail struct {
	mu   sync.Mutex
	sent []channels.EmailMessage
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, msg channels.EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeEmail) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeSMS records sent texts.
type fakeSMS struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, _, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, body)
	return nil
}

// fakeVoice records placed calls.
type fakeVoice struct {
	calls []channels.CallRequest
	err   error
}

func (f *fakeVoice) PlaceCall(_ context.Context, req channels.CallRequest) (*channels.CallResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, req)
	return &channels.CallResult{CallID: fmt.Sprintf("call-%d", len(f.calls)), Status: "queued"}, nil
}

// fakeAnalyzer returns a scripted classification.
type fakeAnalyzer struct {
	verdict analyzer.Classification
	err     error
}

func (f *fakeAnalyzer) Analyze(context.Context, analyzer.Message, analyzer.LeadContext, []analyzer.HistoryEntry) (analyzer.Classification, error) {
	if f.err != nil {
		return analyzer.Classification{}, f.err
	}
	return f.verdict, nil
}

// fakeReports returns a scripted report or error.
type fakeReports struct {
	html string
	err  error
}

func (f *fakeReports) Generate(context.Context, reports.Subject, int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, message string, _ *notify.LeadRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type testEngine struct {
	*Engine
	store    *fakeStore
	oracle   *fakeOracle
	email    *fakeEmail
	sms      *fakeSMS
	voice    *fakeVoice
	analyzer *fakeAnalyzer
	notifier *fakeNotifier
}

func newTestEngine() *testEngine {
	store := newFakeStore()
	oracle := &fakeOracle{}
	emailSender := &fakeEmail{}
	smsSender := &fakeSMS{}
	voiceCaller := &fakeVoice{}
	an := &fakeAnalyzer{verdict: analyzer.Classification{NextAction: analyzer.ActionNone}}
	notifier := &fakeNotifier{}

	engine := New(Config{
		Store:       store,
		Oracle:      oracle,
		Email:       emailSender,
		SMS:         smsSender,
		Voice:       voiceCaller,
		Analyzer:    an,
		Notifier:    notifier,
		Logger:      logger.New("development"),
		BookingLink: "https://calendly.com/acme/intro",
	})

	return &testEngine{
		Engine:   engine,
		store:    store,
		oracle:   oracle,
		email:    emailSender,
		sms:      smsSender,
		voice:    voiceCaller,
		analyzer: an,
		notifier: notifier,
	}
}

// seedLead inserts a lead directly into the fake store.
func (te *testEngine) seedLead(lead *crm.Lead) *crm.Lead {
	if err := te.store.Create(context.Background(), lead); err != nil {
		panic(err)
	}
	return lead
}

func TestTransitionStampsStateTimestamp(t *testing.T) {
	te := newTestEngine()
	lead := te.seedLead(nurturingLead("stamp@example.com", 1, 1))

	if err := te.transition(context.Background(), te.store.mustGet(lead.ID), domain.StateEngaged, "inbound reply"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := te.store.mustGet(lead.ID)
	if got.State != domain.StateEngaged {
		t.Errorf("expected ENGAGED, got %s", got.State)
	}
	if got.StateUpdatedAt.IsZero() {
		t.Error("expected the state change to stamp its timestamp")
	}
}

package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"astrobot-service/internal/client/lago"
	"astrobot-service/internal/domain/astro"
	"astrobot-service/internal/domain/billing"
	"astrobot-service/internal/domain/user"
	wa "astrobot-service/internal/domain/whatsapp"
	xerrors "astrobot-service/internal/pkg/errors"
)

// MockUsageStore is an in-memory billing.UsageStore. Errors set in Fail are
// returned by the method of the same name.
type MockUsageStore struct {
	mu       sync.Mutex
	Subs     map[string]*billing.Subscription
	Usage    map[string]*billing.UsagePeriod
	Counters map[string]*billing.FreeCounter
	Fail     map[string]error
	Calls    map[string]int
}

func NewMockUsageStore() *MockUsageStore {
	return &MockUsageStore{
		Subs:     make(map[string]*billing.Subscription),
		Usage:    make(map[string]*billing.UsagePeriod),
		Counters: make(map[string]*billing.FreeCounter),
		Fail:     make(map[string]error),
		Calls:    make(map[string]int),
	}
}

// UsageKey is the map key MockUsageStore files usage rows under.
func UsageKey(userID string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", userID, start.Unix(), end.Unix())
}

func (m *MockUsageStore) call(name string) error {
	m.Calls[name]++
	return m.Fail[name]
}

// UsageRows counts usage rows stored for a user.
func (m *MockUsageStore) UsageRows(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.Usage {
		if u.UserID == userID {
			n++
		}
	}
	return n
}

func (m *MockUsageStore) GetSubscription(_ context.Context, userID string) (*billing.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetSubscription"); err != nil {
		return nil, err
	}
	s, ok := m.Subs[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockUsageStore) UpsertSubscription(_ context.Context, sub *billing.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpsertSubscription"); err != nil {
		return err
	}
	cp := *sub
	m.Subs[sub.UserID] = &cp
	return nil
}

func (m *MockUsageStore) DeleteSubscription(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DeleteSubscription"); err != nil {
		return err
	}
	delete(m.Subs, userID)
	return nil
}

func (m *MockUsageStore) GetUsage(_ context.Context, userID string, start, end time.Time) (*billing.UsagePeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetUsage"); err != nil {
		return nil, err
	}
	u, ok := m.Usage[UsageKey(userID, start, end)]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUsageStore) EnsureUsageRow(_ context.Context, userID string, start, end time.Time, planCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("EnsureUsageRow"); err != nil {
		return err
	}
	key := UsageKey(userID, start, end)
	if _, ok := m.Usage[key]; !ok {
		m.Usage[key] = &billing.UsagePeriod{UserID: userID, PeriodStart: start, PeriodEnd: end, PlanCode: planCode}
	}
	return nil
}

func (m *MockUsageStore) IncrementUsage(_ context.Context, userID string, start, end time.Time, newCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("IncrementUsage"); err != nil {
		return err
	}
	key := UsageKey(userID, start, end)
	u, ok := m.Usage[key]
	if !ok {
		u = &billing.UsagePeriod{UserID: userID, PeriodStart: start, PeriodEnd: end}
		m.Usage[key] = u
	}
	u.UsedCount = newCount
	return nil
}

func (m *MockUsageStore) DeleteUsage(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DeleteUsage"); err != nil {
		return err
	}
	for k, u := range m.Usage {
		if u.UserID == userID {
			delete(m.Usage, k)
		}
	}
	return nil
}

func (m *MockUsageStore) GetFreeCounter(_ context.Context, userID string) (*billing.FreeCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetFreeCounter"); err != nil {
		return nil, err
	}
	c, ok := m.Counters[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockUsageStore) SetFreeCounter(_ context.Context, userID string, count int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("SetFreeCounter"); err != nil {
		return err
	}
	m.Counters[userID] = &billing.FreeCounter{UserID: userID, Count: count, LastReset: at}
	return nil
}

func (m *MockUsageStore) ResetFreeCounter(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ResetFreeCounter"); err != nil {
		return err
	}
	if c, ok := m.Counters[userID]; ok {
		c.Count = 0
		c.LastReset = at
	}
	return nil
}

// MockActivityLogger records activity entries.
type MockActivityLogger struct {
	mu      sync.Mutex
	Entries []billing.ActivityLog
	Err     error
}

func (m *MockActivityLogger) LogActivity(_ context.Context, entry *billing.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Entries = append(m.Entries, *entry)
	return nil
}

// Actions lists the recorded actions for a user in order.
func (m *MockActivityLogger) Actions(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.Entries {
		if e.UserID == userID {
			out = append(out, e.Action)
		}
	}
	return out
}

// MockPaymentRepository is an in-memory billing.PaymentRepository.
type MockPaymentRepository struct {
	mu        sync.Mutex
	Payments  map[string]*billing.Payment
	CreateErr error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{Payments: make(map[string]*billing.Payment)}
}

func (m *MockPaymentRepository) CreatePayment(_ context.Context, p *billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, ok := m.Payments[p.ReferenceID]; ok {
		return xerrors.ErrDuplicateEntry
	}
	cp := *p
	m.Payments[p.ReferenceID] = &cp
	return nil
}

func (m *MockPaymentRepository) GetPayment(_ context.Context, ref string) (*billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Payments[ref]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepository) UpdatePaymentStatus(_ context.Context, ref string, status billing.PaymentStatus, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Payments[ref]
	if !ok {
		return xerrors.ErrNotFound
	}
	p.Status = status
	if raw != "" {
		p.RawEvent = raw
	}
	return nil
}

// Status returns the stored status of a payment or "".
func (m *MockPaymentRepository) Status(ref string) billing.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Payments[ref]; ok {
		return p.Status
	}
	return ""
}

// MockUserRepository is an in-memory user.Repository.
type MockUserRepository struct {
	mu       sync.Mutex
	Users    map[string]*user.User
	Profiles map[string][]user.Profile
	SaveErr  error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users:    make(map[string]*user.User),
		Profiles: make(map[string][]user.Profile),
	}
}

func (m *MockUserRepository) GetUser(_ context.Context, userID string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) SaveUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	cp := *u
	m.Users[u.ID] = &cp
	return nil
}

func (m *MockUserRepository) UpdateLanguage(_ context.Context, userID, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[userID]
	if !ok {
		return xerrors.ErrNotFound
	}
	u.Language = language
	return nil
}

func (m *MockUserRepository) DeleteUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Users, userID)
	delete(m.Profiles, userID)
	return nil
}

func (m *MockUserRepository) CreateProfile(_ context.Context, p *user.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Profiles[p.OwnerUserID] = append(m.Profiles[p.OwnerUserID], *p)
	return nil
}

func (m *MockUserRepository) ListProfiles(_ context.Context, owner string) ([]user.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]user.Profile(nil), m.Profiles[owner]...), nil
}

func (m *MockUserRepository) ActivateProfile(_ context.Context, owner, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for i := range m.Profiles[owner] {
		p := &m.Profiles[owner][i]
		p.IsActive = p.ID == profileID
		found = found || p.IsActive
	}
	if !found {
		return xerrors.ErrNotFound
	}
	return nil
}

func (m *MockUserRepository) GetActiveProfile(_ context.Context, owner string) (*user.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Profiles[owner] {
		if p.IsActive {
			cp := p
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

// MockAstroRepository records compatibility results and feedback.
type MockAstroRepository struct {
	mu            sync.Mutex
	Compatibility []astro.CompatibilityResult
	Feedback      []astro.Feedback
}

func (m *MockAstroRepository) SaveCompatibility(_ context.Context, r *astro.CompatibilityResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Compatibility = append(m.Compatibility, *r)
	return nil
}

func (m *MockAstroRepository) SaveFeedback(_ context.Context, f *astro.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Feedback = append(m.Feedback, *f)
	return nil
}

// SentMessage is one message captured by MockMessenger.
type SentMessage struct {
	To      string
	Kind    string
	Body    string
	Buttons []wa.Button
	Order   *wa.OrderDetails
}

// MockMessenger captures outbound messages.
type MockMessenger struct {
	mu   sync.Mutex
	Sent []SentMessage
	Err  error
}

func (m *MockMessenger) SendText(_ context.Context, to, body string) error {
	return m.record(SentMessage{To: to, Kind: "text", Body: body})
}

func (m *MockMessenger) SendInteractive(_ context.Context, to, body string, buttons []wa.Button) error {
	return m.record(SentMessage{To: to, Kind: "interactive", Body: body, Buttons: buttons})
}

func (m *MockMessenger) SendOrderDetails(_ context.Context, to string, order wa.OrderDetails) error {
	return m.record(SentMessage{To: to, Kind: "order_details", Body: order.Body, Order: &order})
}

func (m *MockMessenger) record(msg SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Last returns the most recent message, or a zero value.
func (m *MockMessenger) Last() SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return SentMessage{}
	}
	return m.Sent[len(m.Sent)-1]
}

// Reset forgets captured messages.
func (m *MockMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
}

// MockBillingProvider is an in-memory stand-in for the Lago client.
type MockBillingProvider struct {
	mu           sync.Mutex
	Customers    map[string]bool
	Subs         map[string]*lago.Subscription
	Plans        map[string]lago.Plan
	Terminated   []string
	CustomerErr  error
	CreateErr    error
	TerminateErr error
}

func NewMockBillingProvider() *MockBillingProvider {
	return &MockBillingProvider{
		Customers: make(map[string]bool),
		Subs:      make(map[string]*lago.Subscription),
		Plans:     make(map[string]lago.Plan),
	}
}

func (m *MockBillingProvider) UpsertCustomer(_ context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CustomerErr != nil {
		return m.CustomerErr
	}
	m.Customers[externalID] = true
	return nil
}

func (m *MockBillingProvider) CreateSubscription(_ context.Context, customerID, planCode, externalID string, startAt time.Time) (*lago.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if externalID == "" {
		externalID = fmt.Sprintf("sub_%s_%d", customerID, startAt.Unix())
	}
	at := startAt
	s := &lago.Subscription{
		LagoID:             "lago-" + externalID,
		ExternalID:         externalID,
		ExternalCustomerID: customerID,
		PlanCode:           planCode,
		Status:             "active",
		SubscriptionAt:     &at,
	}
	m.Subs[externalID] = s
	return s, nil
}

func (m *MockBillingProvider) TerminateSubscription(_ context.Context, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Terminated = append(m.Terminated, externalID)
	if m.TerminateErr != nil {
		return m.TerminateErr
	}
	delete(m.Subs, externalID)
	return nil
}

func (m *MockBillingProvider) GetActiveSubscription(_ context.Context, customerID string) (*lago.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *lago.Subscription
	for _, s := range m.Subs {
		if s.ExternalCustomerID != customerID {
			continue
		}
		if latest == nil || s.SubscriptionAt.After(*latest.SubscriptionAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, xerrors.ErrNotFound
	}
	return latest, nil
}

func (m *MockBillingProvider) EnsurePlan(_ context.Context, plan lago.Plan) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Plans[plan.Code]; ok {
		return false, nil
	}
	m.Plans[plan.Code] = plan
	return true, nil
}

// MockAstro implements the chart, oracle, advisor, retriever and
// compatibility collaborators with canned answers.
type MockAstro struct {
	mu       sync.Mutex
	Chart    astro.Chart
	Answer   string
	Report   string
	Passages []string
	Err      error
	Calls    map[string]int
}

func NewMockAstro() *MockAstro {
	return &MockAstro{
		Chart:    astro.Chart(`{"Sun":{"sign":"Leo"},"Moon":{"sign":"Cancer"}}`),
		Answer:   "The stars favour patience.",
		Report:   "Compatibility score: 80/100",
		Passages: []string{"Leo is ruled by the Sun."},
		Calls:    make(map[string]int),
	}
}

func (m *MockAstro) count(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	return m.Err
}

// CallCount reports how many times a collaborator method ran.
func (m *MockAstro) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func (m *MockAstro) NatalChart(_ context.Context, _ string, _ astro.BirthDetails) (astro.Chart, error) {
	if err := m.count("NatalChart"); err != nil {
		return nil, err
	}
	return m.Chart, nil
}

func (m *MockAstro) Ask(_ context.Context, _ string) (string, error) {
	if err := m.count("Ask"); err != nil {
		return "", err
	}
	return m.Answer, nil
}

func (m *MockAstro) RetrievePassages(_ context.Context, _ string, _ int) ([]string, error) {
	if err := m.count("RetrievePassages"); err != nil {
		return nil, err
	}
	return m.Passages, nil
}

func (m *MockAstro) Compatibility(_ context.Context, _ astro.CompatibilityRequest) (string, error) {
	if err := m.count("Compatibility"); err != nil {
		return "", err
	}
	return m.Report, nil
}

func (m *MockAstro) CosmicGuidance(_ context.Context, _ astro.ReadingRequest) (*astro.Guidance, error) {
	if err := m.count("CosmicGuidance"); err != nil {
		return nil, err
	}
	return &astro.Guidance{Decision: "Yes", Confidence: 85, Reasoning: m.Answer}, nil
}

func (m *MockAstro) DailyHoroscope(_ context.Context, _ astro.ReadingRequest) (*astro.Horoscope, error) {
	if err := m.count("DailyHoroscope"); err != nil {
		return nil, err
	}
	return &astro.Horoscope{Summary: m.Answer}, nil
}

package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory stand-in for the sqlite repositories. Transactions take
// txMu for their whole duration and restore a snapshot on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID    int64
	companies map[int64]entity.Company
	users     map[int64]entity.User
	expenses  map[int64]entity.Expense
	approvals map[int64]entity.Approval
	steps     map[int64][]entity.ApproverStep
	rules     map[int64]entity.ApprovalRule
	audit     []entity.AuditEntry

	// failOn makes the named operation return errInjected
	failOn map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		companies: make(map[int64]entity.Company),
		users:     make(map[int64]entity.User),
		expenses:  make(map[int64]entity.Expense),
		approvals: make(map[int64]entity.Approval),
		steps:     make(map[int64][]entity.ApproverStep),
		rules:     make(map[int64]entity.ApprovalRule),
		failOn:    make(map[string]bool),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) fail(op string) error {
	if s.failOn[op] {
		return errInjected
	}
	return nil
}

type memSnapshot struct {
	nextID    int64
	companies map[int64]entity.Company
	users     map[int64]entity.User
	expenses  map[int64]entity.Expense
	approvals map[int64]entity.Approval
	steps     map[int64][]entity.ApproverStep
	rules     map[int64]entity.ApprovalRule
	audit     []entity.AuditEntry
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := make(map[int64][]entity.ApproverStep, len(s.steps))
	for k, v := range s.steps {
		steps[k] = append([]entity.ApproverStep(nil), v...)
	}
	return memSnapshot{
		nextID:    s.nextID,
		companies: copyMap(s.companies),
		users:     copyMap(s.users),
		expenses:  copyMap(s.expenses),
		approvals: copyMap(s.approvals),
		steps:     steps,
		rules:     copyMap(s.rules),
		audit:     append([]entity.AuditEntry(nil), s.audit...),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.companies = snap.companies
	s.users = snap.users
	s.expenses = snap.expenses
	s.approvals = snap.approvals
	s.steps = snap.steps
	s.rules = snap.rules
	s.audit = snap.audit
}

// WithTransaction implements port.TransactionManager
func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.audit))
	for i, e := range s.audit {
		out[i] = e.Action
	}
	return out
}

func (s *memStore) expense(id int64) entity.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expenses[id]
}

func (s *memStore) ledger(expenseID int64) []entity.Approval {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Approval
	for _, a := range s.approvals {
		if a.ExpenseID == expenseID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out
}

// Company repository

type memCompanies struct{ s *memStore }

func (r memCompanies) Create(ctx context.Context, c *entity.Company) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("companies.Create"); err != nil {
		return err
	}
	c.ID = r.s.id()
	c.CreatedAt = time.Now()
	r.s.companies[c.ID] = *c
	return nil
}

func (r memCompanies) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.companies[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// User repository

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("users.Create"); err != nil {
		return err
	}
	u.ID = r.s.id()
	u.CreatedAt = time.Now()
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUsers) ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.User
	for _, u := range r.s.users {
		if u.CompanyID == companyID {
			u := u
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memUsers) ListByIDs(ctx context.Context, companyID int64, ids []int64) ([]*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.User
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok && u.CompanyID == companyID {
			out = append(out, &u)
		}
	}
	return out, nil
}

// Expense repository

type memExpenses struct{ s *memStore }

func (r memExpenses) Create(ctx context.Context, e *entity.Expense) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("expenses.Create"); err != nil {
		return err
	}
	e.ID = r.s.id()
	e.UpdatedAt = e.CreatedAt
	r.s.expenses[e.ID] = *e
	return nil
}

func (r memExpenses) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.expenses[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r memExpenses) UpdateStatus(ctx context.Context, id int64, status string, finalizedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("expenses.UpdateStatus"); err != nil {
		return err
	}
	e, ok := r.s.expenses[id]
	if !ok || e.Status != entity.ExpenseStatusPending {
		return errors.New("stale expense")
	}
	e.Status = status
	e.FinalizedAt = &finalizedAt
	e.UpdatedAt = finalizedAt
	r.s.expenses[id] = e
	return nil
}

func (r memExpenses) List(ctx context.Context, f port.ExpenseFilter) ([]*entity.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Expense
	for _, e := range r.s.expenses {
		if f.CompanyID != 0 && e.CompanyID != f.CompanyID {
			continue
		}
		if f.SubmitterID != 0 && e.SubmitterID != f.SubmitterID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Approval repository

type memApprovals struct{ s *memStore }

func (r memApprovals) CreateBatch(ctx context.Context, rows []*entity.Approval) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("approvals.CreateBatch"); err != nil {
		return err
	}
	for _, a := range rows {
		a.ID = r.s.id()
		r.s.approvals[a.ID] = *a
	}
	return nil
}

func (r memApprovals) GetByID(ctx context.Context, id int64) (*entity.Approval, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.approvals[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r memApprovals) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.Approval, error) {
	rows := r.s.ledger(expenseID)
	out := make([]*entity.Approval, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (r memApprovals) ListByExpenses(ctx context.Context, ids []int64) (map[int64][]*entity.Approval, error) {
	out := make(map[int64][]*entity.Approval, len(ids))
	for _, id := range ids {
		rows, _ := r.ListByExpense(ctx, id)
		out[id] = rows
	}
	return out, nil
}

func (r memApprovals) ListPendingForApprover(ctx context.Context, approverID int64) ([]*entity.Approval, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Approval
	for _, a := range r.s.approvals {
		if a.ApproverID != approverID || a.Status != entity.ApprovalStatusPending {
			continue
		}
		if r.s.expenses[a.ExpenseID].Status != entity.ExpenseStatusPending {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memApprovals) Update(ctx context.Context, a *entity.Approval) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("approvals.Update"); err != nil {
		return err
	}
	if _, ok := r.s.approvals[a.ID]; !ok {
		return errors.New("approval not found")
	}
	r.s.approvals[a.ID] = *a
	return nil
}

// Approver step repository

type memSteps struct{ s *memStore }

func (r memSteps) ListByCompany(ctx context.Context, companyID int64) ([]entity.ApproverStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]entity.ApproverStep(nil), r.s.steps[companyID]...), nil
}

func (r memSteps) Replace(ctx context.Context, companyID int64, approverIDs []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("steps.Replace"); err != nil {
		return err
	}
	steps := make([]entity.ApproverStep, len(approverIDs))
	for i, id := range approverIDs {
		steps[i] = entity.ApproverStep{ID: r.s.id(), CompanyID: companyID, ApproverID: id, StepOrder: i + 1}
	}
	r.s.steps[companyID] = steps
	return nil
}

// Approval rule repository

type memRules struct{ s *memStore }

func (r memRules) GetByCompany(ctx context.Context, companyID int64) (*entity.ApprovalRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.rules[companyID]
	if !ok {
		return nil, nil
	}
	return &rule, nil
}

func (r memRules) Upsert(ctx context.Context, rule *entity.ApprovalRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.rules[rule.CompanyID]; ok {
		rule.ID = existing.ID
	} else {
		rule.ID = r.s.id()
	}
	rule.UpdatedAt = time.Now()
	r.s.rules[rule.CompanyID] = *rule
	return nil
}

// Audit repository

type memAudit struct{ s *memStore }

func (r memAudit) Create(ctx context.Context, e *entity.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("audit.Create"); err != nil {
		return err
	}
	e.ID = r.s.id()
	e.CreatedAt = time.Now()
	r.s.audit = append(r.s.audit, *e)
	return nil
}

func (r memAudit) ListByCompany(ctx context.Context, companyID int64, limit, offset int) ([]*entity.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.AuditEntry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if r.s.audit[i].CompanyID == companyID {
			e := r.s.audit[i]
			out = append(out, &e)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r memAudit) ListByExpense(ctx context.Context, expenseID int64) ([]*entity.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.AuditEntry
	for _, e := range r.s.audit {
		if e.ExpenseID != nil && *e.ExpenseID == expenseID {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

// recordingPublisher captures published events in order
type recordingPublisher struct {
	mu   sync.Mutex
	evts []*event.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evts ...*event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range evts {
		if e != nil {
			p.evts = append(p.evts, e)
		}
	}
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, len(p.evts))
	for i, e := range p.evts {
		out[i] = e.Type
	}
	return out
}

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

type mockExporter struct {
	reports []port.ExpenseReport
	names   map[int64]string
}

func (m *mockExporter) Write(w io.Writer, company *entity.Company, reports []port.ExpenseReport, names map[int64]string) error {
	m.reports = reports
	m.names = names
	_, err := io.WriteString(w, company.Name)
	return err
}

func (m *mockExporter) ContentType() string   { return "text/plain" }
func (m *mockExporter) FileExtension() string { return ".txt" }

// harness wires every service over one memStore
type harness struct {
	store     *memStore
	publisher *recordingPublisher
	logger    *mockLogger
	engine    ApprovalEngine
	config    ConfigService
	directory DirectoryService
	expenses  ExpenseService
	audit     AuditService
	exporter  *mockExporter
}

func newHarness() *harness {
	s := newMemStore()
	pub := &recordingPublisher{}
	logger := &mockLogger{}
	exporter := &mockExporter{}

	h := &harness{store: s, publisher: pub, logger: logger, exporter: exporter}
	h.engine = NewApprovalEngine(EngineDeps{
		Users:     memUsers{s},
		Companies: memCompanies{s},
		Expenses:  memExpenses{s},
		Approvals: memApprovals{s},
		Steps:     memSteps{s},
		Rules:     memRules{s},
		Audit:     memAudit{s},
		TxManager: s,
		Publisher: pub,
		Logger:    logger,
	})
	h.config = NewConfigService(memUsers{s}, memSteps{s}, memRules{s}, memAudit{s}, s, logger)
	h.directory = NewDirectoryService(memCompanies{s}, memUsers{s}, memRules{s}, memAudit{s}, s, logger)
	h.expenses = NewExpenseService(memCompanies{s}, memUsers{s}, memExpenses{s}, memApprovals{s}, exporter, logger)
	h.audit = NewAuditService(memAudit{s}, memExpenses{s})
	return h
}

// company seeds a company and returns its id
func (h *harness) company(name string) int64 {
	c := &entity.Company{Name: name, Currency: "USD"}
	_ = memCompanies{h.store}.Create(context.Background(), c)
	return c.ID
}

// user seeds a user directly in the store
func (h *harness) user(companyID int64, name string, role entity.Role, opts ...func(*entity.User)) *entity.User {
	u := &entity.User{CompanyID: companyID, Name: name, Email: name + "@example.com", Role: role}
	for _, opt := range opts {
		opt(u)
	}
	_ = memUsers{h.store}.Create(context.Background(), u)
	return u
}

func managedBy(m *entity.User) func(*entity.User) {
	return func(u *entity.User) { u.ManagerID = &m.ID }
}

func managerApprover(u *entity.User) { u.IsManagerApprover = true }

func (h *harness) sequence(companyID int64, users ...*entity.User) {
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	_ = memSteps{h.store}.Replace(context.Background(), companyID, ids)
}

func (h *harness) rule(companyID int64, kind entity.RuleKind, threshold int, specific *entity.User) {
	r := &entity.ApprovalRule{CompanyID: companyID, Kind: kind, PercentageThreshold: threshold}
	if specific != nil {
		r.SpecificApproverID = &specific.ID
	}
	_ = memRules{h.store}.Upsert(context.Background(), r)
}

func actorOf(u *entity.User) Actor {
	return Actor{UserID: u.ID, CompanyID: u.CompanyID, Role: u.Role}
}

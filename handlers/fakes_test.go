package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"auditmgt/blob"
	"auditmgt/middleware"
	"auditmgt/models"
	"auditmgt/store"
	"auditmgt/websocket"
)

// fakeAuditStore keeps audits in memory with a ticking clock so updatedAt
// strictly increases between writes.
type fakeAuditStore struct {
	mu      sync.Mutex
	audits  map[string]*models.Audit
	seq     int
	clock   time.Time
	failAll error
	// vanish makes Delete report that nothing was removed.
	vanish bool
}

func newFakeAuditStore() *fakeAuditStore {
	return &fakeAuditStore{
		audits: make(map[string]*models.Audit),
		clock:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeAuditStore) tick() string {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock.Format(store.TimeLayout)
}

func (f *fakeAuditStore) Create(_ context.Context, in store.CreateAuditInput) (*models.Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	f.seq++
	now := f.tick()
	a := &models.Audit{
		MongoID:   primitive.NewObjectID(),
		ID:        fmt.Sprintf("AUD-2024-%06d", f.seq),
		AuditName: in.AuditName,
		Company:   in.Company,
		AuditDate: in.AuditDate,
		Auditor:   in.Auditor,
		Status:    store.InitialStatus(in.FormData),
		AuditType: in.AuditType,
		UserID:    in.UserID,
		FormData:  in.FormData,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.audits[a.ID] = a
	cp := *a
	return &cp, nil
}

func (f *fakeAuditStore) GetByID(_ context.Context, id string) (*models.Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	a, ok := f.audits[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAuditStore) list(userID string, keep func(*models.Audit) bool) ([]models.Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	out := []models.Audit{}
	for _, a := range f.audits {
		if a.UserID == userID && keep(a) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) ListByUser(_ context.Context, userID string) ([]models.Audit, error) {
	return f.list(userID, func(*models.Audit) bool { return true })
}

func (f *fakeAuditStore) ListByUserAndStatus(_ context.Context, userID string, status models.Status) ([]models.Audit, error) {
	return f.list(userID, func(a *models.Audit) bool { return a.Status == status })
}

func (f *fakeAuditStore) Update(_ context.Context, id string, upd store.AuditUpdate) (*models.Audit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	a, ok := f.audits[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.ExpectedVersion != nil && *upd.ExpectedVersion != a.Version {
		return nil, store.ErrVersionConflict
	}
	if upd.AuditName != nil {
		a.AuditName = *upd.AuditName
	}
	if upd.Company != nil {
		a.Company = *upd.Company
	}
	if upd.AuditDate != nil {
		a.AuditDate = *upd.AuditDate
	}
	if upd.Auditor != nil {
		a.Auditor = *upd.Auditor
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.AuditType != nil {
		a.AuditType = *upd.AuditType
	}
	if upd.FormData != nil {
		a.FormData = upd.FormData
	}
	a.Version++
	a.UpdatedAt = f.tick()
	cp := *a
	return &cp, nil
}

func (f *fakeAuditStore) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return false, f.failAll
	}
	if f.vanish {
		return false, nil
	}
	_, ok := f.audits[id]
	delete(f.audits, id)
	return ok, nil
}

func (f *fakeAuditStore) StatsByUser(_ context.Context, userID string) (models.AuditStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return models.AuditStats{}, f.failAll
	}
	counts := map[models.Status]int64{}
	for _, a := range f.audits {
		if a.UserID == userID {
			counts[a.Status]++
		}
	}
	return store.FoldStatusCounts(counts), nil
}

type publishedEvent struct {
	userID string
	event  websocket.AuditEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(userID string, event websocket.AuditEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{userID: userID, event: event})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

// fakeBlobStore drains and counts what it is given.
type fakeBlobStore struct {
	mu      sync.Mutex
	calls   int
	written int64
	last    blob.Object
	err     error
}

func (f *fakeBlobStore) Put(_ context.Context, obj blob.Object) (blob.Stored, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = obj
	if f.err != nil {
		return blob.Stored{}, f.err
	}
	n, err := io.Copy(io.Discard, obj.Body)
	if err != nil {
		return blob.Stored{}, err
	}
	f.written = n
	return blob.Stored{Key: "stored-key", URL: "https://files.example.com/stored-key"}, nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func (f *fakeUserStore) Create(_ context.Context, name, email, passwordHash string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = store.NormalizeEmail(email)
	if _, ok := f.users[email]; ok {
		return nil, store.ErrDuplicateEmail
	}
	u := &models.User{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	f.users[email] = u
	return u, nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[store.NormalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID.Hex() == id {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

// asUser attaches a session for the id in the X-Test-User header, standing in
// for the bearer-token middleware.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(middleware.WithSession(r.Context(), middleware.Session{UserID: id}))
		}
		next.ServeHTTP(w, r)
	})
}

func validFormData() *models.FormData {
	return &models.FormData{
		BasicInfo: models.BasicInfo{
			AuditName:  "Q1 Security Review",
			Company:    "Acme",
			AuditDate:  "2024-03-01",
			Auditor:    "Jane Doe",
			Department: "IT",
			AuditType:  models.AuditTypeSecurity,
		},
		Quiz: models.Quiz{
			RiskAssessment:         "medium",
			ComplianceStatus:       "partial",
			PreviousAuditIssues:    "no",
			StakeholderInvolvement: "moderate",
		},
		ProcessEvaluation: models.ProcessEvaluation{
			ProcessEfficiency:    7,
			DocumentationQuality: 6,
			ControlEffectiveness: 8,
			ResourceAdequacy:     5,
			ProcessImprovements:  "Automate access reviews",
			KeyFindings:          "Stale accounts found",
		},
		LegalCompliance: models.LegalCompliance{
			RegulatoryCompliance: "partial",
			LegalRequirements:    []string{"GDPR"},
			RemedialActions:      "Quarterly review",
			ComplianceDeadline:   "2024-06-30",
			ResponsibleParty:     "CISO",
		},
		DocumentUpload: models.DocumentUpload{
			Documents:     []models.DocumentRef{{Name: "report.pdf", Size: 1024, Type: "application/pdf"}},
			DocumentTypes: []string{"report"},
		},
	}
}

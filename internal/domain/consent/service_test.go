package consent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/myhealthchain/api/internal/audit"
	"github.com/myhealthchain/api/internal/domain/identity"
	"github.com/myhealthchain/api/internal/domain/keys"
	"github.com/myhealthchain/api/internal/platform/auth"
	"github.com/myhealthchain/api/internal/platform/crypto"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type memGrantRepo struct {
	mu     sync.Mutex
	grants map[uuid.UUID]*Grant
}

func newMemGrantRepo() *memGrantRepo {
	return &memGrantRepo{grants: map[uuid.UUID]*Grant{}}
}

func (r *memGrantRepo) Create(_ context.Context, g *Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.Status = StatusPending
	g.CreatedAt = time.Now()
	cp := *g
	r.grants[g.ID] = &cp
	return nil
}

func (r *memGrantRepo) GetByID(_ context.Context, id uuid.UUID) (*Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *memGrantRepo) HasActive(_ context.Context, patientID, granteeID uuid.UUID, kind string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.PatientID == patientID && g.GranteeID == granteeID && g.Kind == kind {
			if g.Status == StatusPending || g.ActiveAt(now) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *memGrantRepo) FindActive(_ context.Context, patientID, granteeID uuid.UUID, kind string, now time.Time) (*Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.PatientID == patientID && g.GranteeID == granteeID && g.Kind == kind && g.ActiveAt(now) {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memGrantRepo) FindActiveDelegations(_ context.Context, patientID, doctorID uuid.UUID, now time.Time) ([]*Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*Grant
	for _, g := range r.grants {
		if g.PatientID == patientID && g.GranteeID == doctorID && g.Kind == KindDelegated && g.ActiveAt(now) {
			cp := *g
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (r *memGrantRepo) ApproveIfPending(_ context.Context, id uuid.UUID, approvedAt, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[id]
	if !ok || g.Status != StatusPending {
		return false, nil
	}
	g.Status = StatusApproved
	g.ApprovedAt = &approvedAt
	g.ExpiresAt = &expiresAt
	return true, nil
}

func (r *memGrantRepo) RejectIfPending(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[id]
	if !ok || g.Status != StatusPending {
		return false, nil
	}
	g.Status = StatusRejected
	return true, nil
}

func (r *memGrantRepo) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, g := range r.grants {
		if g.Status == StatusApproved && g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			g.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func (r *memGrantRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Grant, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*Grant
	for _, g := range r.grants {
		if g.PatientID == patientID {
			cp := *g
			items = append(items, &cp)
		}
	}
	return items, len(items), nil
}

func (r *memGrantRepo) ListByGrantee(_ context.Context, granteeID uuid.UUID, limit, offset int) ([]*Grant, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*Grant
	for _, g := range r.grants {
		if g.GranteeID == granteeID {
			cp := *g
			items = append(items, &cp)
		}
	}
	return items, len(items), nil
}

type fakeResolver struct {
	patients map[string]*identity.Patient
}

func (f *fakeResolver) ResolveUHID(_ context.Context, uhid string) (*identity.Patient, error) {
	if err := identity.ValidateUHID(uhid); err != nil {
		return nil, err
	}
	p, ok := f.patients[uhid]
	if !ok {
		return nil, identity.ErrUnknownPatient
	}
	return p, nil
}

type fakePINVerifier struct {
	correct map[uuid.UUID]string
}

func (f *fakePINVerifier) VerifyAndUnwrap(_ context.Context, patientID uuid.UUID, pin string) ([]byte, error) {
	want, ok := f.correct[patientID]
	if !ok {
		return nil, keys.ErrNoPIN
	}
	if pin != want {
		return nil, keys.ErrWrongPIN
	}
	return make([]byte, 32), nil
}

type fakeMemberships struct {
	approved map[[2]uuid.UUID]bool
}

func (f *fakeMemberships) IsApproved(_ context.Context, doctorID, hospitalID uuid.UUID) (bool, error) {
	return f.approved[[2]uuid.UUID{doctorID, hospitalID}], nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (r *memRecorder) Record(_ context.Context, e *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

type passTx struct{}

func (passTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	svc      *Service
	repo     *memGrantRepo
	rec      *memRecorder
	members  *fakeMemberships
	patient  *identity.Patient
	doctor   auth.Actor
	hospital auth.Actor
	pin      string
}

func newFixture() *fixture {
	patient := &identity.Patient{ID: uuid.New(), UHID: "MHC-1234567890", FullName: "Asha Rao"}
	repo := newMemGrantRepo()
	rec := &memRecorder{}
	members := &fakeMemberships{approved: map[[2]uuid.UUID]bool{}}
	svc := NewService(
		repo,
		&fakeResolver{patients: map[string]*identity.Patient{patient.UHID: patient}},
		&fakePINVerifier{correct: map[uuid.UUID]string{patient.ID: "482913"}},
		members,
		rec,
		passTx{},
	)
	return &fixture{
		svc:      svc,
		repo:     repo,
		rec:      rec,
		members:  members,
		patient:  patient,
		doctor:   auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor},
		hospital: auth.Actor{ID: uuid.New(), Role: auth.RoleHospital},
		pin:      "482913",
	}
}

func (f *fixture) requestDirect(t *testing.T) *Grant {
	t.Helper()
	g, err := f.svc.RequestGrant(context.Background(), f.doctor, RequestGrantInput{
		Kind:        KindDirect,
		PatientUHID: f.patient.UHID,
		AccessType:  AccessRead,
		Reason:      "Annual checkup review",
		TTLHours:    24,
	})
	if err != nil {
		t.Fatalf("RequestGrant: %v", err)
	}
	return g
}

func (f *fixture) patientActor() auth.Actor {
	return auth.Actor{ID: f.patient.ID, Role: auth.RolePatient}
}

// ---------------------------------------------------------------------------
// Request validation
// ---------------------------------------------------------------------------

func TestRequestGrantValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	base := RequestGrantInput{
		Kind:        KindDirect,
		PatientUHID: f.patient.UHID,
		AccessType:  AccessRead,
		Reason:      "Annual checkup review",
		TTLHours:    24,
	}

	cases := []struct {
		name   string
		mutate func(*RequestGrantInput)
		want   error
	}{
		{"bad kind", func(in *RequestGrantInput) { in.Kind = "friend" }, ErrInvalidKind},
		{"short reason", func(in *RequestGrantInput) { in.Reason = "too short" }, ErrInvalidReason},
		{"bad ttl", func(in *RequestGrantInput) { in.TTLHours = 48 }, ErrInvalidTTL},
		{"zero ttl", func(in *RequestGrantInput) { in.TTLHours = 0 }, ErrInvalidTTL},
		{"bad uhid", func(in *RequestGrantInput) { in.PatientUHID = "garbage" }, identity.ErrInvalidUHID},
		{"unknown patient", func(in *RequestGrantInput) { in.PatientUHID = "MHC-0000000001" }, identity.ErrUnknownPatient},
	}
	for _, tc := range cases {
		in := base
		tc.mutate(&in)
		if _, err := f.svc.RequestGrant(ctx, f.doctor, in); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	// Long reason.
	in := base
	for len(in.Reason) <= MaxReasonLen {
		in.Reason += " padding"
	}
	if _, err := f.svc.RequestGrant(ctx, f.doctor, in); !errors.Is(err, ErrInvalidReason) {
		t.Errorf("long reason err = %v, want ErrInvalidReason", err)
	}

	// Role/kind mismatch.
	in = base
	if _, err := f.svc.RequestGrant(ctx, f.hospital, in); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("hospital requesting direct grant err = %v, want ErrNotAuthorized", err)
	}
	in.Kind = KindHospital
	if _, err := f.svc.RequestGrant(ctx, f.doctor, in); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("doctor requesting hospital grant err = %v, want ErrNotAuthorized", err)
	}
}

func TestRequestGrantDuplicateActive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.requestDirect(t)

	// Second request while the first is pending.
	_, err := f.svc.RequestGrant(ctx, f.doctor, RequestGrantInput{
		Kind: KindDirect, PatientUHID: f.patient.UHID,
		AccessType: AccessRead, Reason: "Follow-up consultation", TTLHours: 24,
	})
	if !errors.Is(err, ErrDuplicateActiveGrant) {
		t.Errorf("duplicate while pending err = %v, want ErrDuplicateActiveGrant", err)
	}
}

func TestDelegatedRequestRequiresMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	in := RequestGrantInput{
		Kind:        KindDelegated,
		PatientUHID: f.patient.UHID,
		AccessType:  AccessRead,
		Reason:      "Ward rotation coverage",
		TTLHours:    24,
		HospitalID:  f.hospital.ID,
	}

	if _, err := f.svc.RequestGrant(ctx, f.doctor, in); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("delegation without membership err = %v, want ErrNotAuthorized", err)
	}

	f.members.approved[[2]uuid.UUID{f.doctor.ID, f.hospital.ID}] = true
	g, err := f.svc.RequestGrant(ctx, f.doctor, in)
	if err != nil {
		t.Fatalf("delegation with membership: %v", err)
	}
	if g.HospitalID == nil || *g.HospitalID != f.hospital.ID {
		t.Error("delegated grant missing hospital id")
	}
}

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

func TestApproveComputesExpiryAtApproval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := f.requestDirect(t)

	// Let the request sit "pending" for a while before approval.
	requestTime := time.Now()
	approveTime := requestTime.Add(48 * time.Hour)
	f.svc.now = func() time.Time { return approveTime }

	approved, err := f.svc.Approve(ctx, f.patientActor(), g.ID, f.pin)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Errorf("status = %q, want approved", approved.Status)
	}
	wantExpiry := approveTime.Add(24 * time.Hour)
	if approved.ExpiresAt == nil || !approved.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires_at = %v, want %v (approval + TTL, not request + TTL)", approved.ExpiresAt, wantExpiry)
	}
}

func TestApproveRequiresCorrectPIN(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := f.requestDirect(t)

	if _, err := f.svc.Approve(ctx, f.patientActor(), g.ID, "000000"); !errors.Is(err, keys.ErrWrongPIN) {
		t.Errorf("wrong PIN err = %v, want ErrWrongPIN", err)
	}

	got, _ := f.repo.GetByID(ctx, g.ID)
	if got.Status != StatusPending {
		t.Errorf("grant status after failed approval = %q, want pending", got.Status)
	}
}

// memKeyRepo backs a real key manager, so approval goes through the same
// attempt window as every other verification path.
type memKeyRepo struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*keys.PatientKey
}

func (r *memKeyRepo) Upsert(_ context.Context, k *keys.PatientKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *k
	r.keys[k.PatientID] = &cp
	return nil
}

func (r *memKeyRepo) Get(_ context.Context, patientID uuid.UUID) (*keys.PatientKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[patientID]
	if !ok {
		return nil, keys.ErrNoPIN
	}
	cp := *k
	return &cp, nil
}

func TestApproveSharesPINLockout(t *testing.T) {
	patient := &identity.Patient{ID: uuid.New(), UHID: "MHC-1234567890", FullName: "Asha Rao"}
	repo := newMemGrantRepo()
	rec := &memRecorder{}
	mgr := keys.NewManager(&memKeyRepo{keys: map[uuid.UUID]*keys.PatientKey{}},
		rec, passTx{}, crypto.TestArgon2Params(), 2, 5, time.Minute)
	svc := NewService(
		repo,
		&fakeResolver{patients: map[string]*identity.Patient{patient.UHID: patient}},
		mgr,
		&fakeMemberships{approved: map[[2]uuid.UUID]bool{}},
		rec,
		passTx{},
	)
	ctx := context.Background()
	if err := mgr.SetPIN(ctx, "patient", patient.ID, "482913"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}

	doctor := auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	g, err := svc.RequestGrant(ctx, doctor, RequestGrantInput{
		Kind:        KindDirect,
		PatientUHID: patient.UHID,
		AccessType:  AccessRead,
		Reason:      "Annual checkup review",
		TTLHours:    24,
	})
	if err != nil {
		t.Fatalf("RequestGrant: %v", err)
	}

	pa := auth.Actor{ID: patient.ID, Role: auth.RolePatient}
	for i := 0; i < 5; i++ {
		if _, err := svc.Approve(ctx, pa, g.ID, "000000"); !errors.Is(err, keys.ErrWrongPIN) {
			t.Fatalf("attempt %d: err = %v, want ErrWrongPIN", i+1, err)
		}
	}

	// The window is exhausted: even the correct PIN cannot approve.
	if _, err := svc.Approve(ctx, pa, g.ID, "482913"); !errors.Is(err, keys.ErrRateLimited) {
		t.Fatalf("sixth attempt err = %v, want keys.ErrRateLimited", err)
	}
	got, _ := repo.GetByID(ctx, g.ID)
	if got.Status != StatusPending {
		t.Errorf("grant status after lockout = %q, want pending", got.Status)
	}
}

func TestRejectNeedsNoPIN(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := f.requestDirect(t)

	rejected, err := f.svc.Reject(ctx, f.patientActor(), g.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Errorf("status = %q, want rejected", rejected.Status)
	}

	// Terminal: cannot approve a rejected grant.
	if _, err := f.svc.Approve(ctx, f.patientActor(), g.ID, f.pin); !errors.Is(err, ErrNotPending) {
		t.Errorf("approve after reject err = %v, want ErrNotPending", err)
	}
}

func TestRegrantAfterRejectCreatesNewRow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g1 := f.requestDirect(t)
	if _, err := f.svc.Reject(ctx, f.patientActor(), g1.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	g2 := f.requestDirect(t)
	if g2.ID == g1.ID {
		t.Error("re-grant reused the rejected row")
	}

	old, _ := f.repo.GetByID(ctx, g1.ID)
	if old.Status != StatusRejected {
		t.Errorf("original grant status = %q, history not preserved", old.Status)
	}
}

func TestDecisionAuthorization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := f.requestDirect(t)

	// The requesting doctor cannot approve their own grant; failure looks
	// like a missing grant.
	if _, err := f.svc.Approve(ctx, f.doctor, g.ID, f.pin); !errors.Is(err, ErrNotFound) {
		t.Errorf("doctor self-approve err = %v, want ErrNotFound", err)
	}

	// A different patient cannot approve it either.
	stranger := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := f.svc.Approve(ctx, stranger, g.ID, f.pin); !errors.Is(err, ErrNotFound) {
		t.Errorf("stranger approve err = %v, want ErrNotFound", err)
	}
}

func TestDelegatedGrantDecidedByHospital(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.members.approved[[2]uuid.UUID{f.doctor.ID, f.hospital.ID}] = true

	g, err := f.svc.RequestGrant(ctx, f.doctor, RequestGrantInput{
		Kind:        KindDelegated,
		PatientUHID: f.patient.UHID,
		AccessType:  AccessRead,
		Reason:      "Ward rotation coverage",
		TTLHours:    24,
		HospitalID:  f.hospital.ID,
	})
	if err != nil {
		t.Fatalf("RequestGrant: %v", err)
	}

	// The patient cannot decide a delegation.
	if _, err := f.svc.Approve(ctx, f.patientActor(), g.ID, f.pin); !errors.Is(err, ErrNotFound) {
		t.Errorf("patient deciding delegation err = %v, want ErrNotFound", err)
	}

	// The hospital approves without a PIN.
	approved, err := f.svc.Approve(ctx, f.hospital, g.ID, "")
	if err != nil {
		t.Fatalf("hospital approve: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Errorf("status = %q, want approved", approved.Status)
	}
}

func TestConcurrentApproveExactlyOneWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := f.requestDirect(t)
	patient := f.patientActor()

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Approve(ctx, patient, g.ID, f.pin)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNotPending):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if losses != n-1 {
		t.Errorf("losses = %d, want %d", losses, n-1)
	}
}

// ---------------------------------------------------------------------------
// Sweep
// ---------------------------------------------------------------------------

func TestSweepExpiredIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := f.requestDirect(t)
	if _, err := f.svc.Approve(ctx, f.patientActor(), g.ID, f.pin); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Advance past the 24h expiry.
	f.svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	n, err := f.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("first sweep transitioned %d grants, want 1", n)
	}

	n, err = f.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second SweepExpired: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep transitioned %d grants, want 0", n)
	}

	got, _ := f.repo.GetByID(ctx, g.ID)
	if got.Status != StatusExpired {
		t.Errorf("status after sweep = %q, want expired", got.Status)
	}

	// Terminal: an expired grant cannot be re-approved.
	if _, err := f.svc.Approve(ctx, f.patientActor(), g.ID, f.pin); !errors.Is(err, ErrNotPending) {
		t.Errorf("approve after expiry err = %v, want ErrNotPending", err)
	}
}

func TestActiveAtIgnoresStaleStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	// Approved but past expiry: inactive even though unswept.
	g := &Grant{Status: StatusApproved, ExpiresAt: &past}
	if g.ActiveAt(now) {
		t.Error("unswept expired grant reported active")
	}

	g = &Grant{Status: StatusApproved, ExpiresAt: &future}
	if !g.ActiveAt(now) {
		t.Error("approved unexpired grant reported inactive")
	}

	g = &Grant{Status: StatusPending, ExpiresAt: &future}
	if g.ActiveAt(now) {
		t.Error("pending grant reported active")
	}
}

// ---------------------------------------------------------------------------
// Audit trail
// ---------------------------------------------------------------------------

func TestGrantLifecycleAudited(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := f.requestDirect(t)
	if _, err := f.svc.Approve(ctx, f.patientActor(), g.ID, f.pin); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	want := []string{audit.ActionGrantRequested, audit.ActionGrantApproved}
	if len(f.rec.entries) != len(want) {
		t.Fatalf("audit entries = %d, want %d", len(f.rec.entries), len(want))
	}
	for i, e := range f.rec.entries {
		if e.Action != want[i] {
			t.Errorf("audit[%d].Action = %q, want %q", i, e.Action, want[i])
		}
	}

	// Sweeping logs nothing.
	f.svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, err := f.svc.SweepExpired(ctx); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if len(f.rec.entries) != len(want) {
		t.Error("sweep produced audit entries; expiry is not an actor action")
	}
}

func TestAuditFailureAbortsMutation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	g := f.requestDirect(t)

	failing := &failingRecorder{}
	f.svc.auditor = failing

	if _, err := f.svc.Approve(ctx, f.patientActor(), g.ID, f.pin); err == nil {
		t.Fatal("expected approval to fail when the audit write fails")
	}
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, *audit.Entry) error {
	return errors.New("audit store unavailable")
}

func TestAccessCovers(t *testing.T) {
	cases := []struct {
		granted, required string
		want              bool
	}{
		{AccessRead, AccessRead, true},
		{AccessReadWrite, AccessRead, true},
		{AccessReadWrite, AccessReadWrite, true},
		{AccessRead, AccessReadWrite, false},
	}
	for _, tc := range cases {
		if got := AccessCovers(tc.granted, tc.required); got != tc.want {
			t.Errorf("AccessCovers(%q, %q) = %v, want %v", tc.granted, tc.required, got, tc.want)
		}
	}
}

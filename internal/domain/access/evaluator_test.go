package access

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/myhealthchain/api/internal/domain/consent"
	"github.com/myhealthchain/api/internal/platform/auth"
)

type memGrants struct {
	grants []*consent.Grant
}

func (m *memGrants) FindActive(_ context.Context, patientID, granteeID uuid.UUID, kind string, now time.Time) (*consent.Grant, error) {
	for _, g := range m.grants {
		if g.PatientID == patientID && g.GranteeID == granteeID && g.Kind == kind && g.ActiveAt(now) {
			return g, nil
		}
	}
	return nil, consent.ErrNotFound
}

func (m *memGrants) FindActiveDelegations(_ context.Context, patientID, doctorID uuid.UUID, now time.Time) ([]*consent.Grant, error) {
	var out []*consent.Grant
	for _, g := range m.grants {
		if g.PatientID == patientID && g.GranteeID == doctorID && g.Kind == consent.KindDelegated && g.ActiveAt(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

type memMemberships struct {
	approved map[[2]uuid.UUID]bool
}

func (m *memMemberships) IsApproved(_ context.Context, doctorID, hospitalID uuid.UUID) (bool, error) {
	return m.approved[[2]uuid.UUID{doctorID, hospitalID}], nil
}

type world struct {
	eval     *Evaluator
	grants   *memGrants
	members  *memMemberships
	now      time.Time
	patient  uuid.UUID
	doctor   auth.Actor
	hospital auth.Actor
}

func newWorld() *world {
	w := &world{
		grants:  &memGrants{},
		members: &memMemberships{approved: map[[2]uuid.UUID]bool{}},
		now:     time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		patient: uuid.New(),
		doctor:  auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor},
		hospital: auth.Actor{
			ID: uuid.New(), Role: auth.RoleHospital,
		},
	}
	w.eval = NewEvaluator(w.grants, w.members)
	w.eval.now = func() time.Time { return w.now }
	return w
}

func (w *world) addGrant(kind string, granteeID uuid.UUID, accessType string, expiresAt time.Time, hospitalID *uuid.UUID) {
	approvedAt := w.now.Add(-time.Hour)
	w.grants.grants = append(w.grants.grants, &consent.Grant{
		ID:         uuid.New(),
		Kind:       kind,
		PatientID:  w.patient,
		GranteeID:  granteeID,
		HospitalID: hospitalID,
		AccessType: accessType,
		Status:     consent.StatusApproved,
		ApprovedAt: &approvedAt,
		ExpiresAt:  &expiresAt,
	})
}

func TestEvaluateSelfAccess(t *testing.T) {
	w := newWorld()
	self := auth.Actor{ID: w.patient, Role: auth.RolePatient}

	d, err := w.eval.Evaluate(context.Background(), self, w.patient, consent.AccessReadWrite)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed || d.Mode != ModeSelf {
		t.Errorf("self access decision = %+v", d)
	}

	// A patient reading someone else's data is denied outright.
	other := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	d, err = w.eval.Evaluate(context.Background(), other, w.patient, consent.AccessRead)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed {
		t.Error("foreign patient was allowed")
	}
}

func TestEvaluateDirectGrant(t *testing.T) {
	w := newWorld()
	expiry := w.now.Add(2 * time.Hour)
	w.addGrant(consent.KindDirect, w.doctor.ID, consent.AccessRead, expiry, nil)

	d, err := w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessRead)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed || d.Mode != ModeDirect {
		t.Fatalf("decision = %+v, want direct allow", d)
	}
	if d.ExpiresAt == nil || !d.ExpiresAt.Equal(expiry) {
		t.Errorf("ExpiresAt = %v, want %v", d.ExpiresAt, expiry)
	}

	// read does not cover read_write.
	d, err = w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessReadWrite)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed {
		t.Error("read grant satisfied a read_write requirement")
	}
}

func TestEvaluateReadWriteCoversRead(t *testing.T) {
	w := newWorld()
	w.addGrant(consent.KindDirect, w.doctor.ID, consent.AccessReadWrite, w.now.Add(time.Hour), nil)

	d, err := w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessRead)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed {
		t.Error("read_write grant did not cover read")
	}
}

func TestEvaluateExpiryAtReadTime(t *testing.T) {
	w := newWorld()
	expiry := w.now.Add(24 * time.Hour)
	w.addGrant(consent.KindDirect, w.doctor.ID, consent.AccessRead, expiry, nil)

	// One second before expiry: allowed.
	w.now = expiry.Add(-time.Second)
	d, _ := w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessRead)
	if !d.Allowed {
		t.Error("denied just before expiry")
	}

	// Exactly at expiry: denied, even though no sweep has run and the
	// stored status still says approved.
	w.now = expiry
	d, _ = w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessRead)
	if d.Allowed {
		t.Error("allowed at the expiry instant")
	}
}

func TestEvaluateHospitalGrantForHospitalActor(t *testing.T) {
	w := newWorld()
	w.addGrant(consent.KindHospital, w.hospital.ID, consent.AccessRead, w.now.Add(time.Hour), nil)

	d, err := w.eval.Evaluate(context.Background(), w.hospital, w.patient, consent.AccessRead)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed || d.Mode != ModeDirect {
		t.Errorf("decision = %+v, want direct allow for hospital actor", d)
	}
}

func TestEvaluateHospitalChain(t *testing.T) {
	w := newWorld()
	hid := w.hospital.ID
	hospitalExpiry := w.now.Add(48 * time.Hour)
	delegationExpiry := w.now.Add(24 * time.Hour)

	w.addGrant(consent.KindHospital, hid, consent.AccessReadWrite, hospitalExpiry, nil)
	w.addGrant(consent.KindDelegated, w.doctor.ID, consent.AccessRead, delegationExpiry, &hid)
	w.members.approved[[2]uuid.UUID{w.doctor.ID, hid}] = true

	d, err := w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessRead)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed || d.Mode != ModeHospital {
		t.Fatalf("decision = %+v, want hospital allow", d)
	}
	// Effective expiry is the earlier link.
	if d.ExpiresAt == nil || !d.ExpiresAt.Equal(delegationExpiry) {
		t.Errorf("ExpiresAt = %v, want %v (min of the two links)", d.ExpiresAt, delegationExpiry)
	}
	// Effective access is the narrower link.
	if d.AccessType != consent.AccessRead {
		t.Errorf("AccessType = %q, want read", d.AccessType)
	}
}

func TestEvaluateHospitalChainRequiresEveryLink(t *testing.T) {
	hid := uuid.Nil // set per case

	cases := []struct {
		name  string
		setup func(w *world)
	}{
		{"no membership", func(w *world) {
			w.addGrant(consent.KindHospital, hid, consent.AccessRead, w.now.Add(time.Hour), nil)
			w.addGrant(consent.KindDelegated, w.doctor.ID, consent.AccessRead, w.now.Add(time.Hour), &hid)
		}},
		{"no patient-hospital grant", func(w *world) {
			w.addGrant(consent.KindDelegated, w.doctor.ID, consent.AccessRead, w.now.Add(time.Hour), &hid)
			w.members.approved[[2]uuid.UUID{w.doctor.ID, hid}] = true
		}},
		{"no delegation", func(w *world) {
			w.addGrant(consent.KindHospital, hid, consent.AccessRead, w.now.Add(time.Hour), nil)
			w.members.approved[[2]uuid.UUID{w.doctor.ID, hid}] = true
		}},
		{"hospital grant expired", func(w *world) {
			w.addGrant(consent.KindHospital, hid, consent.AccessRead, w.now.Add(-time.Minute), nil)
			w.addGrant(consent.KindDelegated, w.doctor.ID, consent.AccessRead, w.now.Add(time.Hour), &hid)
			w.members.approved[[2]uuid.UUID{w.doctor.ID, hid}] = true
		}},
		{"delegation expired", func(w *world) {
			w.addGrant(consent.KindHospital, hid, consent.AccessRead, w.now.Add(time.Hour), nil)
			w.addGrant(consent.KindDelegated, w.doctor.ID, consent.AccessRead, w.now.Add(-time.Minute), &hid)
			w.members.approved[[2]uuid.UUID{w.doctor.ID, hid}] = true
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newWorld()
			hid = w.hospital.ID
			tc.setup(w)
			d, err := w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessRead)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if d.Allowed {
				t.Errorf("allowed with %s", tc.name)
			}
		})
	}
}

func TestEvaluateFallsThroughToHospitalPath(t *testing.T) {
	w := newWorld()
	hid := w.hospital.ID

	// Direct grant only covers read; the chain covers read_write.
	w.addGrant(consent.KindDirect, w.doctor.ID, consent.AccessRead, w.now.Add(time.Hour), nil)
	w.addGrant(consent.KindHospital, hid, consent.AccessReadWrite, w.now.Add(time.Hour), nil)
	w.addGrant(consent.KindDelegated, w.doctor.ID, consent.AccessReadWrite, w.now.Add(time.Hour), &hid)
	w.members.approved[[2]uuid.UUID{w.doctor.ID, hid}] = true

	d, err := w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessReadWrite)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed || d.Mode != ModeHospital {
		t.Errorf("decision = %+v, want hospital allow after direct fallthrough", d)
	}
}

func TestDenyCarriesNoDetail(t *testing.T) {
	w := newWorld()

	// No grants at all vs. an expired grant must produce identical
	// decisions.
	noGrant, err := w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessRead)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	w.addGrant(consent.KindDirect, w.doctor.ID, consent.AccessRead, w.now.Add(-time.Hour), nil)
	expired, err := w.eval.Evaluate(context.Background(), w.doctor, w.patient, consent.AccessRead)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if noGrant != expired {
		t.Errorf("deny decisions differ: %+v vs %+v", noGrant, expired)
	}
	if noGrant.Allowed || noGrant.Mode != "" || noGrant.AccessType != "" || noGrant.ExpiresAt != nil {
		t.Errorf("deny decision leaks detail: %+v", noGrant)
	}
}

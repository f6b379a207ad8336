package coordinator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

func TestRegister_Deduplicates(t *testing.T) {
	r := NewRegister()

	assert.True(t, r.Add(domain.LookupItem{ID: "PMC1", Type: domain.KindPMCID}))
	assert.False(t, r.Add(domain.LookupItem{ID: "PMC1", Type: domain.KindPMCID}))
	assert.True(t, r.Add(domain.LookupItem{ID: "PMC1", Type: domain.KindDOI}))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []domain.LookupItem{
		{ID: "PMC1", Type: domain.KindPMCID},
		{ID: "PMC1", Type: domain.KindDOI},
	}, r.Items())
}

func TestRegister_ItemsIsACopy(t *testing.T) {
	r := NewRegister()
	r.Add(domain.LookupItem{ID: "1", Type: domain.KindPMID})

	items := r.Items()
	items[0].ID = "changed"

	assert.Equal(t, "1", r.Items()[0].ID)
}

func TestRegister_ConcurrentAdd(t *testing.T) {
	r := NewRegister()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Add(domain.LookupItem{ID: fmt.Sprintf("%d", i%10), Type: domain.KindPMID})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, r.Len())
}

func newPolicyRecord(pmcid, pmid, doi, licence string, aamFromXML bool) *domain.Record {
	rec := domain.NewRecord(uuid.New(), 1)
	rec.PMCID, rec.PMID, rec.DOI = pmcid, pmid, doi
	rec.LicenceType = licence
	rec.AAMFromXML = aamFromXML
	return rec
}

func TestRegisterWithOAG(t *testing.T) {
	tests := []struct {
		name       string
		rec        *domain.Record
		wantItem   *domain.LookupItem
		wantStatus map[domain.IdentifierKind]domain.OAGStatus
	}{
		{
			name: "pmcid with xml aam and licence is complete",
			rec:  newPolicyRecord("PMC1", "1", "10.1/a", "cc-by", true),
		},
		{
			name:     "pmcid with licence but no xml aam is sent",
			rec:      newPolicyRecord("PMC1", "1", "10.1/a", "cc-by", false),
			wantItem: &domain.LookupItem{ID: "PMC1", Type: domain.KindPMCID},
		},
		{
			name:     "pmcid without licence is sent",
			rec:      newPolicyRecord("PMC1", "", "", "", true),
			wantItem: &domain.LookupItem{ID: "PMC1", Type: domain.KindPMCID},
		},
		{
			name: "no pmcid with licence is complete",
			rec:  newPolicyRecord("", "1", "10.1/a", "cc-by", false),
		},
		{
			name:     "doi preferred over pmid",
			rec:      newPolicyRecord("", "1", "10.1/a", "", false),
			wantItem: &domain.LookupItem{ID: "10.1/a", Type: domain.KindDOI},
		},
		{
			name:     "pmid only",
			rec:      newPolicyRecord("", "1", "", "", false),
			wantItem: &domain.LookupItem{ID: "1", Type: domain.KindPMID},
		},
		{
			name: "no identifiers is complete",
			rec:  newPolicyRecord("", "", "", "", false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegister()
			RegisterWithOAG(tt.rec, reg)

			if tt.wantItem == nil {
				assert.True(t, tt.rec.OAGComplete)
				assert.False(t, tt.rec.InOAG)
				assert.Zero(t, reg.Len())
				return
			}

			assert.False(t, tt.rec.OAGComplete)
			assert.True(t, tt.rec.InOAG)
			assert.Equal(t, []domain.LookupItem{*tt.wantItem}, reg.Items())
			assert.Equal(t, domain.OAGSent, tt.rec.OAGStatusFor(tt.wantItem.Type))
			for _, kind := range domain.IdentifierKinds {
				if kind != tt.wantItem.Type {
					assert.Equal(t, domain.OAGNotSent, tt.rec.OAGStatusFor(kind))
				}
			}
		})
	}
}

func TestRegisterWithOAG_SharedIdentifierEnqueuedOnce(t *testing.T) {
	reg := NewRegister()
	a := newPolicyRecord("PMC9", "", "", "", false)
	b := newPolicyRecord("PMC9", "", "", "", false)

	RegisterWithOAG(a, reg)
	RegisterWithOAG(b, reg)

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, domain.OAGSent, b.OAGPMCID)
}

func TestAddToRerun(t *testing.T) {
	t.Run("pmcid escalates to doi", func(t *testing.T) {
		rec := newPolicyRecord("PMC1", "1", "10.1/a", "", false)
		reg := NewRegister()

		assert.True(t, AddToRerun(rec, domain.KindPMCID, reg))
		assert.Equal(t, []domain.LookupItem{{ID: "10.1/a", Type: domain.KindDOI}}, reg.Items())
		assert.Equal(t, domain.OAGSent, rec.OAGDOI)
		assert.True(t, rec.InOAG)
	})

	t.Run("pmcid escalates to pmid without doi", func(t *testing.T) {
		rec := newPolicyRecord("PMC1", "1", "", "", false)
		reg := NewRegister()

		assert.True(t, AddToRerun(rec, domain.KindPMCID, reg))
		assert.Equal(t, []domain.LookupItem{{ID: "1", Type: domain.KindPMID}}, reg.Items())
		assert.Equal(t, domain.OAGSent, rec.OAGPMID)
	})

	t.Run("doi escalates to pmid", func(t *testing.T) {
		rec := newPolicyRecord("PMC1", "1", "10.1/a", "", false)
		reg := NewRegister()

		assert.True(t, AddToRerun(rec, domain.KindDOI, reg))
		assert.Equal(t, []domain.LookupItem{{ID: "1", Type: domain.KindPMID}}, reg.Items())
	})

	t.Run("pmid has no fallback", func(t *testing.T) {
		rec := newPolicyRecord("PMC1", "1", "10.1/a", "", false)
		reg := NewRegister()

		assert.False(t, AddToRerun(rec, domain.KindPMID, reg))
		assert.Zero(t, reg.Len())
		assert.False(t, rec.InOAG)
	})

	t.Run("doi without pmid has no fallback", func(t *testing.T) {
		rec := newPolicyRecord("PMC1", "", "10.1/a", "", false)
		assert.False(t, AddToRerun(rec, domain.KindDOI, NewRegister()))
	})
}

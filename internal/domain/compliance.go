package domain

import "github.com/helixir/oa-compliance-service/internal/licences"

// RecomputeCompliance derives the standard and deluxe compliance flags from
// in_epmc, aam, licence_type, licence_source and is_oa. It is idempotent and
// must be called after any of those inputs change.
//
//	standard: in EPMC and either an AAM or any CC-BY family licence
//	deluxe:   in EPMC and either an AAM or plain CC-BY sourced from EPMC on an OA article
func RecomputeCompliance(r *Record) {
	inEPMC := IsTrue(r.InEPMC)
	aam := IsTrue(r.AAM)

	standard := inEPMC && (aam || licences.IsCCBy(r.LicenceType))

	epmcSourced := r.LicenceSource == LicenceSourceEPMCXML || r.LicenceSource == LicenceSourceEPMC
	deluxe := inEPMC && (aam || (r.LicenceType == licences.CCBy && epmcSourced && IsTrue(r.IsOA)))

	r.StandardCompliance = BoolPtr(standard)
	r.DeluxeCompliance = BoolPtr(deluxe)
}

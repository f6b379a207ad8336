package coordinator

import "github.com/helixir/oa-compliance-service/internal/domain"

// RegisterWithOAG decides whether the record still needs a licence from the
// resolver. If it does, the best identifier is enqueued and marked sent;
// otherwise the licence phase is marked complete. Precedence is pmcid, then
// doi, then pmid.
func RegisterWithOAG(rec *domain.Record, register *Register) {
	switch {
	case rec.PMCID != "":
		if rec.AAMFromXML && rec.HasLicence() {
			rec.OAGComplete = true
			return
		}
		enqueue(rec, domain.KindPMCID, register)
	case rec.HasLicence():
		rec.OAGComplete = true
	case rec.DOI != "":
		enqueue(rec, domain.KindDOI, register)
	case rec.PMID != "":
		enqueue(rec, domain.KindPMID, register)
	default:
		rec.OAGComplete = true
	}
}

// AddToRerun escalates a record whose lookup by failedType was unsuccessful
// to its next identifier. pmcid falls back to doi and then pmid, doi falls
// back to pmid, and pmid has no fallback. It reports whether an identifier
// was enqueued.
func AddToRerun(rec *domain.Record, failedType domain.IdentifierKind, rerun *Register) bool {
	var next domain.IdentifierKind
	switch failedType {
	case domain.KindPMCID:
		switch {
		case rec.DOI != "":
			next = domain.KindDOI
		case rec.PMID != "":
			next = domain.KindPMID
		}
	case domain.KindDOI:
		if rec.PMID != "" {
			next = domain.KindPMID
		}
	}
	if next == "" {
		return false
	}
	enqueue(rec, next, rerun)
	return true
}

func enqueue(rec *domain.Record, kind domain.IdentifierKind, register *Register) {
	register.Add(domain.LookupItem{ID: rec.Identifier(kind), Type: kind})
	rec.InOAG = true
	rec.SetOAGStatus(kind, domain.OAGSent)
}

// awaitingResult reports whether rec still waits for the resolver's answer
// on its kind identifier. Anything else means the answer was applied by an
// earlier delivery of the same callback.
func awaitingResult(rec *domain.Record, kind domain.IdentifierKind) bool {
	return !rec.OAGComplete && rec.OAGStatusFor(kind) == domain.OAGSent
}

// resumeEscalation re-queues the identifier rec was escalated to, so a rerun
// whose dispatch failed is submitted when the callback is replayed.
func resumeEscalation(rec *domain.Record, rerun *Register) {
	if rec.OAGComplete || !rec.InOAG {
		return
	}
	for _, kind := range []domain.IdentifierKind{domain.KindDOI, domain.KindPMID} {
		if rec.OAGStatusFor(kind) == domain.OAGSent {
			rerun.Add(domain.LookupItem{ID: rec.Identifier(kind), Type: kind})
			return
		}
	}
}

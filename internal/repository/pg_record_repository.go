package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/oa-compliance-service/internal/database"
	"github.com/helixir/oa-compliance-service/internal/domain"
)

// Compile-time interface verification.
var _ RecordRepository = (*PgRecordRepository)(nil)

const recordColumns = `id, upload_id, upload_pos, source,
	pmcid, pmid, doi, title,
	has_ft_xml, aam_from_xml, aam_from_epmc, issn, in_oag,
	oag_pmcid, oag_pmid, oag_doi, epmc_complete, oag_complete,
	in_epmc, is_oa, aam, licence_type, licence_source, journal_type, confidence,
	standard_compliance, deluxe_compliance,
	publisher, journal_title, provenance,
	created_at, updated_at`

const insertRecordQuery = `
	INSERT INTO records (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)`

// PgRecordRepository is a PostgreSQL implementation of RecordRepository.
type PgRecordRepository struct {
	db DBTX
}

// NewPgRecordRepository creates a new PostgreSQL record repository.
func NewPgRecordRepository(db DBTX) *PgRecordRepository {
	return &PgRecordRepository{db: db}
}

// Create inserts a single record.
func (r *PgRecordRepository) Create(ctx context.Context, rec *domain.Record) error {
	args, err := insertArgs(rec)
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, insertRecordQuery, args...); err != nil {
		if isPgError(err, pgUniqueViolation) {
			return domain.NewAlreadyExistsError("record", rec.ID.String())
		}
		if isPgError(err, pgForeignKeyViolation) {
			return domain.NewNotFoundError("job", rec.UploadID.String())
		}
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// BulkCreate inserts records using a batch inside a single transaction.
func (r *PgRecordRepository) BulkCreate(ctx context.Context, recs []*domain.Record) error {
	if len(recs) == 0 {
		return nil
	}

	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			args, err := insertArgs(rec)
			if err != nil {
				return err
			}
			batch.Queue(insertRecordQuery, args...)
		}

		br := tx.SendBatch(ctx, batch)
		for i := range recs {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				if isPgError(err, pgForeignKeyViolation) {
					return domain.NewNotFoundError("job", recs[i].UploadID.String())
				}
				return fmt.Errorf("failed to insert record %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
		return nil
	})
}

// Get retrieves a record by ID.
func (r *PgRecordRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`

	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("record", id.String())
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// Save overwrites every mutable field of an existing record.
func (r *PgRecordRepository) Save(ctx context.Context, rec *domain.Record) error {
	if rec == nil {
		return domain.NewValidationError("record", "record cannot be nil")
	}
	rec.UpdatedAt = time.Now().UTC()

	args, err := recordArgs(rec)
	if err != nil {
		return err
	}

	query := `
		UPDATE records SET
			source = $2,
			pmcid = $3, pmid = $4, doi = $5, title = $6,
			has_ft_xml = $7, aam_from_xml = $8, aam_from_epmc = $9, issn = $10, in_oag = $11,
			oag_pmcid = $12, oag_pmid = $13, oag_doi = $14,
			epmc_complete = $15, oag_complete = $16,
			in_epmc = $17, is_oa = $18, aam = $19,
			licence_type = $20, licence_source = $21, journal_type = $22, confidence = $23,
			standard_compliance = $24, deluxe_compliance = $25,
			publisher = $26, journal_title = $27, provenance = $28,
			updated_at = $29
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, append(append([]interface{}{rec.ID}, args...), rec.UpdatedAt)...)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("record", rec.ID.String())
	}
	return nil
}

// ListByUpload returns the upload's records ordered by spreadsheet position.
func (r *PgRecordRepository) ListByUpload(ctx context.Context, uploadID uuid.UUID) ([]*domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE upload_id = $1 ORDER BY upload_pos ASC`

	rows, err := r.db.Query(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return collectRecords(rows)
}

// CountByUpload returns the number of records in an upload.
func (r *PgRecordRepository) CountByUpload(ctx context.Context, uploadID uuid.UUID) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM records WHERE upload_id = $1`, uploadID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// GetByIdentifier finds the upload's records carrying the identifier.
func (r *PgRecordRepository) GetByIdentifier(ctx context.Context, identifier string, uploadID uuid.UUID, kind domain.IdentifierKind) ([]*domain.Record, error) {
	if identifier == "" {
		return nil, nil
	}

	var where string
	switch kind {
	case "":
		where = `(pmcid = $2 OR pmid = $2 OR doi = $2)`
	case domain.KindPMCID:
		where = `pmcid = $2`
	case domain.KindPMID:
		where = `pmid = $2`
	case domain.KindDOI:
		where = `doi = $2`
	default:
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown identifier kind %q", kind))
	}

	query := `SELECT ` + recordColumns + ` FROM records WHERE upload_id = $1 AND ` + where + ` ORDER BY upload_pos ASC`

	rows, err := r.db.Query(ctx, query, uploadID, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to find records by identifier: %w", err)
	}
	return collectRecords(rows)
}

// UploadCompleteness counts records and their finished phases in one pass.
func (r *PgRecordRepository) UploadCompleteness(ctx context.Context, uploadID uuid.UUID) (*Completeness, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE epmc_complete),
			count(*) FILTER (WHERE oag_complete)
		FROM records
		WHERE upload_id = $1`

	var c Completeness
	if err := r.db.QueryRow(ctx, query, uploadID).Scan(&c.Total, &c.EPMCComplete, &c.OAGComplete); err != nil {
		return nil, fmt.Errorf("failed to aggregate completeness: %w", err)
	}
	return &c, nil
}

// ListDuplicateIdentifiers reports identifier values that occur on more than
// one record of the upload. Each kind is capped at the upload's record count.
func (r *PgRecordRepository) ListDuplicateIdentifiers(ctx context.Context, uploadID uuid.UUID) (Duplicates, error) {
	total, err := r.CountByUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	dups := make(Duplicates)
	if total == 0 {
		return dups, nil
	}

	query := `
		(SELECT 'pmcid' AS kind, pmcid AS value, count(*) AS n FROM records
			WHERE upload_id = $1 AND pmcid IS NOT NULL
			GROUP BY pmcid HAVING count(*) > 1 ORDER BY n DESC, value LIMIT $2)
		UNION ALL
		(SELECT 'pmid', pmid, count(*) AS n FROM records
			WHERE upload_id = $1 AND pmid IS NOT NULL
			GROUP BY pmid HAVING count(*) > 1 ORDER BY n DESC, pmid LIMIT $2)
		UNION ALL
		(SELECT 'doi', doi, count(*) AS n FROM records
			WHERE upload_id = $1 AND doi IS NOT NULL
			GROUP BY doi HAVING count(*) > 1 ORDER BY n DESC, doi LIMIT $2)`

	rows, err := r.db.Query(ctx, query, uploadID, total)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate identifiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind  string
			value string
			n     int
		)
		if err := rows.Scan(&kind, &value, &n); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate: %w", err)
		}
		k := domain.IdentifierKind(kind)
		dups[k] = append(dups[k], value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicates: %w", err)
	}

	return dups, nil
}

// insertArgs fills in ID and timestamps and returns the full column list.
func insertArgs(rec *domain.Record) ([]interface{}, error) {
	if rec == nil {
		return nil, domain.NewValidationError("record", "record cannot be nil")
	}
	if rec.UploadID == uuid.Nil {
		return nil, domain.NewValidationError("upload_id", "upload ID is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	args, err := recordArgs(rec)
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, 0, 32)
	out = append(out, rec.ID, rec.UploadID, rec.UploadPos)
	out = append(out, args...)
	out = append(out, rec.CreatedAt, rec.UpdatedAt)
	return out, nil
}

// recordArgs returns the mutable columns, source through provenance.
func recordArgs(rec *domain.Record) ([]interface{}, error) {
	source := rec.Source
	if source == nil {
		source = map[string]string{}
	}
	sourceJSON, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record source: %w", err)
	}

	provenance := rec.Provenance
	if provenance == nil {
		provenance = []domain.ProvenanceEntry{}
	}
	provenanceJSON, err := json.Marshal(provenance)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provenance: %w", err)
	}

	issn := rec.ISSN
	if issn == nil {
		issn = []string{}
	}

	return []interface{}{
		sourceJSON,
		nullString(rec.PMCID), nullString(rec.PMID), nullString(rec.DOI), nullString(rec.Title),
		rec.HasFTXML, rec.AAMFromXML, rec.AAMFromEPMC, issn, rec.InOAG,
		string(orNotSent(rec.OAGPMCID)), string(orNotSent(rec.OAGPMID)), string(orNotSent(rec.OAGDOI)),
		rec.EPMCComplete, rec.OAGComplete,
		rec.InEPMC, rec.IsOA, rec.AAM,
		nullString(rec.LicenceType), nullString(string(rec.LicenceSource)), nullString(string(rec.JournalType)), rec.Confidence,
		rec.StandardCompliance, rec.DeluxeCompliance,
		nullString(rec.Publisher), nullString(rec.JournalTitle), provenanceJSON,
	}, nil
}

func orNotSent(s domain.OAGStatus) domain.OAGStatus {
	if s == "" {
		return domain.OAGNotSent
	}
	return s
}

func collectRecords(rows pgx.Rows) ([]*domain.Record, error) {
	defer rows.Close()

	var recs []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return recs, nil
}

// recordScanDest holds the nullable intermediates for one records row.
type recordScanDest struct {
	rec           domain.Record
	source        []byte
	pmcid         *string
	pmid          *string
	doi           *string
	title         *string
	oagPMCID      string
	oagPMID       string
	oagDOI        string
	licenceType   *string
	licenceSource *string
	journalType   *string
	publisher     *string
	journalTitle  *string
	provenance    []byte
}

func (d *recordScanDest) destinations() []interface{} {
	r := &d.rec
	return []interface{}{
		&r.ID, &r.UploadID, &r.UploadPos, &d.source,
		&d.pmcid, &d.pmid, &d.doi, &d.title,
		&r.HasFTXML, &r.AAMFromXML, &r.AAMFromEPMC, &r.ISSN, &r.InOAG,
		&d.oagPMCID, &d.oagPMID, &d.oagDOI, &r.EPMCComplete, &r.OAGComplete,
		&r.InEPMC, &r.IsOA, &r.AAM, &d.licenceType, &d.licenceSource, &d.journalType, &r.Confidence,
		&r.StandardCompliance, &r.DeluxeCompliance,
		&d.publisher, &d.journalTitle, &d.provenance,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

func (d *recordScanDest) finalize() (*domain.Record, error) {
	r := &d.rec
	r.Source = map[string]string{}
	if len(d.source) > 0 {
		if err := json.Unmarshal(d.source, &r.Source); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record source: %w", err)
		}
	}
	if len(d.provenance) > 0 {
		if err := json.Unmarshal(d.provenance, &r.Provenance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal provenance: %w", err)
		}
	}

	r.PMCID = derefString(d.pmcid)
	r.PMID = derefString(d.pmid)
	r.DOI = derefString(d.doi)
	r.Title = derefString(d.title)
	r.OAGPMCID = domain.OAGStatus(d.oagPMCID)
	r.OAGPMID = domain.OAGStatus(d.oagPMID)
	r.OAGDOI = domain.OAGStatus(d.oagDOI)
	r.LicenceType = derefString(d.licenceType)
	r.LicenceSource = domain.LicenceSource(derefString(d.licenceSource))
	r.JournalType = domain.JournalType(derefString(d.journalType))
	r.Publisher = derefString(d.publisher)
	r.JournalTitle = derefString(d.journalTitle)
	if len(r.ISSN) == 0 {
		r.ISSN = nil
	}
	return r, nil
}

func scanRecord(row pgx.Row) (*domain.Record, error) {
	var d recordScanDest
	if err := row.Scan(d.destinations()...); err != nil {
		return nil, err
	}
	return d.finalize()
}

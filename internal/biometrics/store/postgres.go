package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rahimunlu/humanID/internal/biometrics/models"
)

// Postgres persists records in PostgreSQL. Schema lives in migrations/.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) PutVerification(ctx context.Context, record *models.VerificationRecord) error {
	if record == nil {
		return fmt.Errorf("verification record is required")
	}
	query := `
		INSERT INTO verification_records
			(verification_id, user_id, external_kyc_document_id, humanity_score,
			 original_filename, file_hash, file_size, encrypted_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.VerificationID,
		record.UserID,
		record.ExternalKYCDocumentID,
		record.HumanityScore,
		record.OriginalFilename,
		record.FileHash,
		record.FileSize,
		record.EncryptedPayloadRef,
		record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("put verification record: %w", err)
	}
	return nil
}

func (s *Postgres) PutSimilarity(ctx context.Context, record *models.SimilarityRecord) error {
	if record == nil {
		return fmt.Errorf("similarity record is required")
	}
	query := `
		INSERT INTO similarity_records
			(check_id, user_id, stored_verification_id, similarity_result,
			 probability_score, new_file_hash, stored_file_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.CheckID,
		record.UserID,
		record.StoredVerificationID,
		string(record.SimilarityResult),
		record.ProbabilityScore,
		record.NewFileHash,
		record.StoredFileHash,
		record.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("put similarity record: %w", err)
	}
	return nil
}

func (s *Postgres) GetVerification(ctx context.Context, verificationID string) (*models.VerificationRecord, error) {
	query := `
		SELECT verification_id, user_id, external_kyc_document_id, humanity_score,
		       original_filename, file_hash, file_size, encrypted_path, created_at
		FROM verification_records
		WHERE verification_id = $1
	`
	record, err := scanVerification(s.db.QueryRowContext(ctx, query, verificationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get verification record: %w", err)
	}
	return record, nil
}

func (s *Postgres) FindLatestEnrollment(ctx context.Context, userID string) (*models.VerificationRecord, error) {
	query := `
		SELECT verification_id, user_id, external_kyc_document_id, humanity_score,
		       original_filename, file_hash, file_size, encrypted_path, created_at
		FROM verification_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	record, err := scanVerification(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find latest enrollment: %w", err)
	}
	return record, nil
}

func (s *Postgres) ListVerificationsByUser(ctx context.Context, userID string) ([]*models.VerificationRecord, error) {
	query := `
		SELECT verification_id, user_id, external_kyc_document_id, humanity_score,
		       original_filename, file_hash, file_size, encrypted_path, created_at
		FROM verification_records
		WHERE user_id = $1
		ORDER BY created_at, verification_id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list verification records: %w", err)
	}
	defer rows.Close()

	var records []*models.VerificationRecord
	for rows.Next() {
		record, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification records: %w", err)
	}
	return records, nil
}

func (s *Postgres) ListSimilaritiesByUser(ctx context.Context, userID string) ([]*models.SimilarityRecord, error) {
	query := `
		SELECT check_id, user_id, stored_verification_id, similarity_result,
		       probability_score, new_file_hash, stored_file_hash, created_at
		FROM similarity_records
		WHERE user_id = $1
		ORDER BY created_at, check_id
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list similarity records: %w", err)
	}
	defer rows.Close()

	var records []*models.SimilarityRecord
	for rows.Next() {
		record := &models.SimilarityRecord{}
		var result string
		if err := rows.Scan(
			&record.CheckID,
			&record.UserID,
			&record.StoredVerificationID,
			&result,
			&record.ProbabilityScore,
			&record.NewFileHash,
			&record.StoredFileHash,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan similarity record: %w", err)
		}
		record.SimilarityResult = models.SimilarityResult(result)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarity records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*models.VerificationRecord, error) {
	record := &models.VerificationRecord{}
	err := row.Scan(
		&record.VerificationID,
		&record.UserID,
		&record.ExternalKYCDocumentID,
		&record.HumanityScore,
		&record.OriginalFilename,
		&record.FileHash,
		&record.FileSize,
		&record.EncryptedPayloadRef,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

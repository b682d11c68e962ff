package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
)

// VendorRepository implements port.VendorDirectory. Vendor names match
// case-insensitively; unknown vendors are not approved.
type VendorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *sql.DB, logger *zap.Logger) *VendorRepository {
	return &VendorRepository{
		db:     db,
		logger: logger,
	}
}

// IsApproved reports whether vendor is on the pre-approved list
func (r *VendorRepository) IsApproved(ctx context.Context, vendor string) (bool, error) {
	var approved bool
	err := getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT approved FROM vendors WHERE name = ?`, strings.TrimSpace(vendor)).Scan(&approved)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to look up vendor", zap.String("vendor", vendor), zap.Error(err))
		return false, fmt.Errorf("failed to look up vendor: %w", err)
	}
	return approved, nil
}

// SetApproved adds or updates a vendor
func (r *VendorRepository) SetApproved(ctx context.Context, vendor string, approved bool) error {
	query := `
		INSERT INTO vendors (name, approved, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET approved = excluded.approved, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := getExecutor(ctx, r.db).ExecContext(ctx, query, strings.TrimSpace(vendor), approved); err != nil {
		return fmt.Errorf("failed to set vendor approval: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.VendorDirectory = (*VendorRepository)(nil)

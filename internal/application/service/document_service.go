package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// DocumentService answers read queries about documents
type DocumentService interface {
	Get(ctx context.Context, number string) (*entity.Document, error)
	History(ctx context.Context, number string) ([]*entity.StatusChangeRecord, error)
}

type documentServiceImpl struct {
	store port.DocumentStore
	audit port.AuditLog
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(store port.DocumentStore, audit port.AuditLog) DocumentService {
	return &documentServiceImpl{store: store, audit: audit}
}

// Get returns one document or a NotFound transition error
func (s *documentServiceImpl) Get(ctx context.Context, number string) (*entity.Document, error) {
	doc, _, err := s.store.FindByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return nil, domainwf.NewNotFound(number)
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// History returns the status changes of an existing document, oldest first
func (s *documentServiceImpl) History(ctx context.Context, number string) ([]*entity.StatusChangeRecord, error) {
	if _, err := s.Get(ctx, number); err != nil {
		return nil, err
	}
	records, err := s.audit.ListByDocument(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return records, nil
}

package invoicetype

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/platform/validation"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "invoicetype").Logger()}
}

func normalize(it *InvoiceType) error {
	it.Code = strings.ToUpper(strings.TrimSpace(it.Code))
	it.Description = strings.TrimSpace(it.Description)
	return validation.Struct(it)
}

func (s *Service) CreateInvoiceType(ctx context.Context, it *InvoiceType) error {
	it.Active = true
	if err := normalize(it); err != nil {
		return err
	}
	return s.repo.Create(ctx, it)
}

func (s *Service) GetInvoiceType(ctx context.Context, key uuid.UUID) (*InvoiceType, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) ListInvoiceTypes(ctx context.Context, activeOnly bool) ([]*InvoiceType, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *Service) UpdateInvoiceType(ctx context.Context, it *InvoiceType) error {
	if err := normalize(it); err != nil {
		return err
	}
	return s.repo.Update(ctx, it)
}

func (s *Service) DeleteInvoiceType(ctx context.Context, key uuid.UUID) error {
	return s.repo.Delete(ctx, key)
}

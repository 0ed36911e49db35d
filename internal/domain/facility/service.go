package facility

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/dispensing/internal/platform/reconcile"
	"github.com/ehr/dispensing/internal/platform/validation"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "facility").Logger()}
}

func normalize(f *Facility) {
	f.Code = strings.ToUpper(strings.TrimSpace(f.Code))
	f.Name = strings.TrimSpace(f.Name)
	if f.TimeZone == "" {
		f.TimeZone = "UTC"
	}
}

func (s *Service) CreateFacility(ctx context.Context, f *Facility) error {
	normalize(f)
	f.Active = true
	for i := range f.SheetConfigs {
		if f.SheetConfigs[i].Copies == 0 {
			f.SheetConfigs[i].Copies = 1
		}
	}
	if err := validation.Struct(f); err != nil {
		return err
	}
	if err := validateNoticeTypes(f.NoticeTypes); err != nil {
		return err
	}
	if err := validateSheetConfigs(f.SheetConfigs); err != nil {
		return err
	}
	f.NoticeTypes = reconcile.Diff(nil, f.NoticeTypes).Added
	return s.repo.Create(ctx, f)
}

func (s *Service) GetFacility(ctx context.Context, key uuid.UUID) (*Facility, error) {
	return s.repo.Get(ctx, key)
}

func (s *Service) GetFacilityByCode(ctx context.Context, code string) (*Facility, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(code))
}

func (s *Service) ListFacilities(ctx context.Context, filter ListFilter, limit, offset int) ([]*Facility, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// UpdateFacility writes a new version of the facility's own fields. Child
// collections are changed through their dedicated operations.
func (s *Service) UpdateFacility(ctx context.Context, f *Facility) error {
	normalize(f)
	if f.Version < 1 {
		return validation.From(validation.Field("version", "is required"))
	}
	if err := validation.Struct(f); err != nil {
		return err
	}
	return s.repo.Update(ctx, f)
}

func (s *Service) DeleteFacility(ctx context.Context, key uuid.UUID, expectedVersion int) error {
	return s.repo.Delete(ctx, key, expectedVersion)
}

func (s *Service) FacilityHistory(ctx context.Context, key uuid.UUID) ([]*Facility, error) {
	return s.repo.History(ctx, key)
}

func (s *Service) UpdateFacilityContacts(ctx context.Context, key uuid.UUID, contacts []Contact) (reconcile.Summary, error) {
	for i := range contacts {
		contacts[i].FullName = strings.TrimSpace(contacts[i].FullName)
		if err := validation.Struct(&contacts[i]); err != nil {
			return reconcile.Summary{}, err
		}
	}
	summary, err := s.repo.UpdateContacts(ctx, key, contacts)
	if err != nil {
		return summary, err
	}
	s.logReconcile("contacts", key, summary)
	return summary, nil
}

func (s *Service) UpdateFacilityNoticeTypes(ctx context.Context, key uuid.UUID, types []NoticeType) (reconcile.Summary, error) {
	if err := validateNoticeTypes(types); err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.repo.UpdateNoticeTypes(ctx, key, types)
	if err != nil {
		return summary, err
	}
	s.logReconcile("notice_types", key, summary)
	return summary, nil
}

func (s *Service) UpdateFacilitySheetConfigs(ctx context.Context, key uuid.UUID, configs []SheetConfig) (reconcile.Summary, error) {
	for i := range configs {
		if configs[i].Copies == 0 {
			configs[i].Copies = 1
		}
		if err := validation.Struct(&configs[i]); err != nil {
			return reconcile.Summary{}, err
		}
	}
	if err := validateSheetConfigs(configs); err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.repo.UpdateSheetConfigs(ctx, key, configs)
	if err != nil {
		return summary, err
	}
	s.logReconcile("sheet_configs", key, summary)
	return summary, nil
}

func (s *Service) logReconcile(collection string, key uuid.UUID, summary reconcile.Summary) {
	s.logger.Debug().
		Str("facility_key", key.String()).
		Str("collection", collection).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("removed", summary.Removed).
		Msg("reconciled facility children")
}

func validateNoticeTypes(types []NoticeType) error {
	for i, nt := range types {
		if !nt.Valid() {
			return validation.From(validation.Field(fmt.Sprintf("notice_types[%d]", i),
				"must be one of: "+noticeTypes.String()))
		}
	}
	return nil
}

// validateSheetConfigs allows one configuration per sheet type.
func validateSheetConfigs(configs []SheetConfig) error {
	seen := make(map[SheetType]bool, len(configs))
	for i, sc := range configs {
		field := fmt.Sprintf("sheet_configs[%d].sheet_type", i)
		if !sc.SheetType.Valid() {
			return validation.From(validation.Field(field, "must be one of: "+sheetTypes.String()))
		}
		if seen[sc.SheetType] {
			return validation.From(validation.Field(field, "is listed more than once"))
		}
		seen[sc.SheetType] = true
	}
	return nil
}

package clinicaldata

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
	subjects  SubjectRepository
	userTypes UserTypeRepository
	logger    zerolog.Logger
}

func NewService(subjects SubjectRepository, userTypes UserTypeRepository, logger zerolog.Logger) *Service {
	return &Service{
		subjects:  subjects,
		userTypes: userTypes,
		logger:    logger.With().Str("component", "clinicaldata").Logger(),
	}
}

var errNoResponses = validation.From(validation.Field("responses", "a subject that requires a response needs at least one"))

// normalizeResponses defaults the kind, rejects duplicate texts and numbers
// the responses by position when no order was given.
func normalizeResponses(responses []Response) error {
	ordered := false
	seen := make(map[string]bool, len(responses))
	for i := range responses {
		resp := &responses[i]
		resp.Text = strings.TrimSpace(resp.Text)
		if resp.Kind == "" {
			resp.Kind = KindText
		}
		if err := validation.Struct(resp); err != nil {
			return err
		}
		if !resp.Kind.Valid() {
			return validation.From(validation.Field(fmt.Sprintf("responses[%d].kind", i),
				"must be one of: "+responseKinds.String()))
		}
		k := strings.ToLower(resp.Text)
		if seen[k] {
			return validation.From(validation.Field(fmt.Sprintf("responses[%d].text", i), "is listed more than once"))
		}
		seen[k] = true
		if resp.SortOrder != 0 {
			ordered = true
		}
	}
	if !ordered {
		for i := range responses {
			responses[i].SortOrder = i + 1
		}
	}
	return nil
}

func checkUserTypeKeys(keys []uuid.UUID) ([]uuid.UUID, error) {
	for _, k := range keys {
		if k == uuid.Nil {
			return nil, validation.From(validation.Field("user_type_keys", "must not contain an empty key"))
		}
	}
	return reconcile.Diff(nil, keys).Added, nil
}

func (s *Service) CreateSubject(ctx context.Context, subj *Subject) error {
	subj.Title = strings.TrimSpace(subj.Title)
	subj.Active = true
	if err := validation.Struct(subj); err != nil {
		return err
	}
	if err := normalizeResponses(subj.Responses); err != nil {
		return err
	}
	if subj.ResponseRequired && len(subj.Responses) == 0 {
		return errNoResponses
	}
	keys, err := checkUserTypeKeys(subj.UserTypeKeys)
	if err != nil {
		return err
	}
	subj.UserTypeKeys = keys
	return s.subjects.Create(ctx, subj)
}

func (s *Service) GetSubject(ctx context.Context, key uuid.UUID) (*Subject, error) {
	return s.subjects.Get(ctx, key)
}

func (s *Service) ListSubjects(ctx context.Context, facilityKey uuid.UUID, limit, offset int) ([]*Subject, int, error) {
	return s.subjects.List(ctx, facilityKey, limit, offset)
}

// UpdateSubject writes the subject fields. Responses and user types keep
// their own update operations.
func (s *Service) UpdateSubject(ctx context.Context, subj *Subject) error {
	subj.Title = strings.TrimSpace(subj.Title)
	cur, err := s.subjects.Get(ctx, subj.Key)
	if err != nil {
		return err
	}
	subj.FacilityKey = cur.FacilityKey
	if err := validation.Struct(subj); err != nil {
		return err
	}
	if subj.ResponseRequired && len(cur.Responses) == 0 {
		return errNoResponses
	}
	return s.subjects.Update(ctx, subj)
}

func (s *Service) DeleteSubject(ctx context.Context, key uuid.UUID) error {
	return s.subjects.Delete(ctx, key)
}

func (s *Service) UpdateSubjectResponses(ctx context.Context, subjectKey uuid.UUID, responses []Response) (reconcile.Summary, error) {
	if err := normalizeResponses(responses); err != nil {
		return reconcile.Summary{}, err
	}
	cur, err := s.subjects.Get(ctx, subjectKey)
	if err != nil {
		return reconcile.Summary{}, err
	}
	if cur.ResponseRequired && len(responses) == 0 {
		return reconcile.Summary{}, errNoResponses
	}
	summary, err := s.subjects.UpdateResponses(ctx, subjectKey, responses)
	if err != nil {
		return summary, err
	}
	s.logReconcile(subjectKey, "responses", summary)
	return summary, nil
}

func (s *Service) UpdateSubjectUserTypes(ctx context.Context, subjectKey uuid.UUID, userTypeKeys []uuid.UUID) (reconcile.Summary, error) {
	keys, err := checkUserTypeKeys(userTypeKeys)
	if err != nil {
		return reconcile.Summary{}, err
	}
	summary, err := s.subjects.UpdateUserTypes(ctx, subjectKey, keys)
	if err != nil {
		return summary, err
	}
	s.logReconcile(subjectKey, "user_types", summary)
	return summary, nil
}

func (s *Service) logReconcile(subjectKey uuid.UUID, collection string, summary reconcile.Summary) {
	s.logger.Debug().
		Str("subject_key", subjectKey.String()).
		Str("collection", collection).
		Int("added", summary.Added).
		Int("updated", summary.Updated).
		Int("removed", summary.Removed).
		Msg("reconciled subject children")
}

// -- User Types --

func (s *Service) ListUserTypes(ctx context.Context) ([]*UserType, error) {
	return s.userTypes.List(ctx)
}

func (s *Service) CreateUserType(ctx context.Context, u *UserType) error {
	u.Name = strings.TrimSpace(u.Name)
	if err := validation.Struct(u); err != nil {
		return err
	}
	return s.userTypes.Create(ctx, u)
}

func (s *Service) DeleteUserType(ctx context.Context, key uuid.UUID) error {
	return s.userTypes.Delete(ctx, key)
}

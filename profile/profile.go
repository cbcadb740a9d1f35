// Package profile manages the per-user profile and preferences documents and
// account deletion.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

// DeleteConfirmation must be typed by the user to delete their account.
const DeleteConfirmation = "Delete"

// Service reads and writes profile documents.
type Service struct {
	client *baas.Client
	logger *log.Logger
}

func NewService(client *baas.Client, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{client: client, logger: logger}
}

// Profile returns the stored profile of userID. The bool is false when the
// user never saved one.
func (s *Service) Profile(ctx context.Context, userID string) (domain.Profile, bool, error) {
	d, ok, err := s.first(ctx, baas.Profiles, userID)
	if err != nil || !ok {
		return domain.Profile{OwnerID: userID}, false, err
	}
	return profileFromDoc(d), true, nil
}

// SaveProfile creates the profile on first save and updates it afterwards.
func (s *Service) SaveProfile(ctx context.Context, userID string, p domain.Profile) (domain.Profile, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" {
		return domain.Profile{}, domain.Invalid("firstName", "first name is required")
	}
	d, err := s.upsert(ctx, baas.Profiles, userID, profileFields(p))
	if err != nil {
		return domain.Profile{}, err
	}
	return profileFromDoc(d), nil
}

// Preferences returns the stored preferences or the defaults.
func (s *Service) Preferences(ctx context.Context, userID string) (domain.Preferences, error) {
	d, ok, err := s.first(ctx, baas.Preferences, userID)
	if err != nil {
		return domain.Preferences{}, err
	}
	if !ok {
		return domain.DefaultPreferences(), nil
	}
	return preferencesFromDoc(d), nil
}

// SavePreferences validates and stores the preferences.
func (s *Service) SavePreferences(ctx context.Context, userID string, p domain.Preferences) (domain.Preferences, error) {
	if err := p.Validate(); err != nil {
		return domain.Preferences{}, err
	}
	d, err := s.upsert(ctx, baas.Preferences, userID, preferencesFields(p))
	if err != nil {
		return domain.Preferences{}, err
	}
	return preferencesFromDoc(d), nil
}

// DeleteAccount removes the profile document and then the account. The
// confirmation must equal DeleteConfirmation.
func (s *Service) DeleteAccount(ctx context.Context, session, userID, confirmation string) error {
	if confirmation != DeleteConfirmation {
		return domain.Invalid("confirmation", fmt.Sprintf("type %q to confirm", DeleteConfirmation))
	}
	d, ok, err := s.first(ctx, baas.Profiles, userID)
	if err != nil {
		return err
	}
	if ok {
		if err := s.client.Documents.Delete(ctx, baas.Profiles, userID, d.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return &domain.RemoteError{Op: "delete profile", Err: err}
		}
	}
	if err := s.client.Identity.DeleteAccount(ctx, session); err != nil {
		return &domain.RemoteError{Op: "delete account", Err: err}
	}
	s.logger.WithField("user", userID).Info("account deleted")
	return nil
}

func (s *Service) first(ctx context.Context, c baas.Collection, userID string) (baas.Document, bool, error) {
	docs, err := s.client.Documents.List(ctx, c, userID)
	if err != nil {
		return baas.Document{}, false, fmt.Errorf("%w: %s: %w", domain.ErrDataLoad, c, err)
	}
	for _, d := range docs {
		if d.OwnerID == userID {
			if len(docs) > 1 {
				s.logger.WithFields(log.Fields{"user": userID, "collection": c, "count": len(docs)}).Warn("multiple documents, using the first")
			}
			return d, true, nil
		}
	}
	return baas.Document{}, false, nil
}

func (s *Service) upsert(ctx context.Context, c baas.Collection, userID string, fields map[string]any) (baas.Document, error) {
	cur, ok, err := s.first(ctx, c, userID)
	if err != nil {
		return baas.Document{}, err
	}
	var d baas.Document
	if ok {
		d, err = s.client.Documents.Update(ctx, c, userID, cur.ID, fields)
	} else {
		d, err = s.client.Documents.Create(ctx, c, userID, "", fields)
	}
	if err != nil {
		return baas.Document{}, &domain.RemoteError{Op: "save " + string(c), Err: err}
	}
	return d, nil
}

func profileFields(p domain.Profile) map[string]any {
	return map[string]any{
		"firstName":   p.FirstName,
		"lastName":    p.LastName,
		"country":     p.Country,
		"phoneCode":   p.PhoneCode,
		"phoneNumber": p.PhoneNumber,
		"location":    p.Location,
		"birthDay":    p.BirthDay,
		"birthMonth":  p.BirthMonth,
	}
}

func profileFromDoc(d baas.Document) domain.Profile {
	return domain.Profile{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		FirstName:   d.String("firstName"),
		LastName:    d.String("lastName"),
		Country:     d.String("country"),
		PhoneCode:   d.String("phoneCode"),
		PhoneNumber: d.String("phoneNumber"),
		Location:    d.String("location"),
		BirthDay:    d.String("birthDay"),
		BirthMonth:  d.String("birthMonth"),
	}
}

func preferencesFields(p domain.Preferences) map[string]any {
	return map[string]any{
		"language":             p.Language,
		"timeZone":             p.TimeZone,
		"theme":                p.Theme,
		"dateFormat":           p.DateFormat,
		"timeFormat":           p.TimeFormat,
		"weekFormat":           p.WeekStart,
		"showOrgTasks":         p.ShowOrgTasks,
		"browserNotifications": p.BrowserNotifications,
	}
}

func preferencesFromDoc(d baas.Document) domain.Preferences {
	p := domain.Preferences{
		Language:             d.String("language"),
		TimeZone:             d.String("timeZone"),
		Theme:                d.String("theme"),
		DateFormat:           d.String("dateFormat"),
		TimeFormat:           d.String("timeFormat"),
		WeekStart:            d.String("weekFormat"),
		ShowOrgTasks:         d.Bool("showOrgTasks"),
		BrowserNotifications: d.Bool("browserNotifications"),
	}
	// Documents saved before a field existed fall back to the defaults.
	_ = p.Validate()
	return p
}

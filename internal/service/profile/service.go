// Package profile serves the caller's own account: profile edits,
// notification settings, devices, media and account deletion.
package profile

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/platform/identity"
	"github.com/oggyb/amora/internal/platform/storage"
	"github.com/oggyb/amora/internal/repository"
)

const (
	maxPhotos       = 6
	maxUploadBytes  = 10 << 20
	maxInterests    = 20
	maxInterestLen  = 32
	maxBioRunes     = 500
	minPreferredAge = 18
	maxPreferredAge = 100
	storageTimeout  = 20 * time.Second
)

var photoTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

var documentTypes = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"application/pdf": "pdf",
}

var platforms = map[string]bool{"ios": true, "android": true, "web": true}

type Service struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	devices *repository.DeviceRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		devices: repository.NewDeviceRepository(appCtx.DB),
	}
}

type Photo struct {
	ID       uint64 `json:"id"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

type ProfileView struct {
	Gender           string   `json:"gender"`
	Seeking          []string `json:"seeking"`
	Bio              string   `json:"bio"`
	Interests        []string `json:"interests"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	Hidden           bool     `json:"hidden"`
	Discoverable     bool     `json:"discoverable"`
	ShowOnlineStatus bool     `json:"show_online_status"`
	PremiumOnly      bool     `json:"premium_only"`
	AgeMin           int      `json:"age_min,omitempty"`
	AgeMax           int      `json:"age_max,omitempty"`
}

// Me is the caller's full account view.
type Me struct {
	ID                 uint64                  `json:"id"`
	Email              string                  `json:"email"`
	DisplayName        string                  `json:"display_name"`
	Age                int                     `json:"age,omitempty"`
	EmailVerified      bool                    `json:"email_verified"`
	IdentityVerified   bool                    `json:"identity_verified"`
	Premium            bool                    `json:"premium"`
	PremiumUntil       *time.Time              `json:"premium_until,omitempty"`
	HasVerificationDoc bool                    `json:"has_verification_document"`
	Profile            ProfileView             `json:"profile"`
	Photos             []Photo                 `json:"photos"`
	Notifications      db.NotificationSettings `json:"notification_settings"`
}

func (s *Service) Get(ctx context.Context, userID uint64) (*Me, error) {
	u, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	photos, err := s.users.ListPhotos(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	now := s.appCtx.Now()
	p := u.Profile
	me := &Me{
		ID:                 u.ID,
		Email:              u.Email,
		DisplayName:        u.DisplayName,
		Age:                u.Age(now),
		EmailVerified:      u.EmailVerified,
		IdentityVerified:   u.IdentityVerified,
		Premium:            u.PremiumAt(now),
		PremiumUntil:       u.PremiumUntil,
		HasVerificationDoc: u.VerificationDocKey != "",
		Notifications:      u.Notify,
		Photos:             make([]Photo, 0, len(photos)),
		Profile: ProfileView{
			Gender:           p.Gender,
			Seeking:          db.GendersFromMask(p.SoughtGenders),
			Bio:              p.Bio,
			Interests:        p.Interests,
			Latitude:         p.Latitude,
			Longitude:        p.Longitude,
			Hidden:           p.Hidden,
			Discoverable:     p.Discoverable,
			ShowOnlineStatus: p.ShowOnlineStatus,
			PremiumOnly:      p.PremiumOnly,
			AgeMin:           p.AgeMin,
			AgeMax:           p.AgeMax,
		},
	}
	if me.Profile.Interests == nil {
		me.Profile.Interests = []string{}
	}
	for _, ph := range photos {
		me.Photos = append(me.Photos, Photo{ID: ph.ID, URL: ph.URL, Position: ph.Position})
	}
	return me, nil
}

// UpdateInput is a partial update; nil fields are left alone. Latitude and
// Longitude travel together, and ClearLocation wipes both.
type UpdateInput struct {
	DisplayName      *string   `json:"display_name,omitempty"`
	Gender           *string   `json:"gender,omitempty"`
	Seeking          []string  `json:"seeking,omitempty"`
	Bio              *string   `json:"bio,omitempty"`
	Interests        *[]string `json:"interests,omitempty"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	ClearLocation    bool      `json:"clear_location,omitempty"`
	Hidden           *bool     `json:"hidden,omitempty"`
	Discoverable     *bool     `json:"discoverable,omitempty"`
	ShowOnlineStatus *bool     `json:"show_online_status,omitempty"`
	PremiumOnly      *bool     `json:"premium_only,omitempty"`
	AgeMin           *int      `json:"age_min,omitempty"`
	AgeMax           *int      `json:"age_max,omitempty"`
}

// Update applies in to the caller's profile.
func (s *Service) Update(ctx context.Context, userID uint64, in UpdateInput) (*Me, error) {
	u, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	p := u.Profile
	p.UserID = u.ID

	if in.Gender != nil {
		g := strings.ToLower(strings.TrimSpace(*in.Gender))
		if db.GenderMask(g) == 0 {
			return nil, svcErr.InvalidArgument("gender must be one of male, female, nonbinary")
		}
		p.Gender = g
	}
	if in.Seeking != nil {
		mask, ok := db.MaskFromGenders(in.Seeking)
		if !ok || mask == 0 {
			return nil, svcErr.InvalidArgument("seeking contains an unknown gender")
		}
		p.SoughtGenders = mask
	}
	if in.Bio != nil {
		if utf8.RuneCountInString(*in.Bio) > maxBioRunes {
			return nil, svcErr.InvalidArgument(fmt.Sprintf("bio is limited to %d characters", maxBioRunes))
		}
		p.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.Interests != nil {
		tags, err := normalizeInterests(*in.Interests)
		if err != nil {
			return nil, err
		}
		p.Interests = tags
	}
	switch {
	case in.ClearLocation:
		p.Latitude, p.Longitude = nil, nil
	case in.Latitude != nil || in.Longitude != nil:
		if in.Latitude == nil || in.Longitude == nil {
			return nil, svcErr.InvalidArgument("latitude and longitude must be set together")
		}
		if *in.Latitude < -90 || *in.Latitude > 90 || *in.Longitude < -180 || *in.Longitude > 180 {
			return nil, svcErr.InvalidArgument("coordinates out of range")
		}
		p.Latitude, p.Longitude = in.Latitude, in.Longitude
	}
	if in.Hidden != nil {
		p.Hidden = *in.Hidden
	}
	if in.Discoverable != nil {
		p.Discoverable = *in.Discoverable
	}
	if in.ShowOnlineStatus != nil {
		p.ShowOnlineStatus = *in.ShowOnlineStatus
	}
	if in.PremiumOnly != nil {
		if *in.PremiumOnly && !u.PremiumAt(s.appCtx.Now()) {
			return nil, svcErr.ErrPremiumRequired
		}
		p.PremiumOnly = *in.PremiumOnly
	}
	if in.AgeMin != nil {
		p.AgeMin = *in.AgeMin
	}
	if in.AgeMax != nil {
		p.AgeMax = *in.AgeMax
	}
	if err := validateAgeRange(p.AgeMin, p.AgeMax); err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if name == "" || len(name) > 64 {
			return nil, svcErr.InvalidArgument("display_name is required (max 64 characters)")
		}
		if err := s.users.UpdateFields(ctx, userID, map[string]any{"display_name": name}); err != nil {
			return nil, svcErr.Map(err)
		}
	}
	if err := s.users.SaveProfile(ctx, &p); err != nil {
		return nil, svcErr.Map(err)
	}
	s.bumpDiscovery(ctx, userID)
	return s.Get(ctx, userID)
}

func validateAgeRange(lo, hi int) error {
	check := func(v int) bool { return v == 0 || (v >= minPreferredAge && v <= maxPreferredAge) }
	if !check(lo) || !check(hi) {
		return svcErr.InvalidArgument(fmt.Sprintf("age range must be between %d and %d", minPreferredAge, maxPreferredAge))
	}
	if lo > 0 && hi > 0 && lo > hi {
		return svcErr.InvalidArgument("age_min must not exceed age_max")
	}
	return nil
}

func normalizeInterests(in []string) ([]string, error) {
	if len(in) > maxInterests {
		return nil, svcErr.InvalidArgument(fmt.Sprintf("at most %d interests", maxInterests))
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > maxInterestLen {
			return nil, svcErr.InvalidArgument("interest tags are limited to 32 characters")
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out, nil
}

// UpdateNotifications replaces the preference record.
func (s *Service) UpdateNotifications(ctx context.Context, userID uint64, in db.NotificationSettings) (*db.NotificationSettings, error) {
	if !in.Validate() {
		return nil, svcErr.InvalidArgument("quiet hours must be minutes within a day and the offset within ±14h")
	}
	if err := s.users.SaveNotificationSettings(ctx, userID, in); err != nil {
		return nil, svcErr.Map(err)
	}
	return &in, nil
}

type DeviceInput struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
	Platform string `json:"platform"`
}

// RegisterDevice upserts a push token for the caller.
func (s *Service) RegisterDevice(ctx context.Context, userID uint64, in DeviceInput) error {
	token := strings.TrimSpace(in.Token)
	if token == "" || len(token) > 255 {
		return svcErr.InvalidArgument("token is required")
	}
	platform := strings.ToLower(strings.TrimSpace(in.Platform))
	if !platforms[platform] {
		return svcErr.InvalidArgument("platform must be ios, android or web")
	}
	err := s.devices.Upsert(ctx, &db.DeviceToken{
		UserID:     userID,
		Token:      token,
		DeviceID:   strings.TrimSpace(in.DeviceID),
		Platform:   platform,
		LastSeenAt: s.appCtx.Now(),
	})
	if err != nil {
		return svcErr.Map(err)
	}
	return nil
}

func (s *Service) RemoveDevice(ctx context.Context, userID uint64, token string) error {
	removed, err := s.devices.Delete(ctx, userID, token)
	if err != nil {
		return svcErr.Map(err)
	}
	if !removed {
		return svcErr.NotFound("device token not found")
	}
	return nil
}

// Upload is a file received from a multipart form.
type Upload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
}

// AddPhoto stores a public profile photo.
func (s *Service) AddPhoto(ctx context.Context, userID uint64, up Upload) (*Photo, error) {
	ext, ok := photoTypes[up.ContentType]
	if !ok {
		return nil, svcErr.InvalidArgument("photo must be jpeg, png or webp")
	}
	if up.Size <= 0 || up.Size > maxUploadBytes {
		return nil, svcErr.InvalidArgument("photo must be at most 10MB")
	}
	existing, err := s.users.ListPhotos(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if len(existing) >= maxPhotos {
		return nil, svcErr.InvalidArgument(fmt.Sprintf("at most %d photos", maxPhotos))
	}

	key := fmt.Sprintf("photos/%d/%s.%s", userID, uuid.NewString(), ext)
	upCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	if err := s.appCtx.Storage.Upload(upCtx, storage.Public, key, up.Reader, up.Size, up.ContentType); err != nil {
		return nil, svcErr.Internal("photo upload failed", err)
	}

	photo := &db.ProfilePhoto{UserID: userID, ObjectKey: key, URL: s.appCtx.Storage.PublicURL(key)}
	if err := s.users.AddPhoto(ctx, photo); err != nil {
		s.deleteBlob(ctx, storage.Public, key)
		return nil, svcErr.Map(err)
	}
	s.bumpDiscovery(ctx, userID)
	return &Photo{ID: photo.ID, URL: photo.URL, Position: photo.Position}, nil
}

func (s *Service) DeletePhoto(ctx context.Context, userID, photoID uint64) error {
	photo, err := s.users.DeletePhoto(ctx, userID, photoID)
	if repository.IsNotFound(err) {
		return svcErr.NotFound("photo not found")
	}
	if err != nil {
		return svcErr.Map(err)
	}
	s.deleteBlob(ctx, storage.Public, photo.ObjectKey)
	s.bumpDiscovery(ctx, userID)
	return nil
}

// UploadVerificationDocument stores an identity document privately,
// replacing any previous one.
func (s *Service) UploadVerificationDocument(ctx context.Context, userID uint64, up Upload) error {
	ext, ok := documentTypes[up.ContentType]
	if !ok {
		return svcErr.InvalidArgument("document must be jpeg, png or pdf")
	}
	if up.Size <= 0 || up.Size > maxUploadBytes {
		return svcErr.InvalidArgument("document must be at most 10MB")
	}
	u, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return svcErr.Map(err)
	}

	key := fmt.Sprintf("verification/%d/%s.%s", userID, uuid.NewString(), ext)
	upCtx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	if err := s.appCtx.Storage.Upload(upCtx, storage.Private, key, up.Reader, up.Size, up.ContentType); err != nil {
		return svcErr.Internal("document upload failed", err)
	}
	if err := s.users.UpdateFields(ctx, userID, map[string]any{"verification_doc_key": key}); err != nil {
		s.deleteBlob(ctx, storage.Private, key)
		return svcErr.Map(err)
	}
	if old := u.VerificationDocKey; old != "" {
		s.deleteBlob(ctx, storage.Private, old)
	}
	return nil
}

// VerificationDocumentURL returns a signed, time-limited link.
func (s *Service) VerificationDocumentURL(ctx context.Context, userID uint64) (string, time.Time, error) {
	u, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return "", time.Time{}, svcErr.Map(err)
	}
	if u.VerificationDocKey == "" {
		return "", time.Time{}, svcErr.NotFound("no verification document uploaded")
	}
	ttl := s.appCtx.Config.Storage.SignedURLTTL
	url, err := s.appCtx.Storage.SignedURL(ctx, u.VerificationDocKey, ttl)
	if err != nil {
		return "", time.Time{}, svcErr.Internal("failed to sign document url", err)
	}
	return url, s.appCtx.Now().Add(ttl), nil
}

// DeleteAccount anonymizes the account, drops its tokens and media, and
// disables the identity-provider user. Matches and messages stay as history.
func (s *Service) DeleteAccount(ctx context.Context, userID uint64) error {
	u, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	photos, err := s.users.ListPhotos(ctx, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	if err := s.users.Anonymize(ctx, userID, s.appCtx.Now()); err != nil {
		return svcErr.Map(err)
	}

	for _, p := range photos {
		s.deleteBlob(ctx, storage.Public, p.ObjectKey)
	}
	if u.VerificationDocKey != "" {
		s.deleteBlob(ctx, storage.Private, u.VerificationDocKey)
	}
	if u.FirebaseUID != nil && s.appCtx.Identity != nil {
		disabled := true
		if _, err := s.appCtx.Identity.UpdateUser(ctx, *u.FirebaseUID, identity.UserParams{Disabled: &disabled}); err != nil {
			s.appCtx.Log(ctx).Warn("failed to disable identity user", "user_id", userID, "err", err)
		}
	}
	s.bumpDiscovery(ctx, userID)
	s.appCtx.Log(ctx).Info("account deleted", "user_id", userID)
	return nil
}

func (s *Service) deleteBlob(ctx context.Context, vis storage.Visibility, key string) {
	if err := s.appCtx.Storage.Delete(ctx, vis, key); err != nil {
		s.appCtx.Log(ctx).Warn("blob delete failed", "key", key, "err", err)
	}
}

func (s *Service) bumpDiscovery(ctx context.Context, userID uint64) {
	if err := s.appCtx.RedisCache.BumpDiscoveryVersion(ctx, userID); err != nil {
		s.appCtx.Log(ctx).Warn("discovery version bump failed", "user_id", userID, "err", err)
	}
}

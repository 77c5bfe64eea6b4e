package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/platform/identity"
	"github.com/oggyb/amora/internal/platform/mailer"
	"github.com/oggyb/amora/internal/repository"
	"github.com/oggyb/amora/internal/server/httpx"
)

const (
	minPasswordLen = 8
	minAge         = 18
	touchInterval  = 5 * time.Minute
)

// Service implements registration, login and bearer authentication.
type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
	jwt    *JWTManager
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
		jwt:    NewJWTManager(appCtx.Config.Auth.JWTSecret, appCtx.Config.Auth.Issuer, appCtx.Now),
	}
}

type RegisterInput struct {
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	DisplayName string   `json:"display_name"`
	BirthDate   string   `json:"birth_date"`
	Gender      string   `json:"gender"`
	Seeking     []string `json:"seeking,omitempty"`
}

// Account is the public view of a freshly authenticated user.
type Account struct {
	ID            uint64 `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	EmailVerified bool   `json:"email_verified"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *Account  `json:"user,omitempty"`
}

// Register creates a local account with its profile.
//
// Behavior:
//   - Validates email, password length, age and gender.
//   - Best-effort mirrors the account into the identity provider.
//   - Sends the verification email off the request path.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	s.appCtx.Log(ctx).Debug("Register called", "email", in.Email)

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLen {
		return nil, svcErr.InvalidArgument(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" || len(name) > 64 {
		return nil, svcErr.InvalidArgument("display_name is required (max 64 characters)")
	}
	birth, err := time.Parse("2006-01-02", in.BirthDate)
	if err != nil {
		return nil, svcErr.InvalidArgument("birth_date must be YYYY-MM-DD")
	}
	gender := strings.ToLower(strings.TrimSpace(in.Gender))
	if db.GenderMask(gender) == 0 {
		return nil, svcErr.InvalidArgument("gender must be one of male, female, nonbinary")
	}
	seeking := db.MaskFromAll()
	if len(in.Seeking) > 0 {
		mask, ok := db.MaskFromGenders(in.Seeking)
		if !ok {
			return nil, svcErr.InvalidArgument("seeking contains an unknown gender")
		}
		seeking = mask
	}

	u := &db.User{
		Email:        email,
		DisplayName:  name,
		BirthDate:    &birth,
		Active:       true,
		LastActiveAt: s.appCtx.Now(),
		Notify:       db.DefaultNotificationSettings(),
		Profile: db.Profile{
			Gender:        gender,
			SoughtGenders: seeking,
			Discoverable:  true,
		},
	}
	if u.Age(s.appCtx.Now()) < minAge {
		return nil, svcErr.InvalidArgument(fmt.Sprintf("you must be at least %d", minAge))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, svcErr.Internal("failed to hash password", err)
	}
	u.PasswordHash = string(hash)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, svcErr.AlreadyExists("email already registered")
	} else if !repository.IsNotFound(err) {
		return nil, svcErr.Map(err)
	}

	if err := s.users.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, svcErr.AlreadyExists("email already registered")
		}
		s.appCtx.Log(ctx).Error("Register: create user failed", "err", err)
		return nil, svcErr.Map(err)
	}

	s.mirrorToProvider(ctx, u, in.Password)
	s.sendVerification(ctx, u)

	return s.session(u)
}

// mirrorToProvider creates the identity-provider account; failures are logged only.
func (s *Service) mirrorToProvider(ctx context.Context, u *db.User, password string) {
	if s.appCtx.Identity == nil {
		return
	}
	rec, err := s.appCtx.Identity.CreateUser(ctx, identity.UserParams{
		Email:       u.Email,
		Password:    password,
		DisplayName: u.DisplayName,
	})
	if err != nil {
		s.appCtx.Log(ctx).Warn("identity provider user creation failed", "user_id", u.ID, "err", err)
		return
	}
	if err := s.users.UpdateFields(ctx, u.ID, map[string]any{"firebase_uid": rec.UID}); err != nil {
		s.appCtx.Log(ctx).Warn("failed to link provider uid", "user_id", u.ID, "err", err)
		return
	}
	u.FirebaseUID = &rec.UID
}

func (s *Service) sendVerification(ctx context.Context, u *db.User) {
	log := s.appCtx.Log(ctx)
	token, _, err := s.jwt.Issue(u.ID, PurposeVerifyEmail, s.appCtx.Config.Auth.VerifyEmailTTL)
	if err != nil {
		log.Error("failed to mint verification token", "user_id", u.ID, "err", err)
		return
	}
	link := strings.TrimRight(s.appCtx.Config.App.BaseURL, "/") + "/v1/auth/verify-email?token=" + url.QueryEscape(token)
	email := mailer.Email{
		To:      u.Email,
		Subject: "Confirm your email",
		Body:    fmt.Sprintf("<p>Hi %s,</p><p>Confirm your email: <a href=\"%s\">%s</a></p>", u.DisplayName, link, link),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.appCtx.Mailer.Send(ctx, email); err != nil {
			log.Warn("verification email failed", "user_id", u.ID, "err", err)
		}
	}()
}

// Login checks credentials. Failed attempts per email are rate limited.
func (s *Service) Login(ctx context.Context, emailIn, password string) (*Session, error) {
	email, err := normalizeEmail(emailIn)
	if err != nil {
		return nil, err
	}
	key := "login:fail:" + email

	if n, err := s.appCtx.RedisCache.WindowCount(ctx, key); err == nil && n >= int64(s.appCtx.Config.Auth.LoginAttempts) {
		return nil, svcErr.QuotaExceeded("too many login attempts, try again later")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil && !repository.IsNotFound(err) {
		return nil, svcErr.Map(err)
	}
	if u == nil || !u.Active || u.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		if _, err := s.appCtx.RedisCache.IncrementWindow(ctx, key, s.appCtx.Config.Auth.LoginWindow); err != nil {
			s.appCtx.Log(ctx).Warn("login limiter unavailable", "err", err)
		}
		return nil, svcErr.Unauthenticated("invalid email or password")
	}

	_ = s.appCtx.RedisCache.Del(ctx, key)
	_ = s.users.Touch(ctx, u.ID, s.appCtx.Now())
	return s.session(u)
}

// FirebaseLogin exchanges a provider ID token for a local token, linking by
// provider uid, then by email, else creating the account.
func (s *Service) FirebaseLogin(ctx context.Context, idToken string) (*Session, error) {
	if s.appCtx.Identity == nil {
		return nil, svcErr.Unauthenticated("identity provider is not configured")
	}
	claims, err := s.appCtx.Identity.VerifyIDToken(ctx, idToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return nil, svcErr.Unauthenticated("invalid identity token")
		}
		return nil, svcErr.Internal("identity provider unavailable", err)
	}

	u, err := s.users.FindByFirebaseUID(ctx, claims.UID)
	if err == nil {
		if !u.Active {
			return nil, svcErr.Unauthenticated("account disabled")
		}
		_ = s.users.Touch(ctx, u.ID, s.appCtx.Now())
		return s.session(u)
	}
	if !repository.IsNotFound(err) {
		return nil, svcErr.Map(err)
	}

	if claims.Email != "" {
		email := strings.ToLower(claims.Email)
		u, err = s.users.FindByEmail(ctx, email)
		switch {
		case err == nil:
			if !u.Active {
				return nil, svcErr.Unauthenticated("account disabled")
			}
			fields := map[string]any{"firebase_uid": claims.UID}
			if claims.EmailVerified {
				fields["email_verified"] = true
				u.EmailVerified = true
			}
			if err := s.users.UpdateFields(ctx, u.ID, fields); err != nil {
				return nil, svcErr.Map(err)
			}
			u.FirebaseUID = &claims.UID
			return s.session(u)
		case !repository.IsNotFound(err):
			return nil, svcErr.Map(err)
		}
	}

	return s.createFromClaims(ctx, claims)
}

func (s *Service) createFromClaims(ctx context.Context, c *identity.Claims) (*Session, error) {
	email := strings.ToLower(c.Email)
	if email == "" {
		email = c.UID + "@users.noreply.amora"
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	if len(name) > 64 {
		name = name[:64]
	}
	uid := c.UID
	u := &db.User{
		Email:         email,
		FirebaseUID:   &uid,
		DisplayName:   name,
		EmailVerified: c.EmailVerified,
		Active:        true,
		LastActiveAt:  s.appCtx.Now(),
		Notify:        db.DefaultNotificationSettings(),
		// hidden from discovery until the profile is completed
		Profile: db.Profile{SoughtGenders: db.MaskFromAll()},
	}
	if err := s.users.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, svcErr.AlreadyExists("account already exists")
		}
		return nil, svcErr.Map(err)
	}
	s.appCtx.Log(ctx).Info("account created from identity provider", "user_id", u.ID)
	return s.session(u)
}

// VerifyEmail consumes a verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.jwt.Parse(token, PurposeVerifyEmail)
	if err != nil {
		return svcErr.InvalidArgument("invalid or expired verification token")
	}
	u, err := s.users.FindActive(ctx, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	if err := s.users.UpdateFields(ctx, userID, map[string]any{"email_verified": true}); err != nil {
		return svcErr.Map(err)
	}
	if s.appCtx.Identity != nil && u.FirebaseUID != nil {
		verified := true
		if _, err := s.appCtx.Identity.UpdateUser(ctx, *u.FirebaseUID, identity.UserParams{EmailVerified: &verified}); err != nil {
			s.appCtx.Log(ctx).Warn("identity provider verify sync failed", "user_id", userID, "err", err)
		}
	}
	return nil
}

// Authenticate resolves a bearer token: local JWT first, then the provider.
func (s *Service) Authenticate(ctx context.Context, token string) (httpx.Principal, error) {
	via := "jwt"
	var (
		u   *db.User
		err error
	)
	if userID, jerr := s.jwt.Parse(token, PurposeAccess); jerr == nil {
		u, err = s.users.FindByID(ctx, userID)
	} else {
		if s.appCtx.Identity == nil {
			return httpx.Principal{}, svcErr.Unauthenticated("invalid access token")
		}
		claims, verr := s.appCtx.Identity.VerifyIDToken(ctx, token)
		if verr != nil {
			if errors.Is(verr, identity.ErrInvalidToken) {
				return httpx.Principal{}, svcErr.Unauthenticated("invalid access token")
			}
			return httpx.Principal{}, svcErr.Internal("identity provider unavailable", verr)
		}
		via = "firebase"
		u, err = s.users.FindByFirebaseUID(ctx, claims.UID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return httpx.Principal{}, svcErr.Unauthenticated("unknown account")
	}
	if err != nil {
		return httpx.Principal{}, svcErr.Map(err)
	}
	if !u.Active {
		return httpx.Principal{}, svcErr.Unauthenticated("account disabled")
	}

	if now := s.appCtx.Now(); now.Sub(u.LastActiveAt) > touchInterval {
		_ = s.users.Touch(ctx, u.ID, now)
	}
	return httpx.Principal{UserID: u.ID, IsStaff: u.IsStaff, Via: via}, nil
}

func (s *Service) session(u *db.User) (*Session, error) {
	token, exp, err := s.jwt.Issue(u.ID, PurposeAccess, s.appCtx.Config.Auth.AccessTTL)
	if err != nil {
		return nil, svcErr.Internal("failed to issue token", err)
	}
	return &Session{
		Token:     token,
		ExpiresAt: exp,
		User: &Account{
			ID:            u.ID,
			Email:         u.Email,
			DisplayName:   u.DisplayName,
			EmailVerified: u.EmailVerified,
		},
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", svcErr.InvalidArgument("a valid email is required")
	}
	return email, nil
}

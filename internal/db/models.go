package db

import (
	"time"

	"gorm.io/gorm"
)

// Interaction kinds.
const (
	KindLike      = "like"
	KindSuperLike = "super_like"
	KindPass      = "pass"
)

// Feed moderation states.
const (
	PostPending  = "pending"
	PostApproved = "approved"
	PostRejected = "rejected"
)

// Subscription states.
const (
	SubActive   = "active"
	SubCanceled = "canceled"
	SubExpired  = "expired"
)

// User is the account record. Accounts are never hard-deleted; deletion
// anonymizes the row and flips Active off.
type User struct {
	ID                 uint64  `gorm:"primaryKey;autoIncrement"`
	Email              string  `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash       string  `gorm:"size:255"`
	FirebaseUID        *string `gorm:"uniqueIndex;size:128"`
	DisplayName        string  `gorm:"size:64;not null"`
	BirthDate          *time.Time
	EmailVerified      bool `gorm:"not null"`
	IdentityVerified   bool `gorm:"not null"`
	IsPremium          bool `gorm:"not null"`
	PremiumUntil       *time.Time
	IsStaff            bool   `gorm:"not null"`
	Active             bool   `gorm:"not null;index"`
	VerificationDocKey string `gorm:"size:255"`
	LastActiveAt       time.Time            `gorm:"index"`
	Notify             NotificationSettings `gorm:"embedded;embeddedPrefix:notify_"`
	AnonymizedAt       *time.Time
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`

	Profile Profile `gorm:"foreignKey:UserID"`
}

// PremiumAt reports whether the premium flag is live at now.
func (u *User) PremiumAt(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	return u.PremiumUntil == nil || u.PremiumUntil.After(now)
}

// Age returns whole years since BirthDate, or 0 when unknown.
func (u *User) Age(now time.Time) int {
	if u.BirthDate == nil {
		return 0
	}
	b := *u.BirthDate
	years := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		years--
	}
	return years
}

// Profile is 1:1 with User and holds everything discovery filters on.
//
// SoughtGenders is a bitmask over GenderMask values so the reciprocal
// preference check stays a portable integer expression in SQL.
type Profile struct {
	UserID           uint64   `gorm:"primaryKey"`
	Gender           string   `gorm:"size:16;not null;index"`
	SoughtGenders    uint8    `gorm:"not null"`
	Bio              string   `gorm:"size:500"`
	Interests        []string `gorm:"serializer:json;type:text"`
	Latitude         *float64
	Longitude        *float64
	Hidden           bool `gorm:"not null"`
	Discoverable     bool `gorm:"not null"`
	ShowOnlineStatus bool `gorm:"not null"`
	PremiumOnly      bool `gorm:"not null"`
	AgeMin           int  `gorm:"not null"`
	AgeMax           int  `gorm:"not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// HasLocation is true when both coordinates are present.
func (p *Profile) HasLocation() bool { return p.Latitude != nil && p.Longitude != nil }

type DeviceToken struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserID     uint64    `gorm:"not null;index"`
	Token      string    `gorm:"uniqueIndex;size:255;not null"`
	DeviceID   string    `gorm:"size:128"`
	Platform   string    `gorm:"size:16;not null"`
	LastSeenAt time.Time `gorm:"index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

type ProfilePhoto struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;index"`
	ObjectKey string    `gorm:"size:255;not null"`
	URL       string    `gorm:"size:512;not null"`
	Position  int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Block is directed on disk; every read treats it as symmetric.
type Block struct {
	BlockerID uint64    `gorm:"primaryKey"`
	BlockedID uint64    `gorm:"primaryKey;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Interaction represents an actor's like/super_like/pass on a target.
//
// Composite PK: (ActorID, TargetID)
//   - Ensures a single row per pair (overwrite guarantee).
//
// Indexes:
//   - idx_target_kind_updated_actor(target_id, kind, updated_at DESC, actor_id)
//     Optimizes "who liked me" lists with pagination.
//   - idx_actor_target_kind(actor_id, target_id, kind)
//     Optimizes reciprocal like checks.
//
// Consumed is set on both rows once they produced a Match.
type Interaction struct {
	ActorID   uint64    `gorm:"primaryKey;index:idx_actor_target_kind,priority:1"`
	TargetID  uint64    `gorm:"primaryKey;index:idx_target_kind_updated_actor,priority:1;index:idx_actor_target_kind,priority:2"`
	Kind      string    `gorm:"size:16;not null;index:idx_target_kind_updated_actor,priority:2;index:idx_actor_target_kind,priority:3"`
	Consumed  bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index:idx_target_kind_updated_actor,priority:3,sort:desc"`
}

// IsLike is true for like and super_like.
func (i *Interaction) IsLike() bool { return IsLikeKind(i.Kind) }

func IsLikeKind(kind string) bool { return kind == KindLike || kind == KindSuperLike }

// Match is an undirected pair stored with UserAID < UserBID; the unique
// index over the ordered pair is what serializes concurrent reciprocal likes.
type Match struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	UserAID     uint64 `gorm:"column:user_a_id;not null;uniqueIndex:idx_match_pair,priority:1"`
	UserBID     uint64 `gorm:"column:user_b_id;not null;uniqueIndex:idx_match_pair,priority:2;index"`
	Active      bool   `gorm:"not null;index"`
	UnmatchedBy *uint64
	UnmatchedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Other returns the member that is not userID.
func (m *Match) Other(userID uint64) uint64 {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

// Has reports whether userID is one of the two members.
func (m *Match) Has(userID uint64) bool { return m.UserAID == userID || m.UserBID == userID }

// OrderedPair returns (low, high).
func OrderedPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

type Conversation struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	MatchID       uint64 `gorm:"not null;uniqueIndex"`
	LastMessageAt *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`

	Match Match `gorm:"foreignKey:MatchID"`
}

// Message is append-only; DeletedAt is the only mutation.
type Message struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement;index:idx_conversation_message,priority:2,sort:desc"`
	ConversationID uint64         `gorm:"not null;index:idx_conversation_message,priority:1"`
	SenderID       uint64         `gorm:"not null"`
	Body           string         `gorm:"type:text;not null"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

type Call struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ConversationID uint64    `gorm:"not null;index"`
	CallerID       uint64    `gorm:"not null"`
	CalleeID       uint64    `gorm:"not null"`
	CallType       string    `gorm:"size:8;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

type Resource struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"size:200;not null"`
	Summary     string `gorm:"size:500"`
	Body        string `gorm:"type:text"`
	Category    string `gorm:"size:64;index"`
	URL         string `gorm:"size:512"`
	Published   bool   `gorm:"not null;index"`
	PublishedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

type Favorite struct {
	UserID     uint64    `gorm:"primaryKey"`
	ResourceID uint64    `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

type FeedPost struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	AuthorID    uint64 `gorm:"not null;index"`
	Body        string `gorm:"type:text;not null"`
	Status      string `gorm:"size:16;not null;index"`
	LikeCount   int    `gorm:"not null"`
	ModeratedBy *uint64
	ModeratedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

type FeedComment struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	PostID    uint64    `gorm:"not null;index"`
	AuthorID  uint64    `gorm:"not null"`
	Body      string    `gorm:"type:text;not null"`
	Status    string    `gorm:"size:16;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type FeedLike struct {
	PostID    uint64    `gorm:"primaryKey"`
	UserID    uint64    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// SubscriptionPlan limits: 0 means unlimited.
type SubscriptionPlan struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Code            string `gorm:"uniqueIndex;size:32;not null"`
	Name            string `gorm:"size:64;not null"`
	DailyLikes      int    `gorm:"not null"`
	DailySuperLikes int    `gorm:"not null"`
	SeeWhoLikedYou  bool   `gorm:"not null"`
	PriceCents      int    `gorm:"not null"`
}

type Subscription struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement"`
	UserID           uint64    `gorm:"not null;index"`
	PlanID           uint64    `gorm:"not null"`
	Status           string    `gorm:"size:16;not null;index:idx_sub_status_end,priority:1"`
	CurrentPeriodEnd time.Time `gorm:"not null;index:idx_sub_status_end,priority:2"`
	CanceledAt       *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`

	Plan SubscriptionPlan `gorm:"foreignKey:PlanID"`
}

// DailyQuota counts consumed credits per user per quota day (YYYY-MM-DD).
type DailyQuota struct {
	UserID     uint64    `gorm:"primaryKey"`
	Day        string    `gorm:"primaryKey;size:10;index"`
	Likes      int       `gorm:"not null"`
	SuperLikes int       `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

type WebhookEvent struct {
	EventID    string    `gorm:"primaryKey;size:128"`
	Type       string    `gorm:"size:64;not null"`
	ReceivedAt time.Time `gorm:"autoCreateTime"`
}

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&User{}, &Profile{}, &DeviceToken{}, &ProfilePhoto{}, &Block{},
		&Interaction{}, &Match{}, &Conversation{}, &Message{}, &Call{},
		&Resource{}, &Favorite{}, &FeedPost{}, &FeedComment{}, &FeedLike{},
		&SubscriptionPlan{}, &Subscription{}, &DailyQuota{}, &WebhookEvent{},
	}
}

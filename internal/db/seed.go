package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedPlans upserts the built-in subscription plans. Safe to run on every boot.
func SeedPlans(database *gorm.DB) error {
	plans := []SubscriptionPlan{
		{Code: "premium", Name: "Premium", DailyLikes: 0, DailySuperLikes: 5, SeeWhoLikedYou: true, PriceCents: 1499},
	}
	return database.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "daily_likes", "daily_super_likes", "see_who_liked_you", "price_cents"}),
	}).Create(&plans).Error
}

// SeedTestData resets the database and populates it with demo data.
//
// Behavior:
//  1. Clears users, profiles, interactions, matches and content tables.
//  2. Creates 20 users (10 male seeking female, 10 female seeking male) with hashed passwords.
//  3. Generates interactions with ~70% likes; every 3rd pair is made mutual and matched.
//  4. Adds a handful of published resources and approved feed posts.
func SeedTestData(database *gorm.DB, log *slog.Logger) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, table := range []string{
		"messages", "conversations", "matches", "interactions", "blocks",
		"device_tokens", "profile_photos", "profiles", "feed_likes", "feed_comments",
		"feed_posts", "favorites", "resources", "subscriptions", "daily_quotas", "calls", "users",
	} {
		if err := database.Exec("DELETE FROM " + table).Error; err != nil {
			log.Warn("seed: failed to clear table", "table", table, "err", err)
		}
	}
	if err := SeedPlans(database); err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	users := make([]User, 0, 20)
	for i := 1; i <= 20; i++ {
		gender, seeks := "male", GenderFemale
		if i > 10 {
			gender, seeks = "female", GenderMale
		}
		birth := now.AddDate(-(21 + r.Intn(15)), -r.Intn(12), 0)
		lat, lng := 51.50+r.Float64()/10, -0.12+r.Float64()/10

		u := User{
			Email:         fmt.Sprintf("user%d@example.com", i),
			PasswordHash:  string(hash),
			DisplayName:   fmt.Sprintf("User %d", i),
			BirthDate:     &birth,
			EmailVerified: true,
			Active:        true,
			LastActiveAt:  now.Add(-time.Duration(r.Intn(500)) * time.Hour),
			Notify:        DefaultNotificationSettings(),
			Profile: Profile{
				Gender:        gender,
				SoughtGenders: seeks,
				Bio:           "Seeded profile",
				Interests:     []string{"music", "travel"},
				Latitude:      &lat,
				Longitude:     &lng,
				Discoverable:  true,
			},
		}
		if err := database.Create(&u).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
		users = append(users, u)
	}
	log.Info("seeded users", "count", len(users))

	counter := 0
	for _, actor := range users {
		for j := 0; j < 8; j++ {
			target := users[r.Intn(len(users))]
			if target.ID == actor.ID || target.Profile.Gender == actor.Profile.Gender {
				continue
			}

			kind := KindPass
			if r.Intn(100) < 70 {
				kind = KindLike
			}

			if counter%3 == 0 {
				if err := seedMatch(database, actor.ID, target.ID); err != nil {
					return err
				}
				counter++
				continue
			}

			if err := database.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
			}).Create(&Interaction{ActorID: actor.ID, TargetID: target.ID, Kind: kind}).Error; err != nil {
				return fmt.Errorf("failed to seed interaction: %w", err)
			}
			counter++
		}
	}
	log.Info("seeded interactions", "count", counter)

	published := now.Add(-24 * time.Hour)
	resources := []Resource{
		{Title: "First date ideas", Summary: "Low-pressure plans that work", Category: "dating-tips", Published: true, PublishedAt: &published},
		{Title: "Staying safe when meeting", Summary: "Checklist before you go", Category: "safety", Published: true, PublishedAt: &published},
		{Title: "Draft: profile photo guide", Category: "profile", Published: false},
	}
	if err := database.Create(&resources).Error; err != nil {
		return fmt.Errorf("failed to seed resources: %w", err)
	}

	posts := []FeedPost{
		{AuthorID: users[0].ID, Body: "Anyone tried the new coffee place?", Status: PostApproved},
		{AuthorID: users[11].ID, Body: "Pending post awaiting review", Status: PostPending},
	}
	if err := database.Create(&posts).Error; err != nil {
		return fmt.Errorf("failed to seed feed: %w", err)
	}
	return nil
}

func seedMatch(database *gorm.DB, a, b uint64) error {
	return database.Transaction(func(tx *gorm.DB) error {
		likes := []Interaction{
			{ActorID: a, TargetID: b, Kind: KindLike, Consumed: true},
			{ActorID: b, TargetID: a, Kind: KindLike, Consumed: true},
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "consumed", "updated_at"}),
		}).Create(&likes).Error; err != nil {
			return fmt.Errorf("failed to seed mutual like: %w", err)
		}

		low, high := OrderedPair(a, b)
		m := Match{UserAID: low, UserBID: high, Active: true}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
		if res.Error != nil {
			return fmt.Errorf("failed to seed match: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Create(&Conversation{MatchID: m.ID}).Error
	})
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/amora/internal/db"
)

// ErrInvalidTransition is returned when a moderation state change is not allowed.
var ErrInvalidTransition = errors.New("invalid moderation transition")

// ContentRepository covers the resource catalog, favorites and the community feed.
type ContentRepository struct {
	db *gorm.DB
}

func NewContentRepository(database *gorm.DB) *ContentRepository {
	return &ContentRepository{db: database}
}

// ListPublished returns published resources, newest first, optionally by category.
func (r *ContentRepository) ListPublished(ctx context.Context, category string, offset, limit int) ([]db.Resource, error) {
	query := r.db.WithContext(ctx).Where("published = ?", true)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var out []db.Resource
	err := query.Order("published_at DESC, id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// GetPublished loads one resource; unpublished ones read as not found.
func (r *ContentRepository) GetPublished(ctx context.Context, id uint64) (*db.Resource, error) {
	var res db.Resource
	if err := r.db.WithContext(ctx).Where("id = ? AND published = ?", id, true).Take(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// AddFavorite is idempotent.
func (r *ContentRepository) AddFavorite(ctx context.Context, userID, resourceID uint64) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&db.Favorite{UserID: userID, ResourceID: resourceID}).Error
}

// RemoveFavorite is idempotent.
func (r *ContentRepository) RemoveFavorite(ctx context.Context, userID, resourceID uint64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND resource_id = ?", userID, resourceID).
		Delete(&db.Favorite{}).Error
}

// ListFavorites returns the user's favorited resources that are still published.
func (r *ContentRepository) ListFavorites(ctx context.Context, userID uint64) ([]db.Resource, error) {
	var out []db.Resource
	err := r.db.WithContext(ctx).
		Table("resources r").
		Select("r.*").
		Joins("JOIN favorites f ON f.resource_id = r.id").
		Where("f.user_id = ? AND r.published = ?", userID, true).
		Order("f.created_at DESC, r.id DESC").
		Find(&out).Error
	return out, err
}

func (r *ContentRepository) CreatePost(ctx context.Context, p *db.FeedPost) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// ListVisiblePosts returns approved posts plus the viewer's own pending ones.
func (r *ContentRepository) ListVisiblePosts(ctx context.Context, viewerID uint64, offset, limit int) ([]db.FeedPost, error) {
	var out []db.FeedPost
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND author_id = ?)", db.PostApproved, db.PostPending, viewerID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// VisiblePost loads a post the viewer may see.
func (r *ContentRepository) VisiblePost(ctx context.Context, viewerID, postID uint64) (*db.FeedPost, error) {
	var p db.FeedPost
	err := r.db.WithContext(ctx).
		Where("id = ?", postID).
		Where("status = ? OR (status = ? AND author_id = ?)", db.PostApproved, db.PostPending, viewerID).
		Take(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPending is the moderation queue, oldest first.
func (r *ContentRepository) ListPending(ctx context.Context, limit int) ([]db.FeedPost, error) {
	var out []db.FeedPost
	err := r.db.WithContext(ctx).Where("status = ?", db.PostPending).
		Order("created_at, id").Limit(limit).Find(&out).Error
	return out, err
}

// Moderate moves a pending post to status. Only pending posts move.
func (r *ContentRepository) Moderate(ctx context.Context, postID, moderatorID uint64, status string, at time.Time) (*db.FeedPost, error) {
	var post db.FeedPost
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&post, postID).Error; err != nil {
			return err
		}
		res := tx.Model(&db.FeedPost{}).
			Where("id = ? AND status = ?", postID, db.PostPending).
			Updates(map[string]any{"status": status, "moderated_by": moderatorID, "moderated_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return tx.Take(&post, postID).Error
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *ContentRepository) CreateComment(ctx context.Context, c *db.FeedComment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// ListComments returns approved comments, oldest first.
func (r *ContentRepository) ListComments(ctx context.Context, postID uint64, offset, limit int) ([]db.FeedComment, error) {
	var out []db.FeedComment
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND status = ?", postID, db.PostApproved).
		Order("created_at, id").Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// ToggleLike flips the user's like on a post and returns (liked, like_count).
func (r *ContentRepository) ToggleLike(ctx context.Context, postID, userID uint64) (bool, int, error) {
	var liked bool
	var post db.FeedPost
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&db.FeedLike{})
		if del.Error != nil {
			return del.Error
		}
		delta := -1
		if del.RowsAffected == 0 {
			if err := tx.Create(&db.FeedLike{PostID: postID, UserID: userID}).Error; err != nil {
				return err
			}
			liked, delta = true, 1
		}
		if err := tx.Model(&db.FeedPost{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count + ?", delta)).Error; err != nil {
			return err
		}
		return tx.Select("like_count").Take(&post, postID).Error
	})
	return liked, post.LikeCount, err
}

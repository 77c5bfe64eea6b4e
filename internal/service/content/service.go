// Package content serves the resource catalog and the moderated community feed.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oggyb/amora/internal/app"
	"github.com/oggyb/amora/internal/db"
	svcErr "github.com/oggyb/amora/internal/errors"
	"github.com/oggyb/amora/internal/repository"
	"github.com/oggyb/amora/internal/utils/pagination"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPostRunes    = 2000
	maxCommentRunes = 1000
	catalogCacheTTL = 5 * time.Minute
)

// Moderation decisions accepted from staff.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

type Service struct {
	appCtx  *app.AppContext
	content *repository.ContentRepository
	users   *repository.UserRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:  appCtx,
		content: repository.NewContentRepository(appCtx.DB),
		users:   repository.NewUserRepository(appCtx.DB),
	}
}

type Resource struct {
	ID          uint64     `json:"id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	Body        string     `json:"body,omitempty"`
	Category    string     `json:"category,omitempty"`
	URL         string     `json:"url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func toResource(r db.Resource) Resource {
	return Resource{
		ID:          r.ID,
		Title:       r.Title,
		Summary:     r.Summary,
		Body:        r.Body,
		Category:    r.Category,
		URL:         r.URL,
		PublishedAt: r.PublishedAt,
	}
}

// Resources lists the published catalog. Pages are cached briefly since the
// catalog changes only through the admin tooling.
func (s *Service) Resources(ctx context.Context, category string, offset, limit int) ([]Resource, error) {
	limit = pagination.ClampLimit(limit, defaultPageSize, maxPageSize)
	category = strings.ToLower(strings.TrimSpace(category))

	key := fmt.Sprintf("content:resources:%s:%d:%d", category, offset, limit)
	var cached []Resource
	if hit, err := s.appCtx.RedisCache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	rows, err := s.content.ListPublished(ctx, category, offset, limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]Resource, 0, len(rows))
	for _, r := range rows {
		out = append(out, toResource(r))
	}
	if err := s.appCtx.RedisCache.SetJSON(ctx, key, out, catalogCacheTTL); err != nil {
		s.appCtx.Log(ctx).Warn("resource cache write failed", "err", err)
	}
	return out, nil
}

func (s *Service) Resource(ctx context.Context, id uint64) (*Resource, error) {
	r, err := s.content.GetPublished(ctx, id)
	if repository.IsNotFound(err) {
		return nil, svcErr.NotFound("resource not found")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := toResource(*r)
	return &out, nil
}

func (s *Service) AddFavorite(ctx context.Context, userID, resourceID uint64) error {
	if _, err := s.Resource(ctx, resourceID); err != nil {
		return err
	}
	if err := s.content.AddFavorite(ctx, userID, resourceID); err != nil {
		return svcErr.Map(err)
	}
	return nil
}

func (s *Service) RemoveFavorite(ctx context.Context, userID, resourceID uint64) error {
	if err := s.content.RemoveFavorite(ctx, userID, resourceID); err != nil {
		return svcErr.Map(err)
	}
	return nil
}

func (s *Service) Favorites(ctx context.Context, userID uint64) ([]Resource, error) {
	rows, err := s.content.ListFavorites(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := make([]Resource, 0, len(rows))
	for _, r := range rows {
		out = append(out, toResource(r))
	}
	return out, nil
}

type Post struct {
	ID         uint64    `json:"id"`
	AuthorID   uint64    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	Status     string    `json:"status"`
	LikeCount  int       `json:"like_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type Comment struct {
	ID         uint64    `json:"id"`
	AuthorID   uint64    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Service) authorNames(ctx context.Context, ids []uint64) map[uint64]string {
	names := make(map[uint64]string, len(ids))
	users, err := s.users.FindManyActive(ctx, ids)
	if err != nil {
		s.appCtx.Log(ctx).Warn("author lookup failed", "err", err)
		return names
	}
	for id, u := range users {
		names[id] = u.DisplayName
	}
	return names
}

func (s *Service) toPosts(ctx context.Context, rows []db.FeedPost) []Post {
	ids := make([]uint64, 0, len(rows))
	for _, p := range rows {
		ids = append(ids, p.AuthorID)
	}
	names := s.authorNames(ctx, ids)
	out := make([]Post, 0, len(rows))
	for _, p := range rows {
		name, ok := names[p.AuthorID]
		if !ok {
			name = "Deleted user"
		}
		out = append(out, Post{
			ID:         p.ID,
			AuthorID:   p.AuthorID,
			AuthorName: name,
			Body:       p.Body,
			Status:     p.Status,
			LikeCount:  p.LikeCount,
			CreatedAt:  p.CreatedAt,
		})
	}
	return out
}

// Feed lists approved posts plus the viewer's own pending ones.
func (s *Service) Feed(ctx context.Context, viewerID uint64, offset, limit int) ([]Post, error) {
	limit = pagination.ClampLimit(limit, defaultPageSize, maxPageSize)
	rows, err := s.content.ListVisiblePosts(ctx, viewerID, offset, limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.toPosts(ctx, rows), nil
}

func cleanBody(body string, max int) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", svcErr.InvalidArgument("body is required")
	}
	if utf8.RuneCountInString(body) > max {
		return "", svcErr.InvalidArgument(fmt.Sprintf("body is limited to %d characters", max))
	}
	return body, nil
}

// CreatePost queues a post for moderation.
func (s *Service) CreatePost(ctx context.Context, authorID uint64, body string) (*Post, error) {
	body, err := cleanBody(body, maxPostRunes)
	if err != nil {
		return nil, err
	}
	p := &db.FeedPost{AuthorID: authorID, Body: body, Status: db.PostPending}
	if err := s.content.CreatePost(ctx, p); err != nil {
		return nil, svcErr.Map(err)
	}
	return &s.toPosts(ctx, []db.FeedPost{*p})[0], nil
}

func (s *Service) visiblePost(ctx context.Context, viewerID, postID uint64) (*db.FeedPost, error) {
	p, err := s.content.VisiblePost(ctx, viewerID, postID)
	if repository.IsNotFound(err) {
		return nil, svcErr.NotFound("post not found")
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return p, nil
}

// AddComment publishes a comment immediately; comments skip the moderation queue.
func (s *Service) AddComment(ctx context.Context, authorID, postID uint64, body string) (*Comment, error) {
	body, err := cleanBody(body, maxCommentRunes)
	if err != nil {
		return nil, err
	}
	if _, err := s.visiblePost(ctx, authorID, postID); err != nil {
		return nil, err
	}
	c := &db.FeedComment{PostID: postID, AuthorID: authorID, Body: body, Status: db.PostApproved}
	if err := s.content.CreateComment(ctx, c); err != nil {
		return nil, svcErr.Map(err)
	}
	name := s.authorNames(ctx, []uint64{authorID})[authorID]
	return &Comment{ID: c.ID, AuthorID: authorID, AuthorName: name, Body: c.Body, CreatedAt: c.CreatedAt}, nil
}

func (s *Service) Comments(ctx context.Context, viewerID, postID uint64, offset, limit int) ([]Comment, error) {
	if _, err := s.visiblePost(ctx, viewerID, postID); err != nil {
		return nil, err
	}
	limit = pagination.ClampLimit(limit, defaultPageSize, maxPageSize)
	rows, err := s.content.ListComments(ctx, postID, offset, limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	ids := make([]uint64, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.AuthorID)
	}
	names := s.authorNames(ctx, ids)
	out := make([]Comment, 0, len(rows))
	for _, c := range rows {
		out = append(out, Comment{ID: c.ID, AuthorID: c.AuthorID, AuthorName: names[c.AuthorID], Body: c.Body, CreatedAt: c.CreatedAt})
	}
	return out, nil
}

// LikeState is the result of a like toggle.
type LikeState struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}

func (s *Service) ToggleLike(ctx context.Context, userID, postID uint64) (*LikeState, error) {
	if _, err := s.visiblePost(ctx, userID, postID); err != nil {
		return nil, err
	}
	liked, count, err := s.content.ToggleLike(ctx, postID, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &LikeState{Liked: liked, LikeCount: count}, nil
}

// PendingPosts is the moderation queue.
func (s *Service) PendingPosts(ctx context.Context, limit int) ([]Post, error) {
	rows, err := s.content.ListPending(ctx, pagination.ClampLimit(limit, defaultPageSize, maxPageSize))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.toPosts(ctx, rows), nil
}

// Moderate settles a pending post. Settled posts never move again.
func (s *Service) Moderate(ctx context.Context, moderatorID, postID uint64, decision string) (*Post, error) {
	var status string
	switch strings.ToLower(strings.TrimSpace(decision)) {
	case DecisionApprove:
		status = db.PostApproved
	case DecisionReject:
		status = db.PostRejected
	default:
		return nil, svcErr.InvalidArgument("decision must be approve or reject")
	}

	p, err := s.content.Moderate(ctx, postID, moderatorID, status, s.appCtx.Now())
	switch {
	case repository.IsNotFound(err):
		return nil, svcErr.NotFound("post not found")
	case errors.Is(err, repository.ErrInvalidTransition):
		return nil, svcErr.AlreadyExists("post has already been moderated")
	case err != nil:
		return nil, svcErr.Map(err)
	}
	s.appCtx.Log(ctx).Info("post moderated", "post_id", postID, "moderator_id", moderatorID, "status", status)
	return &s.toPosts(ctx, []db.FeedPost{*p})[0], nil
}

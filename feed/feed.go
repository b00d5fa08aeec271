// Package feed builds the read side of the blog: paginated post listings and post detail.
package feed

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"blogicum/common"
	"blogicum/models"
	"blogicum/policy"
)

const commentCountColumn = "(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comment_count"

type Service struct {
	db       *gorm.DB
	pageSize int
	now      func() time.Time
}

func NewService(db *gorm.DB, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		db:       db,
		pageSize: pageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; listings compare pub_date against it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) PageSize() int { return s.pageSize }

// Home lists every publicly visible post, newest first.
func (s *Service) Home(ctx context.Context, page int) (*Page, error) {
	return s.paginate(ctx, page, policy.Published(s.now()))
}

// Category lists a published category's released posts. Hidden categories are not found.
func (s *Service) Category(ctx context.Context, slug string, page int) (*models.Category, *Page, error) {
	var category models.Category
	err := s.db.WithContext(ctx).
		Where("slug = ? AND is_published = ?", slug, true).
		First(&category).Error
	if err != nil {
		return nil, nil, common.NotFoundOr(err)
	}

	result, err := s.paginate(ctx, page,
		policy.Released(s.now()),
		func(db *gorm.DB) *gorm.DB { return db.Where("posts.category_id = ?", category.ID) },
	)
	if err != nil {
		return nil, nil, err
	}
	return &category, result, nil
}

// Profile lists a user's posts. The owner sees all of them, others only the public ones.
func (s *Service) Profile(ctx context.Context, username string, viewer policy.Viewer, page int) (*models.User, *Page, error) {
	var author models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&author).Error; err != nil {
		return nil, nil, common.NotFoundOr(err)
	}

	scopes := []func(*gorm.DB) *gorm.DB{
		func(db *gorm.DB) *gorm.DB { return db.Where("posts.author_id = ?", author.ID) },
	}
	if !viewer.Is(author.ID) {
		scopes = append(scopes, policy.Published(s.now()))
	}

	result, err := s.paginate(ctx, page, scopes...)
	if err != nil {
		return nil, nil, err
	}
	return &author, result, nil
}

// Post loads a single post for the detail page. Posts the viewer may not see are reported
// as not found so their existence does not leak.
func (s *Service) Post(ctx context.Context, id uint, viewer policy.Viewer) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Category").
		Preload("Location").
		First(&post, id).Error
	if err != nil {
		return nil, common.NotFoundOr(err)
	}

	if !policy.PostVisible(&post, viewer, s.now()) {
		return nil, common.ErrNotFound
	}
	return &post, nil
}

// Comments returns a post's comments in the order they were written.
func (s *Service) Comments(ctx context.Context, postID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("list comments of post %d: %w", postID, err)
	}
	return comments, nil
}

// Categories returns the categories an author may file a post under.
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).Where("is_published = ?", true).Order("title").Find(&categories).Error
	return categories, err
}

func (s *Service) Locations(ctx context.Context) ([]models.Location, error) {
	var locations []models.Location
	err := s.db.WithContext(ctx).Where("is_published = ?", true).Order("name").Find(&locations).Error
	return locations, err
}

func (s *Service) paginate(ctx context.Context, requested int, scopes ...func(*gorm.DB) *gorm.DB) (*Page, error) {
	query := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Post{}).Scopes(scopes...)
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	number, numPages, offset := window(requested, total, s.pageSize)

	var posts []models.Post
	err := query().
		Select("posts.*, " + commentCountColumn).
		Preload("Author").
		Preload("Category").
		Preload("Location").
		Order("posts.pub_date DESC").
		Order("posts.id DESC").
		Limit(s.pageSize).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	return &Page{
		Posts:    posts,
		Number:   number,
		NumPages: numPages,
		Count:    total,
		PageSize: s.pageSize,
	}, nil
}

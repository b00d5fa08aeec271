// Package content is the write side of the blog: creating, editing and deleting posts and
// comments on behalf of a signed-in viewer.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"blogicum/common"
	"blogicum/media"
	"blogicum/models"
	"blogicum/policy"
)

// pubDateLayouts are tried in order; the first matches <input type="datetime-local">.
var pubDateLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Upload is an image attached to a post form.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// PostInput lists the fields an author may set. Author, publication flag and creation time
// are always decided by the service.
type PostInput struct {
	Title      string
	Text       string
	PubDate    string
	LocationID *uint
	CategoryID *uint
	Image      *Upload
	ClearImage bool
}

type CommentInput struct {
	Text string
}

type Service struct {
	db      *gorm.DB
	storage media.Storage
	auth    policy.Authorizer
	now     func() time.Time
}

func NewService(db *gorm.DB, storage media.Storage, auth policy.Authorizer) *Service {
	if auth == nil {
		auth = policy.AuthorOnly{}
	}
	return &Service{
		db:      db,
		storage: storage,
		auth:    auth,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ParsePubDate accepts the formats the post form can submit. Times are taken as UTC.
func ParsePubDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// CreatePost stores a new published post written by the viewer.
func (s *Service) CreatePost(ctx context.Context, viewer policy.Viewer, in PostInput) (*models.Post, error) {
	if viewer.IsAnonymous() {
		return nil, common.ErrUnauthenticated
	}

	pubDate, err := validatePost(in)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:       strings.TrimSpace(in.Title),
		Text:        in.Text,
		PubDate:     pubDate,
		IsPublished: true,
		CreatedAt:   s.now(),
		AuthorID:    viewer.ID,
		LocationID:  in.LocationID,
		CategoryID:  in.CategoryID,
	}

	image, err := s.stageImage(in.Image)
	if err != nil {
		return nil, err
	}
	if image != nil {
		post.Image = image.Path
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkReferences(tx, in); err != nil {
			return err
		}
		return tx.Create(post).Error
	})
	if err != nil {
		s.discardImage(image)
		return nil, wrapStore("create post", err)
	}
	s.commitImage(image)

	log.Printf("Post %d created by user %d", post.ID, viewer.ID)
	return post, nil
}

// PostForEdit loads a post its author is about to change.
func (s *Service) PostForEdit(ctx context.Context, viewer policy.Viewer, id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, common.NotFoundOr(err)
	}
	if !s.auth.CanMutate(&post, viewer) {
		return nil, common.ErrForbidden
	}
	return &post, nil
}

// UpdatePost applies the form to a post the viewer owns. A new image replaces the old one;
// ClearImage drops it.
func (s *Service) UpdatePost(ctx context.Context, viewer policy.Viewer, id uint, in PostInput) (*models.Post, error) {
	pubDate, err := validatePost(in)
	if err != nil {
		return nil, err
	}

	image, err := s.stageImage(in.Image)
	if err != nil {
		return nil, err
	}

	var post models.Post
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&post, id).Error; err != nil {
			return common.NotFoundOr(err)
		}
		if !s.auth.CanMutate(&post, viewer) {
			return common.ErrForbidden
		}
		if err := checkReferences(tx, in); err != nil {
			return err
		}

		post.Title = strings.TrimSpace(in.Title)
		post.Text = in.Text
		post.PubDate = pubDate
		post.LocationID = in.LocationID
		post.CategoryID = in.CategoryID
		switch {
		case image != nil:
			post.Image = image.Path
		case in.ClearImage:
			post.Image = ""
		}

		return tx.Model(&post).
			Select("title", "text", "pub_date", "location_id", "category_id", "image").
			Updates(&post).Error
	})
	if err != nil {
		s.discardImage(image)
		return nil, wrapStore("update post", err)
	}
	s.commitImage(image)

	return &post, nil
}

// DeletePost removes a post and its comments. Deleting an already deleted post is NotFound.
func (s *Service) DeletePost(ctx context.Context, viewer policy.Viewer, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, id).Error; err != nil {
			return common.NotFoundOr(err)
		}
		if !s.auth.CanMutate(&post, viewer) {
			return common.ErrForbidden
		}

		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		return wrapStore("delete post", err)
	}

	log.Printf("Post %d deleted by user %d", id, viewer.ID)
	return nil
}

// CreateComment attaches a comment to a post the viewer can see.
func (s *Service) CreateComment(ctx context.Context, viewer policy.Viewer, postID uint, in CommentInput) (*models.Comment, error) {
	if viewer.IsAnonymous() {
		return nil, common.ErrUnauthenticated
	}
	if err := validateComment(in); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		Text:      in.Text,
		CreatedAt: s.now(),
		PostID:    postID,
		AuthorID:  viewer.ID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		err := tx.Preload("Category").Preload("Location").First(&post, postID).Error
		if err != nil {
			return common.NotFoundOr(err)
		}
		if !policy.PostVisible(&post, viewer, s.now()) {
			return common.ErrNotFound
		}
		return tx.Create(comment).Error
	})
	if err != nil {
		return nil, wrapStore("create comment", err)
	}
	return comment, nil
}

// OwnComment finds a comment by id within a post, written by the viewer. Anything else,
// including somebody else's comment, is NotFound.
func (s *Service) OwnComment(ctx context.Context, viewer policy.Viewer, postID, commentID uint) (*models.Comment, error) {
	return ownComment(s.db.WithContext(ctx), viewer, postID, commentID)
}

func (s *Service) UpdateComment(ctx context.Context, viewer policy.Viewer, postID, commentID uint, in CommentInput) (*models.Comment, error) {
	if err := validateComment(in); err != nil {
		return nil, err
	}

	var comment *models.Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		comment, err = ownComment(tx, viewer, postID, commentID)
		if err != nil {
			return err
		}
		comment.Text = in.Text
		return tx.Model(comment).Update("text", comment.Text).Error
	})
	if err != nil {
		return nil, wrapStore("update comment", err)
	}
	return comment, nil
}

func (s *Service) DeleteComment(ctx context.Context, viewer policy.Viewer, postID, commentID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment, err := ownComment(tx, viewer, postID, commentID)
		if err != nil {
			return err
		}
		return tx.Delete(comment).Error
	})
	return wrapStore("delete comment", err)
}

func ownComment(db *gorm.DB, viewer policy.Viewer, postID, commentID uint) (*models.Comment, error) {
	if viewer.IsAnonymous() {
		return nil, common.ErrNotFound
	}

	var comment models.Comment
	err := db.Preload("Author").
		Where("id = ? AND post_id = ? AND author_id = ?", commentID, postID, viewer.ID).
		First(&comment).Error
	if err != nil {
		return nil, common.NotFoundOr(err)
	}
	return &comment, nil
}

func validatePost(in PostInput) (time.Time, error) {
	v := common.NewValidationError()

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		v.Add("title", "This field is required.")
	case utf8.RuneCountInString(title) > models.MaxLength:
		v.Add("title", fmt.Sprintf("Ensure this value has at most %d characters.", models.MaxLength))
	}

	if strings.TrimSpace(in.Text) == "" {
		v.Add("text", "This field is required.")
	}

	var pubDate time.Time
	if strings.TrimSpace(in.PubDate) == "" {
		v.Add("pub_date", "This field is required.")
	} else if parsed, err := ParsePubDate(in.PubDate); err != nil {
		v.Add("pub_date", "Enter a valid date/time.")
	} else {
		pubDate = parsed
	}

	return pubDate, v.OrNil()
}

func validateComment(in CommentInput) error {
	v := common.NewValidationError()
	if strings.TrimSpace(in.Text) == "" {
		v.Add("text", "This field is required.")
	}
	return v.OrNil()
}

// checkReferences makes sure the chosen category and location exist.
func checkReferences(tx *gorm.DB, in PostInput) error {
	v := common.NewValidationError()

	if in.CategoryID != nil {
		var n int64
		if err := tx.Model(&models.Category{}).Where("id = ?", *in.CategoryID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			v.Add("category", "Select a valid choice.")
		}
	}
	if in.LocationID != nil {
		var n int64
		if err := tx.Model(&models.Location{}).Where("id = ?", *in.LocationID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			v.Add("location", "Select a valid choice.")
		}
	}

	return v.OrNil()
}

func (s *Service) stageImage(upload *Upload) (*media.Staged, error) {
	if upload == nil || upload.Reader == nil || s.storage == nil {
		return nil, nil
	}

	staged, err := s.storage.Stage(upload.Filename, upload.Reader)
	if errors.Is(err, media.ErrUnsupportedType) {
		v := common.NewValidationError()
		v.Add("image", "Upload a valid image.")
		return nil, v
	}
	if err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	return staged, nil
}

// commitImage publishes an image once the post pointing at it is saved.
func (s *Service) commitImage(staged *media.Staged) {
	if staged == nil {
		return
	}
	if err := s.storage.Commit(staged); err != nil {
		log.Printf("Error storing image %s: %v", staged.Path, err)
	}
}

// discardImage drops an upload whose post was not saved. Stored images may be shared by
// other posts and are left alone.
func (s *Service) discardImage(staged *media.Staged) {
	if staged == nil {
		return
	}
	if err := s.storage.Discard(staged); err != nil {
		log.Printf("Error discarding upload for %s: %v", staged.Path, err)
	}
}

// wrapStore adds context to storage failures and lets domain errors through untouched.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := common.AsValidation(err); ok {
		return err
	}
	if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrForbidden) || errors.Is(err, common.ErrUnauthenticated) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

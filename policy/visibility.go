// Package policy holds the read and write rules shared by every listing and mutation:
// who may see a post, and who may change a post or comment.
package policy

import (
	"time"

	"gorm.io/gorm"

	"blogicum/models"
)

// Viewer identifies the person making a request. The zero value is anonymous.
type Viewer struct {
	ID uint
}

func Anonymous() Viewer { return Viewer{} }

func (v Viewer) IsAnonymous() bool { return v.ID == 0 }

// Is reports whether the viewer is the given user. Anonymous viewers are nobody.
func (v Viewer) Is(userID uint) bool {
	return v.ID != 0 && v.ID == userID
}

// PostVisible is the read rule for a single post: authors always see their own posts,
// everybody else only sees what PubliclyVisible allows.
func PostVisible(post *models.Post, viewer Viewer, now time.Time) bool {
	if viewer.Is(post.AuthorID) {
		return true
	}
	return PubliclyVisible(post, now)
}

// PubliclyVisible expects Category and Location to be loaded whenever their ids are set.
func PubliclyVisible(post *models.Post, now time.Time) bool {
	if !post.IsPublished || post.PubDate.After(now) {
		return false
	}
	if post.CategoryID != nil && (post.Category == nil || !post.Category.IsPublished) {
		return false
	}
	if post.LocationID != nil && (post.Location == nil || !post.Location.IsPublished) {
		return false
	}
	return true
}

// Released restricts a posts query to published, already-due posts whose location is not hidden.
func Released(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.
			Where("posts.is_published = ?", true).
			Where("posts.pub_date <= ?", now).
			Where("(posts.location_id IS NULL OR posts.location_id IN (?))",
				db.Session(&gorm.Session{NewDB: true}).Model(&models.Location{}).Select("id").Where("is_published = ?", true))
	}
}

// Published is Released plus the category rule: the full public listing predicate.
func Published(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return Released(now)(db).
			Where("(posts.category_id IS NULL OR posts.category_id IN (?))",
				db.Session(&gorm.Session{NewDB: true}).Model(&models.Category{}).Select("id").Where("is_published = ?", true))
	}
}

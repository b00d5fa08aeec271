package models

import "time"

// MaxLength bounds every short text column (titles, names).
const MaxLength = 256

type User struct {
	ID           uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `gorm:"not null" json:"-"` // json:"-" keeps the hash out of any serialized output
	CreatedAt    time.Time `json:"created_at"`
}

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	}
	return u.Username
}

type Location struct {
	ID          uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Name        string    `gorm:"size:256;not null" json:"name"`
	IsPublished bool      `gorm:"not null;index" json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
}

type Category struct {
	ID          uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Title       string    `gorm:"size:256;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Slug        string    `gorm:"uniqueIndex;size:64;not null" json:"slug"`
	IsPublished bool      `gorm:"not null;index" json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
}

type Post struct {
	ID          uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Title       string    `gorm:"size:256;not null" json:"title"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	Image       string    `json:"image"` // path relative to the media root, empty when absent
	PubDate     time.Time `gorm:"not null;index" json:"pub_date"`
	IsPublished bool      `gorm:"not null;index" json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`

	AuthorID   uint      `gorm:"not null;index" json:"author_id"`
	Author     User      `gorm:"constraint:OnDelete:CASCADE" json:"author"`
	LocationID *uint     `gorm:"index" json:"location_id"`
	Location   *Location `gorm:"constraint:OnDelete:SET NULL" json:"location,omitempty"`
	CategoryID *uint     `gorm:"index" json:"category_id"`
	Category   *Category `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`

	// Filled by listing queries only.
	CommentCount int64 `gorm:"->;-:migration" json:"comment_count"`
}

// OwnerID reports the author, for ownership checks.
func (p *Post) OwnerID() uint { return p.AuthorID }

type Comment struct {
	ID        uint      `gorm:"primary_key;autoIncrement" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	PostID    uint      `gorm:"not null;index" json:"post_id"`
	Post      *Post     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    User      `gorm:"constraint:OnDelete:CASCADE" json:"author"`
}

func (c *Comment) OwnerID() uint { return c.AuthorID }

// All lists the tables in dependency order for migrations and test setup.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Location{},
		&Category{},
		&Post{},
		&Comment{},
	}
}

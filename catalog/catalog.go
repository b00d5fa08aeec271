// Package catalog manages categories and locations, the reference data posts are filed under.
package catalog

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"blogicum/common"
	"blogicum/models"
)

const maxSlugLength = 64

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateCategory adds a published category. An empty slug is derived from the title.
func (s *Service) CreateCategory(ctx context.Context, title, description, slug string) (*models.Category, error) {
	title = strings.TrimSpace(title)
	if slug == "" {
		slug = GenerateSlug(title)
	}

	v := common.NewValidationError()
	if title == "" {
		v.Add("title", "This field is required.")
	} else if utf8.RuneCountInString(title) > models.MaxLength {
		v.Add("title", fmt.Sprintf("Ensure this value has at most %d characters.", models.MaxLength))
	}
	if strings.TrimSpace(description) == "" {
		v.Add("description", "This field is required.")
	}
	if !ValidSlug(slug) {
		v.Add("slug", "Use only Latin letters, digits, hyphens and underscores.")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	category := &models.Category{
		Title:       title,
		Description: description,
		Slug:        slug,
		IsPublished: true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Category{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			v.Add("slug", "A category with this slug already exists.")
			return v
		}
		return tx.Create(category).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Category %q created", category.Slug)
	return category, nil
}

// SetCategoryPublished shows or hides a category and, with it, its posts.
func (s *Service) SetCategoryPublished(ctx context.Context, slug string, published bool) error {
	result := s.db.WithContext(ctx).Model(&models.Category{}).
		Where("slug = ?", slug).
		Update("is_published", published)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category; its posts stay and lose their category.
func (s *Service) DeleteCategory(ctx context.Context, slug string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.Where("slug = ?", slug).First(&category).Error; err != nil {
			return common.NotFoundOr(err)
		}
		if err := tx.Model(&models.Post{}).Where("category_id = ?", category.ID).Update("category_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&category).Error
	})
}

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).Order("id").Find(&categories).Error
	return categories, err
}

// CreateLocation adds a published location.
func (s *Service) CreateLocation(ctx context.Context, name string) (*models.Location, error) {
	name = strings.TrimSpace(name)

	v := common.NewValidationError()
	if name == "" {
		v.Add("name", "This field is required.")
	} else if utf8.RuneCountInString(name) > models.MaxLength {
		v.Add("name", fmt.Sprintf("Ensure this value has at most %d characters.", models.MaxLength))
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	location := &models.Location{Name: name, IsPublished: true}
	if err := s.db.WithContext(ctx).Create(location).Error; err != nil {
		return nil, err
	}

	log.Printf("Location %d (%s) created", location.ID, location.Name)
	return location, nil
}

func (s *Service) SetLocationPublished(ctx context.Context, id uint, published bool) error {
	result := s.db.WithContext(ctx).Model(&models.Location{}).
		Where("id = ?", id).
		Update("is_published", published)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// DeleteLocation removes a location; its posts stay and lose their location.
func (s *Service) DeleteLocation(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var location models.Location
		if err := tx.First(&location, id).Error; err != nil {
			return common.NotFoundOr(err)
		}
		if err := tx.Model(&models.Post{}).Where("location_id = ?", location.ID).Update("location_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&location).Error
	})
}

func (s *Service) ListLocations(ctx context.Context) ([]models.Location, error) {
	var locations []models.Location
	err := s.db.WithContext(ctx).Order("id").Find(&locations).Error
	return locations, err
}

// GenerateSlug lowercases the title, strips accents and joins words with hyphens.
func GenerateSlug(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, title)
	if err != nil {
		plain = title
	}

	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return '-'
		}
		return -1
	}, plain)

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// ValidSlug accepts Latin letters, digits, hyphens and underscores.
func ValidSlug(slug string) bool {
	if slug == "" || len(slug) > maxSlugLength {
		return false
	}
	for _, r := range slug {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

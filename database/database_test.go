package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogicum/config"
	"blogicum/models"
)

func TestOpenAndMigrate_SQLite(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")}

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))
	require.NoError(t, RunMigrations(db), "migrations must be repeatable")

	for _, table := range []string{"users", "locations", "categories", "posts", "comments"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.False(t, db.Migrator().HasColumn(&models.Post{}, "comment_count"))

	user := &models.User{Username: "alice", PasswordHash: "hash"}
	require.NoError(t, db.Create(user).Error)
	assert.Equal(t, time.UTC, user.CreatedAt.Location())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(&config.Config{DBDriver: "oracle"})
	assert.Error(t, err)
}

func TestOpen_SQLiteEnforcesCascades(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")}
	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))

	author := &models.User{Username: "author", PasswordHash: "hash"}
	reader := &models.User{Username: "reader", PasswordHash: "hash"}
	require.NoError(t, db.Create(author).Error)
	require.NoError(t, db.Create(reader).Error)
	category := &models.Category{Title: "Travel", Description: "d", Slug: "travel", IsPublished: true}
	location := &models.Location{Name: "Moscow", IsPublished: true}
	require.NoError(t, db.Create(category).Error)
	require.NoError(t, db.Create(location).Error)

	now := time.Now().UTC()
	written := &models.Post{Title: "by author", Text: "x", PubDate: now, IsPublished: true, AuthorID: author.ID}
	kept := &models.Post{Title: "by reader", Text: "x", PubDate: now, IsPublished: true, AuthorID: reader.ID,
		CategoryID: &category.ID, LocationID: &location.ID}
	require.NoError(t, db.Create(written).Error)
	require.NoError(t, db.Create(kept).Error)
	require.NoError(t, db.Create(&models.Comment{Text: "own", PostID: written.ID, AuthorID: author.ID}).Error)
	require.NoError(t, db.Create(&models.Comment{Text: "reply", PostID: written.ID, AuthorID: reader.ID}).Error)
	require.NoError(t, db.Create(&models.Comment{Text: "elsewhere", PostID: kept.ID, AuthorID: author.ID}).Error)

	require.NoError(t, db.Delete(&models.User{}, author.ID).Error)

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	require.Len(t, posts, 1)
	assert.Equal(t, kept.ID, posts[0].ID)

	var comments int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&comments).Error)
	assert.Equal(t, int64(0), comments)

	require.NoError(t, db.Delete(&models.Category{}, category.ID).Error)
	require.NoError(t, db.Delete(&models.Location{}, location.ID).Error)

	var post models.Post
	require.NoError(t, db.First(&post, kept.ID).Error)
	assert.Nil(t, post.CategoryID)
	assert.Nil(t, post.LocationID)
}

func TestOpen_SQLiteRejectsDanglingAuthor(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")}
	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(db))

	post := &models.Post{Title: "orphan", Text: "x", PubDate: time.Now().UTC(), IsPublished: true, AuthorID: 42}
	assert.Error(t, db.Create(post).Error)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "blog.db?_foreign_keys=on", sqliteDSN("blog.db"))
	assert.Equal(t, "blog.db?cache=shared&_foreign_keys=on", sqliteDSN("blog.db?cache=shared"))
	assert.Equal(t, "blog.db?_foreign_keys=off", sqliteDSN("blog.db?_foreign_keys=off"))
}

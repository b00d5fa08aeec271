package content

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"blogicum/common"
	"blogicum/media"
	"blogicum/models"
	"blogicum/policy"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	user := &models.User{Username: username, PasswordHash: "hash"}
	require.NoError(t, db.Create(user).Error)
	return user
}

type fixture struct {
	db      *gorm.DB
	service *Service
	storage *media.LocalStorage
	alice   *models.User
	bob     *models.User
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	storage := media.NewLocalStorage(t.TempDir(), "/media/")
	return &fixture{
		db:      db,
		service: NewService(db, storage, policy.AuthorOnly{}),
		storage: storage,
		alice:   createTestUser(t, db, "alice"),
		bob:     createTestUser(t, db, "bob"),
	}
}

func validInput() PostInput {
	return PostInput{
		Title:   "Morning walk",
		Text:    "It was cold.",
		PubDate: "2024-03-01T09:30",
	}
}

func (f *fixture) createPost(t *testing.T, author *models.User) *models.Post {
	post, err := f.service.CreatePost(context.Background(), policy.Viewer{ID: author.ID}, validInput())
	require.NoError(t, err)
	return post
}

func TestCreatePost_ServerSetsProtectedFields(t *testing.T) {
	f := newFixture(t)

	post := f.createPost(t, f.alice)

	var stored models.Post
	require.NoError(t, f.db.First(&stored, post.ID).Error)
	assert.Equal(t, f.alice.ID, stored.AuthorID)
	assert.True(t, stored.IsPublished)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), stored.PubDate.UTC())
}

func TestCreatePost_Anonymous(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreatePost(context.Background(), policy.Anonymous(), validInput())
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestCreatePost_Validation(t *testing.T) {
	f := newFixture(t)
	missing := uint(404)

	tests := []struct {
		name   string
		modify func(*PostInput)
		field  string
	}{
		{"empty title", func(in *PostInput) { in.Title = "  " }, "title"},
		{"long title", func(in *PostInput) { in.Title = strings.Repeat("x", models.MaxLength+1) }, "title"},
		{"empty text", func(in *PostInput) { in.Text = "" }, "text"},
		{"missing date", func(in *PostInput) { in.PubDate = "" }, "pub_date"},
		{"bad date", func(in *PostInput) { in.PubDate = "yesterday" }, "pub_date"},
		{"unknown category", func(in *PostInput) { in.CategoryID = &missing }, "category"},
		{"unknown location", func(in *PostInput) { in.LocationID = &missing }, "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.modify(&in)

			_, err := f.service.CreatePost(context.Background(), policy.Viewer{ID: f.alice.ID}, in)
			v, ok := common.AsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.Contains(t, v.Fields, tt.field)
		})
	}

	var count int64
	f.db.Model(&models.Post{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreatePost_WithImage(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Image = &Upload{Filename: "cat.png", Reader: strings.NewReader("meow")}

	post, err := f.service.CreatePost(context.Background(), policy.Viewer{ID: f.alice.ID}, in)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(post.Image, "post_img/"))
	assert.Equal(t, []string{post.Image}, filesUnder(t, f.storage.Root()))
}

func TestCreatePost_FailedInsertDiscardsImage(t *testing.T) {
	f := newFixture(t)
	missing := uint(404)
	in := validInput()
	in.CategoryID = &missing
	in.Image = &Upload{Filename: "cat.png", Reader: strings.NewReader("orphan")}

	_, err := f.service.CreatePost(context.Background(), policy.Viewer{ID: f.alice.ID}, in)
	require.Error(t, err)

	assert.Empty(t, filesUnder(t, f.storage.Root()))
}

func TestCreatePost_FailedInsertKeepsSharedImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validInput()
	in.Image = &Upload{Filename: "cat.png", Reader: strings.NewReader("shared")}
	saved, err := f.service.CreatePost(ctx, policy.Viewer{ID: f.bob.ID}, in)
	require.NoError(t, err)

	missing := uint(404)
	in = validInput()
	in.CategoryID = &missing
	in.Image = &Upload{Filename: "dog.png", Reader: strings.NewReader("shared")}
	_, err = f.service.CreatePost(ctx, policy.Viewer{ID: f.alice.ID}, in)
	require.Error(t, err)

	assert.Equal(t, []string{saved.Image}, filesUnder(t, f.storage.Root()))
}

// filesUnder lists every file below root as a slash-separated relative path.
func filesUnder(t *testing.T, root string) []string {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestCreatePost_RejectsNonImage(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Image = &Upload{Filename: "notes.txt", Reader: strings.NewReader("text")}

	_, err := f.service.CreatePost(context.Background(), policy.Viewer{ID: f.alice.ID}, in)
	v, ok := common.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, v.Fields, "image")
}

func TestPostForEdit(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)
	ctx := context.Background()

	own, err := f.service.PostForEdit(ctx, policy.Viewer{ID: f.alice.ID}, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, own.ID)

	_, err = f.service.PostForEdit(ctx, policy.Viewer{ID: f.bob.ID}, post.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = f.service.PostForEdit(ctx, policy.Viewer{ID: f.alice.ID}, 9999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdatePost_Owner(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)
	category := &models.Category{Title: "Travel", Slug: "travel", IsPublished: true}
	require.NoError(t, f.db.Create(category).Error)

	in := validInput()
	in.Title = "Evening walk"
	in.CategoryID = &category.ID

	updated, err := f.service.UpdatePost(context.Background(), policy.Viewer{ID: f.alice.ID}, post.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Evening walk", updated.Title)

	var stored models.Post
	require.NoError(t, f.db.First(&stored, post.ID).Error)
	assert.Equal(t, "Evening walk", stored.Title)
	require.NotNil(t, stored.CategoryID)
	assert.Equal(t, category.ID, *stored.CategoryID)
	assert.Equal(t, f.alice.ID, stored.AuthorID)
	assert.True(t, stored.IsPublished)
}

func TestUpdatePost_NonOwnerLeavesPostUnchanged(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)

	in := validInput()
	in.Title = "Hijacked"
	_, err := f.service.UpdatePost(context.Background(), policy.Viewer{ID: f.bob.ID}, post.ID, in)
	assert.ErrorIs(t, err, common.ErrForbidden)

	var stored models.Post
	require.NoError(t, f.db.First(&stored, post.ID).Error)
	assert.Equal(t, "Morning walk", stored.Title)
}

func TestUpdatePost_ImageReplaceAndClear(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Image = &Upload{Filename: "a.png", Reader: strings.NewReader("first")}
	post, err := f.service.CreatePost(context.Background(), policy.Viewer{ID: f.alice.ID}, in)
	require.NoError(t, err)
	first := post.Image

	in = validInput()
	in.Image = &Upload{Filename: "b.png", Reader: strings.NewReader("second")}
	post, err = f.service.UpdatePost(context.Background(), policy.Viewer{ID: f.alice.ID}, post.ID, in)
	require.NoError(t, err)
	assert.NotEqual(t, first, post.Image)
	assert.NotEmpty(t, post.Image)

	in = validInput()
	in.ClearImage = true
	post, err = f.service.UpdatePost(context.Background(), policy.Viewer{ID: f.alice.ID}, post.ID, in)
	require.NoError(t, err)

	var stored models.Post
	require.NoError(t, f.db.First(&stored, post.ID).Error)
	assert.Empty(t, stored.Image)
}

func TestDeletePost_CascadesAndIsNotRepeatable(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)
	ctx := context.Background()
	_, err := f.service.CreateComment(ctx, policy.Viewer{ID: f.bob.ID}, post.ID, CommentInput{Text: "nice"})
	require.NoError(t, err)

	require.NoError(t, f.service.DeletePost(ctx, policy.Viewer{ID: f.alice.ID}, post.ID))

	var comments int64
	f.db.Model(&models.Comment{}).Count(&comments)
	assert.Zero(t, comments)

	err = f.service.DeletePost(ctx, policy.Viewer{ID: f.alice.ID}, post.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeletePost_NonOwner(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)

	err := f.service.DeletePost(context.Background(), policy.Viewer{ID: f.bob.ID}, post.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	var count int64
	f.db.Model(&models.Post{}).Where("id = ?", post.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateComment_AppendsWithAuthor(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)
	ctx := context.Background()
	base := time.Now().UTC()
	f.service.WithClock(func() time.Time { return base })

	first, err := f.service.CreateComment(ctx, policy.Viewer{ID: f.bob.ID}, post.ID, CommentInput{Text: "first"})
	require.NoError(t, err)
	f.service.WithClock(func() time.Time { return base.Add(time.Second) })
	second, err := f.service.CreateComment(ctx, policy.Viewer{ID: f.alice.ID}, post.ID, CommentInput{Text: "second"})
	require.NoError(t, err)

	assert.Equal(t, f.bob.ID, first.AuthorID)
	assert.Equal(t, f.alice.ID, second.AuthorID)

	var comments []models.Comment
	require.NoError(t, f.db.Where("post_id = ?", post.ID).Order("created_at ASC").Find(&comments).Error)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Text)
	assert.Equal(t, "second", comments[1].Text)
}

func TestCreateComment_HiddenOrMissingPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := &models.Post{Title: "draft", Text: "wip", PubDate: time.Now().UTC(), IsPublished: false, AuthorID: f.alice.ID}
	require.NoError(t, f.db.Create(draft).Error)

	_, err := f.service.CreateComment(ctx, policy.Viewer{ID: f.bob.ID}, draft.ID, CommentInput{Text: "hi"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.service.CreateComment(ctx, policy.Viewer{ID: f.alice.ID}, draft.ID, CommentInput{Text: "note to self"})
	assert.NoError(t, err)

	_, err = f.service.CreateComment(ctx, policy.Viewer{ID: f.bob.ID}, 9999, CommentInput{Text: "hi"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.service.CreateComment(ctx, policy.Viewer{ID: f.bob.ID}, draft.ID, CommentInput{Text: " "})
	_, ok := common.AsValidation(err)
	assert.True(t, ok)
}

func TestComment_NonOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)
	ctx := context.Background()
	comment, err := f.service.CreateComment(ctx, policy.Viewer{ID: f.alice.ID}, post.ID, CommentInput{Text: "mine"})
	require.NoError(t, err)

	bob := policy.Viewer{ID: f.bob.ID}
	_, err = f.service.OwnComment(ctx, bob, post.ID, comment.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.service.UpdateComment(ctx, bob, post.ID, comment.ID, CommentInput{Text: "yours now"})
	assert.ErrorIs(t, err, common.ErrNotFound)
	err = f.service.DeleteComment(ctx, bob, post.ID, comment.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	var stored models.Comment
	require.NoError(t, f.db.First(&stored, comment.ID).Error)
	assert.Equal(t, "mine", stored.Text)
}

func TestComment_WrongPostIsNotFound(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)
	other := f.createPost(t, f.alice)
	ctx := context.Background()
	comment, err := f.service.CreateComment(ctx, policy.Viewer{ID: f.alice.ID}, post.ID, CommentInput{Text: "here"})
	require.NoError(t, err)

	_, err = f.service.OwnComment(ctx, policy.Viewer{ID: f.alice.ID}, other.ID, comment.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestComment_OwnerUpdatesAndDeletes(t *testing.T) {
	f := newFixture(t)
	post := f.createPost(t, f.alice)
	ctx := context.Background()
	bob := policy.Viewer{ID: f.bob.ID}
	comment, err := f.service.CreateComment(ctx, bob, post.ID, CommentInput{Text: "typo"})
	require.NoError(t, err)

	updated, err := f.service.UpdateComment(ctx, bob, post.ID, comment.ID, CommentInput{Text: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", updated.Text)

	require.NoError(t, f.service.DeleteComment(ctx, bob, post.ID, comment.ID))
	err = f.service.DeleteComment(ctx, bob, post.ID, comment.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestParsePubDate(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
		wantErr  bool
	}{
		{"2024-05-06T07:08", time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC), false},
		{"2024-05-06 07:08", time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC), false},
		{"2024-05-06", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), false},
		{"06/05/2024", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePubDate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got))
		})
	}
}

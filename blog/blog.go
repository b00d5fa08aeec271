package blog

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"blogicum/accounts"
	"blogicum/common"
	"blogicum/content"
	"blogicum/feed"
	"blogicum/pages"
)

type BlogModule struct {
	feed    *feed.Service
	content *content.Service
}

func NewBlogModule(feedService *feed.Service, contentService *content.Service) *BlogModule {
	return &BlogModule{
		feed:    feedService,
		content: contentService,
	}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", b.index)
	router.GET("/category/:slug/", b.categoryPosts)
	router.GET("/profile/:username/", b.profile)
	router.GET("/posts/:id/", b.postDetail)

	postsGroup := router.Group("/posts", accounts.RequireLogin)
	{
		postsGroup.GET("/create/", b.newPost)
		postsGroup.POST("/create/", b.createPost)
		postsGroup.GET("/:id/edit/", b.editPost)
		postsGroup.POST("/:id/edit/", b.updatePost)
		postsGroup.GET("/:id/delete/", b.confirmDeletePost)
		postsGroup.POST("/:id/delete/", b.deletePost)
		postsGroup.POST("/:id/comment/", b.addComment)
		postsGroup.GET("/:id/edit/:comment_id", b.editComment)
		postsGroup.POST("/:id/edit/:comment_id", b.updateComment)
		postsGroup.GET("/:id/delete_comment/:comment_id", b.confirmDeleteComment)
		postsGroup.POST("/:id/delete_comment/:comment_id", b.deleteComment)
	}
}

func (b *BlogModule) index(c *gin.Context) {
	page, err := b.feed.Home(c.Request.Context(), feed.ParsePageNumber(c.Query("page")))
	if err != nil {
		b.fail(c, err, 0)
		return
	}

	c.HTML(http.StatusOK, "index.html", accounts.Data(c, gin.H{
		"page": page,
	}))
}

func (b *BlogModule) categoryPosts(c *gin.Context) {
	category, page, err := b.feed.Category(c.Request.Context(), c.Param("slug"), feed.ParsePageNumber(c.Query("page")))
	if err != nil {
		b.fail(c, err, 0)
		return
	}

	c.HTML(http.StatusOK, "category.html", accounts.Data(c, gin.H{
		"title":    category.Title,
		"category": category,
		"page":     page,
	}))
}

func (b *BlogModule) profile(c *gin.Context) {
	viewer := accounts.CurrentViewer(c)
	profile, page, err := b.feed.Profile(c.Request.Context(), c.Param("username"), viewer, feed.ParsePageNumber(c.Query("page")))
	if err != nil {
		b.fail(c, err, 0)
		return
	}

	c.HTML(http.StatusOK, "profile.html", accounts.Data(c, gin.H{
		"title":   profile.Username,
		"profile": profile,
		"page":    page,
		"isOwner": viewer.Is(profile.ID),
	}))
}

func (b *BlogModule) postDetail(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		pages.NotFound(c)
		return
	}
	b.renderDetail(c, id, "", nil)
}

func (b *BlogModule) renderDetail(c *gin.Context, id uint, commentText string, errs map[string]string) {
	ctx := c.Request.Context()
	viewer := accounts.CurrentViewer(c)

	post, err := b.feed.Post(ctx, id, viewer)
	if err != nil {
		b.fail(c, err, id)
		return
	}

	comments, err := b.feed.Comments(ctx, post.ID)
	if err != nil {
		b.fail(c, err, id)
		return
	}

	c.HTML(http.StatusOK, "detail.html", accounts.Data(c, gin.H{
		"title":       post.Title,
		"post":        post,
		"comments":    comments,
		"canEdit":     viewer.Is(post.AuthorID),
		"commentText": commentText,
		"errors":      errs,
	}))
}

func (b *BlogModule) newPost(c *gin.Context) {
	b.renderPostForm(c, postFormView{}, nil, 0, false)
}

func (b *BlogModule) createPost(c *gin.Context) {
	viewer := accounts.CurrentViewer(c)

	input, view, v, cleanup := bindPostForm(c)
	defer cleanup()
	if !v.Empty() {
		b.renderPostForm(c, view, v.Fields, 0, false)
		return
	}

	if _, err := b.content.CreatePost(c.Request.Context(), viewer, input); err != nil {
		if verr, ok := common.AsValidation(err); ok {
			b.renderPostForm(c, view, verr.Fields, 0, false)
			return
		}
		b.fail(c, err, 0)
		return
	}

	user := accounts.CurrentUser(c)
	c.Redirect(http.StatusFound, profileURL(user.Username))
}

func (b *BlogModule) editPost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		pages.NotFound(c)
		return
	}

	post, err := b.content.PostForEdit(c.Request.Context(), accounts.CurrentViewer(c), id)
	if err != nil {
		b.fail(c, err, id)
		return
	}

	b.renderPostForm(c, viewOfPost(post), nil, id, false)
}

func (b *BlogModule) updatePost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		pages.NotFound(c)
		return
	}
	viewer := accounts.CurrentViewer(c)

	// Ownership is checked before looking at the form so strangers are redirected either way.
	current, err := b.content.PostForEdit(c.Request.Context(), viewer, id)
	if err != nil {
		b.fail(c, err, id)
		return
	}

	input, view, v, cleanup := bindPostForm(c)
	defer cleanup()
	view.Image = current.Image
	if !v.Empty() {
		b.renderPostForm(c, view, v.Fields, id, false)
		return
	}

	if _, err := b.content.UpdatePost(c.Request.Context(), viewer, id, input); err != nil {
		if verr, ok := common.AsValidation(err); ok {
			b.renderPostForm(c, view, verr.Fields, id, false)
			return
		}
		b.fail(c, err, id)
		return
	}

	c.Redirect(http.StatusFound, postURL(id))
}

func (b *BlogModule) confirmDeletePost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		pages.NotFound(c)
		return
	}

	post, err := b.content.PostForEdit(c.Request.Context(), accounts.CurrentViewer(c), id)
	if err != nil {
		b.fail(c, err, id)
		return
	}

	b.renderPostForm(c, viewOfPost(post), nil, id, true)
}

func (b *BlogModule) deletePost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		pages.NotFound(c)
		return
	}

	if err := b.content.DeletePost(c.Request.Context(), accounts.CurrentViewer(c), id); err != nil {
		b.fail(c, err, id)
		return
	}

	c.Redirect(http.StatusFound, profileURL(accounts.CurrentUser(c).Username))
}

func (b *BlogModule) addComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		pages.NotFound(c)
		return
	}

	var form commentForm
	if err := c.ShouldBind(&form); err != nil {
		b.renderDetail(c, id, form.Text, common.BindingErrors(err).Fields)
		return
	}

	_, err := b.content.CreateComment(c.Request.Context(), accounts.CurrentViewer(c), id, content.CommentInput{Text: form.Text})
	if verr, ok := common.AsValidation(err); ok {
		b.renderDetail(c, id, form.Text, verr.Fields)
		return
	}
	if err != nil {
		b.fail(c, err, id)
		return
	}

	c.Redirect(http.StatusFound, postURL(id))
}

func (b *BlogModule) editComment(c *gin.Context) {
	b.showComment(c, false)
}

func (b *BlogModule) confirmDeleteComment(c *gin.Context) {
	b.showComment(c, true)
}

func (b *BlogModule) showComment(c *gin.Context, isDelete bool) {
	postID, ok1 := paramID(c, "id")
	commentID, ok2 := paramID(c, "comment_id")
	if !ok1 || !ok2 {
		pages.NotFound(c)
		return
	}

	comment, err := b.content.OwnComment(c.Request.Context(), accounts.CurrentViewer(c), postID, commentID)
	if err != nil {
		b.fail(c, err, postID)
		return
	}

	c.HTML(http.StatusOK, "comment.html", accounts.Data(c, gin.H{
		"comment":  comment,
		"text":     comment.Text,
		"isDelete": isDelete,
	}))
}

func (b *BlogModule) updateComment(c *gin.Context) {
	postID, ok1 := paramID(c, "id")
	commentID, ok2 := paramID(c, "comment_id")
	if !ok1 || !ok2 {
		pages.NotFound(c)
		return
	}
	ctx := c.Request.Context()
	viewer := accounts.CurrentViewer(c)

	var form commentForm
	bindErr := c.ShouldBind(&form)

	var err error
	if bindErr != nil {
		err = common.BindingErrors(bindErr)
	} else {
		_, err = b.content.UpdateComment(ctx, viewer, postID, commentID, content.CommentInput{Text: form.Text})
	}

	if verr, ok := common.AsValidation(err); ok {
		comment, lookupErr := b.content.OwnComment(ctx, viewer, postID, commentID)
		if lookupErr != nil {
			b.fail(c, lookupErr, postID)
			return
		}
		c.HTML(http.StatusOK, "comment.html", accounts.Data(c, gin.H{
			"comment": comment,
			"text":    form.Text,
			"errors":  verr.Fields,
		}))
		return
	}
	if err != nil {
		b.fail(c, err, postID)
		return
	}

	c.Redirect(http.StatusFound, postURL(postID))
}

func (b *BlogModule) deleteComment(c *gin.Context) {
	postID, ok1 := paramID(c, "id")
	commentID, ok2 := paramID(c, "comment_id")
	if !ok1 || !ok2 {
		pages.NotFound(c)
		return
	}

	if err := b.content.DeleteComment(c.Request.Context(), accounts.CurrentViewer(c), postID, commentID); err != nil {
		b.fail(c, err, postID)
		return
	}

	c.Redirect(http.StatusFound, postURL(postID))
}

func (b *BlogModule) renderPostForm(c *gin.Context, view postFormView, errs map[string]string, postID uint, isDelete bool) {
	ctx := c.Request.Context()

	categories, err := b.feed.Categories(ctx)
	if err != nil {
		b.fail(c, err, postID)
		return
	}
	locations, err := b.feed.Locations(ctx)
	if err != nil {
		b.fail(c, err, postID)
		return
	}

	c.HTML(http.StatusOK, "create.html", accounts.Data(c, gin.H{
		"form":       view,
		"errors":     errs,
		"categories": categories,
		"locations":  locations,
		"postID":     postID,
		"isEdit":     postID != 0 && !isDelete,
		"isDelete":   isDelete,
	}))
}

// fail maps service errors onto responses. Validation errors are handled by the caller.
func (b *BlogModule) fail(c *gin.Context, err error, postID uint) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		pages.NotFound(c)
	case errors.Is(err, common.ErrForbidden):
		c.Redirect(http.StatusFound, postURL(postID))
	case errors.Is(err, common.ErrUnauthenticated):
		c.Redirect(http.StatusFound, accounts.LoginURL+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
	default:
		log.Printf("Error handling %s %s [%s]: %v", c.Request.Method, c.Request.URL.Path, common.GetRequestID(c), err)
		pages.ServerError(c)
	}
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func postURL(id uint) string {
	return fmt.Sprintf("/posts/%d/", id)
}

func profileURL(username string) string {
	return "/profile/" + url.PathEscape(username) + "/"
}

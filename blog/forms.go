package blog

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"blogicum/common"
	"blogicum/content"
	"blogicum/models"
)

// postForm is everything a post form may submit; author and publication flag are not here.
type postForm struct {
	Title      string `form:"title" binding:"required,max=256"`
	Text       string `form:"text" binding:"required"`
	PubDate    string `form:"pub_date" binding:"required"`
	Location   string `form:"location"`
	Category   string `form:"category"`
	ClearImage string `form:"image-clear"`
}

type commentForm struct {
	Text string `form:"text" binding:"required"`
}

// postFormView is what create.html draws inside the form.
type postFormView struct {
	Title      string
	Text       string
	PubDate    string
	LocationID uint
	CategoryID uint
	Image      string
}

func viewOfPost(post *models.Post) postFormView {
	view := postFormView{
		Title:   post.Title,
		Text:    post.Text,
		PubDate: post.PubDate.UTC().Format("2006-01-02T15:04"),
		Image:   post.Image,
	}
	if post.LocationID != nil {
		view.LocationID = *post.LocationID
	}
	if post.CategoryID != nil {
		view.CategoryID = *post.CategoryID
	}
	return view
}

// bindPostForm reads the multipart post form. The returned cleanup closes the uploaded file.
func bindPostForm(c *gin.Context) (content.PostInput, postFormView, *common.ValidationError, func()) {
	cleanup := func() {}

	var form postForm
	v := common.BindingErrors(c.ShouldBind(&form))

	view := postFormView{
		Title:   form.Title,
		Text:    form.Text,
		PubDate: form.PubDate,
	}
	input := content.PostInput{
		Title:      form.Title,
		Text:       form.Text,
		PubDate:    form.PubDate,
		ClearImage: form.ClearImage != "",
	}

	if id, ok := optionalID(form.Location); ok {
		input.LocationID = id
		if id != nil {
			view.LocationID = *id
		}
	} else {
		v.Add("location", "Select a valid choice.")
	}
	if id, ok := optionalID(form.Category); ok {
		input.CategoryID = id
		if id != nil {
			view.CategoryID = *id
		}
	} else {
		v.Add("category", "Select a valid choice.")
	}

	header, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		v.Add("image", "Upload a valid image.")
	default:
		file, err := header.Open()
		if err != nil {
			log.Printf("Error opening upload %s: %v", header.Filename, err)
			v.Add("image", "Upload a valid image.")
			break
		}
		cleanup = func() { file.Close() }
		input.Image = &content.Upload{Filename: header.Filename, Reader: file}
	}

	return input, view, v, cleanup
}

// optionalID parses a select value. An empty value means no choice.
func optionalID(raw string) (*uint, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return nil, false
	}
	id := uint(n)
	return &id, true
}

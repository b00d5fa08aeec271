package accounts

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"blogicum/models"
	"blogicum/policy"
)

const (
	sessionUserKey = "user_id"
	viewerKey      = "viewer"
	userKey        = "user"

	LoginURL = "/auth/login/"
)

// LoadViewer resolves the session user for every request. A session pointing at a user
// that no longer exists is cleared.
func (a *AccountsModule) LoadViewer(c *gin.Context) {
	session := sessions.Default(c)
	id := sessionUserID(session.Get(sessionUserKey))
	if id == 0 {
		c.Set(viewerKey, policy.Anonymous())
		c.Next()
		return
	}

	var user models.User
	if err := a.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Error loading session user %d: %v", id, err)
		}
		session.Delete(sessionUserKey)
		session.Save()
		c.Set(viewerKey, policy.Anonymous())
		c.Next()
		return
	}

	c.Set(viewerKey, policy.Viewer{ID: user.ID})
	c.Set(userKey, &user)
	c.Next()
}

// RequireLogin sends anonymous visitors to the login page and back afterwards.
func RequireLogin(c *gin.Context) {
	if CurrentViewer(c).IsAnonymous() {
		c.Redirect(http.StatusFound, LoginURL+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
		return
	}
	c.Next()
}

// CurrentViewer is anonymous when LoadViewer did not run or found nobody.
func CurrentViewer(c *gin.Context) policy.Viewer {
	if v, ok := c.Get(viewerKey); ok {
		if viewer, ok := v.(policy.Viewer); ok {
			return viewer
		}
	}
	return policy.Anonymous()
}

func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// Data adds the signed-in user to template data so the header can render.
func Data(c *gin.Context, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	data["currentUser"] = CurrentUser(c)
	data["viewerID"] = CurrentViewer(c).ID
	return data
}

func login(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionUserKey, user.ID)
	return session.Save()
}

func sessionUserID(v interface{}) uint {
	switch id := v.(type) {
	case uint:
		return id
	case int:
		if id > 0 {
			return uint(id)
		}
	case int64:
		if id > 0 {
			return uint(id)
		}
	}
	return 0
}

// safeNext only allows redirects to paths on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return next
}

// Package accounts handles sign-in, registration and the profile edit form.
package accounts

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"blogicum/common"
	"blogicum/models"
)

const invalidLogin = "Please enter a correct username and password. Note that both fields may be case-sensitive."

type AccountsModule struct {
	db *gorm.DB
}

func NewAccountsModule(db *gorm.DB) *AccountsModule {
	return &AccountsModule{db: db}
}

func (a *AccountsModule) RegisterRoutes(router *gin.Engine) {
	auth := router.Group("/auth")
	{
		auth.GET("/login/", a.loginPage)
		auth.POST("/login/", a.loginPost)
		auth.POST("/logout/", a.logout)
		auth.GET("/registration/", a.registrationPage)
		auth.POST("/registration/", a.registrationPost)
	}

	router.GET("/edit/", RequireLogin, a.editProfilePage)
	router.POST("/edit/", RequireLogin, a.editProfilePost)
}

type loginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
	Next     string `form:"next"`
}

type registrationForm struct {
	Username  string `form:"username" binding:"required,max=150,username"`
	Email     string `form:"email" binding:"omitempty,email"`
	Password1 string `form:"password1" binding:"required,min=8"`
	Password2 string `form:"password2" binding:"required,eqfield=Password1"`
}

// ProfileInput holds the profile fields a user may change about themselves.
type ProfileInput struct {
	FirstName string `form:"first_name" binding:"max=150"`
	LastName  string `form:"last_name" binding:"max=150"`
	Username  string `form:"username" binding:"required,max=150,username"`
	Email     string `form:"email" binding:"omitempty,email"`
}

func (a *AccountsModule) loginPage(c *gin.Context) {
	if CurrentUser(c) != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}
	c.HTML(http.StatusOK, "login.html", Data(c, gin.H{
		"next": c.Query("next"),
	}))
}

func (a *AccountsModule) loginPost(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		c.HTML(http.StatusOK, "login.html", Data(c, gin.H{
			"errors":   common.BindingErrors(err).Fields,
			"username": form.Username,
			"next":     form.Next,
		}))
		return
	}

	user, err := a.authenticate(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		c.HTML(http.StatusOK, "login.html", Data(c, gin.H{
			"error":    invalidLogin,
			"username": form.Username,
			"next":     form.Next,
		}))
		return
	}

	if err := login(c, user); err != nil {
		log.Printf("Error saving session for user %d: %v", user.ID, err)
		c.HTML(http.StatusInternalServerError, "500.html", Data(c, nil))
		return
	}

	c.Redirect(http.StatusFound, safeNext(form.Next))
}

func (a *AccountsModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		log.Printf("Error clearing session: %v", err)
		c.HTML(http.StatusInternalServerError, "500.html", Data(c, nil))
		return
	}

	c.HTML(http.StatusOK, "logged_out.html", gin.H{})
}

func (a *AccountsModule) registrationPage(c *gin.Context) {
	c.HTML(http.StatusOK, "registration.html", Data(c, gin.H{}))
}

func (a *AccountsModule) registrationPost(c *gin.Context) {
	var form registrationForm
	bindErr := common.BindNormalized(c, &form, func() {
		form.Username = strings.TrimSpace(form.Username)
	})

	formData := gin.H{
		"username": form.Username,
		"email":    form.Email,
	}

	v := common.BindingErrors(bindErr)
	if v.Empty() {
		taken, err := a.usernameTaken(c.Request.Context(), form.Username, 0)
		if err != nil {
			log.Printf("Error checking username %q: %v", form.Username, err)
			c.HTML(http.StatusInternalServerError, "500.html", Data(c, nil))
			return
		}
		if taken {
			v.Add("username", "A user with that username already exists.")
		}
	}
	if !v.Empty() {
		formData["errors"] = v.Fields
		c.HTML(http.StatusOK, "registration.html", Data(c, formData))
		return
	}

	passwordHash, err := hashPassword(form.Password1)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		c.HTML(http.StatusInternalServerError, "500.html", Data(c, nil))
		return
	}

	user := models.User{
		Username:     form.Username,
		Email:        form.Email,
		PasswordHash: passwordHash,
	}
	if err := a.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		log.Printf("Error creating user %q: %v", user.Username, err)
		c.HTML(http.StatusInternalServerError, "500.html", Data(c, nil))
		return
	}

	log.Printf("User %d registered as %s", user.ID, user.Username)
	c.Redirect(http.StatusFound, "/")
}

func (a *AccountsModule) editProfilePage(c *gin.Context) {
	user := CurrentUser(c)
	c.HTML(http.StatusOK, "user.html", Data(c, gin.H{
		"form": ProfileInput{
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Username:  user.Username,
			Email:     user.Email,
		},
	}))
}

func (a *AccountsModule) editProfilePost(c *gin.Context) {
	user := CurrentUser(c)

	var form ProfileInput
	bindErr := common.BindNormalized(c, &form, func() {
		form.Username = strings.TrimSpace(form.Username)
	})

	updated, err := a.UpdateProfile(c.Request.Context(), user, form, bindErr)
	if v, ok := common.AsValidation(err); ok {
		c.HTML(http.StatusOK, "user.html", Data(c, gin.H{
			"form":   form,
			"errors": v.Fields,
		}))
		return
	}
	if err != nil {
		log.Printf("Error updating profile of user %d: %v", user.ID, err)
		c.HTML(http.StatusInternalServerError, "500.html", Data(c, nil))
		return
	}

	c.Redirect(http.StatusFound, "/profile/"+url.PathEscape(updated.Username)+"/")
}

// UpdateProfile applies the form to user. bindErr is the result of binding the form.
func (a *AccountsModule) UpdateProfile(ctx context.Context, user *models.User, form ProfileInput, bindErr error) (*models.User, error) {
	v := common.BindingErrors(bindErr)
	username := strings.TrimSpace(form.Username)

	if v.Empty() {
		taken, err := a.usernameTaken(ctx, username, user.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			v.Add("username", "A user with that username already exists.")
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	user.FirstName = form.FirstName
	user.LastName = form.LastName
	user.Username = username
	user.Email = form.Email

	err := a.db.WithContext(ctx).Model(user).
		Select("first_name", "last_name", "username", "email").
		Updates(user).Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (a *AccountsModule) authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	if err := a.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, common.NotFoundOr(err)
	}
	if !checkPasswordHash(password, user.PasswordHash) {
		return nil, errors.New("password mismatch")
	}
	return &user, nil
}

func (a *AccountsModule) usernameTaken(ctx context.Context, username string, exceptID uint) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? AND id <> ?", username, exceptID).
		Count(&count).Error
	return count > 0, err
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Package pages serves the static pages, the sitemap and the error pages.
package pages

import (
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"blogicum/accounts"
	"blogicum/models"
	"blogicum/policy"
)

const sitemapContentType = "application/xml; charset=utf-8"

type PagesModule struct {
	db     *gorm.DB
	domain string
}

func NewPagesModule(db *gorm.DB, domain string) *PagesModule {
	if domain == "" {
		domain = "http://localhost:8080"
	}
	return &PagesModule{db: db, domain: strings.TrimSuffix(domain, "/")}
}

func (p *PagesModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/pages/about/", p.about)
	router.GET("/pages/rules/", p.rules)
	router.GET("/sitemap.xml", p.sitemap)

	router.NoRoute(NotFound)
}

func (p *PagesModule) about(c *gin.Context) {
	c.HTML(http.StatusOK, "about.html", accounts.Data(c, gin.H{"title": "About"}))
}

func (p *PagesModule) rules(c *gin.Context) {
	c.HTML(http.StatusOK, "rules.html", accounts.Data(c, gin.H{"title": "Rules"}))
}

// NotFound renders the 404 page.
func NotFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "404.html", accounts.Data(c, gin.H{"title": "Page not found"}))
}

// ServerError renders the 500 page. The cause should already be logged.
func ServerError(c *gin.Context) {
	c.HTML(http.StatusInternalServerError, "500.html", accounts.Data(c, gin.H{"title": "Server error"}))
}

// Recovery logs a panic and shows the 500 page instead of an empty response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Printf("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		ServerError(c)
		c.Abort()
	})
}

func (p *PagesModule) sitemap(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()

	var sitemap strings.Builder
	sitemap.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sitemap.WriteString("\n")
	sitemap.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	sitemap.WriteString("\n")

	writeURL(&sitemap, p.domain+"/", "", "daily", "1.0")
	writeURL(&sitemap, p.domain+"/pages/about/", "", "monthly", "0.3")
	writeURL(&sitemap, p.domain+"/pages/rules/", "", "monthly", "0.3")

	var categories []models.Category
	if err := p.db.WithContext(ctx).Where("is_published = ?", true).Order("id").Find(&categories).Error; err != nil {
		log.Printf("Error loading categories for sitemap: %v", err)
		ServerError(c)
		return
	}
	for _, category := range categories {
		writeURL(&sitemap, p.domain+"/category/"+category.Slug+"/", "", "weekly", "0.7")
	}

	var posts []models.Post
	err := p.db.WithContext(ctx).
		Scopes(policy.Published(now)).
		Order("posts.pub_date DESC").
		Find(&posts).Error
	if err != nil {
		log.Printf("Error loading posts for sitemap: %v", err)
		ServerError(c)
		return
	}
	for _, post := range posts {
		writeURL(&sitemap, fmt.Sprintf("%s/posts/%d/", p.domain, post.ID), post.PubDate.Format(time.RFC3339), "monthly", "0.6")
	}

	sitemap.WriteString("</urlset>\n")

	c.Data(http.StatusOK, sitemapContentType, []byte(sitemap.String()))
}

func writeURL(b *strings.Builder, loc, lastmod, changefreq, priority string) {
	b.WriteString("  <url>\n")
	b.WriteString("    <loc>")
	xml.EscapeText(b, []byte(loc))
	b.WriteString("</loc>\n")
	if lastmod != "" {
		b.WriteString("    <lastmod>" + lastmod + "</lastmod>\n")
	}
	b.WriteString("    <changefreq>" + changefreq + "</changefreq>\n")
	b.WriteString("    <priority>" + priority + "</priority>\n")
	b.WriteString("  </url>\n")
}

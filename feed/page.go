package feed

import (
	"strconv"

	"blogicum/models"
)

// DefaultPageSize is used when the configured size is not positive.
const DefaultPageSize = 10

// Page is one slice of a feed plus what templates need to draw pagination links.
type Page struct {
	Posts    []models.Post
	Number   int
	NumPages int
	Count    int64
	PageSize int
}

func (p *Page) HasNext() bool     { return p.Number < p.NumPages }
func (p *Page) HasPrevious() bool { return p.Number > 1 }
func (p *Page) NextNumber() int   { return p.Number + 1 }
func (p *Page) PreviousNumber() int {
	return p.Number - 1
}

// HasOtherPages is true when more than one page exists.
func (p *Page) HasOtherPages() bool { return p.NumPages > 1 }

// ParsePageNumber reads a ?page= value; anything that is not a number means the first page.
func ParsePageNumber(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return n
}

// window computes the clamped page number and the row offset for a result of total rows.
// Out-of-range requests land on the nearest valid page; an empty result still has one page.
func window(requested int, total int64, size int) (number, numPages, offset int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	numPages = int((total + int64(size) - 1) / int64(size))
	if numPages < 1 {
		numPages = 1
	}

	number = requested
	if number < 1 {
		number = 1
	}
	if number > numPages {
		number = numPages
	}
	return number, numPages, (number - 1) * size
}

package tools

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Args is a tool's typed argument set. Validate runs after strict decoding.
type Args interface {
	Validate() error
}

const (
	maxQueryLen    = 1000
	maxPromptLen   = 4000
	maxFactLen     = 500
	maxWebsiteSize = 512 * 1024
)

type WebSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (a WebSearchArgs) Validate() error {
	q := strings.TrimSpace(a.Query)
	if q == "" {
		return errors.New("query is required")
	}
	if utf8.RuneCountInString(q) > maxQueryLen {
		return fmt.Errorf("query too long (max %d characters)", maxQueryLen)
	}
	if a.MaxResults < 0 || a.MaxResults > 10 {
		return errors.New("max_results must be between 1 and 10")
	}
	return nil
}

type ReadWebpageArgs struct {
	URL string `json:"url"`
}

func (a ReadWebpageArgs) Validate() error {
	if a.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

var imageSizes = []string{"1024x1024", "1792x1024", "1024x1792"}

type GenerateImageArgs struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

func (a GenerateImageArgs) Validate() error {
	p := strings.TrimSpace(a.Prompt)
	if p == "" {
		return errors.New("prompt is required")
	}
	if utf8.RuneCountInString(p) > maxPromptLen {
		return fmt.Errorf("prompt too long (max %d characters)", maxPromptLen)
	}
	if a.Size != "" && !contains(imageSizes, a.Size) {
		return fmt.Errorf("size must be one of %s", strings.Join(imageSizes, ", "))
	}
	return nil
}

type SaveMemoryArgs struct {
	Content    string `json:"content"`
	Importance int    `json:"importance,omitempty"`
}

func (a SaveMemoryArgs) Validate() error {
	c := strings.TrimSpace(a.Content)
	if c == "" {
		return errors.New("content is required")
	}
	if utf8.RuneCountInString(c) > maxFactLen {
		return fmt.Errorf("content too long (max %d characters)", maxFactLen)
	}
	if a.Importance < 0 || a.Importance > 10 {
		return errors.New("importance must be between 1 and 10")
	}
	return nil
}

type RouteOrderArgs struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

func (a RouteOrderArgs) Validate() error {
	if strings.TrimSpace(a.Product) == "" {
		return errors.New("product is required")
	}
	if a.Quantity < 1 || a.Quantity > 1000 {
		return errors.New("quantity must be between 1 and 1000")
	}
	return nil
}

type EmitWebsiteArgs struct {
	Title string `json:"title"`
	HTML  string `json:"html"`
}

func (a EmitWebsiteArgs) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(a.HTML) == "" {
		return errors.New("html is required")
	}
	if len(a.HTML) > maxWebsiteSize {
		return fmt.Errorf("html too large (max %d bytes)", maxWebsiteSize)
	}
	lower := strings.ToLower(a.HTML)
	if !strings.Contains(lower, "<html") && !strings.Contains(lower, "<!doctype html") {
		return errors.New("html must be a complete document")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Credentials holds the admin API integration credentials of a shop
type Credentials struct {
	ClientID     string `json:"client_id" bson:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret,omitempty" bson:"client_secret" yaml:"client_secret"`
}

// Validate validates credentials
func (c *Credentials) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("client_id and client_secret are required")
	}
	return nil
}

// Metadata represents common metadata fields
type Metadata struct {
	CreatedAt time.Time `json:"created_at" bson:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" yaml:"-"`
	Tags      []string  `json:"tags,omitempty" bson:"tags,omitempty" yaml:"tags,omitempty"`
}

// Shop represents a monitored shop document
type Shop struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty" yaml:"-"`
	Name            string             `json:"name" bson:"name" yaml:"name"`
	URL             string             `json:"url" bson:"url" yaml:"url"`
	Credentials     Credentials        `json:"credentials" bson:"credentials" yaml:"credentials"`
	OwnerUserID     string             `json:"owner_user_id" bson:"owner_user_id" yaml:"owner_user_id"`
	Metadata        Metadata           `json:"metadata" bson:"metadata" yaml:"metadata"`
	StatusLevel     Level              `json:"status_level,omitempty" bson:"status_level,omitempty" yaml:"-"`
	LastScrapedAt   *time.Time         `json:"last_scraped_at,omitempty" bson:"last_scraped_at,omitempty" yaml:"-"`
	LastScrapeError string             `json:"last_scrape_error,omitempty" bson:"last_scrape_error,omitempty" yaml:"-"`
}

// Key returns the string identifier used for locks, snapshots and statuses
func (s *Shop) Key() string {
	return s.ID.Hex()
}

// IsDue reports whether the shop has never been scraped or was last scraped
// longer than interval before now
func (s *Shop) IsDue(now time.Time, interval time.Duration) bool {
	return s.LastScrapedAt == nil || s.LastScrapedAt.Before(now.Add(-interval))
}

// Validate validates the shop definition and fills defaults
func (s *Shop) Validate() error {
	if s.Name == "" {
		return errors.New("shop name is required")
	}
	if len(s.Name) > 255 {
		return errors.New("shop name must be 255 characters or less")
	}

	if s.URL == "" {
		return errors.New("shop URL is required")
	}
	parsedURL, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("URL must start with http:// or https://")
	}
	s.URL = strings.TrimRight(s.URL, "/")

	if err := s.Credentials.Validate(); err != nil {
		return fmt.Errorf("credentials validation failed: %w", err)
	}

	if s.OwnerUserID == "" {
		return errors.New("owner_user_id is required")
	}

	now := time.Now().UTC()
	if s.Metadata.CreatedAt.IsZero() {
		s.Metadata.CreatedAt = now
	}
	if s.Metadata.UpdatedAt.IsZero() {
		s.Metadata.UpdatedAt = now
	}

	return nil
}

// ShopListItem represents a summary of a shop for list responses
type ShopListItem struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	OwnerUserID     string     `json:"owner_user_id"`
	StatusLevel     Level      `json:"status_level,omitempty"`
	LastScrapedAt   *time.Time `json:"last_scraped_at,omitempty"`
	LastScrapeError string     `json:"last_scrape_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Tags            []string   `json:"tags,omitempty"`
}

// ToListItem converts Shop to ShopListItem, dropping credentials
func (s *Shop) ToListItem() ShopListItem {
	return ShopListItem{
		ID:              s.ID.Hex(),
		Name:            s.Name,
		URL:             s.URL,
		OwnerUserID:     s.OwnerUserID,
		StatusLevel:     s.StatusLevel,
		LastScrapedAt:   s.LastScrapedAt,
		LastScrapeError: s.LastScrapeError,
		CreatedAt:       s.Metadata.CreatedAt,
		Tags:            s.Metadata.Tags,
	}
}

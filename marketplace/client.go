package marketplace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-session-client/api"
	"github.com/pkg/errors"
)

// Client is the typed wrapper over the marketplace REST surface. It never
// talks to the network or the identity provider directly; everything goes
// through the api.Client pipeline.
type Client struct {
	api *api.Client
}

func NewClient(apiClient *api.Client) (*Client, error) {
	if apiClient == nil {
		return nil, errors.New("[NewClient] api client is required")
	}
	return &Client{api: apiClient}, nil
}

// Listing is a single marketplace listing.
type Listing struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	SellerID    string    `json:"seller_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// SearchParams filter a listing search. Zero values are omitted from the
// query, which keeps cache keys identical for logically identical searches.
type SearchParams struct {
	Query    string
	Category string
	MinPrice float64
	MaxPrice float64
	Page     int
	PageSize int
}

type SearchResult struct {
	Items []Listing `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
}

// SearchListings performs a cacheable read of /listings.
func (c *Client) SearchListings(ctx context.Context, params SearchParams) (*SearchResult, error) {
	query := url.Values{}
	if params.Query != "" {
		query.Set("q", params.Query)
	}
	if params.Category != "" {
		query.Set("category", params.Category)
	}
	if params.MinPrice > 0 {
		query.Set("min_price", strconv.FormatFloat(params.MinPrice, 'f', -1, 64))
	}
	if params.MaxPrice > 0 {
		query.Set("max_price", strconv.FormatFloat(params.MaxPrice, 'f', -1, 64))
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(params.PageSize))
	}

	var result SearchResult
	err := c.api.Do(ctx, api.Request{
		Method:    http.MethodGet,
		Path:      "/listings",
		Query:     query,
		Cacheable: true,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetListing performs a cacheable read of a single listing.
func (c *Client) GetListing(ctx context.Context, id int64) (*Listing, error) {
	var listing Listing
	err := c.api.Do(ctx, api.Request{
		Method:    http.MethodGet,
		Path:      fmt.Sprintf("/listings/%d", id),
		Cacheable: true,
	}, &listing)
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// OrderRequest creates an order against a listing.
type OrderRequest struct {
	ListingID int64  `json:"listing_id"`
	Quantity  int    `json:"quantity"`
	Message   string `json:"message,omitempty"`
}

type Order struct {
	ID        int64     `json:"id"`
	ListingID int64     `json:"listing_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateOrder posts a new order. Protected, never cached.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var order Order
	err := c.api.Do(ctx, api.Request{
		Method:    http.MethodPost,
		Path:      "/orders",
		Body:      req,
		Protected: true,
	}, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// PricePredictionRequest describes the listing whose price should be
// estimated by the inference backend.
type PricePredictionRequest struct {
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type PricePrediction struct {
	Price    float64 `json:"price"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Currency string  `json:"currency"`
}

// PredictPrice calls the inference-backed price prediction endpoint. These
// calls can run long, so they carry the extended timeout.
func (c *Client) PredictPrice(ctx context.Context, req PricePredictionRequest) (*PricePrediction, error) {
	var prediction PricePrediction
	err := c.api.Do(ctx, api.Request{
		Method:    http.MethodPost,
		Path:      "/predict/price",
		Body:      req,
		Protected: true,
		Timeout:   api.InferenceTimeout,
	}, &prediction)
	if err != nil {
		return nil, err
	}
	return &prediction, nil
}

type UploadResult struct {
	URL string `json:"url"`
}

// UploadListingPhoto uploads a photo for a listing as a multipart request.
// The multipart writer controls the content type so the boundary is correct.
func (c *Client) UploadListingPhoto(ctx context.Context, listingID int64, fileName string, r io.Reader) (*UploadResult, error) {
	var result UploadResult
	err := c.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/listings/%d/photos", listingID),
		Multipart: &api.MultipartPayload{
			FieldName: "photo",
			FileName:  fileName,
			Reader:    r,
		},
		Protected: true,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

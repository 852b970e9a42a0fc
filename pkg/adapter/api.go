package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const DefaultBaseURL = "http://localhost:5000"

var (
	ErrUnexpectedStatus = goerr.New("generation service returned error status")
	ErrMissingField     = goerr.New("response is missing a required field")
)

// API is the interface to the page generation service
type API interface {
	CreateConvertPage(ctx context.Context, input CreateConvertPageInput) (*PageResult, error)
	CreateUnitConversionPage(ctx context.Context, input CreateUnitConversionPageInput) (*PageResult, error)
	GetModels(ctx context.Context) ([]string, error)
	GetFileContent(ctx context.Context, pageLink string) (string, error)
	SaveFileContent(ctx context.Context, pageLink, content string) error
	ClearHistory(ctx context.Context) error
	Convert(ctx context.Context, input ConvertInput) (*ConvertResult, error)
	ProcessPrompt(ctx context.Context, prompt string) (*FunctionResult, error)
}

type CreateConvertPageInput struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type CreateUnitConversionPageInput struct {
	Unit1 string `json:"unit1"`
	Unit2 string `json:"unit2"`
	Model string `json:"model,omitempty"`
}

// PageResult carries the identifier of a generated artifact
type PageResult struct {
	FileName string `json:"file_name"`
}

type ConvertInput struct {
	Code         string  `json:"code"`
	FunctionName string  `json:"function_name"`
	Input        float64 `json:"input"`
}

// ConvertResult holds whatever the generated function returned
type ConvertResult struct {
	Output any `json:"output"`
}

// FunctionResult is a generated conversion function
type FunctionResult struct {
	Code         string `json:"output"`
	FunctionName string `json:"function_name"`
}

// APIClient implements API over HTTP
type APIClient struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type APIOption func(*APIClient)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(client *http.Client) APIOption {
	return func(c *APIClient) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) APIOption {
	return func(c *APIClient) {
		c.httpClient.Timeout = d
	}
}

// NewAPI creates a client for the service at baseURL
func NewAPI(baseURL string, opts ...APIOption) (*APIClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid base URL", goerr.V("base_url", baseURL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, goerr.New("base URL must be http or https", goerr.V("base_url", baseURL))
	}

	c := &APIClient{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the service base URL
func (c *APIClient) BaseURL() string {
	return c.baseURL.String()
}

func (c *APIClient) CreateConvertPage(ctx context.Context, input CreateConvertPageInput) (*PageResult, error) {
	var resp struct {
		FileName *string `json:"file_name"`
		Output   string  `json:"output"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("create_convert_page"), input, &resp); err != nil {
		return nil, err
	}
	if resp.FileName == nil || strings.TrimSpace(*resp.FileName) == "" {
		return nil, goerr.Wrap(ErrMissingField, "file_name not in response",
			goerr.V("call", "create_convert_page"), goerr.V("output", resp.Output))
	}
	return &PageResult{FileName: *resp.FileName}, nil
}

func (c *APIClient) CreateUnitConversionPage(ctx context.Context, input CreateUnitConversionPageInput) (*PageResult, error) {
	var resp struct {
		FileName *string `json:"file_name"`
		Output   string  `json:"output"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("create_unit_conversion_page"), input, &resp); err != nil {
		return nil, err
	}
	if resp.FileName == nil || strings.TrimSpace(*resp.FileName) == "" {
		return nil, goerr.Wrap(ErrMissingField, "file_name not in response",
			goerr.V("call", "create_unit_conversion_page"), goerr.V("output", resp.Output))
	}
	return &PageResult{FileName: *resp.FileName}, nil
}

func (c *APIClient) GetModels(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []string `json:"models"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoint("get_models"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Models == nil {
		return nil, goerr.Wrap(ErrMissingField, "models not in response")
	}
	return resp.Models, nil
}

func (c *APIClient) GetFileContent(ctx context.Context, pageLink string) (string, error) {
	var resp struct {
		Content *string `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoint("get_file_content", pageLink), nil, &resp); err != nil {
		return "", err
	}
	if resp.Content == nil {
		return "", goerr.Wrap(ErrMissingField, "content not in response", goerr.V("page_link", pageLink))
	}
	return *resp.Content, nil
}

func (c *APIClient) SaveFileContent(ctx context.Context, pageLink, content string) error {
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	return c.do(ctx, http.MethodPost, c.endpoint("save_file_content", pageLink), body, nil)
}

func (c *APIClient) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, c.endpoint("clear_history"), nil, nil)
}

func (c *APIClient) Convert(ctx context.Context, input ConvertInput) (*ConvertResult, error) {
	var resp ConvertResult
	if err := c.do(ctx, http.MethodPost, c.endpoint("convert"), input, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *APIClient) ProcessPrompt(ctx context.Context, prompt string) (*FunctionResult, error) {
	body := struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt}

	var resp FunctionResult
	if err := c.do(ctx, http.MethodPost, c.endpoint("process-prompt"), body, &resp); err != nil {
		return nil, err
	}
	// The service reports generation failures as a bare output message
	if resp.FunctionName == "" {
		return nil, goerr.Wrap(ErrMissingField, "function_name not in response", goerr.V("output", resp.Code))
	}
	return &resp, nil
}

// endpoint builds /api/<name>[/<pageLink>], escaping each segment of pageLink
func (c *APIClient) endpoint(name string, pageLink ...string) string {
	segments := []string{"api", name}
	for _, link := range pageLink {
		for _, seg := range strings.Split(strings.Trim(link, "/"), "/") {
			segments = append(segments, url.PathEscape(seg))
		}
	}

	return c.baseURL.String() + "/" + strings.Join(segments, "/")
}

func (c *APIClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("url", endpoint))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to send request", goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return goerr.Wrap(ErrUnexpectedStatus, "request failed",
			goerr.V("url", endpoint),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("url", endpoint))
	}
	return nil
}

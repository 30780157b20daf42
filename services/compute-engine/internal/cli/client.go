package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "AnalysisPlatform/pkg/errors"
)

// passcodeHeader заголовок внеполосного пароля администратора
const passcodeHeader = "X-Sonar-Passcode"

// Client HTTP клиент административного API очереди
type Client struct {
	baseURL  string
	passcode string
	token    string
	client   *http.Client
}

// NewClient создает Client. Пароль имеет приоритет над токеном.
func NewClient(baseURL, passcode, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		passcode: passcode,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Get выполняет GET запрос и декодирует ответ в result
func (c *Client) Get(ctx context.Context, path string, params url.Values, result interface{}) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	return c.do(req, result)
}

// Post отправляет параметры формой. result может быть nil для ответов без тела.
func (c *Client) Post(ctx context.Context, path string, params url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	req.Header.Set("User-Agent", "ce-admin/1.0")
	switch {
	case c.passcode != "":
		req.Header.Set(passcodeHeader, c.passcode)
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("ошибка декодирования ответа: %w", err)
	}
	return nil
}

// decodeError восстанавливает ошибку pkg/errors из тела ответа
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Code == "" {
		return pkgerrors.New(pkgerrors.ErrInternal, fmt.Sprintf("сервер вернул статус: %d", resp.StatusCode))
	}
	return pkgerrors.New(pkgerrors.ErrorCode(payload.Error.Code), payload.Error.Message).
		WithDetails(payload.Error.Details)
}

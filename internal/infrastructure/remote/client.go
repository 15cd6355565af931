package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jhoicas/inventario-conteo/internal/application/dto"
	"github.com/jhoicas/inventario-conteo/internal/application/ports"
	"github.com/jhoicas/inventario-conteo/internal/domain"
	"github.com/jhoicas/inventario-conteo/pkg/logger"
)

// Verificar en tiempo de compilación que Client implementa CountingAPI.
var _ ports.CountingAPI = (*Client)(nil)

// maxBodyBytes límite de lectura de respuestas; el catálogo completo es la más grande.
const maxBodyBytes = 32 << 20

// Config conexión con el servidor de conteo.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration // timeout de red por petición; el caller también pone WithTimeout
	Breaker BreakerConfig
}

// Client adaptador HTTP+JSON del servidor de conteo.
// Los fallos de red, timeouts y 5xx se devuelven como domain.ErrNetwork;
// 401 como domain.ErrUnauthorized (hay que volver a iniciar sesión); 403 como domain.ErrForbidden,
// que solo afecta al recurso pedido.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	log        *logger.Logger

	mu    sync.RWMutex
	token string
}

// NewClient construye el cliente.
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := log.Component("remote")
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cb:    newBreaker("counting-api", cfg.Breaker, l),
		log:   l,
		token: cfg.Token,
	}
}

// SetToken reemplaza el token tras volver a iniciar sesión.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// BreakerState estado del circuito (closed, half-open, open).
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

// FetchCatalog GET /api/catalog.
func (c *Client) FetchCatalog(ctx context.Context) (*dto.CatalogResponse, error) {
	var out dto.CatalogResponse
	if err := c.call(ctx, http.MethodGet, "/api/catalog", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncSession POST /api/sessions/{id}/sync.
func (c *Client) SyncSession(ctx context.Context, sessionID string, req dto.SessionSyncRequest) (*dto.SessionSyncResponse, error) {
	var out dto.SessionSyncResponse
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/sync"
	if err := c.call(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchSessionSnapshot GET /api/sessions/{id}/snapshot.
func (c *Client) FetchSessionSnapshot(ctx context.Context, sessionID string) (*dto.SnapshotResponse, error) {
	var out dto.SnapshotResponse
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/snapshot"
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCountItem DELETE /api/counts/item?code=&sessionId=.
func (c *Client) DeleteCountItem(ctx context.Context, code, sessionID string) error {
	q := url.Values{}
	q.Set("code", code)
	if sessionID != "" {
		q.Set("sessionId", sessionID)
	}
	return c.call(ctx, http.MethodDelete, "/api/counts/item", q, nil, nil)
}

// Ping GET /health. No pasa por el circuito: sirve para detectar que el servidor volvió.
func (c *Client) Ping(ctx context.Context) error {
	return c.roundTrip(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuito abierto (%s %s)", domain.ErrNetwork, method, path)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: serializar request: %v", domain.ErrInvalidInput, err)
		}
		reader = bytes.NewReader(raw)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: crear request: %v", domain.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: timeout o cancelación: %w", domain.ErrNetwork, ctx.Err())
		}
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: leer respuesta: %v", domain.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: respuesta no es JSON válido: %v", domain.ErrNetwork, err)
	}
	return nil
}

// statusError traduce el código HTTP a un error de dominio conservando el mensaje del servidor.
func statusError(status int, raw []byte) error {
	msg := http.StatusText(status)
	var errResp dto.ErrorResponse
	if json.Unmarshal(raw, &errResp) == nil && errResp.Message != "" {
		msg = errResp.Message
	}

	var kind error
	switch {
	case status == http.StatusUnauthorized:
		kind = domain.ErrUnauthorized
	case status == http.StatusForbidden:
		kind = domain.ErrForbidden
	case status == http.StatusNotFound:
		kind = domain.ErrNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = domain.ErrInvalidInput
	case status == http.StatusConflict:
		kind = domain.ErrConflict
	default:
		kind = domain.ErrNetwork
	}
	return fmt.Errorf("%w: HTTP %d: %s", kind, status, msg)
}

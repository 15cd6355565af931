package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "github.com/jhoicas/inventario-conteo/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/inventario-conteo/pkg/jwt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testUserID    = "00000000-0000-0000-0000-000000000001"
	testIssuer    = "inventario-conteo-test"
	testExpMin    = 60
)

// appWithRoles ruta /protected detrás de AuthMiddleware y RequireRole.
func appWithRoles(roles ...string) *fiber.App {
	app := fiber.New()
	app.Get("/protected",
		apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireRole(roles...),
		func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"user_id": apphttp.GetUserID(c), "role": apphttp.GetRole(c)})
		},
	)
	return app
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, userID, role, testIssuer, testExpMin)
	require.NoError(t, err)
	return "Bearer " + tok
}

func get(t *testing.T, app *fiber.App, authHeader string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(body)
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthMiddleware
// ──────────────────────────────────────────────────────────────────────────────

func TestAuthMiddleware_CargaPropietarioYRol(t *testing.T) {
	resp, body := get(t, appWithRoles("bodeguero"), bearer(t, testUserID, "bodeguero"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, testUserID, out["user_id"])
	assert.Equal(t, "bodeguero", out["role"])
}

func TestAuthMiddleware_Rechazos(t *testing.T) {
	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"sin header", "", "MISSING_TOKEN"},
		{"esquema distinto", "Basic abc", "INVALID_TOKEN"},
		{"token malformado", "Bearer token.invalido.aqui", "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := get(t, appWithRoles("admin"), tc.header)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, body, tc.code)
		})
	}
}

func TestAuthMiddleware_SecretDistintoEs401(t *testing.T) {
	tok, err := pkgjwt.Generate("otro-secret", testUserID, "admin", testIssuer, testExpMin)
	require.NoError(t, err)
	resp, _ := get(t, appWithRoles("admin"), "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// RequireRole
// ──────────────────────────────────────────────────────────────────────────────

func TestRequireRole_BodegueroNoAbreSesiones(t *testing.T) {
	resp, body := get(t, appWithRoles("admin"), bearer(t, testUserID, "bodeguero"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body, "FORBIDDEN")
}

func TestRequireRole_VariosRolesPermitidos(t *testing.T) {
	resp, _ := get(t, appWithRoles("admin", "bodeguero"), bearer(t, testUserID, "bodeguero"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequireRole_TokenSinRol(t *testing.T) {
	resp, body := get(t, appWithRoles("admin"), bearer(t, testUserID, ""))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "MISSING_ROLE")
}

// ──────────────────────────────────────────────────────────────────────────────
// pkg/jwt
// ──────────────────────────────────────────────────────────────────────────────

func TestJWT_GenerarYLeer(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, "admin", testIssuer, testExpMin)
	require.NoError(t, err)

	userID, role, err := pkgjwt.Parse(testJWTSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)
	assert.Equal(t, "admin", role)

	owner, err := pkgjwt.OwnerFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, testUserID, owner)
}

func TestJWT_TokenExpirado(t *testing.T) {
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, "admin", testIssuer, -1)
	require.NoError(t, err)
	_, _, err = pkgjwt.Parse(testJWTSecret, tok)
	assert.Error(t, err)
}

func TestJWT_OwnerFromTokenIlegible(t *testing.T) {
	_, err := pkgjwt.OwnerFromToken("no-es-un-jwt")
	assert.Error(t, err)
}

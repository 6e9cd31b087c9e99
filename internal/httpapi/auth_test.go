package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestCreateTokenRoundTrip(t *testing.T) {
	auth := NewAuth("test-secret", time.Hour)

	token, err := auth.CreateToken("ops", RoleAdmin)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	claims, err := auth.validate(token)
	if err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.Subject != "ops" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "ops")
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	token, err := NewAuth("secret-one", time.Hour).CreateToken("ops", RoleAdmin)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	if _, err := NewAuth("secret-two", time.Hour).validate(token); err == nil {
		t.Fatal("validate() accepted a token signed with a different secret")
	}
}

func TestAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := NewAuth("test-secret", time.Hour)

	adminToken, err := auth.CreateToken("ops", RoleAdmin)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	userToken, err := auth.CreateToken("customer", "user")
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	expiredToken, err := NewAuth("test-secret", -time.Hour).CreateToken("ops", RoleAdmin)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	r := gin.New()
	r.GET("/guarded", auth.AdminMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "not a bearer scheme", header: "Basic Zm9vOmJhcg==", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-token", want: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer " + expiredToken, want: http.StatusUnauthorized},
		{name: "non-admin role", header: "Bearer " + userToken, want: http.StatusForbidden},
		{name: "admin token", header: "Bearer " + adminToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

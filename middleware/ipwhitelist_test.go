package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIPWhitelist(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		entries []string
		ip      string
		want    int
	}{
		{"empty list allows all", nil, "1.2.3.4", http.StatusOK},
		{"exact match", []string{"192.168.1.1"}, "192.168.1.1", http.StatusOK},
		{"not listed", []string{"10.0.0.1"}, "1.2.3.4", http.StatusForbidden},
		{"second of several", []string{"10.0.0.1", "10.0.0.2"}, "10.0.0.2", http.StatusOK},
		{"inside cidr", []string{"10.8.0.0/16"}, "10.8.3.4", http.StatusOK},
		{"outside cidr", []string{"10.8.0.0/16"}, "10.9.0.1", http.StatusForbidden},
		{"ipv6 cidr", []string{"fd00::/8"}, "fd12::1", http.StatusOK},
		{"mixed list", []string{"127.0.0.1", "10.0.0.0/8"}, "127.0.0.1", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(IPWhitelist(tc.entries))
			r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("X-Real-IP", tc.ip)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/metrics", "/metrics"},
		{"/api/v1/auth/login", "/api/v1/auth/login"},
		{"/api/v1/domains", "/api/v1/domains"},
		{"/api/v1/domains/DEFAULT/projects", "/api/v1/domains/{domain}/projects"},
		{"/api/v1/entities", "/api/v1/entities"},
		{"/api/v1/jobs", "/api/v1/jobs"},
		{"/api/v1/jobs/3f8a6c2e-1b4d-4f9a-9c7e-0d2b5a8e1f6c", "/api/v1/jobs/{id}"},
		{"/api/v1/attachments/DEFAULT/demo/1017", "/api/v1/attachments/{domain}/{project}/{id}"},
		{"/api/v1/unknown", "/api/v1/unknown"},
		{"/favicon.ico", "/favicon.ico"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizePath(tt.path)
			if got != tt.want {
				t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
			}
		})
	}
}

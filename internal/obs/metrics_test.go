package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/auth/login":                 "/v1/auth/login",
		"/v1/auth/login?next=1":          "/v1/auth/login",
		"/v1/directory/users/01ABCDEF":   "/v1/directory/users/:id",
		"/v1/directory/users/01AB/roles": "/v1/directory/users/:id/roles",
		"/v1/directory/users/":           "/v1/directory/users/",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

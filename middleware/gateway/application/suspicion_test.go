package application

import (
	"strings"
	"testing"

	"classifier-gateway/middleware/gateway/domain"
)

func TestInspector_Inspect(t *testing.T) {
	cases := []struct {
		name   string
		meta   domain.RequestMeta
		want   bool
		reason string
	}{
		{
			name: "clean",
			meta: domain.RequestMeta{Path: "/honeypot/interact", QueryParams: map[string]string{"lang": "en"}},
		},
		{
			name:   "sql injection in query",
			meta:   domain.RequestMeta{Path: "/x", QueryParams: map[string]string{"q": "1 UNION SELECT password"}},
			want:   true,
			reason: "sql_injection",
		},
		{
			name:   "xss in header",
			meta:   domain.RequestMeta{Path: "/x", Headers: map[string]string{"X-Ref": "JavaScript:alert(1)"}},
			want:   true,
			reason: "xss",
		},
		{
			name:   "path traversal",
			meta:   domain.RequestMeta{Path: "/static/../../etc/passwd"},
			want:   true,
			reason: "path_traversal",
		},
		{
			name:   "shell metacharacter",
			meta:   domain.RequestMeta{Path: "/x", QueryParams: map[string]string{"cmd": "ls $(whoami)"}},
			want:   true,
			reason: "command_injection",
		},
		{
			name:   "long token",
			meta:   domain.RequestMeta{Path: "/" + strings.Repeat("a", 1200)},
			want:   true,
			reason: "excessive_length",
		},
		{
			name: "browser headers are skipped",
			meta: domain.RequestMeta{Path: "/x", Headers: map[string]string{
				"Accept":     "text/html;q=0.9",
				"user-agent": "Mozilla/5.0 (X11; Linux x86_64)",
			}},
		},
	}

	insp := NewInspector()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := insp.Inspect(tc.meta)
			if got != tc.want {
				t.Fatalf("expected suspicious=%v, got %v (%q)", tc.want, got, reason)
			}
			if tc.want && !strings.HasSuffix(reason, tc.reason) {
				t.Fatalf("expected reason %q, got %q", tc.reason, reason)
			}
		})
	}
}

func TestInspector_SizeCeilingComesFirst(t *testing.T) {
	insp := NewInspector(WithMaxRequestSize(100))

	got, reason := insp.Inspect(domain.RequestMeta{Path: "/" + strings.Repeat("a b ", 50)})
	if !got || reason != "request too large" {
		t.Fatalf("expected size rejection, got %v %q", got, reason)
	}
}

func TestInspector_CustomSkippedHeaders(t *testing.T) {
	insp := NewInspector(WithSkippedHeaders("x-forwarded-for"))

	if got, _ := insp.Inspect(domain.RequestMeta{Path: "/", Headers: map[string]string{"X-Forwarded-For": "a;b"}}); got {
		t.Fatalf("expected skipped header to be ignored")
	}
	if got, _ := insp.Inspect(domain.RequestMeta{Path: "/", Headers: map[string]string{"Accept": "a;b"}}); !got {
		t.Fatalf("expected Accept to be inspected once the skip list is replaced")
	}
}

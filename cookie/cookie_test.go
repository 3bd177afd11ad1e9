package cookie

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single", "a=1", map[string]string{"a": "1"}},
		{
			"multiple with spacing",
			"a=1; b=2 ;   c=3",
			map[string]string{"a": "1", "b": "2", "c": "3"},
		},
		{
			"quoted value",
			`sessionId="abc-123"`,
			map[string]string{"sessionId": "abc-123"},
		},
		{
			"empty name dropped",
			"=novalue; ok=1",
			map[string]string{"ok": "1"},
		},
		{
			"value with no name token dropped when blank",
			"; ; a=1",
			map[string]string{"a": "1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.header)
			if len(got) != len(tc.want) {
				t.Fatalf("Parse(%q) = %v, want %v", tc.header, got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("Parse(%q)[%q] = %q, want %q", tc.header, k, got[k], v)
				}
			}
		})
	}
}

func TestSetCookieStringMissingFields(t *testing.T) {
	if s := (&SetCookie{}).SetName("a").String(); s != "" {
		t.Errorf("missing value should serialize empty, got %q", s)
	}
	if s := (&SetCookie{}).SetValue("1").String(); s != "" {
		t.Errorf("missing name should serialize empty, got %q", s)
	}
	if s := (&SetCookie{}).SetName("").SetValue("1").String(); s != "" {
		t.Errorf("empty name should serialize empty, got %q", s)
	}
}

func TestSetCookieCanonicalForm(t *testing.T) {
	s := (&SetCookie{}).SetName("sessionId").SetValue("abc123").String()
	if s != "sessionId=abc123" {
		t.Errorf("got %q, want canonical name=value form", s)
	}
}

func TestSetCookieSameSiteNoneImpliesSecure(t *testing.T) {
	s := (&SetCookie{}).SetName("a").SetValue("b").SetSameSite(SameSiteNone).String()
	if !containsAttr(s, "Secure") {
		t.Errorf("SameSite=None must imply Secure, got %q", s)
	}
	if !containsAttr(s, "SameSite=None") {
		t.Errorf("expected SameSite=None, got %q", s)
	}
}

func TestSetCookieAttributeOrder(t *testing.T) {
	s := (&SetCookie{}).
		SetName("a").
		SetValue("b").
		SetMaxAge(60).
		SetExpires("Fri, 31 Dec 2025 23:59:59 GMT").
		SetPath("/").
		SetDomain("example.com").
		SetSameSite(SameSiteStrict).
		SetHTTPOnly(true).
		String()

	want := "a=b; Expires=Fri, 31 Dec 2025 23:59:59 GMT; Path=/; Domain=example.com; Max-Age=60; SameSite=Strict; HttpOnly"
	if s != want {
		t.Errorf("got %q, want %q", s, want)
	}
}

func containsAttr(header, attr string) bool {
	for _, part := range splitHeader(header) {
		if part == attr {
			return true
		}
	}
	return false
}

func splitHeader(header string) []string {
	var out []string
	start := 0
	for i := 0; i+1 < len(header); i++ {
		if header[i] == ';' && header[i+1] == ' ' {
			out = append(out, header[start:i])
			start = i + 2
		}
	}
	out = append(out, header[start:])
	return out
}

package routeclass

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		path string
		want Class
	}{
		{ProbePath, Probe},
		{"/-/healthy", Health},
		{"/-/ready", Health},
		{"/api/health", Health},
		{"/api/health/live", Health},
		{"/logo.png", StaticImage},
		{"/img/photo.jpeg", StaticImage},
		{"/favicon.ico", StaticImage},
		{"/hero.webp", StaticImage},
		{"/art.avif", StaticImage},
		{"/icon.svg", StaticImage},
		{"/fonts/inter.woff2", StaticFont},
		{"/fonts/inter.woff", StaticFont},
		{"/fonts/legacy.eot", StaticFont},
		{"/styles.css", StaticScriptStyle},
		{"/app.js", StaticScriptStyle},
		{"/app.mjs", StaticScriptStyle},
		{"/app.js.map", StaticScriptStyle},
		{"/api/contact", API},
		{"/api/v1/resume", API},
		{"/", Page},
		{"/about", Page},
		{"/resume", Page},
		{"", Page},
		{"/api", Page}, // no trailing slash, not under the api prefix
		{"/\u202e\x00weird", Page},
		{"/" + strings.Repeat("a", 10000), Page},
	}

	for _, tc := range cases {
		if got := Classify(tc.path); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestClassify_ExtensionCaseInsensitive(t *testing.T) {
	for _, p := range []string{"/LOGO.PNG", "/logo.Png", "/STYLES.CSS", "/FONT.WOFF2"} {
		got := Classify(p)
		if got != Classify(strings.ToLower(p)) {
			t.Errorf("Classify(%q) = %v, differs from lowercase variant", p, got)
		}
		if !got.IsStatic() {
			t.Errorf("Classify(%q) = %v, want a static class", p, got)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	paths := []string{ProbePath, "/a.png", "/api/x", "/page", "/-/ready", "/f.woff"}
	for _, p := range paths {
		first := Classify(p)
		for i := 0; i < 5; i++ {
			if got := Classify(p); got != first {
				t.Fatalf("Classify(%q) not deterministic: %v then %v", p, first, got)
			}
		}
	}
}

func TestChecked(t *testing.T) {
	checked := map[Class]bool{
		Probe: false, Health: false,
		StaticImage: false, StaticFont: false, StaticScriptStyle: false,
		API: true, Page: true,
	}
	for c, want := range checked {
		if got := c.Checked(); got != want {
			t.Errorf("%v.Checked() = %v, want %v", c, got, want)
		}
	}
}

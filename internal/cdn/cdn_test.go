package cdn

import (
	"net/http"
	"testing"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name       string
		h          http.Header
		provider   Provider
		cacheState string
	}{
		{
			"cloudflare full",
			headers("CF-Ray", "8a1b2c3d4e5f0000-IAD", "CF-Cache-Status", "HIT", "CF-IPCountry", "US"),
			Cloudflare, "HIT",
		},
		{
			"cloudflare ray only",
			headers("CF-Ray", "8a1b2c3d4e5f0000-IAD"),
			Cloudflare, "unknown",
		},
		{
			"cloudfront",
			headers("X-Amz-Cf-Id", "abc123==", "X-Cache", "Hit from cloudfront"),
			CloudFront, "Hit from cloudfront",
		},
		{
			"cloudfront pop only",
			headers("X-Amz-Cf-Pop", "IAD89-C1"),
			CloudFront, "unknown",
		},
		{
			"digitalocean",
			headers("X-DO-Cache-Status", "MISS"),
			DigitalOcean, "MISS",
		},
		{
			"generic x-cache",
			headers("X-Cache", "HIT"),
			Generic, "HIT",
		},
		{
			"generic served-by",
			headers("X-Served-By", "cache-iad-kiad7000021"),
			Generic, "unknown",
		},
		{
			"no cdn",
			headers("User-Agent", "Mozilla/5.0"),
			None, "",
		},
		{
			"cloudflare wins over generic",
			headers("CF-Ray", "8a1b", "X-Cache", "HIT"),
			Cloudflare, "unknown",
		},
		{
			"cloudfront wins over digitalocean",
			headers("X-Amz-Cf-Id", "abc", "X-DO-Cache-Status", "HIT"),
			CloudFront, "unknown",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Detect(tc.h)
			if got.Provider != tc.provider {
				t.Errorf("Provider = %v, want %v", got.Provider, tc.provider)
			}
			if got.CacheStatus != tc.cacheState {
				t.Errorf("CacheStatus = %q, want %q", got.CacheStatus, tc.cacheState)
			}
		})
	}
}

func TestDetect_DoesNotMutateHeaders(t *testing.T) {
	h := headers("CF-Ray", "8a1b2c3d4e5f0000-IAD", "CF-Cache-Status", "HIT")
	before := make(map[string][]string, len(h))
	for k, v := range h {
		before[k] = append([]string(nil), v...)
	}

	Detect(h)

	if len(h) != len(before) {
		t.Fatalf("header count changed: %d != %d", len(h), len(before))
	}
	for k, want := range before {
		got := h[k]
		if len(got) != len(want) {
			t.Fatalf("%s values changed: %v != %v", k, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s[%d] = %q, want byte-identical %q", k, i, got[i], want[i])
			}
		}
	}
}

func TestDetect_Deterministic(t *testing.T) {
	h := headers("X-Amz-Cf-Id", "abc123==", "X-Cache", "Miss from cloudfront")
	first := Detect(h)
	for i := 0; i < 5; i++ {
		if got := Detect(h); got != first {
			t.Fatalf("Detect not deterministic: %+v then %+v", first, got)
		}
	}
}

package linkx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract_Scenarios(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input any
		want  []string
	}{
		{"single link in prose", "Check this out https://shopee.com/item/123 amazing deal", []string{"https://shopee.com/item/123"}},
		{"no links", "No links here", []string{}},
		{"other marketplace dropped", "https://amazon.com/x https://shopee.com/y", []string{"https://shopee.com/y"}},
		{"nil input", nil, []string{}},
		{"order kept and no dedup", "https://shopee.com/a https://shopee.com/b", []string{"https://shopee.com/a", "https://shopee.com/b"}},
		{"duplicates kept", "https://shopee.com/a https://shopee.com/a", []string{"https://shopee.com/a", "https://shopee.com/a"}},
		{"empty string", "", []string{}},
		{"integer", 42, []string{}},
		{"byte slice", []byte("https://shopee.com/a"), []string{}},
		{"plain http", "http://shp.ee/abc?x=1", []string{}},
		{"shopee subdomain over http", "go http://s.shopee.co.id/7AUkz", []string{"http://s.shopee.co.id/7AUkz"}},
		{"case sensitive token", "https://SHOPEE.com/x", []string{}},
		{"newline separated", "a\nhttps://shopee.vn/p1\nb\thttps://shopee.vn/p2", []string{"https://shopee.vn/p1", "https://shopee.vn/p2"}},
		{"trailing punctuation kept", "buy (https://shopee.com/x).", []string{"https://shopee.com/x)."}},
		{"nbsp ends url", "https://shopee.com/x\u00a0promo", []string{"https://shopee.com/x"}},
		{"token only in query", "https://example.com/?ref=shopee", []string{"https://example.com/?ref=shopee"}},
		{"scheme without body", "https:// shopee", []string{}},
		{"glued links are one match", "https://shopee.com/ahttps://shopee.com/b", []string{"https://shopee.com/ahttps://shopee.com/b"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.input)
			require.NotNil(t, got)
			require.Equal(t, tc.want, got)
		})
	}
}

type label string

func TestExtract_StringKinds(t *testing.T) {
	t.Parallel()

	s := "see https://shopee.com/p"
	require.Equal(t, []string{"https://shopee.com/p"}, Extract(&s))

	var nilPtr *string
	require.Equal(t, []string{}, Extract(nilPtr))

	require.Equal(t, []string{"https://shopee.com/q"}, Extract(label("https://shopee.com/q")))
}

func TestExtract_OutputIsLiteralSubstringInOrder(t *testing.T) {
	t.Parallel()

	text := "x https://shopee.sg/1 y https://lazada.sg/2 https://shopee.sg/3?a=b#c z"
	got := Extract(text)
	require.Len(t, got, 2)

	pos := 0
	for _, u := range got {
		idx := strings.Index(text[pos:], u)
		require.GreaterOrEqual(t, idx, 0, "url %q not found after offset %d", u, pos)
		pos += idx + len(u)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	t.Parallel()

	first := Extract("hi https://shopee.com/a, and https://shopee.com/b! https://tokopedia.com/c")
	second := Extract(strings.Join(first, " "))
	require.Equal(t, first, second)
}

func TestExtract_NoSchemeMeansEmpty(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"shopee.com/x", "ftp://shopee.com/x", "www.shopee.co.id"} {
		require.Empty(t, Extract(in), in)
	}
}

func TestExtractURLs_Unfiltered(t *testing.T) {
	t.Parallel()

	got := ExtractURLs("https://amazon.com/x and http://shopee.com/y")
	require.Equal(t, []string{"https://amazon.com/x", "http://shopee.com/y"}, got)
	require.Equal(t, []string{}, ExtractURLs("nothing"))
}

func TestNew_MultipleTokens(t *testing.T) {
	t.Parallel()

	e := New("shopee", "  ", "lazada", "")
	require.Equal(t, []string{"shopee", "lazada"}, e.Tokens())

	got := e.Extract("https://lazada.co.id/a https://amazon.com/b https://shopee.co.id/c")
	require.Equal(t, []string{"https://lazada.co.id/a", "https://shopee.co.id/c"}, got)

	m, ok := e.Marketplace("https://s.lazada.vn/x")
	require.True(t, ok)
	require.Equal(t, "lazada", m)

	_, ok = e.Marketplace("https://amazon.com/x")
	require.False(t, ok)
}

func TestNew_DefaultsToShopee(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{DefaultToken}, New().Tokens())
	require.Equal(t, []string{DefaultToken}, New("", " ").Tokens())
	require.True(t, Classify("https://shopee.ph/x"))
	require.False(t, Classify("https://amazon.com/x"))
}

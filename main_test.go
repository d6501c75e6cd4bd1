package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runExtract(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"extract"}, args...))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestExtractCmd_Args(t *testing.T) {
	got := runExtract(t, "", "Promo", "https://shopee.co.id/abc", "and", "https://example.com/x")
	require.Equal(t, "https://shopee.co.id/abc\n", got)
}

func TestExtractCmd_Stdin(t *testing.T) {
	got := runExtract(t, "a https://shopee.co.id/1\nb https://s.shopee.co.id/2\n")
	require.Equal(t, "https://shopee.co.id/1\nhttps://s.shopee.co.id/2\n", got)
}

func TestExtractCmd_Tokens(t *testing.T) {
	got := runExtract(t, "", "--token", "lazada", "--token", "tokopedia",
		"https://www.lazada.co.id/p https://shopee.co.id/q https://tokopedia.com/r")
	require.Equal(t, "https://www.lazada.co.id/p\nhttps://tokopedia.com/r\n", got)
}

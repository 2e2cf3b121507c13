package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPageInfo(t *testing.T) {
	pi := NewPageInfo(25, 2, 10)
	require.Equal(t, PageInfo{Total: 25, Page: 2, Limit: 10, Pages: 3}, pi)

	// Empty results still report a single page.
	pi = NewPageInfo(0, 1, 10)
	require.Equal(t, 1, pi.Pages)

	pi = NewPageInfo(10, 1, 10)
	require.Equal(t, 1, pi.Pages)
}

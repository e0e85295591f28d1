package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/posdesk/internal/app"
	_ "github.com/odyssey-erp/posdesk/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}

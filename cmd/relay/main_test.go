package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_ReportsLoadError(t *testing.T) {
	t.Setenv("TG_API_ID", "abc")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.Contains(t, fmt.Sprint(r), "failed to load config")
		assert.Contains(t, fmt.Sprint(r), "TGApiID")
	}()
	setup()
}

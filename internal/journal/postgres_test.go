package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresStore_NilConnection(t *testing.T) {
	_, err := NewPostgresStore(nil, nil, nil)

	require.ErrorIs(t, err, ErrNoConnection)
}

func TestLowercase(t *testing.T) {
	assert.Equal(t, "info", lowercase("INFO"))
	assert.Equal(t, "error", lowercase("ERROR"))
	assert.Equal(t, "debug", lowercase("DEBUG"))
}

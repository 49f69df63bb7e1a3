package pcsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickReader(t *testing.T) {
	readers := []string{"Generic Smart Card Reader 00 00", "ACS ACR122U PICC Interface 01 00"}

	got, err := pickReader(readers, "")
	require.NoError(t, err)
	assert.Equal(t, readers[0], got)

	got, err = pickReader(readers, "ACR122")
	require.NoError(t, err)
	assert.Equal(t, readers[1], got)

	_, err = pickReader(readers, "SCL3711")
	assert.ErrorIs(t, err, errNoReader)

	_, err = pickReader(nil, "")
	assert.ErrorIs(t, err, errNoReader)
}

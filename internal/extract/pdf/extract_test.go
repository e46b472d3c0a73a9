package pdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract_MalformedInputReturnsError(t *testing.T) {
	t.Parallel()

	_, err := Extract([]byte("this is not a pdf"))
	require.Error(t, err)
}

func TestExtract_EmptyInputReturnsError(t *testing.T) {
	t.Parallel()

	_, err := Extract(nil)
	require.Error(t, err)
}

func TestNormalizeCreationDate_StripsDPrefix(t *testing.T) {
	t.Parallel()

	require.Equal(t, "20240115103000", normalizeCreationDate("D:20240115103000"))
}

func TestNormalizeCreationDate_LeavesUnprefixedValueUnchanged(t *testing.T) {
	t.Parallel()

	require.Equal(t, "20240115103000", normalizeCreationDate("20240115103000"))
}

func TestNormalizeCreationDate_EmptyStringUnchanged(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", normalizeCreationDate(""))
}

package activity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToFailure(t *testing.T) {
	f := ToFailure(NewFailure("REG-0001_Duplicate file entry", "The file with ID abc already exists"))
	require.Equal(t, "REG-0001_Duplicate file entry", f.Reason)
	require.Equal(t, "The file with ID abc already exists", f.Detail)

	wrapped := fmt.Errorf("registering: %w", Failf("THB-0001_Error in image thumbnail creation", "exit status %d", 1))
	f = ToFailure(wrapped)
	require.Equal(t, "THB-0001_Error in image thumbnail creation", f.Reason)
	require.Equal(t, "exit status 1", f.Detail)

	f = ToFailure(errors.New("disk full"))
	require.Equal(t, ReasonActivityError, f.Reason)
	require.Equal(t, "disk full", f.Detail)
}

func TestFailure_Error(t *testing.T) {
	require.Equal(t, "X-0001_x", NewFailure("X-0001_x", "").Error())
	require.Equal(t, "X-0001_x: boom", WrapFailure("X-0001_x", errors.New("boom")).Error())
}

// internal/link/errors_test.go
package link

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"accel-link-service/pkg/xlink"
)

func TestTranslatePlatformCode(t *testing.T) {
	tests := []struct {
		code xlink.PlatformCode
		want error
	}{
		{xlink.PlatformSuccess, nil},
		{xlink.PlatformDeviceNotFound, xlink.ErrDeviceNotFound},
		{xlink.PlatformTimeout, xlink.ErrTimeout},
		{xlink.PlatformDriverError, xlink.ErrCommunication},
		{xlink.PlatformInvalidParameter, xlink.ErrInvalidArgument},
		{xlink.PlatformError, xlink.ErrGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			got := translatePlatformCode(tt.code)
			if tt.want == nil {
				assert.NoError(t, got)
			} else {
				assert.ErrorIs(t, got, tt.want)
			}
		})
	}
}

func TestTranslatePlatformCode_UnknownDefaultsToGeneric(t *testing.T) {
	got := translatePlatformCode(xlink.PlatformCode(255))
	assert.ErrorIs(t, got, xlink.ErrGeneric)
}

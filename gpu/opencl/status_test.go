package opencl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidlbm/gpu"
)

func TestStatusError(t *testing.T) {
	assert.NoError(t, statusError("finish", clSuccess))

	for _, code := range []int32{clMemObjectAllocationFailed, clOutOfResources, clOutOfHostMemory, clInvalidBufferSize} {
		err := statusError("clCreateBuffer", code)
		assert.ErrorIs(t, err, gpu.ErrDeviceAllocation, "code %d", code)
	}

	err := statusError("clEnqueueNDRangeKernel", -52)
	require.Error(t, err)
	assert.False(t, errors.Is(err, gpu.ErrDeviceAllocation))
	var de *gpu.DeviceError
	require.True(t, errors.As(err, &de))
	assert.EqualValues(t, -52, de.Code)
	assert.Contains(t, err.Error(), "CL_INVALID_KERNEL_ARGS")
}

func TestStatusName(t *testing.T) {
	assert.Equal(t, "CL_BUILD_PROGRAM_FAILURE", statusName(clBuildProgramFailure))
	assert.Equal(t, "unknown status -9999", statusName(-9999))

	err := statusError("clFinish", -9999)
	assert.EqualError(t, err, "gpu: clFinish: unknown status -9999 (-9999)")
}

package opencl

import (
	"fmt"

	"fluidlbm/gpu"
)

// OpenCL status codes the backend distinguishes.
const (
	clSuccess                   = 0
	clDeviceNotFound            = -1
	clMemObjectAllocationFailed = -4
	clOutOfResources            = -5
	clOutOfHostMemory           = -6
	clBuildProgramFailure       = -11
	clInvalidBufferSize         = -61
)

var statusNames = map[int32]string{
	clDeviceNotFound:            "CL_DEVICE_NOT_FOUND",
	clMemObjectAllocationFailed: "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	clOutOfResources:            "CL_OUT_OF_RESOURCES",
	clOutOfHostMemory:           "CL_OUT_OF_HOST_MEMORY",
	clBuildProgramFailure:       "CL_BUILD_PROGRAM_FAILURE",
	-30:                         "CL_INVALID_VALUE",
	-33:                         "CL_INVALID_DEVICE",
	-34:                         "CL_INVALID_CONTEXT",
	-36:                         "CL_INVALID_COMMAND_QUEUE",
	-38:                         "CL_INVALID_MEM_OBJECT",
	-44:                         "CL_INVALID_PROGRAM",
	-46:                         "CL_INVALID_KERNEL_NAME",
	-48:                         "CL_INVALID_KERNEL",
	-49:                         "CL_INVALID_ARG_INDEX",
	-50:                         "CL_INVALID_ARG_VALUE",
	-51:                         "CL_INVALID_ARG_SIZE",
	-52:                         "CL_INVALID_KERNEL_ARGS",
	-54:                         "CL_INVALID_WORK_GROUP_SIZE",
	clInvalidBufferSize:         "CL_INVALID_BUFFER_SIZE",
	-63:                         "CL_INVALID_GLOBAL_WORK_SIZE",
}

// statusError converts a non-success status into a *gpu.DeviceError.
// Allocation failures match gpu.ErrDeviceAllocation.
func statusError(op string, code int32) error {
	if code == clSuccess {
		return nil
	}
	e := &gpu.DeviceError{Op: op, Code: code, Msg: statusName(code)}
	switch code {
	case clMemObjectAllocationFailed, clOutOfResources, clOutOfHostMemory, clInvalidBufferSize:
		e.Err = gpu.ErrDeviceAllocation
	}
	return e
}

func statusName(code int32) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown status %d", code)
}

// result.go - Ergebnis-Codes und Fehlertypen des Treibers
//
// Enthaelt:
// - Result: CUDA-kompatible Ergebnis-Codes, implementiert error
// - Error: Fehler mit Operationsname und Code
// - Check: Hilfsfunktion fuer Treiberaufrufe
package driver

import (
	"fmt"
	"strconv"
)

// Result is a native result code. The numeric values match CUresult so the
// CUDA binding can convert without a lookup table.
type Result int

const (
	Success                          Result = 0
	ErrorInvalidValue                Result = 1
	ErrorOutOfMemory                 Result = 2
	ErrorNotInitialized              Result = 3
	ErrorDeinitialized               Result = 4
	ErrorNoDevice                    Result = 100
	ErrorInvalidDevice               Result = 101
	ErrorInvalidContext              Result = 201
	ErrorContextAlreadyCurrent       Result = 202
	ErrorMapFailed                   Result = 205
	ErrorInvalidHandle               Result = 400
	ErrorIllegalAddress              Result = 700
	ErrorContextIsDestroyed          Result = 709
	ErrorHostMemoryAlreadyRegistered Result = 712
	ErrorHostMemoryNotRegistered     Result = 713
	ErrorNotSupported                Result = 801
	ErrorUnknown                     Result = 999
)

var resultNames = map[Result]string{
	Success:                          "CUDA_SUCCESS",
	ErrorInvalidValue:                "CUDA_ERROR_INVALID_VALUE",
	ErrorOutOfMemory:                 "CUDA_ERROR_OUT_OF_MEMORY",
	ErrorNotInitialized:              "CUDA_ERROR_NOT_INITIALIZED",
	ErrorDeinitialized:               "CUDA_ERROR_DEINITIALIZED",
	ErrorNoDevice:                    "CUDA_ERROR_NO_DEVICE",
	ErrorInvalidDevice:               "CUDA_ERROR_INVALID_DEVICE",
	ErrorInvalidContext:              "CUDA_ERROR_INVALID_CONTEXT",
	ErrorContextAlreadyCurrent:       "CUDA_ERROR_CONTEXT_ALREADY_CURRENT",
	ErrorMapFailed:                   "CUDA_ERROR_MAP_FAILED",
	ErrorInvalidHandle:               "CUDA_ERROR_INVALID_HANDLE",
	ErrorIllegalAddress:              "CUDA_ERROR_ILLEGAL_ADDRESS",
	ErrorContextIsDestroyed:          "CUDA_ERROR_CONTEXT_IS_DESTROYED",
	ErrorHostMemoryAlreadyRegistered: "CUDA_ERROR_HOST_MEMORY_ALREADY_REGISTERED",
	ErrorHostMemoryNotRegistered:     "CUDA_ERROR_HOST_MEMORY_NOT_REGISTERED",
	ErrorNotSupported:                "CUDA_ERROR_NOT_SUPPORTED",
	ErrorUnknown:                     "CUDA_ERROR_UNKNOWN",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "CUDA_ERROR(" + strconv.Itoa(int(r)) + ")"
}

// Error implementiert das error Interface, damit errors.Is(err, ErrorOutOfMemory) funktioniert.
func (r Result) Error() string {
	return r.String()
}

// Error is a failed native call.
type Error struct {
	Op   string
	Code Result
}

func (e *Error) Error() string {
	return fmt.Sprintf("driver: %s failed: %s (%d)", e.Op, e.Code, int(e.Code))
}

func (e *Error) Unwrap() error {
	return e.Code
}

// Check wraps a non-success result into an *Error for op.
func Check(op string, r Result) error {
	if r == Success {
		return nil
	}
	return &Error{Op: op, Code: r}
}

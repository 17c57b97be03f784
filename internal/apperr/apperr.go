// Package apperr defines the error kinds surfaced by the capture pipeline.
// Every kind is recovered locally: the pipeline returns to idle and keeps
// running.
package apperr

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is reported in ErrorInfo details.
const Domain = "whispering"

// Kind classifies a pipeline error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindDevice: capture device lost or unavailable.
	KindDevice
	// KindVADModel: voice classifier unavailable.
	KindVADModel
	// KindTranscription: inference failed or the utterance was unusable.
	KindTranscription
	// KindOutput: delivering text to the target failed.
	KindOutput
	// KindConfig: invalid or unreadable configuration.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindVADModel:
		return "vad_model"
	case KindTranscription:
		return "transcription"
	case KindOutput:
		return "output"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

var grpcCodes = map[Kind]codes.Code{
	KindUnknown:       codes.Unknown,
	KindDevice:        codes.Unavailable,
	KindVADModel:      codes.FailedPrecondition,
	KindTranscription: codes.Internal,
	KindOutput:        codes.Aborted,
	KindConfig:        codes.InvalidArgument,
}

// Error is a kinded error with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// GRPCStatus returns a status carrying an ErrorInfo detail with the kind as
// reason. status.FromError picks this up automatically.
func (e *Error) GRPCStatus() *status.Status {
	code, ok := grpcCodes[e.Kind]
	if !ok {
		code = codes.Unknown
	}
	st := status.New(code, e.Error())
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   e.Kind.String(),
		Domain:   Domain,
		Metadata: map[string]string{"op": e.Op},
	})
	if err != nil {
		return st
	}
	return detailed
}

// New wraps err with kind and op. A nil err yields an error describing op only.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Device(op string, err error) *Error        { return New(KindDevice, op, err) }
func VADModel(op string, err error) *Error      { return New(KindVADModel, op, err) }
func Transcription(op string, err error) *Error { return New(KindTranscription, op, err) }
func Output(op string, err error) *Error        { return New(KindOutput, op, err) }
func Config(op string, err error) *Error        { return New(KindConfig, op, err) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

package apperr

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("unplugged")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"device", Device("capture", cause), KindDevice},
		{"wrapped", fmt.Errorf("session: %w", Transcription("transcribe", cause)), KindTranscription},
		{"vad", VADModel("classifier", nil), KindVADModel},
		{"output", Output("paste", cause), KindOutput},
		{"plain", cause, KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Output("paste", cause))

	if !Is(err, KindOutput) {
		t.Errorf("Is(err, KindOutput) = false, want true")
	}
	if Is(err, KindDevice) {
		t.Errorf("Is(err, KindDevice) = true, want false")
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	if Is(nil, KindUnknown) {
		t.Errorf("Is(nil, KindUnknown) = true, want false")
	}
}

func TestGRPCStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		code codes.Code
	}{
		{KindDevice, codes.Unavailable},
		{KindVADModel, codes.FailedPrecondition},
		{KindTranscription, codes.Internal},
		{KindOutput, codes.Aborted},
		{KindConfig, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", New(tt.kind, "op", errors.New("cause")))
			st, ok := status.FromError(err)
			if !ok {
				t.Fatalf("status.FromError() ok = false")
			}
			if st.Code() != tt.code {
				t.Errorf("Code() = %v, want %v", st.Code(), tt.code)
			}

			details := st.Details()
			if len(details) != 1 {
				t.Fatalf("len(Details()) = %d, want 1", len(details))
			}
			info, ok := details[0].(*errdetails.ErrorInfo)
			if !ok {
				t.Fatalf("detail type = %T, want *errdetails.ErrorInfo", details[0])
			}
			want := &errdetails.ErrorInfo{
				Reason:   tt.kind.String(),
				Domain:   Domain,
				Metadata: map[string]string{"op": "op"},
			}
			if !proto.Equal(info, want) {
				t.Errorf("ErrorInfo = %v, want %v", info, want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	if got, want := Device("open", errors.New("busy")).Error(), "device error: open: busy"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got, want := VADModel("arm", nil).Error(), "vad_model error: arm"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

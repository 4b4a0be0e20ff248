package editor

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/weaver/internal/weave"
)

// Editor service coordinates. The messages are google.protobuf.Struct so
// any editor implementation can be written without generated stubs.
const (
	ServiceName = "weaver.editor.v1.Editor"
	ApplyMethod = "/" + ServiceName + "/Apply"
)

// Request is a decoded Apply call: a class and the edits to replay on it.
type Request struct {
	ClassName  string
	ClassBytes []byte
	Edits      []weave.Edit
}

// EncodeRequest builds the Apply message for a woven target.
func EncodeRequest(t *weave.Target) (*structpb.Struct, error) {
	return Request{ClassName: t.Name(), ClassBytes: t.Class.Raw, Edits: t.Edits()}.Encode()
}

// Encode builds the Apply message for the request.
func (r Request) Encode() (*structpb.Struct, error) {
	edits := make([]interface{}, 0, len(r.Edits))
	for _, e := range r.Edits {
		fields := map[string]interface{}{
			"kind":           string(e.Kind),
			"method":         e.Method,
			"descriptor":     e.Descriptor,
			"code":           e.Code,
			"exception_type": e.ExceptionType,
			"exception_var":  e.ExceptionVar,
			"rule":           e.Rule,
		}
		if e.Source.File != "" {
			fields["source"] = e.Source.String()
		}
		edits = append(edits, fields)
	}
	msg, err := structpb.NewStruct(map[string]interface{}{
		"class_name":  r.ClassName,
		"class_bytes": base64.StdEncoding.EncodeToString(r.ClassBytes),
		"edits":       edits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request for %s: %w", r.ClassName, err)
	}
	return msg, nil
}

// DecodeRequest is the editor-side inverse of EncodeRequest. Sources are
// not carried back; they only travel for the editor's diagnostics.
func DecodeRequest(msg *structpb.Struct) (Request, error) {
	fields := msg.GetFields()
	req := Request{ClassName: fields["class_name"].GetStringValue()}
	if req.ClassName == "" {
		return Request{}, fmt.Errorf("%w: class_name", ErrMissingField)
	}
	raw, err := decodeBytes(fields["class_bytes"])
	if err != nil {
		return Request{}, err
	}
	req.ClassBytes = raw

	for i, v := range fields["edits"].GetListValue().GetValues() {
		ef := v.GetStructValue().GetFields()
		if ef == nil {
			return Request{}, fmt.Errorf("%w: edits[%d]", ErrMissingField, i)
		}
		e := weave.Edit{
			Kind:          weave.EditKind(ef["kind"].GetStringValue()),
			Method:        ef["method"].GetStringValue(),
			Descriptor:    ef["descriptor"].GetStringValue(),
			Code:          ef["code"].GetStringValue(),
			ExceptionType: ef["exception_type"].GetStringValue(),
			ExceptionVar:  ef["exception_var"].GetStringValue(),
			Rule:          int(ef["rule"].GetNumberValue()),
		}
		if e.Kind == "" || e.Method == "" {
			return Request{}, fmt.Errorf("%w: edits[%d].kind/method", ErrMissingField, i)
		}
		req.Edits = append(req.Edits, e)
	}
	return req, nil
}

// EncodeResponse builds the Apply reply carrying the edited class.
func EncodeResponse(classBytes []byte) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"class_bytes": structpb.NewStringValue(base64.StdEncoding.EncodeToString(classBytes)),
	}}
}

// DecodeResponse extracts the edited class from an Apply reply.
func DecodeResponse(msg *structpb.Struct) ([]byte, error) {
	return decodeBytes(msg.GetFields()["class_bytes"])
}

func decodeBytes(v *structpb.Value) ([]byte, error) {
	s := v.GetStringValue()
	if s == "" {
		return nil, fmt.Errorf("%w: class_bytes", ErrMissingField)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid class_bytes: %w", err)
	}
	return b, nil
}

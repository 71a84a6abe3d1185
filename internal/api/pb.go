package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// The gRPC transport has no generated stubs: every method takes and returns
// a google.protobuf.Struct holding the JSON form of the types in this
// package.
const (
	GRPCServiceName = "papershelf.sync.v1.SyncService"

	MethodPing        = "Ping"
	MethodRegister    = "Register"
	MethodLogin       = "Login"
	MethodSnapshot    = "Snapshot"
	MethodIncremental = "Incremental"
	MethodStatus      = "Status"
	MethodCreate      = "Create"
	MethodUpdate      = "Update"
	MethodDelete      = "Delete"
	MethodPaperPDF    = "PaperPDF"
)

// FullMethod returns the "/service/method" name used on the wire.
func FullMethod(method string) string {
	return "/" + GRPCServiceName + "/" + method
}

// ToStruct converts any JSON-encodable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	st := &structpb.Struct{}
	if v == nil {
		return st, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	if err := protojson.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return st, nil
}

// FromStruct decodes st into out, which must be a pointer.
func FromStruct(st *structpb.Struct, out any) error {
	if st == nil || out == nil {
		return nil
	}
	b, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}

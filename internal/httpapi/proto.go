package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBody caps request bodies for both encodings.  Gate payloads are
// a handful of short strings.
const maxRequestBody = 4096

const protobufContentType = "application/x-protobuf"

// isProtobuf reports whether the body is a binary google.protobuf.Struct,
// as sent by the kiosk firmware.
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == protobufContentType ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, protobufContentType) ||
		strings.Contains(accept, "application/protobuf")
}

// readProto decodes a binary Struct body and maps it onto v through its
// JSON field names.
func readProto(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	var st structpb.Struct
	if err := proto.Unmarshal(body, &st); err != nil {
		return err
	}
	js, err := protojson.Marshal(&st)
	if err != nil {
		return err
	}
	return json.Unmarshal(js, v)
}

// writeProto sends v as a binary google.protobuf.Struct.
func writeProto(w http.ResponseWriter, status int, v any) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
		return
	}
	var st structpb.Struct
	if err := protojson.Unmarshal(js, &st); err != nil {
		http.Error(w, "proto encode error", http.StatusInternalServerError)
		return
	}
	data, err := proto.Marshal(&st)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

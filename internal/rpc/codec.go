package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec replaces Connect's protojson codec so handlers can exchange
// plain Go structs.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Codec returns the codec clients must use to talk to the ledger service.
func Codec() connect.Codec { return jsonCodec{} }

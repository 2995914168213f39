/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package codec serializes records for byte-oriented backends. Decoded
// records are always normalized.
package codec

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/suparena/genericstore/errors"
	"github.com/suparena/genericstore/storagemodels"
)

// Codec converts records to and from bytes.
type Codec interface {
	Name() string
	Marshal(rec storagemodels.Record) ([]byte, error)
	Unmarshal(b []byte) (storagemodels.Record, error)
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// ByName resolves "json" or "msgpack"; empty selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "msgpack", "messagepack":
		return MsgPack, nil
	}
	return nil, errors.Configurationf("codec", "unknown codec %q", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(rec storagemodels.Record) ([]byte, error) {
	return json.Marshal(rec)
}

func (jsonCodec) Unmarshal(b []byte) (storagemodels.Record, error) {
	var rec storagemodels.Record
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec.Normalize()
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(rec storagemodels.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(map[string]any(rec))
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(b []byte) (storagemodels.Record, error) {
	var m map[string]any
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(b))
	err := dec.Decode(&m)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, err
	}
	return storagemodels.Record(m).Normalize()
}

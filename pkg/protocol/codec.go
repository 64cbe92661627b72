package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/olta-dev/olta/pkg/lobby"
)

var (
	// ErrMalformedMessage is returned for input that is not a single-tag JSON object.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrUnknownMessage is returned for a well-formed message with an unknown tag.
	ErrUnknownMessage = errors.New("protocol: unknown message")
)

// DecodeInput parses a client message.
func DecodeInput(data []byte) (Input, error) {
	tag, body, err := split(data)
	if err != nil {
		return nil, err
	}

	var in Input
	switch tag {
	case TagJoinProcess:
		var m JoinProcess
		err = json.Unmarshal(body, &m)
		in = m
	case TagCreateDocument:
		var m CreateDocument
		err = json.Unmarshal(body, &m)
		in = m
	case TagUpdateDocument:
		var m UpdateDocument
		err = json.Unmarshal(body, &m)
		in = m
	case TagDeleteDocument:
		var m DeleteDocument
		err = json.Unmarshal(body, &m)
		in = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, tag, err)
	}
	return in, nil
}

// EncodeInput encodes a client message.
func EncodeInput(in Input) ([]byte, error) {
	return encode(in.InputTag(), in)
}

// Encode encodes a server event.
func Encode(out Output) ([]byte, error) {
	if fs, ok := out.(FullSync); ok && fs.Collections == nil {
		fs.Collections = lobby.Collections{}
		out = fs
	}
	return encode(out.OutputTag(), out)
}

// DecodeOutput parses a server event.
func DecodeOutput(data []byte) (Output, error) {
	tag, body, err := split(data)
	if err != nil {
		return nil, err
	}

	var out Output
	switch tag {
	case TagFullSync:
		var m FullSync
		err = json.Unmarshal(body, &m)
		out = m
	case TagDocumentCreated:
		var m DocumentCreated
		err = json.Unmarshal(body, &m)
		out = m
	case TagDocumentUpdated:
		var m DocumentUpdated
		err = json.Unmarshal(body, &m)
		out = m
	case TagDocumentDeleted:
		var m DocumentDeleted
		err = json.Unmarshal(body, &m)
		out = m
	case TagError:
		var m Error
		err = json.Unmarshal(body, &m)
		out = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, tag, err)
	}
	return out, nil
}

func encode(tag string, body any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: body})
}

func split(data []byte) (string, json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if len(env) != 1 {
		return "", nil, fmt.Errorf("%w: want exactly one tag, got %d", ErrMalformedMessage, len(env))
	}
	for tag, body := range env {
		return tag, body, nil
	}
	return "", nil, ErrMalformedMessage
}

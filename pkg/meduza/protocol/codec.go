package protocol

import (
	"fmt"

	"github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/query"
	"go.mongodb.org/mongo-driver/bson"
)

type validator interface {
	Validate() error
}

// requestOf resolves the message type of a query value or pointer
func requestOf(q any) (string, validator, bool) {
	switch v := q.(type) {
	case *query.GetQuery:
		return TypeGet, v, v != nil
	case query.GetQuery:
		return TypeGet, &v, true
	case *query.PutQuery:
		return TypePut, v, v != nil
	case query.PutQuery:
		return TypePut, &v, true
	case *query.DelQuery:
		return TypeDelete, v, v != nil
	case query.DelQuery:
		return TypeDelete, &v, true
	case *query.UpdateQuery:
		return TypeUpdate, v, v != nil
	case query.UpdateQuery:
		return TypeUpdate, &v, true
	case *query.PingQuery:
		return TypePing, v, v != nil
	case query.PingQuery:
		return TypePing, &v, true
	}
	return "", nil, false
}

// Encode validates a query and serializes it into a message
func Encode(q any) (Message, error) {
	msgType, v, ok := requestOf(q)
	if !ok {
		return Message{}, errors.NewProtocolError(fmt.Sprintf("cannot encode %T", q))
	}

	if err := v.Validate(); err != nil {
		return Message{}, err
	}

	body, err := bson.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s body: %s (%w)", msgType, err.Error(), errors.ErrProtocol)
	}

	return NewMessage(msgType, body), nil
}

// Decode deserializes a response message. An unknown message type is fatal.
func Decode(msg Message) (Response, error) {
	var resp envelope

	switch msg.Type {
	case TypeGetResponse:
		resp = &GetResponse{}
	case TypePutResponse:
		resp = &PutResponse{}
	case TypeDeleteResponse:
		resp = &DelResponse{}
	case TypeUpdateResponse:
		resp = &UpdateResponse{}
	case TypePingResponse:
		resp = &PingResponse{}
	default:
		return nil, errors.NewProtocolError(fmt.Sprintf("unknown message type %q", msg.Type))
	}

	if err := unmarshal(msg, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// unmarshal reads the header either from the top level of the body or from a nested Response document
func unmarshal(msg Message, resp envelope) error {
	if len(msg.Body) == 0 {
		return nil
	}

	if err := bson.Unmarshal(msg.Body, resp); err != nil {
		return fmt.Errorf("failed to decode %s body: %s (%w)", msg.Type, err.Error(), errors.ErrProtocol)
	}

	nested := struct {
		Response *Header `bson:"Response"`
	}{}

	if err := bson.Unmarshal(msg.Body, &nested); err != nil {
		return fmt.Errorf("failed to decode %s header: %s (%w)", msg.Type, err.Error(), errors.ErrProtocol)
	}

	if nested.Response != nil {
		*resp.header() = *nested.Response
	}

	return nil
}

// DecodeQuery is the server side counterpart of Encode
func DecodeQuery(msg Message) (any, error) {
	var q any

	switch msg.Type {
	case TypeGet:
		q = &query.GetQuery{}
	case TypePut:
		q = &query.PutQuery{}
	case TypeDelete:
		q = &query.DelQuery{}
	case TypeUpdate:
		q = &query.UpdateQuery{}
	case TypePing:
		return &query.PingQuery{}, nil
	default:
		return nil, errors.NewProtocolError(fmt.Sprintf("unknown message type %q", msg.Type))
	}

	if err := bson.Unmarshal(msg.Body, q); err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %s (%w)", msg.Type, err.Error(), errors.ErrProtocol)
	}

	return q, nil
}

// EncodeResponse is the server side counterpart of Decode
func EncodeResponse(resp Response) (Message, error) {
	var msgType string

	switch resp.(type) {
	case *GetResponse:
		msgType = TypeGetResponse
	case *PutResponse:
		msgType = TypePutResponse
	case *DelResponse:
		msgType = TypeDeleteResponse
	case *UpdateResponse:
		msgType = TypeUpdateResponse
	case *PingResponse:
		msgType = TypePingResponse
	default:
		return Message{}, errors.NewProtocolError(fmt.Sprintf("cannot encode %T", resp))
	}

	body, err := bson.Marshal(resp)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s body: %s (%w)", msgType, err.Error(), errors.ErrProtocol)
	}

	return NewMessage(msgType, body), nil
}

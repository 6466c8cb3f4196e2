package protocol

import "fmt"

// Message types. Every request tag has a matching response tag.
const (
	TypeGet            string = "GET"
	TypeGetResponse    string = "RGET"
	TypePut            string = "PUT"
	TypePutResponse    string = "RPUT"
	TypeDelete         string = "DEL"
	TypeDeleteResponse string = "RDEL"
	TypeUpdate         string = "UPDATE"
	TypeUpdateResponse string = "RUPDATE"
	TypePing           string = "PING"
	TypePingResponse   string = "PONG"
)

// Message is a single protocol frame, a type tag and a bson encoded body
type Message struct {
	Type string
	Body []byte
}

func NewMessage(msgType string, body []byte) Message {
	return Message{Type: msgType, Body: body}
}

func (m Message) String() string {
	return fmt.Sprintf("Message<%s>(%d bytes)", m.Type, len(m.Body))
}

// ResponseType returns the response tag expected for a request tag
func ResponseType(requestType string) (string, bool) {
	switch requestType {
	case TypeGet:
		return TypeGetResponse, true
	case TypePut:
		return TypePutResponse, true
	case TypeDelete:
		return TypeDeleteResponse, true
	case TypeUpdate:
		return TypeUpdateResponse, true
	case TypePing:
		return TypePingResponse, true
	}
	return "", false
}

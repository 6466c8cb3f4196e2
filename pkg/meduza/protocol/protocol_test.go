package protocol

import (
	"errors"
	"testing"

	"github.com/diwise/meduza/pkg/meduza/columns"
	mdzerrors "github.com/diwise/meduza/pkg/meduza/errors"
	"github.com/diwise/meduza/pkg/meduza/query"
	"github.com/matryer/is"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEncodeGetQuery(t *testing.T) {
	is := is.New(t)

	q := query.NewGetQuery("testung.Users").Filter("name", query.EQ, "dvir").Limit(10)

	msg, err := Encode(q)
	is.NoErr(err)
	is.Equal(msg.Type, TypeGet)

	doc := bson.M{}
	is.NoErr(bson.Unmarshal(msg.Body, &doc))

	is.Equal(doc["table"], "testung.Users")

	filters := doc["filters"].(bson.M)
	name := filters["name"].(bson.M)
	is.Equal(name["property"], "name")
	is.Equal(name["op"], "=")
	is.Equal(name["values"], bson.A{"dvir"})

	paging := doc["paging"].(bson.M)
	is.Equal(paging["limit"], int32(10)) // ints that fit are written as int32
}

func TestEncodeAcceptsQueryValues(t *testing.T) {
	is := is.New(t)

	msg, err := Encode(*query.NewDelQuery("Users", query.Equals("id", "1")))
	is.NoErr(err)
	is.Equal(msg.Type, TypeDelete)

	msg, err = Encode(query.PingQuery{})
	is.NoErr(err)
	is.Equal(msg.Type, TypePing)
}

func TestEncodeUnknownKindFailsBeforeProducingBytes(t *testing.T) {
	is := is.New(t)

	msg, err := Encode(struct{ Table string }{"Users"})
	is.True(errors.Is(err, mdzerrors.ErrProtocol))
	is.Equal(len(msg.Body), 0)

	var nilQuery *query.GetQuery
	_, err = Encode(nilQuery)
	is.True(errors.Is(err, mdzerrors.ErrProtocol))
}

func TestEncodeValidatesFirst(t *testing.T) {
	is := is.New(t)

	_, err := Encode(query.NewGetQuery("Users").Page(3, 1))
	is.True(errors.Is(err, mdzerrors.ErrInvalidQuery))
}

func TestEncodeUnencodableValueIsAProtocolError(t *testing.T) {
	is := is.New(t)

	e := query.NewEntity("", map[string]any{"ch": make(chan int)})
	_, err := Encode(query.NewPutQuery("Users", e))
	is.True(errors.Is(err, mdzerrors.ErrProtocol))
}

func TestQueryRoundTripKeepsSetSentinel(t *testing.T) {
	is := is.New(t)

	w, err := columns.Set{Of: columns.Text{}}.Encode(columns.NewValueSet())
	is.NoErr(err)

	e := query.NewEntity("", map[string]any{"groups": w, "name": "dvir"})
	e.Expire(60)

	msg, err := Encode(query.NewPutQuery("Users", e))
	is.NoErr(err)

	q, err := DecodeQuery(msg)
	is.NoErr(err)

	put := q.(*query.PutQuery)
	is.Equal(put.Table, "Users")
	is.Equal(len(put.Entities), 1)
	is.Equal(put.Entities[0].TTL, 60.0)
	is.Equal(put.Entities[0].Properties["groups"], primitive.A{columns.SetSentinel})

	decoded, err := columns.Set{Of: columns.Text{}}.Decode(put.Entities[0].Properties["groups"])
	is.NoErr(err)
	is.Equal(decoded.(columns.ValueSet).Len(), 0)
}

func TestUpdateQueryRoundTrip(t *testing.T) {
	is := is.New(t)

	q := query.NewUpdateQuery("Users", query.Filters(query.Equals("id", "1")), query.Increment("score", 2))

	msg, err := Encode(q)
	is.NoErr(err)
	is.Equal(msg.Type, TypeUpdate)

	decoded, err := DecodeQuery(msg)
	is.NoErr(err)

	u := decoded.(*query.UpdateQuery)
	is.Equal(u.Changes[0].Op, query.OpIncrement)
	is.Equal(u.Changes[0].Property, "score")
	is.Equal(u.Filters["id"].Op, query.EQ)
}

func TestDecodeGetResponse(t *testing.T) {
	is := is.New(t)

	body, err := bson.Marshal(bson.M{
		"error": nil,
		"time":  0.25,
		"total": 3,
		"entities": bson.A{
			bson.M{"id": "u1", "properties": bson.M{"name": "dvir"}},
		},
	})
	is.NoErr(err)

	resp, err := Decode(NewMessage(TypeGetResponse, body))
	is.NoErr(err)
	is.NoErr(resp.Err())

	get := resp.(*GetResponse)
	is.Equal(get.Total, 3)
	is.Equal(len(get.Entities), 1)
	is.Equal(get.Entities[0].ID, "u1")
	is.Equal(get.Entities[0].Properties["name"], "dvir")
	is.Equal(get.Duration().Milliseconds(), int64(250))
}

func TestDecodeNestedResponseHeader(t *testing.T) {
	is := is.New(t)

	body, err := bson.Marshal(bson.M{
		"Response": bson.M{"error": "no such table", "time": 0.1},
		"ids":      bson.A{},
	})
	is.NoErr(err)

	resp, err := Decode(NewMessage(TypePutResponse, body))
	is.NoErr(err)

	var reqErr *mdzerrors.RequestError
	is.True(errors.As(resp.Err(), &reqErr)) // server errors become request errors
	is.Equal(reqErr.Message, "no such table")
}

func TestEmptyErrorStringIsStillAFailure(t *testing.T) {
	is := is.New(t)

	body, err := bson.Marshal(bson.M{"error": "", "time": 0.1, "num": 0})
	is.NoErr(err)

	resp, err := Decode(NewMessage(TypeDeleteResponse, body))
	is.NoErr(err)
	is.True(errors.Is(resp.Err(), mdzerrors.ErrRequest)) // a non-null error field fails the request
}

func TestNullErrorIsSuccess(t *testing.T) {
	is := is.New(t)

	body, err := bson.Marshal(bson.M{"error": nil, "time": 0.1, "num": 2})
	is.NoErr(err)

	resp, err := Decode(NewMessage(TypeDeleteResponse, body))
	is.NoErr(err)
	is.NoErr(resp.Err())
	is.Equal(resp.(*DelResponse).Num, 2)
}

func TestDecodeUnknownTypeIsFatal(t *testing.T) {
	is := is.New(t)

	_, err := Decode(NewMessage("RSET", nil))
	is.True(errors.Is(err, mdzerrors.ErrProtocol))
}

func TestDecodeMalformedBody(t *testing.T) {
	is := is.New(t)

	_, err := Decode(NewMessage(TypeDeleteResponse, []byte{0x01, 0x02}))
	is.True(errors.Is(err, mdzerrors.ErrProtocol))
}

func TestResponseRoundTrip(t *testing.T) {
	is := is.New(t)

	msg, err := EncodeResponse(&UpdateResponse{Num: 4})
	is.NoErr(err)
	is.Equal(msg.Type, TypeUpdateResponse)

	resp, err := Decode(msg)
	is.NoErr(err)
	is.Equal(resp.(*UpdateResponse).Num, 4)
	is.NoErr(resp.Err())

	msg, err = EncodeResponse(&PingResponse{Header: Failed("overloaded")})
	is.NoErr(err)
	is.Equal(msg.Type, TypePingResponse)

	resp, err = Decode(msg)
	is.NoErr(err)
	is.True(errors.Is(resp.Err(), mdzerrors.ErrRequest))
}

func TestResponseTypes(t *testing.T) {
	is := is.New(t)

	for req, res := range map[string]string{
		TypeGet: TypeGetResponse, TypePut: TypePutResponse, TypeDelete: TypeDeleteResponse,
		TypeUpdate: TypeUpdateResponse, TypePing: TypePingResponse,
	} {
		r, ok := ResponseType(req)
		is.True(ok)
		is.Equal(r, res)
	}
}

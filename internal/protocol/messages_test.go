package protocol_test

import (
	"encoding/json"
	"testing"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_WithoutDataOmitsField(t *testing.T) {
	b, err := protocol.Encode(protocol.TypeUndo, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"undo"}`, string(b))
}

func TestEncode_StateUsesFlatOperations(t *testing.T) {
	op := domain.Operation{ID: "a", AuthorID: "u", Tool: domain.ToolLine, Points: []domain.Point{{X: 1, Y: 2}}, Final: true, ServerTS: 5}
	b, err := protocol.Encode(protocol.TypeState, protocol.StatePayload{Ops: []domain.Operation{op}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"state","data":{"ops":[{"id":"a","userId":"u","tool":"line","points":[{"x":1,"y":2}],"final":true,"serverTs":5}]}}`,
		string(b))
}

func TestDecode_Stroke(t *testing.T) {
	env, err := protocol.Decode([]byte(`{"type":"stroke","data":{"id":"s1","tool":"pencil","points":[{"x":0,"y":0}],"final":false}}`))
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeStroke, env.Type)

	op, err := env.Operation()
	require.NoError(t, err)
	assert.Equal(t, "s1", op.ID)
	assert.False(t, op.Final)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := protocol.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)

	_, err = protocol.Decode([]byte(`{"data":1}`))
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)

	env, err := protocol.Decode([]byte(`{"type":"stroke"}`))
	require.NoError(t, err)
	_, err = env.Operation()
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
}

func TestEnvelope_OpIDAcceptsBothShapes(t *testing.T) {
	env, err := protocol.Decode([]byte(`{"type":"removeOp","data":"op-7"}`))
	require.NoError(t, err)
	id, err := env.OpID()
	require.NoError(t, err)
	assert.Equal(t, "op-7", id)

	env, err = protocol.Decode([]byte(`{"type":"removeOp","data":{"id":"op-8"}}`))
	require.NoError(t, err)
	id, err = env.OpID()
	require.NoError(t, err)
	assert.Equal(t, "op-8", id)

	env, err = protocol.Decode([]byte(`{"type":"removeOp","data":{}}`))
	require.NoError(t, err)
	_, err = env.OpID()
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
}

func TestEnvelope_Name(t *testing.T) {
	env, err := protocol.Decode([]byte(`{"type":"setName","data":"  Ada  "}`))
	require.NoError(t, err)
	assert.Equal(t, "  Ada  ", env.Name())

	env, err = protocol.Decode([]byte(`{"type":"setName","data":42}`))
	require.NoError(t, err)
	assert.Equal(t, "", env.Name())
}

func TestInitPayload_RoundTripShape(t *testing.T) {
	b := protocol.MustEncode(protocol.TypeInit, protocol.InitPayload{
		ID:    "c1",
		Color: "#e6194b",
		Name:  "User-abcd",
		State: protocol.StatePayload{Ops: []domain.Operation{}},
		Users: []domain.Participant{{ID: "c1", Color: "#e6194b", Name: "User-abcd"}},
	})

	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &generic))
	assert.JSONEq(t, `"init"`, string(generic["type"]))
	assert.JSONEq(t,
		`{"id":"c1","color":"#e6194b","name":"User-abcd","state":{"ops":[]},"users":[{"id":"c1","color":"#e6194b","name":"User-abcd"}]}`,
		string(generic["data"]))
}

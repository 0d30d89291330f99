package payload_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhmdtwsm/GradProject-sub000/internal/models"
	"github.com/mhmdtwsm/GradProject-sub000/internal/payload"
)

func sampleAccounts() []models.Account {
	return []models.Account{
		{ID: "b", Title: "Mail", URL: "https://mail.example.com", Email: "me@example.com", Password: "p4ss<&>", Notes: "line1\nline2"},
		{ID: "a", Title: "Bank", Password: "ünïcödé"},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	accounts := sampleAccounts()

	data, err := payload.Encode(accounts)
	require.NoError(t, err)

	decoded, err := payload.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, accounts, decoded)
}

func TestEncodeEmpty(t *testing.T) {
	data, err := payload.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1,"accounts":[]}`, string(data))

	decoded, err := payload.Decode(data)
	require.NoError(t, err)
	assert.NotNil(t, decoded)
	assert.Empty(t, decoded)
}

func TestEncodeIsCanonical(t *testing.T) {
	a, err := payload.Encode(sampleAccounts())
	require.NoError(t, err)
	b, err := payload.Encode(sampleAccounts())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	data, err := payload.Encode([]models.Account{{ID: "x", Title: "t"}})
	require.NoError(t, err)
	assert.Equal(t,
		`{"version":1,"accounts":[{"id":"x","title":"t","url":"","email":"","password":"","notes":""}]}`,
		string(data))
}

func TestEncodeRejectsBadIDs(t *testing.T) {
	_, err := payload.Encode([]models.Account{{ID: ""}})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = payload.Encode([]models.Account{{ID: "a"}, {ID: "a"}})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestDecodeStrict(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ``},
		{"not json", `hello`},
		{"array", `[]`},
		{"missing version", `{"accounts":[]}`},
		{"wrong version", `{"version":2,"accounts":[]}`},
		{"missing accounts", `{"version":1}`},
		{"null accounts", `{"version":1,"accounts":null}`},
		{"unknown envelope field", `{"version":1,"accounts":[],"extra":true}`},
		{"unknown account field", `{"version":1,"accounts":[{"id":"a","pin":"1234"}]}`},
		{"wrong field type", `{"version":1,"accounts":[{"id":"a","title":7}]}`},
		{"empty id", `{"version":1,"accounts":[{"id":""}]}`},
		{"duplicate id", `{"version":1,"accounts":[{"id":"a"},{"id":"a"}]}`},
		{"trailing object", `{"version":1,"accounts":[]}{}`},
		{"trailing garbage", `{"version":1,"accounts":[]}x`},
		{"truncated", `{"version":1,"accounts":[{"id":"a"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts, err := payload.Decode([]byte(tt.data))
			assert.Nil(t, accounts)
			assert.ErrorIs(t, err, models.ErrPayloadMalformed)
		})
	}
}

func TestDecodeAllowsTrailingWhitespace(t *testing.T) {
	accounts, err := payload.Decode([]byte("{\"version\":1,\"accounts\":[{\"id\":\"a\"}]}\n"))
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "a", accounts[0].ID)
}

func TestDecodeErrorHidesValues(t *testing.T) {
	_, err := payload.Decode([]byte(`{"version":1,"accounts":[{"id":"a","password":"hunter2"},{"id":"a","password":"hunter2"}]}`))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

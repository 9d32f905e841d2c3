package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_ToDecimal(t *testing.T) {
	a := NewAmount(10_500_000)
	assert.Equal(t, "10500000", a.ToDecimal().String())
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("340282366920938463463374607431768211455")
	require.NoError(t, err)
	assert.Equal(t, MaxAmount, a)

	_, err = ParseAmount("340282366920938463463374607431768211456")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseAmount("-5")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseAmount("12abc")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAmount_AddSub(t *testing.T) {
	sum, err := NewAmount(2000).Add(NewAmount(75))
	require.NoError(t, err)
	assert.Equal(t, NewAmount(2075), sum)

	diff, err := NewAmount(3000).Sub(NewAmount(75))
	require.NoError(t, err)
	assert.Equal(t, NewAmount(2925), diff)

	_, err = NewAmount(1).Sub(NewAmount(2))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = MaxAmount.Add(NewAmount(1))
	assert.ErrorIs(t, err, ErrFeeOverflow)
}

func TestAmount_JSON(t *testing.T) {
	type wrapper struct {
		Value Amount  `json:"value"`
		Opt   *Amount `json:"opt,omitempty"`
	}
	in := wrapper{Value: MaxAmount}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"340282366920938463463374607431768211455"}`, string(raw))

	var out wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"value":1500,"opt":"5000"}`), &out))
	assert.Equal(t, NewAmount(1500), out.Value)
	require.NotNil(t, out.Opt)
	assert.Equal(t, NewAmount(5000), *out.Opt)

	assert.Error(t, json.Unmarshal([]byte(`{"value":"-1"}`), &out))
}

package datum

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Int(1)
	var _ Value = Real(1.5)
	var _ Value = Text("a")
	var _ Value = Blob{0x01}
	var _ Value = RunID{}
}

func TestValueKinds(t *testing.T) {
	tests := []struct {
		v    Value
		want Kind
	}{
		{NewInt(10), KindInt},
		{NewReal(5.5), KindReal},
		{NewText("monkey"), KindText},
		{NewBlob([]byte("flipper")), KindBlob},
		{NewRunID(uuid.New()), KindRunID},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.Kind())
		assert.Equal(t, tt.want, KindOf(tt.v))
	}
	assert.Equal(t, KindInvalid, KindOf(nil))
}

func TestNewBlobCopies(t *testing.T) {
	src := []byte("my name is flipper")
	b := NewBlob(src)
	src[0] = 'X'

	assert.Equal(t, "my name is flipper", string(b))
}

func TestKindStringRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindInt, KindReal, KindText, KindBlob, KindRunID} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
		assert.True(t, k.Valid())
	}

	_, err := ParseKind("float")
	assert.Error(t, err)
	assert.False(t, KindInvalid.Valid())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestKindCodesStable(t *testing.T) {
	// Persisted in sqlite FieldTypes and arrow metadata.
	assert.Equal(t, 1, int(KindInt))
	assert.Equal(t, 2, int(KindReal))
	assert.Equal(t, 3, int(KindText))
	assert.Equal(t, 4, int(KindBlob))
	assert.Equal(t, 5, int(KindRunID))
}

func TestEqual(t *testing.T) {
	id := uuid.New()

	assert.True(t, Equal(NewInt(3), NewInt(3)))
	assert.False(t, Equal(NewInt(3), NewReal(3)))
	assert.True(t, Equal(NewBlob([]byte("ab")), NewBlob([]byte("ab"))))
	assert.False(t, Equal(NewBlob([]byte("ab")), NewText("ab")))
	assert.False(t, Equal(NewText("ab"), NewBlob([]byte("ab"))))
	assert.True(t, Equal(NewRunID(id), NewRunID(id)))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, NewInt(0)))
}

func TestFormat(t *testing.T) {
	id := uuid.MustParse("0190b7c2-5f4e-7a3b-9c1d-2e3f4a5b6c7d")

	assert.Equal(t, "10", Format(NewInt(10)))
	assert.Equal(t, "-7", Format(NewInt(-7)))
	assert.Equal(t, "5.5", Format(NewReal(5.5)))
	assert.Equal(t, "7.2", Format(NewReal(7.2)))
	assert.Equal(t, "1000", Format(NewReal(1000)))
	assert.Equal(t, "monkey", Format(NewText("monkey")))
	assert.Equal(t, "0190b7c2-5f4e-7a3b-9c1d-2e3f4a5b6c7d", Format(NewRunID(id)))
	assert.Equal(t, "<blob 3 bytes>", Format(NewBlob([]byte("abc"))))
}

func TestParseRunID(t *testing.T) {
	id := uuid.New()

	got, err := ParseRunID(id.String())
	require.NoError(t, err)
	assert.Equal(t, NewRunID(id), got)

	_, err = ParseRunID("not-a-uuid")
	assert.Error(t, err)
}

func TestSchemaOfAndSorted(t *testing.T) {
	fields := []Field{
		F("SimID", NewRunID(uuid.New())),
		F("animal", NewText("monkey")),
		F("weight", NewInt(10)),
		F("height", NewReal(5.5)),
	}

	s := SchemaOf(fields)
	assert.Equal(t, []string{"SimID", "animal", "weight", "height"}, s.Names())
	assert.Equal(t, 2, s.Index("weight"))
	assert.Equal(t, -1, s.Index("missing"))

	col, ok := s.Lookup("height")
	require.True(t, ok)
	assert.Equal(t, KindReal, col.Kind)

	sorted := s.Sorted()
	assert.Equal(t, []string{"SimID", "animal", "height", "weight"}, sorted.Names())
	// Sorted does not reorder the receiver.
	assert.Equal(t, []string{"SimID", "animal", "weight", "height"}, s.Names())
}

package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigest(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "empty input",
			data: nil,
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "known vector",
			data: []byte("abc"),
			want: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Digest(tt.data))
		})
	}
}

func TestVerify(t *testing.T) {
	d := Digest([]byte("payload"))
	assert.True(t, Verify(d, Digest([]byte("payload"))))
	assert.False(t, Verify(d, Digest([]byte("tampered"))))
	assert.False(t, Verify(d, ""))
}

func TestAggregatorMatchesWholeDigest(t *testing.T) {
	pieces := [][]byte{
		[]byte("first-"),
		[]byte("second-"),
		[]byte("third"),
	}

	agg := NewAggregator()
	var whole []byte
	for _, p := range pieces {
		n, err := agg.Write(p)
		assert.NoError(t, err)
		assert.Equal(t, len(p), n)
		whole = append(whole, p...)
	}

	assert.Equal(t, Digest(whole), agg.Sum())
	assert.Equal(t, int64(len(whole)), agg.Size())
}

func TestAggregatorEmpty(t *testing.T) {
	agg := NewAggregator()
	assert.Equal(t, Digest(nil), agg.Sum())
	assert.Zero(t, agg.Size())
}

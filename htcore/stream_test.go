// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package htcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunksOf(chunks ...[]byte) ChunkSource[byte] {
	i := 0
	return func() ([]byte, error) {
		if i >= len(chunks) {
			return nil, nil
		}
		c := chunks[i]
		i++
		return c, nil
	}
}

func TestAsyncReader_ReadWithinLimit(t *testing.T) {
	r := NewAsyncReader[byte](chunksOf([]byte("ab"), []byte("cd")))

	var got []byte
	err := r.Read(-1, func(chunk []byte) error {
		got = append(got, chunk...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), got)
}

func TestAsyncReader_ExcessIsStashed(t *testing.T) {
	r := NewAsyncReader[byte](chunksOf([]byte("abcd")))

	var first, second []byte
	require.NoError(t, r.Read(2, func(chunk []byte) error {
		first = append([]byte(nil), chunk...)
		return nil
	}))
	require.NoError(t, r.Read(-1, func(chunk []byte) error {
		second = append([]byte(nil), chunk...)
		return nil
	}))

	assert.Equal(t, []byte("ab"), first)
	assert.Equal(t, []byte("cd"), second)
}

func TestAsyncReader_EndOfStreamIsEmptyView(t *testing.T) {
	r := NewAsyncReader[byte](chunksOf())

	var sawEmpty bool
	require.NoError(t, r.Read(-1, func(chunk []byte) error {
		sawEmpty = len(chunk) == 0
		return nil
	}))
	assert.True(t, sawEmpty)
}

func TestAsyncReader_SourceErrorIsDistinguishable(t *testing.T) {
	boom := errors.New("boom")
	r := NewAsyncReader[byte](func() ([]byte, error) { return nil, boom })

	err := r.Read(-1, func(chunk []byte) error { return nil })
	require.Error(t, err)
	assert.True(t, IsSourceError(err))
	assert.False(t, IsBodyError(err))
}

func TestAsyncReader_BodyErrorIsDistinguishable(t *testing.T) {
	r := NewAsyncReader[byte](chunksOf([]byte("x")))
	boom := errors.New("boom")

	err := r.Read(-1, func(chunk []byte) error { return boom })
	require.Error(t, err)
	assert.True(t, IsBodyError(err))
	assert.False(t, IsSourceError(err))
}

// TestAsyncReader_CollectTruncates pins scenario 5 from the specification: collect(upTo:
// 9) on a 10-byte body returns exactly 9 bytes without error (the truncate policy).
func TestAsyncReader_CollectTruncates(t *testing.T) {
	body := make([]byte, 10)
	for i := range body {
		body[i] = 0x05
	}
	r := NewAsyncReader[byte](chunksOf(body))

	var got []byte
	err := r.Collect(9, func(chunk []byte) error {
		got = append([]byte(nil), chunk...)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 9)
	for _, b := range got {
		assert.Equal(t, byte(0x05), b)
	}
}

func TestAsyncReader_CollectExactSize(t *testing.T) {
	r := NewAsyncReader[byte](chunksOf([]byte("hello")))

	var got []byte
	require.NoError(t, r.Collect(100, func(chunk []byte) error {
		got = append([]byte(nil), chunk...)
		return nil
	}))
	assert.Equal(t, []byte("hello"), got)
}

func TestAsyncReader_CollectStrictRejectsExcess(t *testing.T) {
	r := NewAsyncReader[byte](chunksOf(make([]byte, 10)))

	called := false
	err := r.CollectStrict(9, func(chunk []byte) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, called)
}

func TestAsyncReader_CollectStrictAllowsExact(t *testing.T) {
	r := NewAsyncReader[byte](chunksOf([]byte("hello")))

	var got []byte
	err := r.CollectStrict(5, func(chunk []byte) error {
		got = append([]byte(nil), chunk...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestAsyncWriter_Write(t *testing.T) {
	var sink []byte
	w := NewAsyncWriter[byte](func(chunk []byte) error {
		sink = append(sink, chunk...)
		return nil
	})

	require.NoError(t, w.Write([]byte("ab")))
	require.NoError(t, w.Write(nil))
	require.NoError(t, w.Write([]byte("cd")))
	assert.Equal(t, []byte("abcd"), sink)
}

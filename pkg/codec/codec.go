// Package codec converts custom metadata values to and from the binary
// blobs stored next to a paste's environment. All integers are big-endian.
//
//	boolean   1 byte, 0x00 or 0x01
//	number    int32
//	string    raw UTF-8, length implied by the blob
//	number[]  uint32 count, then count int32 values
//	string[]  (uint32 length, UTF-8 bytes) pairs until the blob ends
package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const int32Bytes = 4

var ErrCorrupt = errors.New("corrupt metadata blob")

func Encode(v Value) ([]byte, error) {
	switch v.kind {
	case KindBoolean:
		if v.b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindNumber:
		buf := make([]byte, int32Bytes)
		binary.BigEndian.PutUint32(buf, uint32(v.num))
		return buf, nil
	case KindString:
		return []byte(v.str), nil
	case KindNumberArray:
		buf := make([]byte, int32Bytes*(len(v.nums)+1))
		binary.BigEndian.PutUint32(buf, uint32(len(v.nums)))
		for i, n := range v.nums {
			binary.BigEndian.PutUint32(buf[int32Bytes*(i+1):], uint32(n))
		}
		return buf, nil
	case KindStringArray:
		size := 0
		for _, s := range v.strs {
			size += int32Bytes + len(s)
		}
		buf := make([]byte, 0, size)
		for _, s := range v.strs {
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
			buf = append(buf, s...)
		}
		return buf, nil
	case "":
		return nil, ErrUnsupportedValue
	}
	return nil, errors.Wrapf(ErrUnknownKind, "%q", v.kind)
}

func Decode(data []byte, k Kind) (Value, error) {
	switch k {
	case KindBoolean:
		if len(data) < 1 {
			return Value{}, errors.Wrap(ErrCorrupt, "empty boolean")
		}
		return Bool(data[0] == 1), nil
	case KindNumber:
		if len(data) < int32Bytes {
			return Value{}, errors.Wrapf(ErrCorrupt, "number needs %d bytes, got %d", int32Bytes, len(data))
		}
		return Number(int32(binary.BigEndian.Uint32(data))), nil
	case KindString:
		return String(string(data)), nil
	case KindNumberArray:
		return decodeNumbers(data)
	case KindStringArray:
		return decodeStrings(data)
	}
	return Value{}, errors.Wrapf(ErrUnknownKind, "%q", k)
}

func decodeNumbers(data []byte) (Value, error) {
	if len(data) < int32Bytes {
		return Value{}, errors.Wrap(ErrCorrupt, "missing number[] count")
	}
	count := uint64(binary.BigEndian.Uint32(data))
	body := data[int32Bytes:]
	if count*int32Bytes > uint64(len(body)) {
		return Value{}, errors.Wrapf(ErrCorrupt, "number[] declares %d entries, buffer holds %d", count, len(body)/int32Bytes)
	}
	nums := make([]int32, count)
	for i := range nums {
		nums[i] = int32(binary.BigEndian.Uint32(body[i*int32Bytes:]))
	}
	return Value{kind: KindNumberArray, nums: nums}, nil
}

func decodeStrings(data []byte) (Value, error) {
	strs := make([]string, 0)
	offset := 0
	for offset < len(data) {
		if len(data)-offset < int32Bytes {
			return Value{}, errors.Wrapf(ErrCorrupt, "truncated string[] length at offset %d", offset)
		}
		n := uint64(binary.BigEndian.Uint32(data[offset:]))
		offset += int32Bytes
		if n > uint64(len(data)-offset) {
			return Value{}, errors.Wrapf(ErrCorrupt, "string length %d exceeds remaining %d bytes", n, len(data)-offset)
		}
		strs = append(strs, string(data[offset:offset+int(n)]))
		offset += int(n)
	}
	return Value{kind: KindStringArray, strs: strs}, nil
}

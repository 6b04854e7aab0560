package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// resolve applies write sentinels against the previous body (nil when absent).
func resolve(prev Doc, data Doc, merge bool, now time.Time) Doc {
	out := Doc{}
	if merge {
		for k, v := range prev {
			out[k] = v
		}
	}
	for k, v := range data {
		switch v {
		case DeleteField:
			delete(out, k)
		case ServerTimestamp:
			out[k] = now.UTC().Format(time.RFC3339Nano)
		default:
			out[k] = v
		}
	}
	return out
}

func encodeDoc(d Doc) ([]byte, error) {
	if d == nil {
		d = Doc{}
	}
	return json.Marshal(d)
}

func decodeDoc(b []byte) (Doc, error) {
	d := Doc{}
	if len(b) == 0 {
		return d, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&d); err != nil {
		return nil, err
	}
	return d, nil
}

// decodeBody is decodeDoc for read paths: a bad body becomes an ErrCorrupt
// error bound to the document instead of failing the whole read.
func decodeBody(path string, b []byte) (Doc, error) {
	d, err := decodeDoc(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return d, nil
}

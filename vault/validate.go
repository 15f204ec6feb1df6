package vault

import (
	"unicode"
	"unicode/utf8"

	"github.com/jmcleod/ironpass/passgen"
)

const (
	MaxNameLength  = 256
	MaxTagLength   = 64
	MaxKVKeyLength = 128
	MaxKVValueSize = 4096
	MaxKVCount     = 64
	MaxTagCount    = 64
)

func validateName(name, label string) error {
	if name == "" {
		return validationErrorf("%s must not be empty", label)
	}
	if len(name) > MaxNameLength {
		return validationErrorf("%s exceeds maximum length of %d", label, MaxNameLength)
	}
	if !utf8.ValidString(name) {
		return validationErrorf("%s contains invalid UTF-8", label)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return validationErrorf("%s contains control character", label)
		}
	}
	return nil
}

func validateTags(tags []string) error {
	if len(tags) > MaxTagCount {
		return validationErrorf("tag count %d exceeds maximum of %d", len(tags), MaxTagCount)
	}
	for _, tag := range tags {
		if len(tag) > MaxTagLength {
			return validationErrorf("tag %q exceeds maximum length of %d", tag, MaxTagLength)
		}
		if !utf8.ValidString(tag) {
			return validationErrorf("tag contains invalid UTF-8")
		}
		for _, r := range tag {
			if r == ',' {
				return validationErrorf("tag %q contains forbidden character %q", tag, r)
			}
			if unicode.IsControl(r) {
				return validationErrorf("tag contains control character")
			}
		}
	}
	return nil
}

func validateKVs(kvs []KV) error {
	if len(kvs) > MaxKVCount {
		return validationErrorf("key/value count %d exceeds maximum of %d", len(kvs), MaxKVCount)
	}
	for _, kv := range kvs {
		if kv.Key == "" {
			return validationErrorf("key must not be empty")
		}
		if len(kv.Key) > MaxKVKeyLength {
			return validationErrorf("key %q exceeds maximum length of %d", kv.Key, MaxKVKeyLength)
		}
		if len(kv.Value) > MaxKVValueSize {
			return validationErrorf("value for %q size %d exceeds maximum of %d bytes", kv.Key, len(kv.Value), MaxKVValueSize)
		}
		if !utf8.ValidString(kv.Key) || !utf8.ValidString(kv.Value) {
			return validationErrorf("key/value %q contains invalid UTF-8", kv.Key)
		}
		for _, r := range kv.Key {
			if r == '=' {
				return validationErrorf("key %q contains forbidden character %q", kv.Key, r)
			}
			if unicode.IsControl(r) {
				return validationErrorf("key contains control character")
			}
		}
	}
	return nil
}

func validateGenerator(mode passgen.TextMode, length uint8) error {
	if !mode.Valid() {
		return validationErrorf("unknown text mode %d", mode)
	}
	if length == 0 {
		return validationErrorf("password length must be positive")
	}
	if length > passgen.MaxLength {
		return validationErrorf("password length %d exceeds maximum of %d", length, passgen.MaxLength)
	}
	return nil
}

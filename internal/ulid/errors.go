package ulid

import "errors"

var (
	// ErrInvalidLength is returned when decoding a string whose length is
	// not exactly EncodedLen.
	ErrInvalidLength = errors.New("ulid: encoded length must be 26 characters")

	// ErrInvalidCharacter is returned when decoding a string containing a
	// byte outside the Crockford base-32 alphabet.
	ErrInvalidCharacter = errors.New("ulid: invalid character in encoded ulid")

	// ErrOverflow is returned when decoding a string whose first character
	// would require more than the 3 bits a conforming ULID ever uses there
	// (the 128-bit value would exceed the representable range).
	ErrOverflow = errors.New("ulid: first character encodes more than 3 bits")
)

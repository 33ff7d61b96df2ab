// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package codec converts between raw transport payloads and typed application data

A Codec is a stateless pair of functions. Decode turns a RawMessage, the bytes and topic
handed over by a transport, into a Message whose Data is a Value. Encode turns application
data into payload bytes ready for publishing.

Value

Value is a tagged union over the JSON kinds. The kind of a decoded Value reflects the JSON
text that was parsed:

	{"foo": "bar"}   KindObject
	"bar"            KindString
	false            KindBool
	1                KindInt
	1.5, 1e3         KindFloat
	[1, 2]           KindArray
	null             KindNull

A number literal without fraction or exponent that fits into an int64 is an integer,
everything else is a float. Encode writes floats with a fraction or an exponent, so
decoding an encoded value yields an equal value.

Errors

A payload that is not valid UTF-8 JSON never decodes into a default value. Decode returns
an *InvalidEventError which matches ErrInvalidEvent with errors.Is. Data without a JSON
representation (cycles, NaN, infinities, channels, functions) makes Encode fail with an
*EncodeError matching ErrUnsupportedValue.

Formats

Codecs are identified by their format name, the last segment of an event topic. A
Registry maps format names to codecs. It is built once and never changes afterwards.
*/
package codec

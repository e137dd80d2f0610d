package memcache

import "strconv"

// NoTTL represents an infinite TTL (no expiration).
// Use this constant when you want items to persist indefinitely in memcache.
const NoTTL = 0

// DefaultPort is the standard memcached port.
const DefaultPort = 11211

// ResultCode is the outcome of the last operation.
// Values match the PHP memcached extension.
type ResultCode int

const (
	ResSuccess                       ResultCode = 0
	ResFailure                       ResultCode = 1
	ResHostLookupFailure             ResultCode = 2
	ResConnectionFailure             ResultCode = 3
	ResWriteFailure                  ResultCode = 5
	ResUnknownReadFailure            ResultCode = 7
	ResProtocolError                 ResultCode = 8
	ResClientError                   ResultCode = 9
	ResServerError                   ResultCode = 10
	ResConnectionSocketCreateFailure ResultCode = 11
	ResDataExists                    ResultCode = 12
	ResNotStored                     ResultCode = 14
	ResNotFound                      ResultCode = 16
	ResSomeErrors                    ResultCode = 19
	ResNoServers                     ResultCode = 20
	ResEnd                           ResultCode = 21
	ResNotSupported                  ResultCode = 28
	ResTimeout                       ResultCode = 31
	ResBadKeyProvided                ResultCode = 33
	ResServerMarkedDead              ResultCode = 35
	ResInvalidArguments              ResultCode = 38
	ResPayloadFailure                ResultCode = -1001
)

var resultCodeNames = map[ResultCode]string{
	ResSuccess:                       "SUCCESS",
	ResFailure:                       "FAILURE",
	ResHostLookupFailure:             "HOST LOOKUP FAILURE",
	ResConnectionFailure:             "CONNECTION FAILURE",
	ResWriteFailure:                  "WRITE FAILURE",
	ResUnknownReadFailure:            "UNKNOWN READ FAILURE",
	ResProtocolError:                 "PROTOCOL ERROR",
	ResClientError:                   "CLIENT ERROR",
	ResServerError:                   "SERVER ERROR",
	ResConnectionSocketCreateFailure: "CONNECTION SOCKET CREATE FAILURE",
	ResDataExists:                    "CONNECTION DATA EXISTS",
	ResNotStored:                     "NOT STORED",
	ResNotFound:                      "NOT FOUND",
	ResSomeErrors:                    "SOME ERRORS WERE REPORTED",
	ResNoServers:                     "NO SERVERS DEFINED",
	ResEnd:                           "END",
	ResNotSupported:                  "ACTION NOT SUPPORTED",
	ResTimeout:                       "A TIMEOUT OCCURRED",
	ResBadKeyProvided:                "A BAD KEY WAS PROVIDED/CHARACTERS OUT OF RANGE",
	ResServerMarkedDead:              "SERVER IS MARKED DEAD",
	ResInvalidArguments:              "INVALID ARGUMENTS",
	ResPayloadFailure:                "PAYLOAD FAILURE",
}

func (c ResultCode) String() string {
	if name, ok := resultCodeNames[c]; ok {
		return name
	}
	return "RESULT(" + strconv.Itoa(int(c)) + ")"
}

// Option identifies a session option. Values match the PHP memcached
// extension so option tables can be shared.
type Option int

const (
	// OptCompression enables payload compression (bool).
	OptCompression Option = -1001
	// OptPrefixKey is prepended to every item key (string, at most 128 bytes).
	OptPrefixKey Option = -1002
	// OptSerializer selects the serializer for non-scalar values (codec.SerializerKind).
	OptSerializer Option = -1003
	// OptCompressionType selects the compression algorithm (codec.Compression).
	OptCompressionType Option = -1004
	// OptCompressionThreshold is the payload size above which compression is tried (int).
	OptCompressionThreshold Option = -1005
	// OptCompressionFactor is the minimum original/compressed size ratio (float64).
	OptCompressionFactor Option = -1006
)

// MaxPrefixKeyLength is the longest accepted OptPrefixKey.
const MaxPrefixKeyLength = 128

func (o Option) String() string {
	switch o {
	case OptCompression:
		return "compression"
	case OptPrefixKey:
		return "prefix_key"
	case OptSerializer:
		return "serializer"
	case OptCompressionType:
		return "compression_type"
	case OptCompressionThreshold:
		return "compression_threshold"
	case OptCompressionFactor:
		return "compression_factor"
	default:
		return "option(" + strconv.Itoa(int(o)) + ")"
	}
}

// GetFlags modify multi-key retrieval.
type GetFlags int

const (
	// PreserveOrder returns items in the order keys were requested, with
	// missing keys omitted.
	PreserveOrder GetFlags = 1
	// WithCAS requests CAS tokens (gets instead of get).
	WithCAS GetFlags = 2
)

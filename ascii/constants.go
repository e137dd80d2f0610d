package ascii

// Verb is a text protocol command verb.
type Verb string

// Protocol delimiters
const (
	// CRLF is the line terminator for the memcached protocol
	CRLF = "\r\n"

	// Space separates command tokens
	Space = " "
)

// Storage commands: <verb> <key> <flags> <exptime> <bytes> [<cas unique>]\r\n<data>\r\n
const (
	VerbSet     Verb = "set"
	VerbAdd     Verb = "add"
	VerbReplace Verb = "replace"
	VerbAppend  Verb = "append"
	VerbPrepend Verb = "prepend"
	VerbCas     Verb = "cas"
)

// Retrieval and other commands.
const (
	VerbGet      Verb = "get"
	VerbGets     Verb = "gets"
	VerbDelete   Verb = "delete"
	VerbIncr     Verb = "incr"
	VerbDecr     Verb = "decr"
	VerbTouch    Verb = "touch"
	VerbFlushAll Verb = "flush_all"
	VerbStats    Verb = "stats"
	VerbVersion  Verb = "version"
	VerbQuit     Verb = "quit"
)

// IsStorage reports whether v carries a data block.
func (v Verb) IsStorage() bool {
	switch v {
	case VerbSet, VerbAdd, VerbReplace, VerbAppend, VerbPrepend, VerbCas:
		return true
	}
	return false
}

// Response tokens
const (
	TokenStored    = "STORED"
	TokenNotStored = "NOT_STORED"
	TokenExists    = "EXISTS"
	TokenNotFound  = "NOT_FOUND"
	TokenDeleted   = "DELETED"
	TokenTouched   = "TOUCHED"
	TokenOK        = "OK"
	TokenValue     = "VALUE"
	TokenEnd       = "END"
	TokenStat      = "STAT"
	TokenItem      = "ITEM"
	TokenVersion   = "VERSION"
)

// Error markers
const (
	// ErrorGeneric is sent for an unknown command.
	ErrorGeneric = "ERROR"

	// ErrorClientPrefix starts a line describing malformed client input.
	ErrorClientPrefix = "CLIENT_ERROR"

	// ErrorServerPrefix starts a line describing a server-side failure.
	ErrorServerPrefix = "SERVER_ERROR"
)

// Stats sub-commands used by key enumeration.
const (
	StatsItems     = "items"
	StatsSlabs     = "slabs"
	StatsCachedump = "cachedump"
)

// Key and value constraints
const (
	MinKeyLength = 1
	MaxKeyLength = 250

	// MaxValueSize is the largest data block accepted from the wire.
	// memcached's item size limit can be raised up to 1GB with -I.
	MaxValueSize = 1 << 30

	// preallocLimit caps the buffer reserved before a data block is read.
	preallocLimit = 64 << 10
)

package protocol

// --------------------------------------------------------------------------
// Connection preamble and resource negotiation
// --------------------------------------------------------------------------

const (
	// Magic is written by the client as the very first bytes of a connection
	Magic        = "NiFi"
	// ResourceName is the name of the negotiated flow file protocol
	ResourceName = "SocketFlowFileProtocol"
)

// SupportedVersions lists protocol versions in order of preference
var SupportedVersions = []uint32{5, 4, 3, 2, 1}

// Status bytes of a resource negotiation response
const (
	ResourceOK               byte = 20
	DifferentResourceVersion byte = 21
	NegotiatedAbort          byte = 255
)

// --------------------------------------------------------------------------
// Request types
// --------------------------------------------------------------------------

// RequestType is the verb sent by the client to open a request on a handshaken connection
type RequestType string

const (
	RequestSendFlowFiles    RequestType = "SEND_FLOWFILES"
	RequestReceiveFlowFiles RequestType = "RECEIVE_FLOWFILES"
	RequestShutdown         RequestType = "SHUTDOWN"
)

// --------------------------------------------------------------------------
// Handshake properties
// --------------------------------------------------------------------------

const (
	PropGZIP              = "GZIP"
	PropPortIdentifier    = "PORT_IDENTIFIER"
	PropRequestExpiration = "REQUEST_EXPIRATION_MILLIS"
	PropBatchCount        = "BATCH_COUNT"
	PropBatchSize         = "BATCH_SIZE"
	PropBatchDuration     = "BATCH_DURATION"
)

// --------------------------------------------------------------------------
// Response codes
// --------------------------------------------------------------------------

// ResponseCode is the single byte status of a response frame
type ResponseCode uint8

const (
	Reserved           ResponseCode = 0
	PropertiesOK       ResponseCode = 1
	ContinueTx         ResponseCode = 10
	FinishTx           ResponseCode = 11
	ConfirmTx          ResponseCode = 12
	TxFinished         ResponseCode = 13
	TxFinishedDestFull ResponseCode = 14
	CancelTx           ResponseCode = 15
	BadChecksum        ResponseCode = 19
	MoreData           ResponseCode = 20
	NoMoreData         ResponseCode = 21

	UnknownPort          ResponseCode = 200
	PortNotInValidState  ResponseCode = 201
	PortsDestinationFull ResponseCode = 202

	UnknownPropertyName  ResponseCode = 230
	IllegalPropertyValue ResponseCode = 231
	MissingProperty      ResponseCode = 232

	Unauthorized     ResponseCode = 240
	Abort            ResponseCode = 250
	UnrecognizedCode ResponseCode = 254
	EndOfStream      ResponseCode = 255
)

// HasMessage reports whether a frame with this code carries a message string
func (c ResponseCode) HasMessage() bool {
	switch c {
	case ConfirmTx, CancelTx, UnknownPort, PortNotInValidState, UnknownPropertyName,
		IllegalPropertyValue, MissingProperty, Unauthorized, Abort:
		return true
	default:
		return false
	}
}

// String returns the string representation of a ResponseCode
func (c ResponseCode) String() string {
	switch c {
	case Reserved:
		return "RESERVED"
	case PropertiesOK:
		return "PROPERTIES_OK"
	case ContinueTx:
		return "CONTINUE_TRANSACTION"
	case FinishTx:
		return "FINISH_TRANSACTION"
	case ConfirmTx:
		return "CONFIRM_TRANSACTION"
	case TxFinished:
		return "TRANSACTION_FINISHED"
	case TxFinishedDestFull:
		return "TRANSACTION_FINISHED_BUT_DESTINATION_FULL"
	case CancelTx:
		return "CANCEL_TRANSACTION"
	case BadChecksum:
		return "BAD_CHECKSUM"
	case MoreData:
		return "MORE_DATA"
	case NoMoreData:
		return "NO_MORE_DATA"
	case UnknownPort:
		return "UNKNOWN_PORT"
	case PortNotInValidState:
		return "PORT_NOT_IN_VALID_STATE"
	case PortsDestinationFull:
		return "PORTS_DESTINATION_FULL"
	case UnknownPropertyName:
		return "UNKNOWN_PROPERTY_NAME"
	case IllegalPropertyValue:
		return "ILLEGAL_PROPERTY_VALUE"
	case MissingProperty:
		return "MISSING_PROPERTY"
	case Unauthorized:
		return "UNAUTHORIZED"
	case Abort:
		return "ABORT"
	case UnrecognizedCode:
		return "UNRECOGNIZED_RESPONSE_CODE"
	case EndOfStream:
		return "END_OF_STREAM"
	default:
		return "UNKNOWN"
	}
}
